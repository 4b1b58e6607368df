package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// chdir switches into dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func stubCommands(t *testing.T, out map[string]string) {
	t.Helper()
	orig := commandOutput
	commandOutput = func(name string, args ...string) (string, error) {
		if s, ok := out[name]; ok {
			return s, nil
		}
		return "", errors.New("not found")
	}
	t.Cleanup(func() { commandOutput = orig })
}

func TestInitializeDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if GetDuration("lock-timeout").Seconds() != 30 {
		t.Errorf("lock-timeout = %v", GetDuration("lock-timeout"))
	}
	if !GetBool("sync.auto") {
		t.Error("sync.auto should default to true")
	}
	if GetString("log.level") != "info" {
		t.Errorf("log.level = %q", GetString("log.level"))
	}
}

func TestInitializeFindsProjectConfigFromSubdir(t *testing.T) {
	root := t.TempDir()
	pmDir := filepath.Join(root, DirName)
	sub := filepath.Join(root, "a", "b")
	for _, d := range []string{pmDir, sub} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg := "github:\n  repo: acme/widgets\nsync:\n  auto: false\n"
	if err := os.WriteFile(filepath.Join(pmDir, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if GetString("github.repo") != "acme/widgets" || GetBool("sync.auto") {
		t.Errorf("config not loaded: %v", AllSettings())
	}
	if GetValueSource("github.repo") != SourceConfigFile {
		t.Errorf("source = %s", GetValueSource("github.repo"))
	}

	t.Setenv("PM_GITHUB_REPO", "other/repo")
	if GetString("github.repo") != "other/repo" || GetValueSource("github.repo") != SourceEnvVar {
		t.Errorf("env override not applied: %q", GetString("github.repo"))
	}
}

func TestGitHubTokenFallbacks(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	stubCommands(t, map[string]string{"gh": "from-gh"})

	t.Setenv("GITHUB_TOKEN", "")
	if got := GitHubToken(); got != "from-gh" {
		t.Errorf("GitHubToken = %q, want from-gh", got)
	}
	t.Setenv("GITHUB_TOKEN", "from-env")
	if got := GitHubToken(); got != "from-env" {
		t.Errorf("GitHubToken = %q, want from-env", got)
	}
	Set("github.token", "from-config")
	if got := GitHubToken(); got != "from-config" {
		t.Errorf("GitHubToken = %q, want from-config", got)
	}
}

func TestGetActor(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	stubCommands(t, map[string]string{"git": "Ada"})
	if got := GetActor("flag"); got != "flag" {
		t.Errorf("GetActor(flag) = %q", got)
	}
	if got := GetActor(""); got != "Ada" {
		t.Errorf("GetActor() = %q, want git user", got)
	}
}
