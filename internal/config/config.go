package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/untoldecay/ccpm/internal/debug"
)

// DirName is the per-project directory holding the database, config, hooks
// and logs.
const DirName = ".pm"

// EnvPrefix is the prefix for environment overrides, e.g. PM_DB, PM_GITHUB_REPO.
const EnvPrefix = "PM"

var v *viper.Viper

// Initialize sets up the viper configuration singleton
// Should be called once at application startup
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .pm/config.yaml > ~/.config/pm/config.yaml
	configFileSet := false

	// Walk up from CWD so commands work from subdirectories
	if dir := FindProjectDir(); dir != "" {
		configPath := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			configFileSet = true
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "pm", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file.
	// PM_LOG_LEVEL maps to "log.level", PM_LOCK_TIMEOUT to "lock-timeout".
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("yes", false)
	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("lock-timeout", "30s")

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max-size-mb", 10)
	v.SetDefault("log.max-backups", 3)
	v.SetDefault("log.max-age-days", 28)

	v.SetDefault("github.repo", "")
	v.SetDefault("github.token", "")
	v.SetDefault("github.endpoint", "https://api.github.com")

	// Push task state to the tracker after each transition.
	v.SetDefault("sync.auto", true)

	v.SetDefault("hooks.dir", "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s\n", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables\n")
	}

	return nil
}

// FindProjectDir walks up from the working directory looking for a .pm
// directory. It returns "" when there is none.
func FindProjectDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// ConfigOverride represents a detected configuration override
type ConfigOverride struct {
	Key            string
	EffectiveValue interface{}
	OverriddenBy   ConfigSource
	OriginalSource ConfigSource
}

func envKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// GetValueSource returns the source of a configuration value.
// Priority (highest to lowest): env var > config file > default
// Flags are handled by the caller since viper doesn't know about cobra flags.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	if os.Getenv(envKey(key)) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// CheckOverrides reports flags that were explicitly set over a config file or
// env var value. flagOverrides maps key -> (flagValue, flagWasSet).
func CheckOverrides(flagOverrides map[string]struct {
	Value  interface{}
	WasSet bool
}) []ConfigOverride {
	var overrides []ConfigOverride
	for key, flagInfo := range flagOverrides {
		if !flagInfo.WasSet {
			continue
		}
		source := GetValueSource(key)
		if source == SourceConfigFile || source == SourceEnvVar {
			overrides = append(overrides, ConfigOverride{
				Key:            key,
				EffectiveValue: flagInfo.Value,
				OverriddenBy:   SourceFlag,
				OriginalSource: source,
			})
		}
	}
	return overrides
}

// LogOverride prints a message about a configuration override. Callers guard
// on verbose mode.
func LogOverride(override ConfigOverride) {
	sourceDesc := "default"
	switch override.OriginalSource {
	case SourceConfigFile:
		sourceDesc = "config file"
	case SourceEnvVar:
		sourceDesc = "environment variable"
	}
	fmt.Fprintf(os.Stderr, "Config: %s overridden by command-line flag (from %s, now: %v)\n",
		override.Key, sourceDesc, override.EffectiveValue)
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// commandOutput is swapped in tests.
var commandOutput = func(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

// GitHubToken resolves the tracker token.
// Priority chain:
//  1. github.token (config file or PM_GITHUB_TOKEN)
//  2. GITHUB_TOKEN env var
//  3. `gh auth token`
func GitHubToken() string {
	if tok := GetString("github.token"); tok != "" {
		return tok
	}
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		return tok
	}
	if tok, err := commandOutput("gh", "auth", "token"); err == nil {
		return tok
	}
	return ""
}

// GitHubRemote returns github.repo, or the origin remote URL when unset.
// The caller parses the URL into owner/name.
func GitHubRemote() string {
	if repo := GetString("github.repo"); repo != "" {
		return repo
	}
	if url, err := commandOutput("git", "config", "--get", "remote.origin.url"); err == nil {
		return url
	}
	return ""
}

// GetActor resolves who is making changes, for logs and tracker comments.
// Priority: flag, actor config, git user.name, $USER.
func GetActor(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if actor := GetString("actor"); actor != "" {
		return actor
	}
	if name, err := commandOutput("git", "config", "user.name"); err == nil && name != "" {
		return name
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}
