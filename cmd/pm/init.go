package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/untoldecay/ccpm/internal/config"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
	"github.com/untoldecay/ccpm/internal/tracker/github"
	"github.com/untoldecay/ccpm/internal/ui"
)

// projectConfig is the skeleton written to .pm/config.yaml.
type projectConfig struct {
	GitHub struct {
		Repo string `yaml:"repo,omitempty"`
	} `yaml:"github"`
	Sync struct {
		Auto bool `yaml:"auto"`
	} `yaml:"sync"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

const pmGitignore = `# pm local state
pm.db
pm.db-*
logs/
sync.lock
`

var initCmd = &cobra.Command{
	Use:         "init",
	GroupID:     "maint",
	Short:       "Create a .pm directory with a config file and database",
	Long:        `Create .pm/ in the current directory holding config.yaml, the SQLite database, a hooks directory and a .gitignore. Re-running init is safe: existing files are left alone.`,
	Annotations: map[string]string{noDB: "true"},
	Args:        cobra.NoArgs,
	RunE:        runInit,
}

func init() {
	initCmd.Flags().String("repo", "", "GitHub repository (owner/name) to sync with")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	dir := filepath.Join(cwd, config.DirName)
	res := ui.InitResult{
		ConfigPath: filepath.Join(dir, "config.yaml"),
		HooksDir:   filepath.Join(dir, "hooks"),
		DBPath:     filepath.Join(dir, DefaultDBName),
	}
	if cmd.Flags().Changed("db") {
		res.DBPath = dbPath
	}

	repo, _ := cmd.Flags().GetString("repo")
	if repo == "" {
		if remote := config.GitHubRemote(); remote != "" {
			repo, _ = github.ParseRepo(remote)
		}
	} else if parsed, ok := github.ParseRepo(repo); ok {
		repo = parsed
	} else {
		return fmt.Errorf("invalid --repo %q: expected owner/name", repo)
	}
	res.Repo = repo

	for _, d := range []string{dir, res.HooksDir, filepath.Dir(res.DBPath)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	if created, err := writeIfMissing(res.ConfigPath, func() ([]byte, error) {
		var pc projectConfig
		pc.GitHub.Repo = repo
		pc.Sync.Auto = true
		pc.Log.Level = "info"
		return yaml.Marshal(&pc)
	}); err != nil {
		return err
	} else if created {
		res.Created = append(res.Created, "config.yaml")
	}
	if created, err := writeIfMissing(filepath.Join(dir, ".gitignore"), func() ([]byte, error) {
		return []byte(pmGitignore), nil
	}); err != nil {
		return err
	} else if created {
		res.Created = append(res.Created, ".gitignore")
	}

	_, statErr := os.Stat(res.DBPath)
	s, err := sqlite.New(rootCtx, res.DBPath)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer func() { _ = s.Close() }()
	if err := checkVersionCompatibility(rootCtx, s); err != nil {
		return err
	}
	if os.IsNotExist(statErr) {
		res.Created = append(res.Created, DefaultDBName)
	}

	if repo == "" {
		res.Warnings = append(res.Warnings, "no GitHub repository detected; issue sync is disabled until github.repo is set")
	} else if config.GitHubToken() == "" {
		res.Warnings = append(res.Warnings, "no GitHub token found; set GITHUB_TOKEN or run 'gh auth login'")
	}
	res.NextSteps = []string{
		"pm task add \"First task\"",
		"pm import plan.yaml",
		"pm ready",
	}

	if jsonOutput {
		return outputJSON(cmd, res)
	}
	printf(cmd, "%s\n", ui.RenderInitReport(res, ui.GetWidth()))
	return nil
}

// writeIfMissing creates path with the generated content unless it exists.
func writeIfMissing(path string, content func() ([]byte, error)) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	data, err := content()
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
