package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/config"
	"github.com/untoldecay/ccpm/internal/debug"
	"github.com/untoldecay/ccpm/internal/hooks"
	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
	"github.com/untoldecay/ccpm/internal/ui"
)

// DefaultDBName is the database file inside .pm/.
const DefaultDBName = "pm.db"

var (
	rootCtx    context.Context
	rootCancel context.CancelFunc

	store      storage.Storage
	projectDir string // the .pm directory, "" when none was found
	hookRunner *hooks.Runner
	logger     = slog.New(slog.NewTextHandler(io.Discard, nil))
	logCloser  io.Closer

	// Flag values
	dbPath     string
	jsonOutput bool
	assumeYes  bool
	verbose    bool
	actor      string
)

var rootCmd = &cobra.Command{
	Use:   "pm",
	Short: "pm - task dependency graph and issue tracker sync",
	Long: `pm tracks PRDs, epics and tasks in a local SQLite database, works out
which tasks are ready or blocked from their dependencies, rolls task state up
into epic progress, and mirrors it to GitHub issues.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: persistentPreRun,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeGlobals()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "work", Title: "Working on tasks:"},
		&cobra.Group{ID: "plan", Title: "Planning:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "sync", Title: "Issue tracker:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .pm/pm.db found by walking up)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to confirmations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Who is making the change (default: git user.name)")
}

// noDB marks commands that run without opening the database.
const noDB = "nodb"

func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[noDB] == "true" {
			return false
		}
	}
	switch cmd.Name() {
	case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return false
	}
	return true
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rootCtx, rootCancel = context.WithCancel(ctx)

	if err := config.Initialize(); err != nil {
		return err
	}

	// Flags win over config; config wins over defaults.
	if !cmd.Flags().Changed("json") {
		jsonOutput = config.GetBool("json")
	}
	if !cmd.Flags().Changed("yes") {
		assumeYes = config.GetBool("yes")
	}
	if !cmd.Flags().Changed("db") && config.GetString("db") != "" {
		dbPath = config.GetString("db")
	}
	actor = config.GetActor(actor)
	if verbose {
		debug.SetEnabled(true)
		overrides := config.CheckOverrides(map[string]struct {
			Value  interface{}
			WasSet bool
		}{
			"json": {jsonOutput, cmd.Flags().Changed("json")},
			"db":   {dbPath, cmd.Flags().Changed("db")},
			"yes":  {assumeYes, cmd.Flags().Changed("yes")},
		})
		for _, o := range overrides {
			config.LogOverride(o)
		}
	}
	ui.InitColor()

	projectDir = config.FindProjectDir()
	if dbPath == "" && projectDir != "" {
		dbPath = filepath.Join(projectDir, DefaultDBName)
	}
	if dbPath != "" && projectDir == "" {
		projectDir = filepath.Dir(dbPath)
	}

	var err error
	logger, logCloser, err = setupLogging(projectDir)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	switch hooksDir := config.GetString("hooks.dir"); {
	case hooksDir != "":
		hookRunner = hooks.NewRunner(hooksDir).WithLogger(logger)
	case projectDir != "":
		hookRunner = hooks.NewRunner(filepath.Join(projectDir, "hooks")).WithLogger(logger)
	default:
		hookRunner = nil
	}

	if !needsStore(cmd) {
		return nil
	}
	if dbPath == "" {
		return fmt.Errorf("%w: no .pm directory found (run 'pm init')", storage.ErrDBNotInitialized)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s does not exist (run 'pm init')", storage.ErrDBNotInitialized, dbPath)
	}
	return openStore(rootCtx, dbPath)
}

func openStore(ctx context.Context, path string) error {
	timeout := config.GetDuration("lock-timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s, err := sqlite.New(ctx, path, sqlite.WithBusyTimeout(timeout))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	store = s
	if err := checkVersionCompatibility(ctx, s); err != nil {
		_ = s.Close()
		store = nil
		return err
	}
	debug.Logf("opened database %s\n", path)
	return nil
}

func closeGlobals() {
	if hookRunner != nil {
		hookRunner.Wait()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
		store = nil
	}
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
	if rootCancel != nil {
		rootCancel()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		closeGlobals()
		printError(os.Stderr, err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
