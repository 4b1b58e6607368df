package main

import (
	"context"
	"fmt"
	rtdebug "runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
)

var (
	// Version is the current version of pm (overridden by ldflags at build time)
	Version = "0.4.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag)
	Commit = ""
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{noDB: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		commit := resolveCommitHash()
		if jsonOutput {
			result := map[string]string{
				"version": Version,
				"build":   Build,
			}
			if commit != "" {
				result["commit"] = commit
			}
			return outputJSON(cmd, result)
		}
		if commit != "" {
			printf(cmd, "pm version %s (%s: %s)\n", Version, Build, shortCommit(commit))
		} else {
			printf(cmd, "pm version %s (%s)\n", Version, Build)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := rtdebug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func canonicalVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// checkVersionCompatibility compares the version that last wrote the database
// with this binary. A database from a newer major version is refused; an older
// one is stamped with the current version.
func checkVersionCompatibility(ctx context.Context, s storage.Storage) error {
	stored, err := s.GetMetadata(ctx, sqlite.MetaBinaryVersion)
	if err != nil {
		return err
	}
	current := canonicalVersion(Version)
	if !semver.IsValid(current) {
		// Dev builds with odd version strings skip the check.
		return nil
	}
	if stored == "" {
		return s.SetMetadata(ctx, sqlite.MetaBinaryVersion, Version)
	}
	dbVersion := canonicalVersion(stored)
	if !semver.IsValid(dbVersion) {
		logger.Warn("database has an invalid version stamp", "stored", stored)
		return s.SetMetadata(ctx, sqlite.MetaBinaryVersion, Version)
	}

	switch cmp := semver.Compare(dbVersion, current); {
	case cmp > 0 && semver.Major(dbVersion) != semver.Major(current):
		return fmt.Errorf("database was written by pm %s, which is incompatible with pm %s (upgrade pm)", stored, Version)
	case cmp > 0:
		logger.Warn("database was written by a newer pm", "stored", stored, "current", Version)
		return nil
	case cmp < 0:
		logger.Info("upgrading database version stamp", "from", stored, "to", Version)
		return s.SetMetadata(ctx, sqlite.MetaBinaryVersion, Version)
	}
	return nil
}
