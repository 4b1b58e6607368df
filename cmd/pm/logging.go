package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/untoldecay/ccpm/internal/config"
)

// parseLogLevel maps a config string to a slog level. Unknown values mean info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging builds the operational logger. Records go to a rotating file
// under the project's .pm/logs directory, or nowhere when there is no project.
// --verbose lowers the level to debug.
func setupLogging(pmDir string) (*slog.Logger, io.Closer, error) {
	level := parseLogLevel(config.GetString("log.level"))
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	path := config.GetString("log.file")
	if path == "" && pmDir != "" {
		path = filepath.Join(pmDir, "logs", "pm.log")
	}
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    config.GetInt("log.max-size-mb"),
		MaxBackups: config.GetInt("log.max-backups"),
		MaxAge:     config.GetInt("log.max-age-days"),
		Compress:   true,
	}
	logger := slog.New(slog.NewTextHandler(lj, opts)).With("actor", actor)
	return logger, lj, nil
}
