// Package ui provides terminal styling and output helpers for the pm CLI.
package ui

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const defaultWidth = 80

func fdIsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool { return fdIsTerminal(os.Stdout) }

// IsInputTerminal reports whether stdin is a TTY, so prompts can be shown.
func IsInputTerminal() bool { return fdIsTerminal(os.Stdin) }

// ShouldUseColor decides whether to emit ANSI color. PM_COLOR=always|never
// overrides everything; otherwise NO_COLOR and CLICOLOR=0 disable color,
// CLICOLOR_FORCE enables it, and stdout being a TTY decides the rest.
func ShouldUseColor() bool {
	switch strings.ToLower(os.Getenv("PM_COLOR")) {
	case "always":
		return true
	case "never":
		return false
	}
	switch {
	case os.Getenv("NO_COLOR") != "", os.Getenv("CLICOLOR") == "0":
		return false
	case os.Getenv("CLICOLOR_FORCE") != "":
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether status marks may use emoji. PM_NO_EMOJI
// or a non-TTY stdout turns them off.
func ShouldUseEmoji() bool {
	return os.Getenv("PM_NO_EMOJI") == "" && IsTerminal()
}

// GetWidth returns the terminal width, then $COLUMNS, then 80.
func GetWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if w, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}
