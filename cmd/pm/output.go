package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/ui"
)

// outputJSON writes v as indented JSON to the command's stdout.
func outputJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// warnf reports a non-fatal problem on stderr.
func warnf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", ui.RenderWarn("Warning:"), fmt.Sprintf(format, args...))
}

// infof reports something that is not an error but that the user should see,
// such as a transition that changed nothing.
func infof(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", ui.RenderMuted(fmt.Sprintf(format, args...)))
}

// printError renders err the way main reports failures.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if errors.Is(err, storage.ErrDBNotInitialized) {
		fmt.Fprintln(w, "Hint: run 'pm init' in your project root")
	}
}
