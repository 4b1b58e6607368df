package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// Confirm asks a yes/no question. On a terminal it uses a huh form;
// otherwise it returns defaultYes without reading input.
func Confirm(question string, defaultYes bool) bool {
	if !IsInputTerminal() || !IsTerminal() {
		fmt.Fprintf(os.Stderr, "%s (non-interactive, defaulting to %t)\n", question, defaultYes)
		return defaultYes
	}
	answer := defaultYes
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	).Run()
	if err != nil {
		return defaultYes
	}
	return answer
}

// PromptYesNo reads a y/n answer from r. Empty or unrecognized input
// yields defaultYes.
func PromptYesNo(w io.Writer, r io.Reader, question string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	fmt.Fprintf(w, "%s %s ", question, hint)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return defaultYes
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return defaultYes
}

// TaskForm collects the fields for a new task interactively.
type TaskForm struct {
	Name        string
	Description string
	Estimate    string
	DependsOn   string
}

// RunTaskForm shows the new-task form. Name is required.
func RunTaskForm(f *TaskForm) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("What needs to be done (required)").
				Value(&f.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				CharLimit(5000).
				Value(&f.Description),
			huh.NewInput().
				Title("Estimate (hours)").
				Placeholder("optional").
				Value(&f.Estimate),
			huh.NewInput().
				Title("Depends on").
				Description("Comma-separated task numbers in this epic (optional)").
				Placeholder("e.g., 1,3").
				Value(&f.DependsOn),
		),
	).Run()
}
