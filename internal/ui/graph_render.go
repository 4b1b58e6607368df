package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/untoldecay/ccpm/internal/graph"
	"github.com/untoldecay/ccpm/internal/types"
)

func taskLabel(t *types.Task) string {
	return fmt.Sprintf("%s %s [%s]", t.Ref(), t.Name, TaskStatusBadge(t.Status))
}

// BuildDependencyTree constructs a tree of everything rootID depends on,
// transitively. A task reached twice is shown once and marked.
func BuildDependencyTree(snap *graph.Snapshot, rootID int64) *tree.Tree {
	root, ok := snap.Task(rootID)
	if !ok {
		return nil
	}
	t := tree.New().Root(taskLabel(root))
	t.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorAccent))
	t.RootStyle(lipgloss.NewStyle().Bold(true))

	seen := map[int64]bool{rootID: true}
	var add func(parent *tree.Tree, id int64)
	add = func(parent *tree.Tree, id int64) {
		for _, dep := range snap.DependenciesOf(id) {
			if seen[dep.ID] {
				parent.Child(taskLabel(dep) + RenderMuted(" (seen)"))
				continue
			}
			seen[dep.ID] = true
			child := tree.New().Root(taskLabel(dep))
			child.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorAccent))
			add(child, dep.ID)
			parent.Child(child)
		}
	}
	add(t, rootID)
	return t
}

// RenderDependencyTree renders BuildDependencyTree.
func RenderDependencyTree(snap *graph.Snapshot, rootID int64) string {
	t := BuildDependencyTree(snap, rootID)
	if t == nil {
		return TableHintStyle.Render("Task not found.")
	}
	return t.String()
}
