package main

import (
	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/graph"
	"github.com/untoldecay/ccpm/internal/ui"
)

// loadScopedGraph snapshots the graph and resolves --epic into a scope.
func loadScopedGraph(cmd *cobra.Command) (*graph.Snapshot, graph.Scope, error) {
	scope := graph.AllEpics
	if name, _ := cmd.Flags().GetString("epic"); name != "" {
		epic, err := lookupEpic(name)
		if err != nil {
			return nil, scope, err
		}
		scope = graph.Epic(epic.ID)
	}
	snap, err := store.LoadGraph(rootCtx)
	if err != nil {
		return nil, scope, err
	}
	return snap, scope, nil
}

var readyCmd = &cobra.Command{
	Use:     "ready",
	Aliases: []string{"next"},
	GroupID: "views",
	Short:   "Show open tasks whose dependencies are all closed",
	Long: `Show ready work: open tasks with every dependency closed. Dependencies in
other epics count too. In-progress tasks are listed by 'pm in-progress'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, scope, err := loadScopedGraph(cmd)
		if err != nil {
			return err
		}
		ready := snap.Ready(scope)
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(ready) > limit {
			ready = ready[:limit]
		}
		if jsonOutput {
			return outputJSON(cmd, ready)
		}
		printf(cmd, "%s\n", ui.RenderTaskTable("ready tasks", ready, ui.GetWidth()))
		return nil
	},
}

var blockedCmd = &cobra.Command{
	Use:     "blocked",
	GroupID: "views",
	Short:   "Show tasks waiting on unfinished dependencies",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, scope, err := loadScopedGraph(cmd)
		if err != nil {
			return err
		}
		blocked := snap.Blocked(scope)
		if jsonOutput {
			return outputJSON(cmd, blocked)
		}
		rows := make([]ui.BlockedRow, len(blocked))
		for i, b := range blocked {
			rows[i] = ui.BlockedRow{Task: b.Task, BlockedBy: b.BlockedBy}
		}
		printf(cmd, "%s\n", ui.RenderBlockedTable(rows, ui.GetWidth()))
		return nil
	},
}

var inProgressCmd = &cobra.Command{
	Use:     "in-progress",
	Aliases: []string{"wip"},
	GroupID: "views",
	Short:   "Show tasks currently being worked on",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, scope, err := loadScopedGraph(cmd)
		if err != nil {
			return err
		}
		tasks := snap.InProgress(scope)
		if jsonOutput {
			return outputJSON(cmd, tasks)
		}
		printf(cmd, "%s\n", ui.RenderTaskTable("tasks in progress", tasks, ui.GetWidth()))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{readyCmd, blockedCmd, inProgressCmd} {
		c.Flags().StringP("epic", "e", "", "Only tasks in this epic")
	}
	readyCmd.Flags().IntP("limit", "n", 0, "Maximum number of tasks")
	rootCmd.AddCommand(readyCmd, blockedCmd, inProgressCmd)
}
