package main

import (
	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
)

var depCmd = &cobra.Command{
	Use:     "dep",
	GroupID: "plan",
	Short:   "Manage task dependencies",
}

// resolveEdge reads "<epic>#<n> <dep>" where dep is a bare number in the
// same epic or a full reference.
func resolveEdge(args []string) (task, dep *types.Task, err error) {
	task, err = resolveTask(rootCtx, store, args[:1])
	if err != nil {
		return nil, nil, err
	}
	ids, err := resolveDependencyRefs(rootCtx, store, task.EpicName, args[1:])
	if err != nil {
		return nil, nil, err
	}
	dep, err = store.GetTaskByID(rootCtx, ids[0])
	if err != nil {
		return nil, nil, err
	}
	return task, dep, nil
}

var depAddCmd = &cobra.Command{
	Use:   "add <epic>#<n> <depends-on>",
	Short: "Make a task depend on another",
	Long: `Record that the first task cannot start until the second is closed.
Edges that would create a cycle are rejected.

Examples:
  pm dep add auth#3 1          # auth#3 depends on auth#1
  pm dep add auth#3 infra#2    # cross-epic dependency`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, dep, err := resolveEdge(args)
		if err != nil {
			return err
		}
		if err := store.AddDependency(rootCtx, task.ID, dep.ID); err != nil {
			return err
		}
		logger.Info("dependency added", "task", task.Ref(), "depends_on", dep.Ref())
		if jsonOutput {
			return outputJSON(cmd, map[string]string{"task": task.Ref(), "depends_on": dep.Ref(), "status": "added"})
		}
		printf(cmd, "%s %s now depends on %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(task.Ref()), ui.RenderAccent(dep.Ref()))
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "remove <epic>#<n> <depends-on>",
	Aliases: []string{"rm"},
	Short:   "Remove a dependency",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, dep, err := resolveEdge(args)
		if err != nil {
			return err
		}
		if err := store.RemoveDependency(rootCtx, task.ID, dep.ID); err != nil {
			return err
		}
		logger.Info("dependency removed", "task", task.Ref(), "depends_on", dep.Ref())
		if jsonOutput {
			return outputJSON(cmd, map[string]string{"task": task.Ref(), "depends_on": dep.Ref(), "status": "removed"})
		}
		printf(cmd, "%s %s no longer depends on %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(task.Ref()), ui.RenderAccent(dep.Ref()))
		return nil
	},
}

var depListCmd = &cobra.Command{
	Use:   "list <epic>#<n>",
	Short: "List a task's dependencies and dependents",
	Args:  taskArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := resolveTask(rootCtx, store, args)
		if err != nil {
			return err
		}
		deps, err := store.GetDependencies(rootCtx, task.ID)
		if err != nil {
			return err
		}
		dependents, err := store.GetDependents(rootCtx, task.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{
				"task":       task.Ref(),
				"depends_on": deps,
				"dependents": dependents,
			})
		}
		w := ui.GetWidth()
		printf(cmd, "%s\n\n%s\n", ui.RenderTaskTable("dependencies of "+task.Ref(), deps, w),
			ui.RenderTaskTable("dependents of "+task.Ref(), dependents, w))
		return nil
	},
}

func init() {
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depListCmd)
	rootCmd.AddCommand(depCmd)
}
