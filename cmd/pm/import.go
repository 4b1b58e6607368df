package main

import (
	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/plan"
	"github.com/untoldecay/ccpm/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <plan.yaml|plan.toml>",
	GroupID: "plan",
	Short:   "Create an epic with tasks and dependencies from a plan file",
	Long: `Create an epic, its tasks and their dependencies from a YAML or TOML plan.
The plan is validated first (unique keys, known dependencies, no cycles) and
then written in a single transaction, so a failed import leaves nothing
behind.

Example plan.yaml:

  name: auth
  prd: accounts
  content: Login and session handling
  tasks:
    - key: schema
      name: Create user tables
      estimate: 2
    - key: login
      name: Login handler
      depends_on: [schema]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			if jsonOutput {
				return outputJSON(cmd, p)
			}
			printf(cmd, "%s Plan %s is valid: %d task(s)\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(p.Name), len(p.Tasks))
			return nil
		}

		lock, err := acquireSyncLock(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		res, err := plan.Import(rootCtx, store, p)
		if err != nil {
			return err
		}
		logger.Info("plan imported", "epic", res.Epic.Name, "tasks", len(res.Tasks), "dependencies", res.Edges)
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		printf(cmd, "%s Imported epic %s: %d task(s), %d dependency edge(s)\n",
			ui.RenderPass(ui.CheckMark()), ui.RenderAccent(res.Epic.Name), len(res.Tasks), res.Edges)
		printf(cmd, "%s\n", ui.RenderTaskTable("tasks", res.Tasks, ui.GetWidth()))
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Validate the plan without writing anything")
	rootCmd.AddCommand(importCmd)
}
