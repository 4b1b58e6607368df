package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "views",
	Short:   "Find tasks by name or description",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		filter := types.TaskFilter{Query: query}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := types.ParseTaskStatus(s)
			if err != nil {
				return err
			}
			filter.Status = &st
		}
		if name, _ := cmd.Flags().GetString("epic"); name != "" {
			epic, err := lookupEpic(name)
			if err != nil {
				return err
			}
			filter.EpicID = &epic.ID
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		tasks, err := store.ListTasks(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, tasks)
		}
		printf(cmd, "%s\n", ui.RenderSearchResults(query, tasks, ui.GetWidth()))
		return nil
	},
}

func init() {
	searchCmd.Flags().StringP("status", "s", "", "Filter by status")
	searchCmd.Flags().StringP("epic", "e", "", "Filter by epic")
	searchCmd.Flags().IntP("limit", "n", 50, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
