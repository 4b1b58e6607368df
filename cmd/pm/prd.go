package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/progress"
	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
)

var prdCmd = &cobra.Command{
	Use:     "prd",
	GroupID: "plan",
	Short:   "Manage product requirement documents",
}

var prdNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a PRD",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		prd := &types.PRD{Name: args[0], Description: description, Status: types.PRDBacklog}
		if err := store.CreatePRD(rootCtx, prd); err != nil {
			return err
		}
		logger.Info("prd created", "prd", prd.Name)
		if jsonOutput {
			return outputJSON(cmd, prd)
		}
		printf(cmd, "%s Created PRD %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(prd.Name))
		return nil
	},
}

var prdListCmd = &cobra.Command{
	Use:   "list",
	Short: "List PRDs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prds, err := store.ListPRDs(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, prds)
		}
		if len(prds) == 0 {
			printf(cmd, "No PRDs.\n")
			return nil
		}
		rows := make([][]string, 0, len(prds))
		for _, p := range prds {
			rows = append(rows, []string{p.Name, string(p.Status), ui.Truncate(p.Description, 60)})
		}
		printf(cmd, "%s\n", ui.NewTable(ui.GetWidth(), "PRD", "Status", "Description").Rows(rows...).String())
		return nil
	},
}

// prdReport is a PRD with its epics and rolled-up progress.
type prdReport struct {
	PRD     *types.PRD          `json:"prd"`
	Summary progress.PRDSummary `json:"summary"`
	Epics   []*types.Epic       `json:"epics"`
}

func loadPRDReport(name string) (*prdReport, error) {
	prd, err := lookupPRD(name)
	if err != nil {
		return nil, err
	}
	epics, err := store.ListEpics(rootCtx, types.EpicFilter{PRDID: &prd.ID})
	if err != nil {
		return nil, err
	}
	return &prdReport{PRD: prd, Summary: progress.ComputePRD(epics), Epics: epics}, nil
}

var prdShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a PRD and its epics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := loadPRDReport(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, rep)
		}
		w := ui.GetWidth()
		printf(cmd, "%s\n", ui.RenderKeyValues([][2]string{
			{"PRD", ui.RenderAccent(rep.PRD.Name)},
			{"Status", string(rep.PRD.Status)},
			{"Progress", ui.ProgressBar(rep.Summary.Percent, 20)},
			{"Created", rep.PRD.CreatedAt.Format("2006-01-02")},
		}, w))
		if rep.PRD.Description != "" {
			printf(cmd, "\n%s\n", ui.RenderMarkdown(rep.PRD.Description, w))
		}
		printf(cmd, "\n%s\n", renderEpicRows(rep.Epics, w))
		return nil
	},
}

var prdStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Roll epic progress up into the PRD status",
	Long: `Compute the PRD's status from its epics (complete when every epic is
closed, active once any epic has started) and store it if it changed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := loadPRDReport(args[0])
		if err != nil {
			return err
		}
		changed := rep.PRD.Status != rep.Summary.Status
		if changed {
			if err := store.UpdatePRD(rootCtx, rep.PRD.ID, types.PRDUpdate{Status: &rep.Summary.Status}); err != nil {
				return err
			}
			logger.Info("prd status rolled up", "prd", rep.PRD.Name, "from", rep.PRD.Status, "to", rep.Summary.Status)
			rep.PRD.Status = rep.Summary.Status
		}
		if jsonOutput {
			return outputJSON(cmd, rep)
		}
		printf(cmd, "PRD %s: %s %s (%d/%d epics closed)\n", ui.RenderAccent(rep.PRD.Name),
			ui.ProgressBar(rep.Summary.Percent, 20), rep.Summary.Status, rep.Summary.Closed, rep.Summary.Epics)
		return nil
	},
}

var prdEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Update a PRD",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prd, err := lookupPRD(args[0])
		if err != nil {
			return err
		}
		var update types.PRDUpdate
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			update.Name = &name
		}
		if cmd.Flags().Changed("description") {
			desc, _ := cmd.Flags().GetString("description")
			update.Description = &desc
		}
		if cmd.Flags().Changed("status") {
			s, _ := cmd.Flags().GetString("status")
			st := types.PRDStatus(s)
			update.Status = &st
		}
		if update.IsEmpty() {
			return &types.ValidationError{Reason: "nothing to update (use --name, --description or --status)"}
		}
		if err := store.UpdatePRD(rootCtx, prd.ID, update); err != nil {
			return err
		}
		prd, err = store.GetPRDByID(rootCtx, prd.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, prd)
		}
		printf(cmd, "%s Updated PRD %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(prd.Name))
		return nil
	},
}

var prdDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a PRD (its epics are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prd, err := lookupPRD(args[0])
		if err != nil {
			return err
		}
		if !assumeYes && !ui.Confirm(fmt.Sprintf("Delete PRD %s?", prd.Name), false) {
			return fmt.Errorf("aborted")
		}
		if err := store.DeletePRD(rootCtx, prd.ID); err != nil {
			return err
		}
		logger.Info("prd deleted", "prd", prd.Name)
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{"deleted": prd.Name})
		}
		printf(cmd, "%s Deleted PRD %s\n", ui.RenderPass(ui.CheckMark()), prd.Name)
		return nil
	},
}

func init() {
	prdNewCmd.Flags().StringP("description", "d", "", "PRD description (markdown)")
	prdEditCmd.Flags().String("name", "", "New name")
	prdEditCmd.Flags().StringP("description", "d", "", "New description")
	prdEditCmd.Flags().String("status", "", "New status (backlog, active, complete)")

	prdCmd.AddCommand(prdNewCmd, prdListCmd, prdShowCmd, prdStatusCmd, prdEditCmd, prdDeleteCmd)
	rootCmd.AddCommand(prdCmd)
}
