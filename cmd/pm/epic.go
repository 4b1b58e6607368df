package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/plan"
	"github.com/untoldecay/ccpm/internal/progress"
	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
)

var epicCmd = &cobra.Command{
	Use:     "epic",
	GroupID: "plan",
	Short:   "Manage epics",
}

var epicNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create an epic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prdName, _ := cmd.Flags().GetString("prd")
		content, _ := cmd.Flags().GetString("content")
		epic := &types.Epic{Name: args[0], Content: content, Status: types.EpicBacklog}
		if prdName != "" {
			prd, err := lookupPRD(prdName)
			if err != nil {
				return err
			}
			epic.PRDID = &prd.ID
		}
		if err := store.CreateEpic(rootCtx, epic); err != nil {
			return err
		}
		logger.Info("epic created", "epic", epic.Name)
		if jsonOutput {
			return outputJSON(cmd, epic)
		}
		printf(cmd, "%s Created epic %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(epic.Name))
		return nil
	},
}

// renderEpicRows renders epics with their done/total task counts.
func renderEpicRows(epics []*types.Epic, width int) string {
	tasks, err := store.ListTasks(rootCtx, types.TaskFilter{})
	if err != nil {
		return ui.RenderFail(err.Error())
	}
	counts := make(map[int64]*ui.EpicRow, len(epics))
	rows := make([]ui.EpicRow, len(epics))
	for i, e := range epics {
		rows[i] = ui.EpicRow{Epic: e}
		counts[e.ID] = &rows[i]
	}
	for _, t := range tasks {
		if r, ok := counts[t.EpicID]; ok {
			r.Tasks++
			if t.Status != types.StatusClosed {
				r.Open++
			}
		}
	}
	return ui.RenderEpicTable(rows, width)
}

var epicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List epics with progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter types.EpicFilter
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st := types.EpicStatus(s)
			if !st.IsValid() {
				return &types.ValidationError{Field: "status", Reason: fmt.Sprintf("invalid epic status %q", s)}
			}
			filter.Status = &st
		}
		if name, _ := cmd.Flags().GetString("prd"); name != "" {
			prd, err := lookupPRD(name)
			if err != nil {
				return err
			}
			filter.PRDID = &prd.ID
		}
		epics, err := store.ListEpics(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, epics)
		}
		printf(cmd, "%s\n", renderEpicRows(epics, ui.GetWidth()))
		return nil
	},
}

// epicReport is an epic with its tasks and computed progress.
type epicReport struct {
	Epic    *types.Epic      `json:"epic"`
	PRD     string           `json:"prd,omitempty"`
	Summary progress.Summary `json:"summary"`
	Tasks   []*types.Task    `json:"tasks"`
}

func loadEpicReport(name string) (*epicReport, error) {
	epic, err := lookupEpic(name)
	if err != nil {
		return nil, err
	}
	tasks, err := store.ListTasks(rootCtx, types.TaskFilter{EpicID: &epic.ID})
	if err != nil {
		return nil, err
	}
	rep := &epicReport{Epic: epic, Summary: progress.Compute(tasks), Tasks: tasks}
	if epic.PRDID != nil {
		if prd, err := store.GetPRDByID(rootCtx, *epic.PRDID); err == nil {
			rep.PRD = prd.Name
		}
	}
	return rep, nil
}

var epicShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show an epic and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := loadEpicReport(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, rep)
		}
		w := ui.GetWidth()
		issue := ""
		if rep.Epic.ExternalIssue != nil {
			issue = fmt.Sprintf("#%d", *rep.Epic.ExternalIssue)
		}
		printf(cmd, "%s\n", ui.RenderKeyValues([][2]string{
			{"Epic", ui.RenderAccent(rep.Epic.Name)},
			{"PRD", rep.PRD},
			{"Status", ui.EpicStatusBadge(rep.Epic.Status)},
			{"Progress", ui.ProgressBar(rep.Epic.Progress, 20)},
			{"Tasks", fmt.Sprintf("%d open, %d in progress, %d closed", rep.Summary.Open, rep.Summary.InProgress, rep.Summary.Closed)},
			{"Issue", issue},
		}, w))
		if rep.Epic.Progress != rep.Summary.Percent {
			warnf(cmd, "stored progress %d%% differs from computed %d%% (run 'pm epic refresh %s')", rep.Epic.Progress, rep.Summary.Percent, rep.Epic.Name)
		}
		if rep.Epic.Content != "" {
			printf(cmd, "\n%s\n", ui.RenderMarkdown(rep.Epic.Content, w))
		}
		printf(cmd, "\n%s\n", ui.RenderTaskTable("tasks", rep.Tasks, w))
		return nil
	},
}

var epicStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Mark an epic active",
	Long: `Mark an epic active before any of its tasks are closed. Progress is still
derived from tasks: an epic with no closed tasks returns to backlog the next
time its progress is recomputed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epic, err := lookupEpic(args[0])
		if err != nil {
			return err
		}
		if epic.Status == types.EpicActive {
			infof(cmd, "epic %s is already active", epic.Name)
			return nil
		}
		if epic.Status == types.EpicClosed {
			return &types.ValidationError{Field: "status", Reason: fmt.Sprintf("epic %s is closed; reopen one of its tasks instead", epic.Name)}
		}
		active := types.EpicActive
		if err := store.UpdateEpic(rootCtx, epic.ID, types.EpicUpdate{Status: &active}); err != nil {
			return err
		}
		logger.Info("epic started", "epic", epic.Name)
		if jsonOutput {
			epic.Status = active
			return outputJSON(cmd, epic)
		}
		printf(cmd, "%s Started epic %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(epic.Name))
		return nil
	},
}

var epicCloseCmd = &cobra.Command{
	Use:   "close <name>",
	Short: "Close an epic and all of its remaining tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := loadEpicReport(args[0])
		if err != nil {
			return err
		}
		var remaining []*types.Task
		for _, t := range rep.Tasks {
			if t.Status != types.StatusClosed {
				remaining = append(remaining, t)
			}
		}
		if len(remaining) > 0 && !assumeYes {
			q := fmt.Sprintf("Epic %s has %d unfinished task(s). Close them all?", rep.Epic.Name, len(remaining))
			if !ui.Confirm(q, false) {
				return fmt.Errorf("aborted")
			}
		}

		lc := newLifecycle()
		closed := make([]*types.Task, 0, len(remaining))
		for _, t := range remaining {
			res, err := lc.Close(rootCtx, t.ID)
			if err != nil {
				return fmt.Errorf("closing %s: %w", t.Ref(), err)
			}
			closed = append(closed, res.Task)
			if _, err := autoPush(rootCtx, cmd, res.Task, ""); err != nil {
				return err
			}
		}
		if len(rep.Tasks) == 0 && rep.Epic.Status != types.EpicClosed {
			st := types.EpicClosed
			if err := store.UpdateEpic(rootCtx, rep.Epic.ID, types.EpicUpdate{Status: &st}); err != nil {
				return err
			}
		}
		epic, err := store.GetEpicByID(rootCtx, rep.Epic.ID)
		if err != nil {
			return err
		}
		logger.Info("epic closed", "epic", epic.Name, "tasks_closed", len(closed))
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{"epic": epic, "closed": closed})
		}
		printf(cmd, "%s Closed epic %s (%d task(s) closed)\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(epic.Name), len(closed))
		return nil
	},
}

var epicRefreshCmd = &cobra.Command{
	Use:   "refresh <name>",
	Short: "Recompute epic progress and refresh its issue checklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epic, err := lookupEpic(args[0])
		if err != nil {
			return err
		}
		var res *progress.Result
		err = store.RunInTransaction(rootCtx, func(tx storage.Transaction) error {
			var err error
			res, err = progress.Recompute(rootCtx, tx, epic.ID)
			return err
		})
		if err != nil {
			return err
		}

		checklistChanged := false
		if res.Epic.ExternalIssue != nil {
			tr, err := trackerFactory()
			if err != nil {
				return err
			}
			if tr != nil {
				checklistChanged, err = newReconciler(tr).RefreshEpicChecklist(rootCtx, res.Epic)
				if err != nil {
					warnSyncFailure(cmd, err)
				}
			}
		}

		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{
				"progress":          res,
				"checklist_changed": checklistChanged,
			})
		}
		if res.Changed {
			printf(cmd, "%s Epic %s: %d%% -> %d%% (%s)\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(res.Epic.Name),
				res.PreviousPct, res.Summary.Percent, res.Summary.Status)
		} else {
			printf(cmd, "Epic %s is up to date: %s\n", ui.RenderAccent(res.Epic.Name), ui.ProgressBar(res.Summary.Percent, 20))
		}
		if checklistChanged {
			printf(cmd, "  %s issue #%d checklist updated\n", ui.CheckMark(), *res.Epic.ExternalIssue)
		}
		return nil
	},
}

var epicEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Update an epic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epic, err := lookupEpic(args[0])
		if err != nil {
			return err
		}
		var update types.EpicUpdate
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			update.Name = &name
		}
		if cmd.Flags().Changed("content") {
			content, _ := cmd.Flags().GetString("content")
			update.Content = &content
		}
		if cmd.Flags().Changed("prd") {
			name, _ := cmd.Flags().GetString("prd")
			prd, err := lookupPRD(name)
			if err != nil {
				return err
			}
			update.PRDID = &prd.ID
		}
		if update.IsEmpty() {
			return &types.ValidationError{Reason: "nothing to update (use --name, --content or --prd)"}
		}
		if err := store.UpdateEpic(rootCtx, epic.ID, update); err != nil {
			return err
		}
		epic, err = store.GetEpicByID(rootCtx, epic.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, epic)
		}
		printf(cmd, "%s Updated epic %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(epic.Name))
		return nil
	},
}

var epicDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an epic and hide its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epic, err := lookupEpic(args[0])
		if err != nil {
			return err
		}
		if !assumeYes && !ui.Confirm(fmt.Sprintf("Delete epic %s and all of its tasks?", epic.Name), false) {
			return fmt.Errorf("aborted")
		}
		if err := store.DeleteEpic(rootCtx, epic.ID); err != nil {
			return err
		}
		logger.Info("epic deleted", "epic", epic.Name)
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{"deleted": epic.Name})
		}
		printf(cmd, "%s Deleted epic %s\n", ui.RenderPass(ui.CheckMark()), epic.Name)
		return nil
	},
}

var epicExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Write an epic as a plan file",
	Long: `Write the epic's tasks and dependencies in the plan format read by
'pm import'. Dependencies on tasks in other epics are left out.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epic, err := lookupEpic(args[0])
		if err != nil {
			return err
		}
		p, err := plan.FromEpic(rootCtx, store, epic)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		format := plan.FormatYAML
		if f, _ := cmd.Flags().GetString("format"); f != "" {
			format = plan.Format(f)
		} else if out != "" {
			if format, err = plan.FormatFor(out); err != nil {
				return err
			}
		}
		data, err := plan.Encode(p, format)
		if err != nil {
			return err
		}
		if out == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("writing plan: %w", err)
		}
		printf(cmd, "%s Wrote %s (%d tasks)\n", ui.RenderPass(ui.CheckMark()), out, len(p.Tasks))
		return nil
	},
}

func init() {
	epicNewCmd.Flags().String("prd", "", "PRD the epic belongs to")
	epicNewCmd.Flags().StringP("content", "c", "", "Epic description (markdown)")
	epicListCmd.Flags().String("status", "", "Filter by status (backlog, active, closed)")
	epicListCmd.Flags().String("prd", "", "Filter by PRD")
	epicEditCmd.Flags().String("name", "", "New name")
	epicEditCmd.Flags().StringP("content", "c", "", "New description")
	epicEditCmd.Flags().String("prd", "", "Move to PRD")
	epicExportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	epicExportCmd.Flags().String("format", "", "Plan format: yaml or toml (default from --output extension, else yaml)")

	epicCmd.AddCommand(epicNewCmd, epicListCmd, epicShowCmd, epicStartCmd, epicCloseCmd,
		epicRefreshCmd, epicEditCmd, epicDeleteCmd, epicExportCmd)
	rootCmd.AddCommand(epicCmd)
}
