package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/reconcile"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Synchronize epics with the issue tracker",
}

// withSync runs fn holding the sync lock and records the sync time when fn
// succeeds.
func withSync(fn func(rec *reconcile.Reconciler) error) error {
	rec, err := requireReconciler()
	if err != nil {
		return err
	}
	lock, err := acquireSyncLock(rootCtx)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	if err := fn(rec); err != nil {
		return err
	}
	return store.SetMetadata(rootCtx, sqlite.MetaLastSync, time.Now().UTC().Format(time.RFC3339))
}

var syncEpicCmd = &cobra.Command{
	Use:   "epic <name>",
	Short: "Publish an epic and its tasks as issues",
	Long: `Create an issue for every task that has none (labels "task" and
"epic:<name>"), then create the epic issue with a checklist of its tasks, or
add missing lines to the existing one. Re-running only fills in what is
missing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epic, err := lookupEpic(args[0])
		if err != nil {
			return err
		}
		return withSync(func(rec *reconcile.Reconciler) error {
			res, err := rec.PublishEpic(rootCtx, epic)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd, res)
			}
			for _, n := range res.CreatedIssues {
				printf(cmd, "%s Created task issue #%d\n", ui.RenderPass(ui.CheckMark()), n)
			}
			switch {
			case res.EpicCreated:
				printf(cmd, "%s Created epic issue #%d\n", ui.RenderPass(ui.CheckMark()), res.EpicIssue)
			case res.BodyChanged:
				printf(cmd, "%s Updated epic issue #%d checklist\n", ui.RenderPass(ui.CheckMark()), res.EpicIssue)
			default:
				printf(cmd, "Epic issue #%d is up to date\n", res.EpicIssue)
			}
			return nil
		})
	},
}

var syncRefreshCmd = &cobra.Command{
	Use:   "refresh <name>",
	Short: "Rewrite an epic issue's checklist from local task status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epic, err := lookupEpic(args[0])
		if err != nil {
			return err
		}
		if epic.ExternalIssue == nil {
			return &types.ValidationError{Field: "epic", Reason: "epic " + epic.Name + " has no issue; run 'pm sync epic " + epic.Name + "' first"}
		}
		return withSync(func(rec *reconcile.Reconciler) error {
			changed, err := rec.RefreshEpicChecklist(rootCtx, epic)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd, map[string]interface{}{"epic": epic.Name, "issue": *epic.ExternalIssue, "changed": changed})
			}
			if changed {
				printf(cmd, "%s Updated epic issue #%d checklist\n", ui.RenderPass(ui.CheckMark()), *epic.ExternalIssue)
			} else {
				printf(cmd, "Epic issue #%d is up to date\n", *epic.ExternalIssue)
			}
			return nil
		})
	},
}

// pullSummary reports a bulk pull.
type pullSummary struct {
	Pulled  int                     `json:"pulled"`
	Changed []*reconcile.PullResult `json:"changed"`
	Failed  []pullFailure           `json:"failed,omitempty"`
}

type pullFailure struct {
	Issue int64  `json:"issue"`
	Error string `json:"error"`
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Apply remote issue state to every linked task",
	Long: `Read every linked task's issue and close or reopen the task to match.
Failures for single issues are reported and the pull continues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		linked := true
		filter := types.TaskFilter{HasExternalIssue: &linked}
		if name, _ := cmd.Flags().GetString("epic"); name != "" {
			epic, err := lookupEpic(name)
			if err != nil {
				return err
			}
			filter.EpicID = &epic.ID
		}
		tasks, err := store.ListTasks(rootCtx, filter)
		if err != nil {
			return err
		}
		return withSync(func(rec *reconcile.Reconciler) error {
			var sum pullSummary
			for _, t := range tasks {
				res, err := rec.Pull(rootCtx, *t.ExternalIssue)
				if err != nil {
					if !reconcile.IsSyncFailure(err) {
						return err
					}
					sum.Failed = append(sum.Failed, pullFailure{Issue: *t.ExternalIssue, Error: err.Error()})
					continue
				}
				sum.Pulled++
				if res.Changed {
					sum.Changed = append(sum.Changed, res)
				}
			}
			if jsonOutput {
				return outputJSON(cmd, sum)
			}
			for _, res := range sum.Changed {
				printf(cmd, "%s %s -> %s (issue %s)\n", ui.RenderPass(ui.CheckMark()), res.Task.Ref(), res.Task.Status, res.RemoteState)
			}
			for _, f := range sum.Failed {
				warnf(cmd, "issue #%d: %s", f.Issue, f.Error)
			}
			printf(cmd, "Pulled %d issue(s), %d task(s) changed\n", sum.Pulled, len(sum.Changed))
			return nil
		})
	},
}

func init() {
	syncPullCmd.Flags().StringP("epic", "e", "", "Only tasks in this epic")
	syncCmd.AddCommand(syncEpicCmd, syncRefreshCmd, syncPullCmd)
	rootCmd.AddCommand(syncCmd)
}
