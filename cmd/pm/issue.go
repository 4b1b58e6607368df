package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/tracker"
	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
)

var issueCmd = &cobra.Command{
	Use:     "issue",
	GroupID: "sync",
	Short:   "Work with tasks through their tracker issue numbers",
}

// taskForIssue parses an issue number and finds the linked task.
func taskForIssue(arg string) (int64, *types.Task, error) {
	number, err := types.ParseIssueNumber(arg)
	if err != nil {
		return 0, nil, err
	}
	task, err := store.GetTaskByExternalIssue(rootCtx, number)
	if err != nil {
		return number, nil, err
	}
	return number, task, nil
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue>",
	Short: "Show an issue next to its local task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, task, err := taskForIssue(args[0])
		if err != nil && !types.IsNotFound(err) {
			return err
		}
		tr, err := trackerFactory()
		if err != nil {
			return err
		}
		var remote *tracker.Issue
		var remoteErr error
		if tr != nil {
			remote, remoteErr = tr.GetIssue(rootCtx, number)
		}
		if jsonOutput {
			out := map[string]interface{}{"issue": number, "task": task, "remote": remote}
			if remoteErr != nil {
				out["remote_error"] = remoteErr.Error()
			}
			return outputJSON(cmd, out)
		}

		w := ui.GetWidth()
		pairs := [][2]string{{"Issue", fmt.Sprintf("#%d", number)}}
		if task != nil {
			pairs = append(pairs,
				[2]string{"Task", ui.RenderAccent(task.Ref()) + " " + task.Name},
				[2]string{"Local status", ui.TaskStatusBadge(task.Status)})
		} else {
			pairs = append(pairs, [2]string{"Task", ui.RenderMuted("(not linked)")})
		}
		if remote != nil {
			pairs = append(pairs,
				[2]string{"Remote state", string(remote.State)},
				[2]string{"Title", remote.Title},
				[2]string{"URL", remote.URL})
		}
		printf(cmd, "%s\n", ui.RenderKeyValues(pairs, w))
		if remote != nil && remote.Body != "" {
			printf(cmd, "\n%s\n", ui.RenderMarkdown(remote.Body, w))
		}
		if remoteErr != nil {
			warnf(cmd, "could not fetch issue #%d: %v", number, remoteErr)
		} else if tr == nil {
			infof(cmd, "no tracker configured; showing local data only")
		}
		return nil
	},
}

var issueSyncCmd = &cobra.Command{
	Use:   "sync <issue>",
	Short: "Push the local task state to its issue, or pull with --pull",
	Long: `Make the issue match its task: close or reopen it, comment, and tick or
untick the task's line in the epic issue checklist. With --pull the direction
is reversed: a closed issue closes the task and an open issue reopens it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, task, err := taskForIssue(args[0])
		if err != nil {
			return err
		}
		rec, err := requireReconciler()
		if err != nil {
			return err
		}
		lock, err := acquireSyncLock(rootCtx)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		if pull, _ := cmd.Flags().GetBool("pull"); pull {
			res, err := rec.Pull(rootCtx, number)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd, res)
			}
			if res.Changed {
				printTransition(cmd, res.Transition, "Pulled")
			} else {
				printf(cmd, "%s %s already matches issue #%d (%s)\n", ui.RenderPass(ui.CheckMark()), res.Task.Ref(), number, res.RemoteState)
			}
			return nil
		}

		note, _ := cmd.Flags().GetString("comment")
		res, err := rec.PushTaskState(rootCtx, task, note)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		printf(cmd, "%s Issue #%d is %s", ui.RenderPass(ui.CheckMark()), number, res.RemoteState)
		if res.StateChanged {
			printf(cmd, " (changed)")
		}
		if res.ChecklistChanged {
			printf(cmd, ", epic checklist updated")
		}
		printf(cmd, "\n")
		return nil
	},
}

// issueTransition applies a lifecycle transition to the task linked to an
// issue and pushes the result.
func issueTransition(target types.TaskStatus, verb string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		_, task, err := taskForIssue(args[0])
		if err != nil {
			return err
		}
		return runTransition(cmd, []string{task.Ref()}, target, verb)
	}
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <issue>",
	Short: "Close the task linked to an issue and the issue itself",
	Args:  cobra.ExactArgs(1),
	RunE:  issueTransition(types.StatusClosed, "Closed"),
}

var issueReopenCmd = &cobra.Command{
	Use:   "reopen <issue>",
	Short: "Reopen the task linked to an issue and the issue itself",
	Args:  cobra.ExactArgs(1),
	RunE:  issueTransition(types.StatusOpen, "Reopened"),
}

var issueStartCmd = &cobra.Command{
	Use:   "start <issue>",
	Short: "Start the task linked to an issue",
	Args:  cobra.ExactArgs(1),
	RunE:  issueTransition(types.StatusInProgress, "Started"),
}

var issueLinkCmd = &cobra.Command{
	Use:   "link <epic>#<n> <issue>",
	Short: "Link a task to an existing issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := resolveTask(rootCtx, store, args[:1])
		if err != nil {
			return err
		}
		number, err := types.ParseIssueNumber(args[1])
		if err != nil {
			return err
		}
		if other, err := store.GetTaskByExternalIssue(rootCtx, number); err == nil && other.ID != task.ID {
			return &types.ValidationError{Field: "issue", Reason: fmt.Sprintf("issue #%d is already linked to %s", number, other.Ref())}
		}
		if err := store.UpdateTask(rootCtx, task.ID, types.TaskUpdate{ExternalIssue: &number}); err != nil {
			return err
		}
		logger.Info("task linked", "task", task.Ref(), "issue", number)
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{"task": task.Ref(), "issue": number})
		}
		printf(cmd, "%s Linked %s to issue #%d\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(task.Ref()), number)
		return nil
	},
}

var issueUnlinkCmd = &cobra.Command{
	Use:   "unlink <epic>#<n>",
	Short: "Remove a task's issue link",
	Args:  taskArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := resolveTask(rootCtx, store, args)
		if err != nil {
			return err
		}
		if task.ExternalIssue == nil {
			infof(cmd, "%s is not linked to an issue", task.Ref())
			return nil
		}
		var none int64
		if err := store.UpdateTask(rootCtx, task.ID, types.TaskUpdate{ExternalIssue: &none}); err != nil {
			return err
		}
		logger.Info("task unlinked", "task", task.Ref(), "issue", *task.ExternalIssue)
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{"task": task.Ref(), "unlinked": *task.ExternalIssue})
		}
		printf(cmd, "%s Unlinked %s from issue #%d\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(task.Ref()), *task.ExternalIssue)
		return nil
	},
}

func init() {
	issueSyncCmd.Flags().Bool("pull", false, "Apply the issue's state to the task instead")
	issueSyncCmd.Flags().String("comment", "", "Comment to post when the issue state changes")
	for _, c := range []*cobra.Command{issueCloseCmd, issueReopenCmd, issueStartCmd} {
		c.Flags().String("comment", "", "Comment to post on the issue")
		c.Flags().Bool("no-sync", false, "Do not push the change to the issue tracker")
	}
	issueCmd.AddCommand(issueShowCmd, issueSyncCmd, issueCloseCmd, issueReopenCmd, issueStartCmd, issueLinkCmd, issueUnlinkCmd)
	rootCmd.AddCommand(issueCmd)
}
