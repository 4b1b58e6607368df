package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/progress"
	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
)

// Tasks added without --epic land in this epic, under a PRD of the same name.
const backlogName = "backlog"

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "work",
	Short:   "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a task to an epic",
	Long: `Add a task to an epic. The task gets the next number in the epic.

Without --epic the task goes to the "backlog" epic, which is created on first
use. --depends-on takes a comma-separated list of task numbers in the same
epic, or <epic>#<n> references to tasks elsewhere.

Examples:
  pm task add "Write schema" --epic auth
  pm task add "Login handler" --epic auth --depends-on 1 --estimate 3
  pm task add --epic auth -i`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTaskAdd,
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	epicName, _ := cmd.Flags().GetString("epic")
	description, _ := cmd.Flags().GetString("description")
	dependsOn, _ := cmd.Flags().GetString("depends-on")
	parallel, _ := cmd.Flags().GetBool("parallel")
	interactive, _ := cmd.Flags().GetBool("interactive")

	var estimate *float64
	if cmd.Flags().Changed("estimate") {
		est, _ := cmd.Flags().GetFloat64("estimate")
		estimate = &est
	}

	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	if interactive {
		form := &ui.TaskForm{Name: name, Description: description, DependsOn: dependsOn}
		if err := ui.RunTaskForm(form); err != nil {
			return fmt.Errorf("form cancelled: %w", err)
		}
		name, description, dependsOn = form.Name, form.Description, form.DependsOn
		if s := strings.TrimSpace(form.Estimate); s != "" {
			est, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return &types.ValidationError{Field: "estimate", Reason: fmt.Sprintf("not a number: %q", s)}
			}
			estimate = &est
		}
	}
	if strings.TrimSpace(name) == "" {
		return &types.ValidationError{Field: "name", Reason: "task name is required"}
	}
	if epicName == "" {
		epicName = backlogName
	}

	task := &types.Task{
		Name:           name,
		Description:    description,
		Status:         types.StatusOpen,
		EstimatedHours: estimate,
		Parallel:       parallel,
	}
	var deps []*types.Task
	err := store.RunInTransaction(rootCtx, func(tx storage.Transaction) error {
		epic, err := tx.GetEpic(rootCtx, epicName)
		if types.IsNotFound(err) && epicName == backlogName {
			epic, err = createBacklogEpic(tx)
		}
		if err != nil {
			return err
		}
		task.EpicID = epic.ID
		if err := tx.CreateTask(rootCtx, task); err != nil {
			return err
		}
		task.EpicName = epic.Name

		ids, err := resolveDependencyRefs(rootCtx, tx, epic.Name, splitList(dependsOn))
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.AddDependency(rootCtx, task.ID, id); err != nil {
				return err
			}
		}
		if deps, err = tx.GetDependencies(rootCtx, task.ID); err != nil {
			return err
		}
		_, err = progress.Recompute(rootCtx, tx, epic.ID)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("task created", "task", task.Ref(), "dependencies", len(deps))

	if jsonOutput {
		return outputJSON(cmd, struct {
			*types.Task
			DependsOn []*types.Task `json:"depends_on,omitempty"`
		}{task, deps})
	}
	printf(cmd, "%s Created task %s: %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(task.Ref()), task.Name)
	for _, d := range deps {
		printf(cmd, "  depends on %s %s\n", d.Ref(), ui.RenderMuted(d.Name))
	}
	return nil
}

func createBacklogEpic(tx storage.Transaction) (*types.Epic, error) {
	prd, err := tx.GetPRD(rootCtx, backlogName)
	if types.IsNotFound(err) {
		prd = &types.PRD{Name: backlogName, Description: "Tasks not yet planned into an epic", Status: types.PRDBacklog}
		err = tx.CreatePRD(rootCtx, prd)
	}
	if err != nil {
		return nil, err
	}
	epic := &types.Epic{Name: backlogName, PRDID: &prd.ID, Status: types.EpicBacklog}
	if err := tx.CreateEpic(rootCtx, epic); err != nil {
		return nil, err
	}
	return epic, nil
}

// taskDetail is what `task show` reports.
type taskDetail struct {
	*types.Task
	Ready      bool          `json:"ready"`
	DependsOn  []*types.Task `json:"depends_on"`
	Dependents []*types.Task `json:"dependents"`
}

var taskShowCmd = &cobra.Command{
	Use:   "show <epic>#<n>",
	Short: "Show a task with its dependencies",
	Args:  taskArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := resolveTask(rootCtx, store, args)
		if err != nil {
			return err
		}
		snap, err := store.LoadGraph(rootCtx)
		if err != nil {
			return err
		}
		detail := taskDetail{
			Task:       task,
			Ready:      snap.IsReady(task.ID),
			DependsOn:  snap.DependenciesOf(task.ID),
			Dependents: snap.DependentsOf(task.ID),
		}
		if jsonOutput {
			return outputJSON(cmd, detail)
		}

		w := ui.GetWidth()
		state := ui.TaskStatusBadge(task.Status)
		if detail.Ready {
			state += " " + ui.RenderPass("ready")
		} else if unmet := snap.UnmetDependencies(task.ID); len(unmet) > 0 && task.Status != types.StatusClosed {
			state += " " + ui.RenderWarn(fmt.Sprintf("blocked by %d", len(unmet)))
		}
		pairs := [][2]string{
			{"Task", ui.RenderAccent(task.Ref())},
			{"Name", task.Name},
			{"Status", state},
		}
		if task.EstimatedHours != nil {
			pairs = append(pairs, [2]string{"Estimate", fmt.Sprintf("%gh", *task.EstimatedHours)})
		}
		if task.ActualHours != nil {
			pairs = append(pairs, [2]string{"Actual", fmt.Sprintf("%gh", *task.ActualHours)})
		}
		if task.Parallel {
			pairs = append(pairs, [2]string{"Parallel", "yes"})
		}
		if task.ExternalIssue != nil {
			synced := "never"
			if task.ExternalSyncedAt != nil {
				synced = task.ExternalSyncedAt.Local().Format("2006-01-02 15:04")
			}
			pairs = append(pairs, [2]string{"Issue", fmt.Sprintf("#%d (synced %s)", *task.ExternalIssue, synced)})
		}
		pairs = append(pairs, [2]string{"Updated", task.UpdatedAt.Local().Format("2006-01-02 15:04")})
		printf(cmd, "%s\n", ui.RenderKeyValues(pairs, w))

		if task.Description != "" {
			printf(cmd, "\n%s\n", ui.RenderMarkdown(task.Description, w))
		}
		if tree, _ := cmd.Flags().GetBool("tree"); tree {
			printf(cmd, "\n%s\n", ui.RenderDependencyTree(snap, task.ID))
		} else {
			printf(cmd, "\n%s\n", ui.RenderTaskTable("dependencies", detail.DependsOn, w))
		}
		printf(cmd, "\n%s\n", ui.RenderTaskTable("dependents", detail.Dependents, w))
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter types.TaskFilter
		if name, _ := cmd.Flags().GetString("epic"); name != "" {
			epic, err := lookupEpic(name)
			if err != nil {
				return err
			}
			filter.EpicID = &epic.ID
		}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := types.ParseTaskStatus(s)
			if err != nil {
				return err
			}
			filter.Status = &st
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		tasks, err := store.ListTasks(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, tasks)
		}
		printf(cmd, "%s\n", ui.RenderTaskTable("tasks", tasks, ui.GetWidth()))
		return nil
	},
}

type transitionDef struct {
	use, short, long string
	aliases          []string
	target           types.TaskStatus
	verb             string
}

var transitions = []transitionDef{
	{
		use:    "start <epic>#<n>",
		short:  "Start working on a task",
		long:   "Move a task to in_progress. Starting a task whose dependencies are not all\nclosed is allowed; the unmet dependencies are listed as a warning.",
		target: types.StatusInProgress,
		verb:   "Started",
	},
	{
		use:     "close <epic>#<n>",
		aliases: []string{"done"},
		short:   "Close a task",
		long:    "Close a task, recompute its epic's progress and list the tasks that became\nready. When sync.auto is on and the task is linked to an issue, the issue is\nclosed and the epic checklist is updated.",
		target:  types.StatusClosed,
		verb:    "Closed",
	},
	{
		use:    "reopen <epic>#<n>",
		short:  "Reopen a closed or in-progress task",
		target: types.StatusOpen,
		verb:   "Reopened",
	},
}

// newTransitionCmd builds a start/close/reopen command. Each exists both
// under `pm task` and at the top level.
func newTransitionCmd(ts transitionDef) *cobra.Command {
	c := &cobra.Command{
		Use:     ts.use,
		Aliases: ts.aliases,
		Short:   ts.short,
		Long:    ts.long,
		Args:    taskArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args, ts.target, ts.verb)
		},
	}
	c.Flags().String("comment", "", "Comment to post on the linked issue")
	c.Flags().Bool("no-sync", false, "Do not push the change to the issue tracker")
	return c
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <epic>#<n>",
	Short: "Update a task's fields",
	Long:  `Update a task's fields. Use start, close or reopen to change its status.`,
	Args:  taskArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := resolveTask(rootCtx, store, args)
		if err != nil {
			return err
		}
		var update types.TaskUpdate
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			update.Name = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			update.Description = &v
		}
		if cmd.Flags().Changed("estimate") {
			v, _ := cmd.Flags().GetFloat64("estimate")
			update.EstimatedHours = &v
		}
		if cmd.Flags().Changed("actual") {
			v, _ := cmd.Flags().GetFloat64("actual")
			update.ActualHours = &v
		}
		if cmd.Flags().Changed("parallel") {
			v, _ := cmd.Flags().GetBool("parallel")
			update.Parallel = &v
		}
		if update.IsEmpty() {
			return &types.ValidationError{Reason: "nothing to update (use --name, --description, --estimate, --actual or --parallel)"}
		}
		if err := store.UpdateTask(rootCtx, task.ID, update); err != nil {
			return err
		}
		task, err = store.GetTaskByID(rootCtx, task.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, task)
		}
		printf(cmd, "%s Updated task %s\n", ui.RenderPass(ui.CheckMark()), ui.RenderAccent(task.Ref()))
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <epic>#<n>",
	Short: "Delete a task",
	Long: `Delete a task. The task is tombstoned: it disappears from every listing,
its dependency edges stop counting, and its epic's progress is recomputed.`,
	Args: taskArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := resolveTask(rootCtx, store, args)
		if err != nil {
			return err
		}
		dependents, err := store.GetDependents(rootCtx, task.ID)
		if err != nil {
			return err
		}
		if !assumeYes {
			q := fmt.Sprintf("Delete task %s?", task.Ref())
			if len(dependents) > 0 {
				q = fmt.Sprintf("Delete task %s? %d task(s) depend on it.", task.Ref(), len(dependents))
			}
			if !ui.Confirm(q, false) {
				return fmt.Errorf("aborted")
			}
		}
		var res *progress.Result
		err = store.RunInTransaction(rootCtx, func(tx storage.Transaction) error {
			if err := tx.DeleteTask(rootCtx, task.ID); err != nil {
				return err
			}
			var err error
			res, err = progress.Recompute(rootCtx, tx, task.EpicID)
			return err
		})
		if err != nil {
			return err
		}
		logger.Info("task deleted", "task", task.Ref(), "dependents", len(dependents))
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{"deleted": task.Ref(), "progress": res})
		}
		printf(cmd, "%s Deleted task %s\n", ui.RenderPass(ui.CheckMark()), task.Ref())
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringP("epic", "e", "", "Epic to add the task to (default: backlog)")
	taskAddCmd.Flags().StringP("description", "d", "", "Task description (markdown)")
	taskAddCmd.Flags().String("depends-on", "", "Comma-separated tasks this one depends on")
	taskAddCmd.Flags().Float64("estimate", 0, "Estimated hours")
	taskAddCmd.Flags().Bool("parallel", false, "Can be worked on alongside other tasks")
	taskAddCmd.Flags().BoolP("interactive", "i", false, "Fill in the task with a form")

	taskShowCmd.Flags().Bool("tree", false, "Show the full dependency tree")

	taskListCmd.Flags().StringP("epic", "e", "", "Filter by epic")
	taskListCmd.Flags().StringP("status", "s", "", "Filter by status (open, in_progress, closed)")
	taskListCmd.Flags().IntP("limit", "n", 0, "Maximum number of tasks")

	taskEditCmd.Flags().String("name", "", "New name")
	taskEditCmd.Flags().StringP("description", "d", "", "New description")
	taskEditCmd.Flags().Float64("estimate", 0, "Estimated hours")
	taskEditCmd.Flags().Float64("actual", 0, "Actual hours spent")
	taskEditCmd.Flags().Bool("parallel", false, "Can be worked on alongside other tasks")

	taskCmd.AddCommand(taskAddCmd, taskShowCmd, taskListCmd, taskEditCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)

	for _, ts := range transitions {
		taskCmd.AddCommand(newTransitionCmd(ts))
		shortcut := newTransitionCmd(ts)
		shortcut.GroupID = "work"
		rootCmd.AddCommand(shortcut)
	}
}
