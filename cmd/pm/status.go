package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/graph"
	"github.com/untoldecay/ccpm/internal/progress"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
	"github.com/untoldecay/ccpm/internal/timeparsing"
	"github.com/untoldecay/ccpm/internal/types"
	"github.com/untoldecay/ccpm/internal/ui"
)

// statusReport is the project overview.
type statusReport struct {
	Tasks      progress.Summary `json:"tasks"`
	Ready      int              `json:"ready"`
	Blocked    int              `json:"blocked"`
	InProgress int              `json:"in_progress"`
	Epics      []*types.Epic    `json:"epics"`
	Drift      []progress.Drift `json:"drift,omitempty"`
	LastSync   string           `json:"last_sync,omitempty"`
}

func buildStatusReport(ctx context.Context) (*statusReport, error) {
	snap, err := store.LoadGraph(ctx)
	if err != nil {
		return nil, err
	}
	epics, err := store.ListEpics(ctx, types.EpicFilter{})
	if err != nil {
		return nil, err
	}
	drift, err := progress.DetectDrift(ctx, store)
	if err != nil {
		return nil, err
	}
	lastSync, err := store.GetMetadata(ctx, sqlite.MetaLastSync)
	if err != nil {
		return nil, err
	}
	return &statusReport{
		Tasks:      progress.Compute(snap.Tasks()),
		Ready:      len(snap.Ready(graph.AllEpics)),
		Blocked:    len(snap.Blocked(graph.AllEpics)),
		InProgress: len(snap.InProgress(graph.AllEpics)),
		Epics:      epics,
		Drift:      drift,
		LastSync:   lastSync,
	}, nil
}

func renderStatus(w io.Writer, rep *statusReport) {
	width := ui.GetWidth()
	fmt.Fprintf(w, "%s %s\n\n", ui.RenderBold("Project progress"), ui.ProgressBar(rep.Tasks.Percent, 30))
	lastSync := rep.LastSync
	if lastSync == "" {
		lastSync = "never"
	}
	fmt.Fprintln(w, ui.RenderKeyValues([][2]string{
		{"Tasks", fmt.Sprintf("%d (%d open, %d in progress, %d closed)", rep.Tasks.Total, rep.Tasks.Open, rep.Tasks.InProgress, rep.Tasks.Closed)},
		{"Ready", ui.RenderPass(fmt.Sprint(rep.Ready))},
		{"Blocked", ui.RenderWarn(fmt.Sprint(rep.Blocked))},
		{"Last sync", lastSync},
	}, width))
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderEpicRows(rep.Epics, width))
	for _, d := range rep.Drift {
		fmt.Fprintf(w, "%s epic %s stores %d%% but its tasks say %d%% (run 'pm clean')\n",
			ui.RenderWarn(ui.WarnMark()), d.Epic.Name, d.Stored, d.Computed)
	}
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "views",
	Short:   "Show project progress",
	Long: `Show overall task counts, ready and blocked work, and per-epic progress.
With --watch the view is redrawn whenever the database changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		if watch {
			return watchStatus(cmd)
		}
		rep, err := buildStatusReport(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, rep)
		}
		renderStatus(cmd.OutOrStdout(), rep)
		return nil
	},
}

func watchStatus(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	changed := make(chan struct{}, 1)
	w, err := NewDBWatcher(store.Path(), func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	w.Start(ctx)
	defer func() {
		cancel()
		_ = w.Close()
	}()

	out := cmd.OutOrStdout()
	for {
		rep, err := buildStatusReport(ctx)
		if err != nil {
			return err
		}
		if ui.IsTerminal() {
			fmt.Fprint(out, "\033[H\033[2J")
		}
		if jsonOutput {
			if err := outputJSON(cmd, rep); err != nil {
				return err
			}
		} else {
			renderStatus(out, rep)
			fmt.Fprintf(out, "\n%s\n", ui.RenderMuted("Watching for changes (Ctrl+C to stop)... updated "+time.Now().Format("15:04:05")))
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil
		}
	}
}

// standupReport groups recent activity.
type standupReport struct {
	Since      time.Time     `json:"since"`
	Closed     []*types.Task `json:"closed"`
	InProgress []*types.Task `json:"in_progress"`
	Ready      []*types.Task `json:"ready"`
	Blocked    []*types.Task `json:"blocked"`
}

var standupCmd = &cobra.Command{
	Use:     "standup",
	GroupID: "views",
	Short:   "Summarize recent work",
	Long: `Summarize what was closed since --since, what is in progress, what is ready
next and what is blocked.

--since accepts durations (36h), dates (2026-03-01) and phrases such as
"yesterday", "last monday" or "3 days ago". The default is the start of
yesterday.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		since := timeparsing.StartOfDay(now.AddDate(0, 0, -1))
		if s, _ := cmd.Flags().GetString("since"); s != "" {
			t, err := timeparsing.ParseSince(s, now)
			if err != nil {
				return &types.ValidationError{Field: "since", Reason: err.Error()}
			}
			since = t
		}

		snap, err := store.LoadGraph(rootCtx)
		if err != nil {
			return err
		}
		rep := &standupReport{
			Since:      since,
			InProgress: snap.InProgress(graph.AllEpics),
			Ready:      snap.Ready(graph.AllEpics),
		}
		for _, t := range snap.Tasks() {
			if t.Status == types.StatusClosed && !t.UpdatedAt.Before(since) {
				rep.Closed = append(rep.Closed, t)
			}
		}
		for _, b := range snap.Blocked(graph.AllEpics) {
			rep.Blocked = append(rep.Blocked, b.Task)
		}
		if jsonOutput {
			return outputJSON(cmd, rep)
		}

		w := ui.GetWidth()
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s\n\n", ui.RenderBold("Standup since"), since.Format("Mon Jan 2 15:04"))
		sb.WriteString(ui.RenderTaskTable("closed", rep.Closed, w) + "\n\n")
		sb.WriteString(ui.RenderTaskTable("in progress", rep.InProgress, w) + "\n\n")
		sb.WriteString(ui.RenderTaskTable("ready next", rep.Ready, w) + "\n\n")
		sb.WriteString(ui.RenderTaskTable("blocked", rep.Blocked, w) + "\n")
		printf(cmd, "%s", sb.String())
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolP("watch", "w", false, "Redraw when the database changes")
	standupCmd.Flags().String("since", "", "Report work closed since this time (default: start of yesterday)")
	rootCmd.AddCommand(statusCmd, standupCmd)
}
