package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/untoldecay/ccpm/internal/progress"
	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/ui"
)

// validationReport combines store integrity, progress drift and cycles.
type validationReport struct {
	*storage.IntegrityReport
	Drift  []progress.Drift `json:"drift,omitempty"`
	Cycles [][]string       `json:"cycles,omitempty"`
}

func (r *validationReport) problems() int {
	n := len(r.OrphanedTasks) + len(r.OrphanedEpics) + len(r.BrokenDependencies) +
		len(r.DuplicateIssues) + len(r.Drift) + len(r.Cycles)
	return n
}

func buildValidationReport() (*validationReport, error) {
	integrity, err := store.CheckIntegrity(rootCtx)
	if err != nil {
		return nil, err
	}
	drift, err := progress.DetectDrift(rootCtx, store)
	if err != nil {
		return nil, err
	}
	snap, err := store.LoadGraph(rootCtx)
	if err != nil {
		return nil, err
	}
	rep := &validationReport{IntegrityReport: integrity, Drift: drift}
	for _, cycle := range snap.Cycles() {
		refs := make([]string, len(cycle))
		for i, t := range cycle {
			refs[i] = t.Ref()
		}
		rep.Cycles = append(rep.Cycles, refs)
	}
	return rep, nil
}

var validateCmd = &cobra.Command{
	Use:     "validate",
	GroupID: "maint",
	Short:   "Check the database for inconsistencies",
	Long: `Report orphaned tasks and epics, dependency edges pointing at deleted tasks,
issues linked to more than one task, epics whose stored progress disagrees
with their tasks, and dependency cycles. Exits non-zero when anything is found.
'pm clean' fixes everything except duplicates and cycles.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := buildValidationReport()
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := outputJSON(cmd, rep); err != nil {
				return err
			}
		} else {
			renderValidation(cmd, rep)
		}
		if n := rep.problems(); n > 0 {
			return fmt.Errorf("validation found %d problem(s)", n)
		}
		return nil
	},
}

func renderValidation(cmd *cobra.Command, rep *validationReport) {
	if rep.problems() == 0 {
		printf(cmd, "%s No problems found\n", ui.RenderPass(ui.CheckMark()))
		return
	}
	section := func(title string, n int) {
		if n > 0 {
			printf(cmd, "\n%s %s (%d)\n", ui.RenderWarn(ui.WarnMark()), ui.RenderBold(title), n)
		}
	}
	section("Orphaned tasks", len(rep.OrphanedTasks))
	for _, t := range rep.OrphanedTasks {
		printf(cmd, "  %s %s (epic %d is gone)\n", t.Ref(), t.Name, t.EpicID)
	}
	section("Epics with a deleted PRD", len(rep.OrphanedEpics))
	for _, e := range rep.OrphanedEpics {
		printf(cmd, "  %s\n", e.Name)
	}
	section("Broken dependencies", len(rep.BrokenDependencies))
	for _, d := range rep.BrokenDependencies {
		printf(cmd, "  task %d -> task %d\n", d.TaskID, d.DependsOnID)
	}
	section("Issues linked to several tasks", len(rep.DuplicateIssues))
	issues := make([]int64, 0, len(rep.DuplicateIssues))
	for n := range rep.DuplicateIssues {
		issues = append(issues, n)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i] < issues[j] })
	for _, n := range issues {
		refs := ""
		for i, t := range rep.DuplicateIssues[n] {
			if i > 0 {
				refs += ", "
			}
			refs += t.Ref()
		}
		printf(cmd, "  #%d: %s\n", n, refs)
	}
	section("Progress drift", len(rep.Drift))
	for _, d := range rep.Drift {
		printf(cmd, "  %s: stored %d%%, computed %d%%\n", d.Epic.Name, d.Stored, d.Computed)
	}
	section("Dependency cycles", len(rep.Cycles))
	for _, c := range rep.Cycles {
		printf(cmd, "  %s\n", joinCycle(c))
	}
}

func joinCycle(refs []string) string {
	out := ""
	for _, r := range refs {
		out += r + " -> "
	}
	if len(refs) > 0 {
		out += refs[0]
	}
	return out
}

// cleanResult lists what clean changed or would change.
type cleanResult struct {
	DryRun              bool             `json:"dry_run"`
	TombstonedTasks     int              `json:"tombstoned_tasks"`
	PurgedDependencies  int              `json:"purged_dependencies"`
	RepairedEpics       []progress.Drift `json:"repaired_epics,omitempty"`
	RemainingDuplicates int              `json:"remaining_duplicates"`
}

var cleanCmd = &cobra.Command{
	Use:     "clean",
	GroupID: "maint",
	Short:   "Fix problems reported by validate",
	Long: `Tombstone tasks whose epic is gone, delete dependency edges that point at
deleted tasks, and rewrite drifted epic progress. Issues linked to several
tasks are reported but left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		rep, err := buildValidationReport()
		if err != nil {
			return err
		}
		res := cleanResult{
			DryRun:              dryRun,
			TombstonedTasks:     len(rep.OrphanedTasks),
			PurgedDependencies:  len(rep.BrokenDependencies),
			RepairedEpics:       rep.Drift,
			RemainingDuplicates: len(rep.DuplicateIssues),
		}
		if !dryRun {
			if res.TombstonedTasks, err = store.TombstoneOrphanedTasks(rootCtx); err != nil {
				return err
			}
			if res.PurgedDependencies, err = store.PurgeBrokenDependencies(rootCtx); err != nil {
				return err
			}
			// Tombstoning may shift progress; look again.
			drift, err := progress.DetectDrift(rootCtx, store)
			if err != nil {
				return err
			}
			if err := progress.Repair(rootCtx, store, drift); err != nil {
				return err
			}
			res.RepairedEpics = drift
			logger.Info("clean",
				"tombstoned_tasks", res.TombstonedTasks,
				"purged_dependencies", res.PurgedDependencies,
				"repaired_epics", len(drift))
		}

		if jsonOutput {
			return outputJSON(cmd, res)
		}
		verb := "Fixed"
		if dryRun {
			verb = "Would fix"
		}
		printf(cmd, "%s %s: %d orphaned task(s), %d broken dependency edge(s), %d drifted epic(s)\n",
			ui.RenderPass(ui.CheckMark()), verb, res.TombstonedTasks, res.PurgedDependencies, len(res.RepairedEpics))
		if res.RemainingDuplicates > 0 {
			warnf(cmd, "%d issue(s) are linked to more than one task; unlink them with 'pm issue unlink'", res.RemainingDuplicates)
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().Bool("dry-run", false, "Show what would change without changing it")
	rootCmd.AddCommand(validateCmd, cleanCmd)
}
