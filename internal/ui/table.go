package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/untoldecay/ccpm/internal/types"
)

// Table Styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent).
				Align(lipgloss.Center)

	TableHintStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	TableBorderStyle = lipgloss.NewStyle().
				Foreground(ColorMuted)
)

// NewTable creates a table with the default pm styling.
func NewTable(width int, headers ...string) *table.Table {
	t := table.New().
		Headers(headers...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	if width > 0 {
		t = t.Width(width)
	}
	return t
}

// RenderTaskTable lists tasks with their epic reference, status and issue link.
func RenderTaskTable(title string, tasks []*types.Task, width int) string {
	if len(tasks) == 0 {
		return TableHintStyle.Render(fmt.Sprintf("No %s.", title))
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		issue := ""
		if t.ExternalIssue != nil {
			issue = fmt.Sprintf("#%d", *t.ExternalIssue)
		}
		rows = append(rows, []string{t.Ref(), Truncate(t.Name, 60), TaskStatusBadge(t.Status), issue})
	}
	return RenderBold(title) + "\n" + NewTable(width, "Task", "Name", "Status", "Issue").Rows(rows...).String()
}

// BlockedRow is one row of the blocked table: the task and what blocks it.
type BlockedRow struct {
	Task      *types.Task
	BlockedBy []*types.Task
}

// RenderBlockedTable lists blocked tasks with their unmet dependencies.
func RenderBlockedTable(rows []BlockedRow, width int) string {
	if len(rows) == 0 {
		return TableHintStyle.Render("No blocked tasks.")
	}
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		refs := ""
		for i, b := range r.BlockedBy {
			if i > 0 {
				refs += ", "
			}
			refs += b.Ref()
		}
		data = append(data, []string{r.Task.Ref(), Truncate(r.Task.Name, 50), TaskStatusBadge(r.Task.Status), RenderWarn(refs)})
	}
	return NewTable(width, "Task", "Name", "Status", "Waiting on").Rows(data...).String()
}

// EpicRow is one row of the epic table.
type EpicRow struct {
	Epic  *types.Epic
	Tasks int
	Open  int
}

// RenderEpicTable lists epics with a progress bar.
func RenderEpicTable(rows []EpicRow, width int) string {
	if len(rows) == 0 {
		return TableHintStyle.Render("No epics.")
	}
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		issue := ""
		if r.Epic.ExternalIssue != nil {
			issue = fmt.Sprintf("#%d", *r.Epic.ExternalIssue)
		}
		data = append(data, []string{
			r.Epic.Name,
			EpicStatusBadge(r.Epic.Status),
			ProgressBar(r.Epic.Progress, 10),
			fmt.Sprintf("%d/%d", r.Tasks-r.Open, r.Tasks),
			issue,
		})
	}
	return NewTable(width, "Epic", "Status", "Progress", "Done", "Issue").Rows(data...).String()
}

// RenderKeyValues renders a two-column detail table.
func RenderKeyValues(pairs [][2]string, width int) string {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{p[0], p[1]})
	}
	return table.New().
		Rows(rows...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 0 {
				style = style.Bold(true).Foreground(ColorAccent)
			}
			return style
		}).
		String()
}
