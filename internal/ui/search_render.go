package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/untoldecay/ccpm/internal/types"
)

// HighlightMatch bolds the first case-insensitive occurrence of query in s.
func HighlightMatch(s, query string) string {
	if query == "" {
		return s
	}
	i := strings.Index(strings.ToLower(s), strings.ToLower(query))
	if i < 0 {
		return s
	}
	return s[:i] + lipgloss.NewStyle().Bold(true).Foreground(ColorWarn).Render(s[i:i+len(query)]) + s[i+len(query):]
}

// RenderSearchResults renders tasks matching query.
func RenderSearchResults(query string, tasks []*types.Task, width int) string {
	header := TableHeaderStyle.Render(fmt.Sprintf("Search: %q", query))
	if len(tasks) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, "",
			TableHintStyle.Render("  No tasks found. Try a shorter query or check `pm task list`."))
	}

	maxName := width - 30
	if maxName < 10 {
		maxName = 10
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{t.Ref(), HighlightMatch(Truncate(t.Name, maxName), query), TaskStatusBadge(t.Status)})
	}
	t := table.New().
		Headers(fmt.Sprintf("Found %d tasks", len(tasks)), "", "").
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 0 {
				style = style.Width(18)
			}
			return style
		})
	return lipgloss.JoinVertical(lipgloss.Left, header, "", t.String())
}
