package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/list"
)

// InitResult aggregates what `pm init` set up.
type InitResult struct {
	DBPath     string
	ConfigPath string
	HooksDir   string
	Repo       string
	Created    []string
	Warnings   []string
	NextSteps  []string
}

// RenderInitReport renders the init summary.
func RenderInitReport(res InitResult, width int) string {
	var sections []string

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPass).
		Render(CheckMark() + " pm initialized")
	sections = append(sections, header, "")

	if len(res.Created) > 0 {
		l := list.New().
			Enumerator(func(_ list.Items, i int) string { return RenderPass(CheckMark()) }).
			EnumeratorStyle(lipgloss.NewStyle().MarginRight(1))
		for _, c := range res.Created {
			l.Item(c)
		}
		sections = append(sections, l.String(), "")
	}

	repo := res.Repo
	if repo == "" {
		repo = RenderMuted("(not configured)")
	}
	sections = append(sections, RenderKeyValues([][2]string{
		{"Database", res.DBPath},
		{"Config", res.ConfigPath},
		{"Hooks", res.HooksDir},
		{"GitHub repo", repo},
	}, width), "")

	if len(res.Warnings) > 0 {
		warnBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarn).
			Padding(0, 1)
		lines := []string{lipgloss.NewStyle().Bold(true).Foreground(ColorWarn).Render(WarnMark() + " Warnings:")}
		for _, w := range res.Warnings {
			lines = append(lines, "  • "+w)
		}
		sections = append(sections, warnBox.Render(strings.Join(lines, "\n")), "")
	}

	if len(res.NextSteps) > 0 {
		sections = append(sections, RenderBold("Next steps:"))
		for _, cmd := range res.NextSteps {
			sections = append(sections, "  • "+RenderAccent(cmd))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
