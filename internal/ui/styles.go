package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/untoldecay/ccpm/internal/types"
)

// Palette
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#005FAF", Dark: "#5FAFFF"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#87D787"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD75F"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#767676", Dark: "#8A8A8A"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

// InitColor picks the lipgloss color profile. Call once at startup.
func InitColor() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderBold(s string) string   { return boldStyle.Render(s) }

// Symbols, falling back to ASCII when emoji are off.
func CheckMark() string {
	if ShouldUseEmoji() {
		return "✓"
	}
	return "ok"
}

func WarnMark() string {
	if ShouldUseEmoji() {
		return "⚠"
	}
	return "!"
}

// TaskStatusBadge colors a task status.
func TaskStatusBadge(s types.TaskStatus) string {
	switch s {
	case types.StatusClosed:
		return RenderPass(string(s))
	case types.StatusInProgress:
		return RenderAccent(string(s))
	}
	return string(s)
}

// EpicStatusBadge colors an epic status.
func EpicStatusBadge(s types.EpicStatus) string {
	switch s {
	case types.EpicClosed:
		return RenderPass(string(s))
	case types.EpicActive:
		return RenderAccent(string(s))
	}
	return RenderMuted(string(s))
}

// ProgressBar renders pct as a bar of the given width plus the percentage.
func ProgressBar(pct, width int) string {
	if width < 1 {
		width = 1
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	style := accentStyle
	if pct == 100 {
		style = passStyle
	}
	return fmt.Sprintf("%s %3d%%", style.Render(bar), pct)
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
