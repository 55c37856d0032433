package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/user/cascada/internal/playback"
)

var (
	colorTitle   = lipgloss.Color("#7aa2f7")
	colorActive  = lipgloss.Color("#e0af68")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorFailed  = lipgloss.Color("#f7768e")
	colorBorder  = lipgloss.Color("#3b4261")
	colorDim     = lipgloss.Color("#565f89")
	colorAccent  = lipgloss.Color("#bb9af7")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	errStyle   = lipgloss.NewStyle().Foreground(colorFailed)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorSuccess).
			Padding(0, 1)

	initiatorStyle    = lipgloss.NewStyle().Foreground(colorAccent)
	counterpartyStyle = lipgloss.NewStyle().Foreground(colorTitle)
)

func statusColor(s playback.Status, failing bool) lipgloss.Color {
	switch {
	case s == playback.StatusSucceeded:
		return colorSuccess
	case s == playback.StatusFailed, failing:
		return colorFailed
	case s == playback.StatusIdle:
		return colorDim
	default:
		return colorActive
	}
}

func badge(s playback.Status, failing bool) string {
	label := string(s)
	if failing && !s.Terminal() {
		label = "stalling"
	}
	return lipgloss.NewStyle().Bold(true).Foreground(statusColor(s, failing)).Render(label)
}
