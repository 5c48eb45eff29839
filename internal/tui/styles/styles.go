// Package styles defines shared lipgloss styles for the batch view and the
// board.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pablasso/kanrun/internal/task"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#5FAFAF") // Teal accent
	secondaryColor = lipgloss.Color("#666666") // Gray for secondary text
	successColor   = lipgloss.Color("#87AF87") // Muted sage
	warningColor   = lipgloss.Color("#D7AF5F") // Amber
	errorColor     = lipgloss.Color("#AF5F5F") // Muted terracotta

	// TitleStyle for headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// SubtleStyle for hints/help text
	SubtleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// SelectedStyle highlights the running task.
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// StatusBarStyle for the key help line
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// ColumnStyle frames one board column.
	ColumnStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// StatusStyle returns the header style for a board column.
func StatusStyle(s task.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case task.StatusDoing:
		return base.Foreground(primaryColor)
	case task.StatusTesting:
		return base.Foreground(warningColor)
	case task.StatusDone:
		return base.Foreground(successColor)
	case task.StatusBlocked:
		return base.Foreground(errorColor)
	default:
		return base.Foreground(secondaryColor)
	}
}
