// Package tui provides Bubble Tea views for the sieve CLI.
//
// TUI mode is opt-in (--tui) and read-only. Views render the same payloads
// as the json/table/yaml output and never show data those formats lack.
package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/sieve/types"
)

// Palette. Adaptive colors keep the report readable on light terminals.
var (
	accentColor    = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	successColor   = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	warningColor   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	errorColor     = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	mutedColor     = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	textColor      = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"}
	highlightColor = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
)

var (
	// TitleStyle for the view title.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginBottom(1)

	// LabelStyle for run detail labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12)

	ValueStyle = lipgloss.NewStyle().
			Foreground(textColor)

	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// FocusStyle marks the title of the focused pane.
	FocusStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// DetailsStyle frames the run details.
	DetailsStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(accentColor).
			PaddingLeft(1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// CounterStyle frames one record counter.
	CounterStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(14).
			Align(lipgloss.Center)

	CounterLabelStyle = lipgloss.NewStyle().
				Foreground(mutedColor)

	CounterValueStyle = lipgloss.NewStyle().
				Bold(true)
)

// OutcomeStyle returns the style for a run outcome.
func OutcomeStyle(status types.OutcomeStatus) lipgloss.Style {
	switch status {
	case types.OutcomeCompleted:
		return lipgloss.NewStyle().Foreground(successColor)
	case types.OutcomePartial:
		return lipgloss.NewStyle().Foreground(warningColor)
	case types.OutcomeAborted:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		return ValueStyle
	}
}

// stageTableStyles returns the stages table styles.
func stageTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(mutedColor).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(textColor).
		Background(lipgloss.AdaptiveColor{Light: "#CFFAFE", Dark: "#164E63"})
	return s
}
