package tui

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/sieve/pipeline"
)

// failuresHeight is the initial height of the failures pane.
const failuresHeight = 8

// keyMap defines key bindings.
type keyMap struct {
	Quit   key.Binding
	Switch key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Switch: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch pane"),
	),
}

// pane identifies the focused component.
type pane int

const (
	paneStages pane = iota
	paneFailures
)

// ReportModel is a Bubble Tea model for the run report.
// The stages table and the failures pane scroll independently; tab moves
// focus between them.
type ReportModel struct {
	rf       *pipeline.RunFile
	stages   table.Model
	failures viewport.Model
	focus    pane
	width    int
	height   int
	quitting bool
}

// NewReportModel creates a report model for a run file.
func NewReportModel(rf *pipeline.RunFile) ReportModel {
	columns := []table.Column{
		{Title: "Stage", Width: 18},
		{Title: "Processed", Width: 10},
		{Title: "Dropped", Width: 10},
		{Title: "Failed", Width: 8},
		{Title: "Entries", Width: 10},
	}

	names := make([]string, 0, len(rf.Stages))
	for name := range rf.Stages {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		c := rf.Stages[name]
		rows = append(rows, table.Row{
			name,
			fmt.Sprint(c.Processed),
			fmt.Sprint(c.Dropped),
			fmt.Sprint(c.Failed),
			fmt.Sprint(c.Entries),
		})
	}

	stages := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+1, 10)),
		table.WithStyles(stageTableStyles()),
	)

	failures := viewport.New(72, failuresHeight)
	failures.SetContent(failureLines(rf.Failures))

	return ReportModel{
		rf:       rf,
		stages:   stages,
		failures: failures,
	}
}

// failureLines formats failures one per line.
func failureLines(failures []pipeline.Failure) string {
	if len(failures) == 0 {
		return MutedStyle.Render("no record failures")
	}
	var b strings.Builder
	for i, f := range failures {
		if i > 0 {
			b.WriteByte('\n')
		}
		kind := f.Phase
		if f.Panic {
			kind += " panic"
		}
		fmt.Fprintf(&b, "%-12s %-16s %-14s %s", f.Pos, f.Stage, kind, f.Message)
	}
	return b.String()
}

// Init implements tea.Model.
func (m ReportModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if msg.Width > 8 {
			m.failures.Width = msg.Width - 8
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Switch):
			if m.focus == paneStages {
				m.focus = paneFailures
				m.stages.Blur()
			} else {
				m.focus = paneStages
				m.stages.Focus()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focus == paneStages {
		m.stages, cmd = m.stages.Update(msg)
	} else {
		m.failures, cmd = m.failures.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m ReportModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run Report"))
	b.WriteString("\n")

	rows := [][]string{
		{"Run ID", m.rf.RunID},
		{"Archive", m.rf.Archive},
		{"Mode", m.modeLabel()},
		{"Outcome", string(m.rf.Outcome)},
		{"Started At", m.rf.StartedAt.Format("2006-01-02 15:04:05")},
		{"Duration", (time.Duration(m.rf.DurationMs) * time.Millisecond).String()},
	}
	if m.rf.ErrorKind != "" {
		rows = append(rows, []string{"Error Kind", m.rf.ErrorKind})
	}
	if m.rf.Message != "" {
		rows = append(rows, []string{"Message", m.rf.Message})
	}

	var details strings.Builder
	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		if row[0] == "Outcome" {
			value = OutcomeStyle(m.rf.Outcome).Render(row[1])
		}
		details.WriteString(LabelStyle.Render(row[0]) + " " + value + "\n")
	}
	b.WriteString(DetailsStyle.Render(strings.TrimSuffix(details.String(), "\n")))
	b.WriteString("\n")

	counters := []string{
		renderCounter("processed", m.rf.Records.Processed, highlightColor),
		renderCounter("dropped", m.rf.Records.Dropped, mutedColor),
		renderCounter("failed", m.rf.Records.Failed, errorColor),
		renderCounter("entries", m.rf.Records.Entries, successColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, counters...))
	b.WriteString("\n\n")

	b.WriteString(m.paneTitle("Stages", paneStages))
	b.WriteString("\n")
	b.WriteString(m.stages.View())
	b.WriteString("\n\n")

	b.WriteString(m.paneTitle(fmt.Sprintf("Failures (%d)", len(m.rf.Failures)), paneFailures))
	b.WriteString("\n")
	b.WriteString(m.failures.View())
	b.WriteString("\n")

	b.WriteString(HelpStyle.Render("tab switch pane • ↑/↓ scroll • q quit"))
	return b.String()
}

func (m ReportModel) modeLabel() string {
	if m.rf.Workers > 0 {
		return fmt.Sprintf("%s (%d workers)", m.rf.Mode, m.rf.Workers)
	}
	return string(m.rf.Mode)
}

func (m ReportModel) paneTitle(title string, p pane) string {
	if m.focus == p {
		return FocusStyle.Render("▸ " + title)
	}
	return MutedStyle.Render("  " + title)
}

func renderCounter(label string, value int64, color lipgloss.TerminalColor) string {
	v := CounterValueStyle.Foreground(color).Render(fmt.Sprint(value))
	return CounterStyle.BorderForeground(color).Render(
		lipgloss.JoinVertical(lipgloss.Center, v, CounterLabelStyle.Render(label)))
}

// RunReportTUI runs the report TUI. data must be a *pipeline.RunFile.
func RunReportTUI(data any) error {
	rf, ok := data.(*pipeline.RunFile)
	if !ok || rf == nil {
		return errors.New("report TUI requires a run file")
	}
	p := tea.NewProgram(NewReportModel(rf), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderReportStatic renders the report view without starting a program.
func RenderReportStatic(rf *pipeline.RunFile) string {
	m := NewReportModel(rf)
	m.width = 80
	m.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
