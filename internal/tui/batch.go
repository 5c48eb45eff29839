// Package tui renders batch execution progress in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pablasso/kanrun/internal/executor"
	"github.com/pablasso/kanrun/internal/tui/components"
	"github.com/pablasso/kanrun/internal/tui/styles"
)

// Item is one task in the batch view.
type Item struct {
	ID    string
	Label string
}

type rowState int

const (
	rowPending rowState = iota
	rowRunning
	rowCompleted
	rowSkipped
)

type row struct {
	Item
	state rowState
	note  string
}

type runState int

const (
	stateRunning runState = iota
	stateCancelling
	stateDone
)

type keyMap struct {
	Cancel key.Binding
	Quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+c", "q", "esc"),
			key.WithHelp("ctrl+c", "cancel batch"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q", "enter"),
			key.WithHelp("q", "quit"),
			key.WithDisabled(),
		),
	}
}

// tickMsg refreshes the elapsed time.
type tickMsg time.Time

const progressWidth = 24

// BatchModel shows a running batch: one row per task, counters and a
// progress bar.
type BatchModel struct {
	state     runState
	rows      []row
	progress  executor.Progress
	summary   executor.Summary
	startTime time.Time
	spinner   spinner.Model
	keys      keyMap
	cancel    func() bool
	width     int
}

// NewBatchModel creates a model for items. cancel is called when the user
// asks to cancel the batch.
func NewBatchModel(items []Item, cancel func() bool) BatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SelectedStyle

	rows := make([]row, len(items))
	for i, it := range items {
		rows[i] = row{Item: it}
	}

	return BatchModel{
		state:     stateRunning,
		rows:      rows,
		progress:  executor.Progress{Total: len(items)},
		startTime: time.Now(),
		spinner:   s,
		keys:      newKeyMap(),
		cancel:    cancel,
	}
}

// Init implements tea.Model.
func (m BatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m BatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if m.state == stateDone {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state == stateDone {
			return m, nil
		}
		return m, tickCmd()

	case taskStartedMsg:
		if r := m.find(msg.TaskID, rowPending); r != nil {
			r.state = rowRunning
			if msg.Label != "" {
				r.Label = msg.Label
			}
		}
		return m, nil

	case taskNoteMsg:
		if r := m.find(msg.TaskID, rowRunning, rowPending); r != nil {
			r.note = msg.Note
		}
		return m, nil

	case batchProgressMsg:
		m.applyProgress(executor.Progress(msg))
		return m, nil

	case batchFinishedMsg:
		m.state = stateDone
		m.summary = executor.Summary(msg)
		m.progress.Completed = msg.Completed
		m.progress.Skipped = msg.Skipped
		for i := range m.rows {
			if m.rows[i].state == rowPending || m.rows[i].state == rowRunning {
				m.rows[i].state = rowSkipped
			}
		}
		m.keys.Cancel.SetEnabled(false)
		m.keys.Quit.SetEnabled(true)
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	return m, nil
}

func (m BatchModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case m.state == stateRunning && key.Matches(msg, m.keys.Cancel):
		m.state = stateCancelling
		m.keys.Cancel.SetEnabled(false)
		if m.cancel != nil {
			m.cancel()
		}
		return m, nil
	case m.state == stateDone && key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	}
	return m, nil
}

// applyProgress resolves rows the batch has moved past. The counters only
// grow by one per notification, so the delta says how the last task ended.
func (m *BatchModel) applyProgress(p executor.Progress) {
	completedDelta := p.Completed - m.progress.Completed
	for i := 0; i < p.Index && i < len(m.rows); i++ {
		r := &m.rows[i]
		if r.state != rowPending && r.state != rowRunning {
			continue
		}
		if completedDelta > 0 {
			r.state = rowCompleted
			completedDelta--
		} else {
			r.state = rowSkipped
		}
	}
	m.progress = p
}

func (m *BatchModel) find(id string, states ...rowState) *row {
	for i := range m.rows {
		if m.rows[i].ID != id {
			continue
		}
		for _, s := range states {
			if m.rows[i].state == s {
				return &m.rows[i]
			}
		}
	}
	return nil
}

// View implements tea.Model.
func (m BatchModel) View() string {
	var b strings.Builder

	b.WriteString(styles.TitleStyle.Render(m.title()))
	b.WriteString("\n")

	bar := components.NewProgress(m.progress.Completed, m.progress.Skipped, m.progress.Total, progressWidth).View()
	fmt.Fprintf(&b, "%s  ✓ %d · skipped %d · ⏱ %s\n\n",
		bar, m.progress.Completed, m.progress.Skipped, formatDuration(m.elapsed()))

	for _, r := range m.rows {
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	var notes []string
	if m.state == stateCancelling {
		notes = append(notes, "Stopping... waiting for the current task")
	}
	b.WriteString(components.NewStatusBar().Render(m.width, notes, m.keys.Cancel, m.keys.Quit))
	b.WriteString("\n")
	return b.String()
}

func (m BatchModel) title() string {
	switch m.state {
	case stateDone:
		if m.summary.Cancelled {
			return "Batch cancelled"
		}
		return "Batch finished"
	case stateCancelling:
		return "Cancelling batch"
	default:
		return fmt.Sprintf("Running batch (%d tasks)", len(m.rows))
	}
}

func (m BatchModel) elapsed() time.Duration {
	if m.state == stateDone {
		return m.summary.Duration
	}
	return time.Since(m.startTime)
}

func (m BatchModel) renderRow(r row) string {
	label := r.Label
	if label == "" {
		label = r.ID
	}
	line := fmt.Sprintf("%s  %s", r.ID, label)
	if r.note != "" {
		line += "  " + styles.SubtleStyle.Render(r.note)
	}

	switch r.state {
	case rowRunning:
		return m.spinner.View() + " " + styles.SelectedStyle.Render(line)
	case rowCompleted:
		return styles.SuccessStyle.Render("✓ " + line)
	case rowSkipped:
		return styles.WarningStyle.Render("– " + line)
	default:
		return styles.SubtleStyle.Render("○ " + line)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
