package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pablasso/kanrun/internal/executor"
)

type taskStartedMsg struct {
	TaskID string
	Label  string
}

// taskNoteMsg attaches a short note (timeout, error, stop) to a task row.
type taskNoteMsg struct {
	TaskID string
	Note   string
}

type batchProgressMsg executor.Progress

type batchFinishedMsg executor.Summary

// Notifier forwards executor notifications to a running program.
type Notifier struct {
	send func(tea.Msg)
}

var _ executor.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier that sends to program.
func NewNotifier(program *tea.Program) *Notifier {
	return &Notifier{send: program.Send}
}

func (n *Notifier) TaskStarted(taskID, label string, inBatch bool) {
	n.send(taskStartedMsg{TaskID: taskID, Label: label})
}

func (n *Notifier) TaskStopped(taskID string) {
	n.send(taskNoteMsg{TaskID: taskID, Note: "stopped"})
}

func (n *Notifier) TaskCompleted(taskID, label string, duration time.Duration) {
	n.send(taskNoteMsg{TaskID: taskID, Note: formatDuration(duration)})
}

func (n *Notifier) TaskTimedOut(taskID string, timeout time.Duration) {
	n.send(taskNoteMsg{TaskID: taskID, Note: fmt.Sprintf("timed out after %s", timeout)})
}

func (n *Notifier) TaskError(taskID string, err error) {
	n.send(taskNoteMsg{TaskID: taskID, Note: err.Error()})
}

func (n *Notifier) BatchProgress(p executor.Progress) {
	n.send(batchProgressMsg(p))
}

func (n *Notifier) BatchFinished(s executor.Summary) {
	n.send(batchFinishedMsg(s))
}

// RunBatch starts items on b and renders the batch until it finishes.
// orch is the orchestrator b drives; its task notifications are routed to
// the view too. Leaving the view early cancels the batch, and RunBatch
// still waits for the in-flight task to be stopped before returning.
func RunBatch(ctx context.Context, orch *executor.Orchestrator, b *executor.Batch, items []Item, opts ...tea.ProgramOption) (executor.Summary, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	program := tea.NewProgram(NewBatchModel(items, b.CancelBatch), opts...)
	notifier := NewNotifier(program)
	orch.WithNotifier(notifier)
	b.WithNotifier(notifier)

	results, err := b.StartBatch(ctx, ids)
	if err != nil {
		return executor.Summary{}, err
	}

	if _, err := program.Run(); err != nil {
		b.CancelBatch()
		<-results
		return executor.Summary{}, fmt.Errorf("batch view failed: %w", err)
	}

	// The view can exit before the batch does (for example when the
	// program is killed), so make sure the run is over.
	b.CancelBatch()
	return <-results, nil
}
