package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pablasso/kanrun/internal/executor"
)

func testItems() []Item {
	return []Item{
		{ID: "task-1", Label: "First"},
		{ID: "task-2", Label: "Second"},
		{ID: "task-3", Label: "Third"},
	}
}

func update(t *testing.T, m BatchModel, msg tea.Msg) (BatchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	bm, ok := next.(BatchModel)
	if !ok {
		t.Fatalf("expected BatchModel, got %T", next)
	}
	return bm, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestNewBatchModel(t *testing.T) {
	m := NewBatchModel(testItems(), nil)

	if m.state != stateRunning {
		t.Errorf("expected initial state to be stateRunning, got %d", m.state)
	}
	if len(m.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(m.rows))
	}
	for _, r := range m.rows {
		if r.state != rowPending {
			t.Errorf("expected %s to be pending, got %d", r.ID, r.state)
		}
	}
	if m.progress.Total != 3 {
		t.Errorf("expected total 3, got %d", m.progress.Total)
	}
	if m.Init() == nil {
		t.Error("expected Init() to return a command")
	}
}

func TestBatchModel_SpinnerTick(t *testing.T) {
	m := NewBatchModel(testItems(), nil)

	_, cmd := update(t, m, spinner.TickMsg{})
	if cmd == nil {
		t.Error("expected command from spinner tick")
	}

	m.state = stateDone
	_, cmd = update(t, m, spinner.TickMsg{})
	if cmd != nil {
		t.Error("expected spinner to stop once the batch is done")
	}
}

func TestBatchModel_ProgressResolvesRows(t *testing.T) {
	m := NewBatchModel(testItems(), nil)

	m, _ = update(t, m, batchProgressMsg{Current: "task-1", Index: 0, Total: 3})
	m, _ = update(t, m, taskStartedMsg{TaskID: "task-1", Label: "First (renamed)"})
	if m.rows[0].state != rowRunning {
		t.Fatalf("expected task-1 to be running, got %d", m.rows[0].state)
	}
	if m.rows[0].Label != "First (renamed)" {
		t.Errorf("expected label from start notification, got: %s", m.rows[0].Label)
	}

	m, _ = update(t, m, batchProgressMsg{Index: 1, Total: 3, Completed: 1})
	m, _ = update(t, m, taskNoteMsg{TaskID: "task-2", Note: "launch failed"})
	m, _ = update(t, m, batchProgressMsg{Index: 2, Total: 3, Completed: 1, Skipped: 1})

	if m.rows[0].state != rowCompleted {
		t.Errorf("expected task-1 completed, got %d", m.rows[0].state)
	}
	if m.rows[1].state != rowSkipped {
		t.Errorf("expected task-2 skipped, got %d", m.rows[1].state)
	}
	if m.rows[1].note != "launch failed" {
		t.Errorf("expected note on task-2, got: %q", m.rows[1].note)
	}
	if m.rows[2].state != rowPending {
		t.Errorf("expected task-3 pending, got %d", m.rows[2].state)
	}
}

func TestBatchModel_FinishedQuits(t *testing.T) {
	m := NewBatchModel(testItems(), nil)
	m, _ = update(t, m, batchProgressMsg{Index: 1, Total: 3, Completed: 1})

	m, cmd := update(t, m, batchFinishedMsg{Total: 3, Completed: 1, Skipped: 2, Cancelled: true, Duration: 90 * time.Second})

	if m.state != stateDone {
		t.Errorf("expected stateDone, got %d", m.state)
	}
	if !isQuit(cmd) {
		t.Error("expected the program to quit when the batch finishes")
	}
	for _, r := range m.rows[1:] {
		if r.state != rowSkipped {
			t.Errorf("expected %s to be counted as skipped, got %d", r.ID, r.state)
		}
	}

	view := m.View()
	if !strings.Contains(view, "Batch cancelled") {
		t.Errorf("expected cancelled title, got:\n%s", view)
	}
	if !strings.Contains(view, "01:30") {
		t.Errorf("expected batch duration in view, got:\n%s", view)
	}
}

func TestBatchModel_CancelKey(t *testing.T) {
	calls := 0
	m := NewBatchModel(testItems(), func() bool {
		calls++
		return true
	})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Error("expected cancel to wait for the batch instead of quitting")
	}
	if m.state != stateCancelling {
		t.Errorf("expected stateCancelling, got %d", m.state)
	}
	if calls != 1 {
		t.Errorf("expected cancel to be called once, got %d", calls)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if calls != 1 {
		t.Errorf("expected a second ctrl+c not to cancel again, got %d calls", calls)
	}
	if !strings.Contains(m.View(), "Stopping...") {
		t.Errorf("expected stopping note, got:\n%s", m.View())
	}
}

func TestBatchModel_QuitAfterDone(t *testing.T) {
	m := NewBatchModel(testItems(), nil)
	m, _ = update(t, m, batchFinishedMsg{Total: 3, Completed: 3})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !isQuit(cmd) {
		t.Error("expected q to quit once the batch is done")
	}
}

func TestBatchModel_View(t *testing.T) {
	m := NewBatchModel(testItems(), nil)
	m, _ = update(t, m, batchProgressMsg{Index: 1, Total: 3, Completed: 1})

	view := m.View()

	if !strings.Contains(view, "Running batch (3 tasks)") {
		t.Errorf("expected running title, got:\n%s", view)
	}
	for _, want := range []string{"task-1", "Second", "1/3", "ctrl+c cancel batch"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestNotifier_SendsMessages(t *testing.T) {
	var sent []tea.Msg
	n := &Notifier{send: func(msg tea.Msg) { sent = append(sent, msg) }}

	n.TaskStarted("task-1", "First", true)
	n.TaskTimedOut("task-1", time.Minute)
	n.TaskError("task-2", errors.New("boom"))
	n.BatchProgress(executor.Progress{Index: 1, Total: 2})
	n.BatchFinished(executor.Summary{Total: 2})

	if len(sent) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(sent))
	}
	if msg, ok := sent[0].(taskStartedMsg); !ok || msg.TaskID != "task-1" {
		t.Errorf("expected taskStartedMsg for task-1, got: %#v", sent[0])
	}
	if msg, ok := sent[1].(taskNoteMsg); !ok || msg.Note != "timed out after 1m0s" {
		t.Errorf("expected timeout note, got: %#v", sent[1])
	}
	if msg, ok := sent[2].(taskNoteMsg); !ok || msg.Note != "boom" {
		t.Errorf("expected error note, got: %#v", sent[2])
	}
	if _, ok := sent[3].(batchProgressMsg); !ok {
		t.Errorf("expected batchProgressMsg, got: %#v", sent[3])
	}
	if _, ok := sent[4].(batchFinishedMsg); !ok {
		t.Errorf("expected batchFinishedMsg, got: %#v", sent[4])
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{65 * time.Second, "01:05"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
