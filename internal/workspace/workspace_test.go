package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	tmpDir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(tmpDir); err == nil {
		tmpDir = resolved
	}
	w := New(tmpDir)
	if err := w.Init(); err != nil {
		t.Fatalf("failed to init workspace: %v", err)
	}
	return w
}

func TestWorkspace_Init(t *testing.T) {
	w := newTestWorkspace(t)

	for _, dir := range []string{w.Dir(), w.TasksDir(), w.PRDsDir(), w.LogsDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
	if err := w.Init(); err == nil {
		t.Error("expected second Init to fail")
	}
}

func TestFind_WalksUp(t *testing.T) {
	w := newTestWorkspace(t)
	nested := filepath.Join(w.Root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	found, err := Find(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.Root != w.Root {
		t.Errorf("root mismatch: got %s, want %s", found.Root, w.Root)
	}
}

func TestFind_NotInitialized(t *testing.T) {
	_, err := Find(t.TempDir())
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got: %v", err)
	}
}

func TestRunLock_AcquireRelease(t *testing.T) {
	w := newTestWorkspace(t)
	lock := NewRunLock(w)

	if err := lock.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(w.Dir(), lockFileName))
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if pid, _ := strconv.Atoi(string(data)); pid != os.Getpid() {
		t.Errorf("lock file PID mismatch: got %d, want %d", pid, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("expected idempotent release, got: %v", err)
	}
}

func TestRunLock_AlreadyLocked(t *testing.T) {
	w := newTestWorkspace(t)
	lockPath := filepath.Join(w.Dir(), lockFileName)
	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	err := NewRunLock(w).Acquire()
	if !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got: %v", err)
	}
}

func TestRunLock_StaleAndInvalidLocks(t *testing.T) {
	for _, content := range []string{"99999999", "not-a-pid"} {
		w := newTestWorkspace(t)
		lockPath := filepath.Join(w.Dir(), lockFileName)
		if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create lock file: %v", err)
		}

		if err := NewRunLock(w).Acquire(); err != nil {
			t.Errorf("content %q: unexpected error: %v", content, err)
		}
	}
}

func TestHistory_LogAndRead(t *testing.T) {
	w := newTestWorkspace(t)
	h := NewHistory(w.HistoryPath())

	if err := h.BatchStarted("b1", []string{"task-1", "task-2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.TaskStarted("task-1", 42, "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.TaskCompleted("task-1", 3*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.TaskFailed("task-2", errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.BatchFinished("b1", true, 1, 1, 2, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := ReadHistory(w.HistoryPath(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{EventBatchStarted, EventTaskStarted, EventTaskCompleted, EventTaskFailed, EventBatchCancelled}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, ev := range want {
		if events[i].Event != ev {
			t.Errorf("event %d: got %s, want %s", i, events[i].Event, ev)
		}
	}
	if events[3].Data["error"] != "boom" {
		t.Errorf("expected error data, got %v", events[3].Data)
	}

	last, err := ReadHistory(w.HistoryPath(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(last) != 2 || last[1].Event != EventBatchCancelled {
		t.Errorf("expected last two events, got %v", last)
	}
}

func TestReadHistory_MissingFile(t *testing.T) {
	events, err := ReadHistory(filepath.Join(t.TempDir(), "none.log"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}
