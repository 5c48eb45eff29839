package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pablasso/kanrun/internal/ai"
	"github.com/pablasso/kanrun/internal/testutil"
)

func mockCommand(t *testing.T, fn testutil.CommandFunc) {
	t.Helper()
	original := ai.CommandContext
	ai.CommandContext = fn
	t.Cleanup(func() { ai.CommandContext = original })
}

func waitDone(t *testing.T, p Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for process exit")
	}
}

func TestProcessLauncher_WritesTaskLog(t *testing.T) {
	rec := &testutil.CommandRecorder{Next: testutil.MockCommandFunc("agent output")}
	mockCommand(t, rec.Func())

	logDir := t.TempDir()
	launcher := NewProcessLauncher(t.TempDir(), func(id string) string {
		return filepath.Join(logDir, "logs", id+".log")
	})

	cmd := Command{Path: "claude", Args: []string{"-p", "do it"}}
	p, err := launcher.Launch(context.Background(), "task-1", cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Pid() <= 0 {
		t.Errorf("expected a pid, got: %d", p.Pid())
	}
	waitDone(t, p)
	if p.Err() != nil {
		t.Errorf("unexpected exit error: %v", p.Err())
	}

	calls := rec.Calls()
	if len(calls) != 1 || strings.Join(calls[0], " ") != "claude -p do it" {
		t.Errorf("unexpected invocation: %v", calls)
	}

	data, err := os.ReadFile(filepath.Join(logDir, "logs", "task-1.log"))
	if err != nil {
		t.Fatalf("failed to read task log: %v", err)
	}
	content := string(data)
	for _, want := range []string{"=== Task task-1 ===", "agent output", "=== Task task-1: EXITED ==="} {
		if !strings.Contains(content, want) {
			t.Errorf("expected log to contain %q, got:\n%s", want, content)
		}
	}
}

func TestProcessLauncher_AppendsAcrossRuns(t *testing.T) {
	mockCommand(t, testutil.MockCommandFunc("run"))

	logPath := filepath.Join(t.TempDir(), "task-1.log")
	launcher := NewProcessLauncher("", func(string) string { return logPath })

	for i := 0; i < 2; i++ {
		p, err := launcher.Launch(context.Background(), "task-1", Command{Path: "agent"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		waitDone(t, p)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read task log: %v", err)
	}
	if n := strings.Count(string(data), "=== Task task-1 ==="); n != 2 {
		t.Errorf("expected 2 run headers, got: %d", n)
	}
}

func TestProcessLauncher_StopInterruptsProcess(t *testing.T) {
	mockCommand(t, testutil.MockLongRunningCommand())

	launcher := NewProcessLauncher("", nil)
	p, err := launcher.Launch(context.Background(), "task-1", Command{Path: "agent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-p.Done():
		t.Fatal("expected process to keep running")
	case <-time.After(50 * time.Millisecond):
	}

	p.Stop()
	waitDone(t, p)
	if p.Err() == nil {
		t.Error("expected an exit error for an interrupted process")
	}
}

func TestProcessLauncher_OutlivesStartContext(t *testing.T) {
	mockCommand(t, testutil.MockLongRunningCommand())

	ctx, cancel := context.WithCancel(context.Background())
	p, err := NewProcessLauncher("", nil).Launch(ctx, "task-1", Command{Path: "agent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		p.Stop()
		waitDone(t, p)
	}()

	cancel()
	select {
	case <-p.Done():
		t.Fatal("expected process to survive cancellation of the start context")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessLauncher_StartFailure(t *testing.T) {
	mockCommand(t, func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, filepath.Join(t.TempDir(), "does-not-exist"))
	})

	logPath := filepath.Join(t.TempDir(), "task-1.log")
	_, err := NewProcessLauncher("", func(string) string { return logPath }).
		Launch(context.Background(), "task-1", Command{Path: "agent"})
	if err == nil {
		t.Fatal("expected an error")
	}

	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "EXITED WITH ERROR") {
		t.Errorf("expected failure footer in log, got:\n%s", data)
	}
}
