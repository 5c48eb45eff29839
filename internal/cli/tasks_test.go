package cli

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/pablasso/kanrun/internal/config"
	"github.com/pablasso/kanrun/internal/task"
	"github.com/pablasso/kanrun/internal/testutil"
	"github.com/pablasso/kanrun/internal/workspace"
)

// openStore reads the workspace's tasks directly, bypassing the CLI.
func openStore(t *testing.T, root string) *task.Store {
	t.Helper()
	return task.NewStore(afero.NewOsFs(), config.Default().StoreConfig(root), log.New(io.Discard))
}

func findTask(t *testing.T, root, id string) *task.Task {
	t.Helper()
	tk, err := openStore(t, root).FindTask(id)
	if err != nil {
		t.Fatalf("failed to find %s: %v", id, err)
	}
	return tk
}

func TestNewAndList(t *testing.T) {
	setupWorkspace(t)

	login := createTask(t, "Add login page", "--priority", "high", "--type", "feature")
	docs := createTask(t, "Write docs", "--status", "backlog")

	out, err := execute(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, want := range []string{login, docs, "Add login page", "Write docs", "High", "Backlog"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected list to contain %q, got:\n%s", want, out)
		}
	}
	// Backlog is the first column.
	if strings.Index(out, docs) > strings.Index(out, login) {
		t.Errorf("expected backlog task before to-do task, got:\n%s", out)
	}

	out, err = execute(t, "list", "--status", "todo")
	if err != nil {
		t.Fatalf("list --status failed: %v", err)
	}
	if !strings.Contains(out, login) || strings.Contains(out, docs) {
		t.Errorf("expected only the To Do task, got:\n%s", out)
	}
}

func TestNew_InvalidInput(t *testing.T) {
	setupWorkspace(t)

	if _, err := execute(t, "new", "Task", "--priority", "urgent"); err == nil || !strings.Contains(err.Error(), "invalid priority") {
		t.Errorf("expected invalid priority error, got: %v", err)
	}
	if _, err := execute(t, "new", "Task", "--status", "Review"); !errors.Is(err, task.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got: %v", err)
	}
}

func TestList_Empty(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "No tasks found.") {
		t.Errorf("expected empty message, got: %q", out)
	}
}

func TestList_NotInitialized(t *testing.T) {
	testutil.SetupTestDir(t)
	t.Setenv("HOME", t.TempDir())

	if _, err := execute(t, "list"); !errors.Is(err, workspace.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got: %v", err)
	}
}

func TestMoveAndOrder(t *testing.T) {
	root := setupWorkspace(t)
	id := createTask(t, "Refactor store")

	if _, err := execute(t, "move", id, "doing", "--order", "3"); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	tk := findTask(t, root, id)
	if tk.Status != task.StatusDoing {
		t.Errorf("expected Doing, got: %s", tk.Status)
	}
	if tk.Order == nil || *tk.Order != 3 {
		t.Errorf("expected order 3, got: %v", tk.Order)
	}

	if _, err := execute(t, "order", id, "1"); err != nil {
		t.Fatalf("order failed: %v", err)
	}
	if tk := findTask(t, root, id); tk.Order == nil || *tk.Order != 1 {
		t.Errorf("expected order 1, got: %v", tk.Order)
	}

	if _, err := execute(t, "order", id, "first"); err == nil {
		t.Error("expected error for a non-numeric position")
	}
	if _, err := execute(t, "move", "task-missing", "done"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestMove_WithoutOrderKeepsOrder(t *testing.T) {
	root := setupWorkspace(t)
	id := createTask(t, "Keep order")

	if _, err := execute(t, "order", id, "5"); err != nil {
		t.Fatalf("order failed: %v", err)
	}
	if _, err := execute(t, "move", id, "Testing"); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	tk := findTask(t, root, id)
	if tk.Status != task.StatusTesting {
		t.Errorf("expected Testing, got: %s", tk.Status)
	}
	if tk.Order == nil || *tk.Order != 5 {
		t.Errorf("expected order to stay 5, got: %v", tk.Order)
	}
}

func TestEdit(t *testing.T) {
	root := setupWorkspace(t)
	id := createTask(t, "Original title")

	if _, err := execute(t, "edit", id); err == nil || !strings.Contains(err.Error(), "nothing to edit") {
		t.Errorf("expected nothing to edit error, got: %v", err)
	}

	if _, err := execute(t, "edit", id, "--label", "Short", "--priority", "low", "--description", ""); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	tk := findTask(t, root, id)
	if tk.Label != "Short" {
		t.Errorf("expected label Short, got: %s", tk.Label)
	}
	if tk.Priority != task.PriorityLow {
		t.Errorf("expected Low priority, got: %s", tk.Priority)
	}
	if tk.Title != "Original title" {
		t.Errorf("expected title to be untouched, got: %s", tk.Title)
	}
}

func TestReject(t *testing.T) {
	root := setupWorkspace(t)
	id := createTask(t, "Needs rework")
	if _, err := execute(t, "move", id, "testing"); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	out, err := execute(t, "reject", id, "tests are failing")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if !strings.Contains(out, "rejections: 1") {
		t.Errorf("expected rejection count in output, got: %q", out)
	}

	tk := findTask(t, root, id)
	if tk.Status != task.StatusToDo || tk.RejectionCount != 1 {
		t.Errorf("expected To Do with one rejection, got: %s / %d", tk.Status, tk.RejectionCount)
	}
	content, err := os.ReadFile(tk.FilePath)
	if err != nil {
		t.Fatalf("failed to read task file: %v", err)
	}
	if !strings.Contains(string(content), "tests are failing") {
		t.Errorf("expected rejection note in file, got:\n%s", content)
	}
}

func TestNew_WithPRD(t *testing.T) {
	root := setupWorkspace(t)
	prd := filepath.Join(root, ".kanrun", "prds", "login.md")
	if err := os.WriteFile(prd, []byte("# Login\n\n**Status:** Draft\n"), 0644); err != nil {
		t.Fatalf("failed to write prd: %v", err)
	}

	id := createTask(t, "Login form", "--prd", "prds/login.md")
	if _, err := execute(t, "move", id, "done"); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	content, err := os.ReadFile(prd)
	if err != nil {
		t.Fatalf("failed to read prd: %v", err)
	}
	if !strings.Contains(string(content), "**Status:** Done") {
		t.Errorf("expected PRD status to follow the task, got:\n%s", content)
	}
}
