package cli

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pablasso/kanrun/internal/config"
)

func TestPrerequisiteError_Error(t *testing.T) {
	err := &PrerequisiteError{
		Check:   "Agent CLI",
		Message: "not found",
		Help:    "Install one.",
	}

	expected := "Agent CLI: not found\n\nInstall one."
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestRunTask_MissingAgent(t *testing.T) {
	root := setupWorkspace(t)
	cfg := config.Default()
	cfg.Execution.Executable = "kanrun-no-such-agent"
	if err := config.Write(filepath.Join(root, ".kanrun", "config.yaml"), cfg); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	id := createTask(t, "Needs an agent")

	_, err := execute(t, "run", id)

	var prereqErr *PrerequisiteError
	if !errors.As(err, &prereqErr) {
		t.Fatalf("expected *PrerequisiteError, got %T: %v", err, err)
	}
	if prereqErr.Check != "Agent CLI" {
		t.Errorf("expected Check to be 'Agent CLI', got %q", prereqErr.Check)
	}
	if !strings.Contains(prereqErr.Message, "kanrun-no-such-agent") {
		t.Errorf("expected message to name the executable, got %q", prereqErr.Message)
	}
}
