// Package workspace locates and lays out the .kanrun directory of a project.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the per-project kanrun directory.
const DirName = ".kanrun"

const (
	tasksDirName    = "tasks"
	prdsDirName     = "prds"
	logsDirName     = "logs"
	configFileName  = "config.yaml"
	historyFileName = "history.log"
)

// ErrNotInitialized is returned when no .kanrun directory is found.
var ErrNotInitialized = errors.New("kanrun is not initialized. Run 'kanrun init' first")

// Workspace holds the paths of one initialized project.
type Workspace struct {
	Root string
}

// New returns the workspace rooted at root.
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

// Find walks up from start until it finds a directory containing .kanrun.
func Find(start string) (*Workspace, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return New(dir), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNotInitialized
		}
		dir = parent
	}
}

// Dir is the .kanrun directory.
func (w *Workspace) Dir() string { return filepath.Join(w.Root, DirName) }

// TasksDir is the default task file root.
func (w *Workspace) TasksDir() string { return filepath.Join(w.Dir(), tasksDirName) }

// PRDsDir is the default requirements-document directory.
func (w *Workspace) PRDsDir() string { return filepath.Join(w.Dir(), prdsDirName) }

// LogsDir holds per-task process output.
func (w *Workspace) LogsDir() string { return filepath.Join(w.Dir(), logsDirName) }

// ConfigPath is the project config file.
func (w *Workspace) ConfigPath() string { return filepath.Join(w.Dir(), configFileName) }

// HistoryPath is the execution history log.
func (w *Workspace) HistoryPath() string { return filepath.Join(w.Dir(), historyFileName) }

// TaskLogPath is where a task's process output is appended.
func (w *Workspace) TaskLogPath(taskID string) string {
	return filepath.Join(w.LogsDir(), taskID+".log")
}

// Initialized reports whether the .kanrun directory exists.
func (w *Workspace) Initialized() bool {
	info, err := os.Stat(w.Dir())
	return err == nil && info.IsDir()
}

// Init creates the .kanrun directory structure.
func (w *Workspace) Init() error {
	if w.Initialized() {
		return fmt.Errorf("kanrun is already initialized in %s", w.Root)
	}
	for _, dir := range []string{w.Dir(), w.TasksDir(), w.PRDsDir(), w.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
