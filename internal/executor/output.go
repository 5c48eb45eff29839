package executor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TaskLog appends a task's agent output to its log file. Every run is
// framed by a header and a footer so repeated runs stay readable.
type TaskLog struct {
	mu      sync.Mutex
	logFile *os.File
}

// OpenTaskLog opens path in append mode, creating parent directories.
func OpenTaskLog(path string) (*TaskLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open task log: %w", err)
	}
	return &TaskLog{logFile: f}, nil
}

// Write appends raw process output. Safe for concurrent use by stdout and
// stderr copiers.
func (l *TaskLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return len(p), nil
	}
	return l.logFile.Write(p)
}

// WriteHeader marks the start of a run.
func (l *TaskLog) WriteHeader(taskID string, cmd Command) {
	fmt.Fprintf(l, "\n=== Task %s ===\nStarted: %s\nCommand: %s\n\n",
		taskID, time.Now().Format(time.RFC3339), cmd)
}

// WriteFooter marks the end of a run with the process exit result.
func (l *TaskLog) WriteFooter(taskID string, exitErr error) {
	result := "EXITED"
	if exitErr != nil {
		result = fmt.Sprintf("EXITED WITH ERROR: %v", exitErr)
	}
	fmt.Fprintf(l, "\n=== Task %s: %s ===\n\n", taskID, result)
}

// Close closes the log file. Safe to call more than once.
func (l *TaskLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

var _ io.Writer = (*TaskLog)(nil)
