package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockFileName = "run.lock"

// ErrLocked is returned when another live kanrun process holds the run lock.
var ErrLocked = errors.New("another kanrun process is executing tasks in this workspace")

// RunLock keeps two kanrun processes from launching agents in the same
// workspace at once.
type RunLock struct {
	path string
}

// NewRunLock creates a lock manager for the workspace.
func NewRunLock(w *Workspace) *RunLock {
	return &RunLock{
		path: filepath.Join(w.Dir(), lockFileName),
	}
}

// Acquire takes the lock. Locks left behind by dead processes are removed.
func (l *RunLock) Acquire() error {
	err := l.create()
	if err == nil {
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	locked, err := l.IsLocked()
	if err != nil {
		return err
	}
	if locked {
		pid, _ := l.owner()
		return fmt.Errorf("%w (PID %d)", ErrLocked, pid)
	}

	// IsLocked removed the stale file; try exactly once more.
	if err := l.create(); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: acquired by another process during retry", ErrLocked)
		}
		return fmt.Errorf("failed to create lock file on retry: %w", err)
	}
	return nil
}

func (l *RunLock) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, writeErr := fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()
	if writeErr != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", writeErr)
	}
	return nil
}

// Release removes the lock file. Missing files are not an error.
func (l *RunLock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked reports whether a live process holds the lock. Stale or invalid
// lock files are removed.
func (l *RunLock) IsLocked() (bool, error) {
	pid, err := l.owner()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) {
			return false, fmt.Errorf("failed to read existing lock file: %w", err)
		}
		return false, l.removeStale()
	}
	if processExists(pid) {
		return true, nil
	}
	return false, l.removeStale()
}

func (l *RunLock) owner() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (l *RunLock) removeStale() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lock file: %w", err)
	}
	return nil
}

// processExists sends signal 0, which checks for the process without
// delivering anything.
func processExists(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
