package task

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no task file carries the requested id.
	ErrNotFound = errors.New("task not found")

	// ErrNotTask is returned for files without the "## Task:" title marker.
	ErrNotTask = errors.New("not a task file")
)

// ParseError describes a task file that could not be read or parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PRDSyncError describes a failed requirements-document status sync. It is
// only ever logged.
type PRDSyncError struct {
	TaskID string
	Path   string
	Err    error
}

func (e *PRDSyncError) Error() string {
	return fmt.Sprintf("sync prd %s for task %s: %v", e.Path, e.TaskID, e.Err)
}

func (e *PRDSyncError) Unwrap() error {
	return e.Err
}
