package task

import (
	"strings"
	"time"
)

// Status is the column a task sits in on the board.
type Status string

// Task status constants
const (
	StatusBacklog Status = "Backlog"
	StatusToDo    Status = "To Do"
	StatusDoing   Status = "Doing"
	StatusTesting Status = "Testing"
	StatusDone    Status = "Done"
	StatusBlocked Status = "Blocked"
)

// AllStatuses lists the known statuses in board order.
var AllStatuses = []Status{
	StatusBacklog,
	StatusToDo,
	StatusDoing,
	StatusTesting,
	StatusDone,
	StatusBlocked,
}

// Known reports whether s is one of the six board statuses.
func (s Status) Known() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus normalizes a status string. Known statuses are matched
// case-insensitively and with "-" or "_" in place of spaces ("todo" and
// "to-do" both become To Do). Anything else is returned verbatim.
func ParseStatus(s string) Status {
	trimmed := strings.TrimSpace(s)
	key := strings.ToLower(trimmed)
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	for _, known := range AllStatuses {
		if key == strings.ToLower(strings.ReplaceAll(string(known), " ", "")) {
			return known
		}
	}
	return Status(trimmed)
}

// Priority is the urgency of a task.
type Priority string

// Task priority constants
const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ParsePriority normalizes a priority string. Unknown and empty values
// become Medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Task is one task file on disk.
type Task struct {
	ID          string
	Title       string `validate:"required"`
	Label       string
	Description string
	Type        string
	Status      Status
	Priority    Priority `validate:"omitempty,oneof=High Medium Low"`
	Order       *int

	Created time.Time
	Updated time.Time

	// PRDPath is the link target of the PRD field, as written in the file.
	PRDPath string

	// FilePath is set by the store when the task is discovered.
	FilePath string

	ClaimedBy      string
	ClaimedAt      *time.Time
	CompletedAt    *time.Time
	RejectionCount int `validate:"gte=0"`
	AgentNotes     string

	// Body is everything after the metadata block.
	Body string
}

// Completed reports whether the task is Done.
func (t *Task) Completed() bool {
	return t.Status == StatusDone
}

// DisplayLabel returns the label, falling back to the file heading.
func (t *Task) DisplayLabel() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Title
}

// Update is a partial update applied by Store.UpdateTask. Nil fields are
// left alone.
type Update struct {
	Label       *string
	Description *string
	Type        *string
	Priority    *Priority `validate:"omitempty,oneof=High Medium Low"`
	Status      *Status
}

// NewTask holds the input for Store.CreateTask.
type NewTask struct {
	Title       string `validate:"required"`
	Label       string
	Description string
	Type        string
	Priority    Priority `validate:"omitempty,oneof=High Medium Low"`
	Status      Status
	PRDPath     string
}
