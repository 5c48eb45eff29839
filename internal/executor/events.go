package executor

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Notifier receives execution callbacks. The CLI logs them; the TUI renders
// them.
type Notifier interface {
	// TaskStarted is called once the agent process is running.
	TaskStarted(taskID, label string, inBatch bool)

	// TaskStopped is called when a running task is stopped.
	TaskStopped(taskID string)

	// TaskCompleted is called when a single (non-batch) task completes.
	TaskCompleted(taskID, label string, duration time.Duration)

	// TaskTimedOut is called when a task never reached a terminal status.
	TaskTimedOut(taskID string, timeout time.Duration)

	// TaskError is called when a task could not be started.
	TaskError(taskID string, err error)

	// BatchProgress is called whenever the batch counters change.
	BatchProgress(p Progress)

	// BatchFinished is called once per batch run.
	BatchFinished(s Summary)
}

// NopNotifier ignores every notification.
type NopNotifier struct{}

func (NopNotifier) TaskStarted(string, string, bool) {}
func (NopNotifier) TaskStopped(string) {}
func (NopNotifier) TaskCompleted(string, string, time.Duration) {}
func (NopNotifier) TaskTimedOut(string, time.Duration) {}
func (NopNotifier) TaskError(string, error) {}
func (NopNotifier) BatchProgress(Progress) {}
func (NopNotifier) BatchFinished(Summary) {}

// LogNotifier writes notifications through a structured logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a notifier that logs to logger.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) TaskStarted(taskID, label string, inBatch bool) {
	n.logger.Info("task started", "task", taskID, "label", label, "batch", inBatch)
}

func (n *LogNotifier) TaskStopped(taskID string) {
	n.logger.Info("task stopped", "task", taskID)
}

func (n *LogNotifier) TaskCompleted(taskID, label string, duration time.Duration) {
	n.logger.Info("task completed", "task", taskID, "label", label, "duration", duration.Round(time.Second))
}

func (n *LogNotifier) TaskTimedOut(taskID string, timeout time.Duration) {
	n.logger.Warn("task timed out", "task", taskID, "timeout", timeout)
}

func (n *LogNotifier) TaskError(taskID string, err error) {
	n.logger.Error("task failed to start", "task", taskID, "err", err)
}

func (n *LogNotifier) BatchProgress(p Progress) {
	n.logger.Info("batch progress",
		"current", p.Current,
		"completed", p.Completed,
		"skipped", p.Skipped,
		"total", p.Total,
	)
}

func (n *LogNotifier) BatchFinished(s Summary) {
	msg := "batch completed"
	if s.Cancelled {
		msg = "batch cancelled"
	}
	n.logger.Info(msg,
		"completed", s.Completed,
		"skipped", s.Skipped,
		"total", s.Total,
		"duration", s.Duration.Round(time.Second),
	)
}
