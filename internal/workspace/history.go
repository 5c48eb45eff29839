package workspace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event type constants for the execution history.
const (
	EventTaskStarted    = "task_started"
	EventTaskCompleted  = "task_completed"
	EventTaskTimedOut   = "task_timed_out"
	EventTaskStopped    = "task_stopped"
	EventTaskFailed     = "task_failed"
	EventBatchStarted   = "batch_started"
	EventBatchCompleted = "batch_completed"
	EventBatchCancelled = "batch_cancelled"
)

// HistoryEvent is a single history log entry.
type HistoryEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// History appends execution events to a JSON Lines file.
type History struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewHistory creates a history log at path.
func NewHistory(path string) *History {
	return &History{path: path, now: time.Now}
}

// Log appends an event to the log file.
func (h *History) Log(event string, data map[string]any) error {
	entry := HistoryEvent{
		Timestamp: h.now(),
		Event:     event,
		Data:      data,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	jsonBytes = append(jsonBytes, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(jsonBytes)
	return err
}

// TaskStarted logs a task_started event.
func (h *History) TaskStarted(taskID string, pid int, batchID string) error {
	data := map[string]any{"task_id": taskID, "pid": pid}
	if batchID != "" {
		data["batch_id"] = batchID
	}
	return h.Log(EventTaskStarted, data)
}

// TaskCompleted logs a task_completed event.
func (h *History) TaskCompleted(taskID string, duration time.Duration) error {
	return h.Log(EventTaskCompleted, map[string]any{
		"task_id":     taskID,
		"duration_ms": duration.Milliseconds(),
	})
}

// TaskTimedOut logs a task_timed_out event.
func (h *History) TaskTimedOut(taskID string, timeout time.Duration) error {
	return h.Log(EventTaskTimedOut, map[string]any{
		"task_id":    taskID,
		"timeout_ms": timeout.Milliseconds(),
	})
}

// TaskStopped logs a task_stopped event.
func (h *History) TaskStopped(taskID string) error {
	return h.Log(EventTaskStopped, map[string]any{"task_id": taskID})
}

// TaskFailed logs a task_failed event.
func (h *History) TaskFailed(taskID string, reason error) error {
	return h.Log(EventTaskFailed, map[string]any{
		"task_id": taskID,
		"error":   reason.Error(),
	})
}

// BatchStarted logs a batch_started event.
func (h *History) BatchStarted(batchID string, taskIDs []string) error {
	return h.Log(EventBatchStarted, map[string]any{
		"batch_id": batchID,
		"task_ids": taskIDs,
	})
}

// BatchFinished logs batch_completed or batch_cancelled with the counters.
func (h *History) BatchFinished(batchID string, cancelled bool, completed, skipped, total int, duration time.Duration) error {
	event := EventBatchCompleted
	if cancelled {
		event = EventBatchCancelled
	}
	return h.Log(event, map[string]any{
		"batch_id":    batchID,
		"completed":   completed,
		"skipped":     skipped,
		"total":       total,
		"duration_ms": duration.Milliseconds(),
	})
}

// ReadHistory returns the last limit events (all when limit <= 0). Lines
// that fail to decode are skipped.
func ReadHistory(path string, limit int) ([]HistoryEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer f.Close()

	var events []HistoryEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev HistoryEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
