// Package display renders a single-line execution status for terminals
// that are not running the full-screen batch view.
package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pablasso/kanrun/internal/executor"
)

// Status represents the current execution status.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusTimedOut
	StatusStopped
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusTimedOut:
		return "Timed out"
	case StatusStopped:
		return "Stopped"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// State holds the current display state.
type State struct {
	TaskNum    int
	TotalTasks int
	TaskTitle  string
	TaskID     string
	Completed  int
	Skipped    int
	Status     Status
	StartTime  time.Time
}

// Display manages the terminal status line. It implements
// executor.Notifier.
type Display struct {
	mu       sync.Mutex
	writer   io.Writer
	state    State
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup // Ensures goroutine exits before Stop() returns
	active   bool
	lastLine string
}

var _ executor.Notifier = (*Display)(nil)

// New creates a new Display writing to the given writer.
func New(w io.Writer) *Display {
	return &Display{
		writer: w,
		done:   make(chan struct{}),
	}
}

// Start begins the display update loop.
func (d *Display) Start() {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return
	}
	d.active = true
	d.state.StartTime = time.Now()
	d.ticker = time.NewTicker(time.Second)
	d.wg.Add(1)
	d.mu.Unlock()

	go d.updateLoop()
}

// Stop halts the display update loop and clears the status line.
// Blocks until the update goroutine has exited to prevent race conditions.
func (d *Display) Stop() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.mu.Unlock()

	d.ticker.Stop()
	close(d.done)
	d.wg.Wait()
	d.clearLine()
}

// UpdateTask updates the current task information.
func (d *Display) UpdateTask(taskID, taskTitle string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.TaskID = taskID
	d.state.TaskTitle = taskTitle
	d.state.StartTime = time.Now()
}

// UpdateProgress updates the batch position and counters.
func (d *Display) UpdateProgress(taskNum, totalTasks, completed, skipped int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.TaskNum = taskNum
	d.state.TotalTasks = totalTasks
	d.state.Completed = completed
	d.state.Skipped = skipped
}

// UpdateStatus updates the execution status.
func (d *Display) UpdateStatus(status Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Status = status
}

// updateLoop periodically renders the status line.
func (d *Display) updateLoop() {
	defer d.wg.Done()
	d.render()
	for {
		select {
		case <-d.ticker.C:
			d.render()
		case <-d.done:
			return
		}
	}
}

// render draws the current status line.
func (d *Display) render() {
	d.mu.Lock()
	state := d.state
	lastLine := d.lastLine
	d.mu.Unlock()

	elapsed := time.Since(state.StartTime)
	line := d.formatLine(state, elapsed)

	// Only update if changed (reduces flicker)
	if line == lastLine {
		return
	}

	d.mu.Lock()
	d.lastLine = line
	d.mu.Unlock()

	fmt.Fprintf(d.writer, "\r\033[K%s", line)
}

// formatLine creates the status line string.
func (d *Display) formatLine(state State, elapsed time.Duration) string {
	if state.TaskID == "" {
		return ""
	}

	title := state.TaskTitle
	if len(title) > 40 {
		title = title[:37] + "..."
	}

	timeStr := formatDuration(elapsed)

	if state.TotalTasks == 0 {
		return fmt.Sprintf("%s: %s │ ⏱ %s │ %s", state.TaskID, title, timeStr, state.Status)
	}
	return fmt.Sprintf("Task %d/%d: %s │ ✓ %d · skipped %d │ ⏱ %s │ %s",
		state.TaskNum,
		state.TotalTasks,
		title,
		state.Completed,
		state.Skipped,
		timeStr,
		state.Status)
}

// clearLine clears the status line.
func (d *Display) clearLine() {
	fmt.Fprintf(d.writer, "\r\033[K")
}

// PrintAbove prints a message above the status line.
// Use this for important messages that shouldn't be overwritten.
func (d *Display) PrintAbove(format string, args ...interface{}) {
	d.mu.Lock()
	d.lastLine = ""
	d.mu.Unlock()
	d.clearLine()
	fmt.Fprintf(d.writer, format+"\n", args...)
	d.render()
}

func (d *Display) TaskStarted(taskID, label string, inBatch bool) {
	d.UpdateTask(taskID, label)
	d.UpdateStatus(StatusRunning)
	d.PrintAbove("▶ Started %s: %s", taskID, label)
}

func (d *Display) TaskStopped(taskID string) {
	d.UpdateStatus(StatusStopped)
	d.PrintAbove("■ Stopped %s", taskID)
}

func (d *Display) TaskCompleted(taskID, label string, duration time.Duration) {
	d.UpdateStatus(StatusCompleted)
	d.PrintAbove("✓ Completed %s: %s (%s)", taskID, label, formatDuration(duration))
}

func (d *Display) TaskTimedOut(taskID string, timeout time.Duration) {
	d.UpdateStatus(StatusTimedOut)
	d.PrintAbove("⚠ %s timed out after %s", taskID, timeout)
}

func (d *Display) TaskError(taskID string, err error) {
	d.UpdateStatus(StatusFailed)
	d.PrintAbove("✗ %v", err)
}

func (d *Display) BatchProgress(p executor.Progress) {
	taskNum := p.Index + 1
	if taskNum > p.Total {
		taskNum = p.Total
	}
	d.UpdateProgress(taskNum, p.Total, p.Completed, p.Skipped)
}

func (d *Display) BatchFinished(s executor.Summary) {
	d.UpdateProgress(s.Total, s.Total, s.Completed, s.Skipped)
	verb := "finished"
	if s.Cancelled {
		d.UpdateStatus(StatusCancelled)
		verb = "cancelled"
	} else {
		d.UpdateStatus(StatusCompleted)
	}
	d.PrintAbove("Batch %s: %d completed, %d skipped of %d (%s)",
		verb, s.Completed, s.Skipped, s.Total, formatDuration(s.Duration))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
