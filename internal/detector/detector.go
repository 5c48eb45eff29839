// Package detector decides when an externally executed task has finished.
//
// Each watched task combines two signals: change notifications on the task
// file and a periodic poll. Either one re-reads the task status; Done or
// Testing ends the watch as Completed. A per-watch timeout ends it as
// TimedOut. Both signals can observe the same transition, so every terminal
// transition goes through a guarded check that only lets the first one win.
package detector

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pablasso/kanrun/internal/task"
)

// DefaultPollInterval is how often a watched task's status is re-read when
// no change notification arrives.
const DefaultPollInterval = 10 * time.Second

// ErrAlreadyWatching is returned by Watch when the task id is already watched.
var ErrAlreadyWatching = errors.New("task is already being watched")

// State is the lifecycle state of a single watch.
type State int

const (
	Watching State = iota
	Completed
	TimedOut
	Stopped
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a watch.
type Outcome struct {
	TaskID string
	State  State
	// Status is the task status observed when the watch completed.
	Status task.Status
}

// StatusReader reads the current state of a task. task.Store satisfies it.
type StatusReader interface {
	FindTask(id string) (*task.Task, error)
}

// Detector tracks the tasks currently being watched.
type Detector struct {
	reader       StatusReader
	source       ChangeSource
	pollInterval time.Duration
	logger       *log.Logger

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	taskID  string
	path    string
	timeout time.Duration
	onDone  func(Outcome)

	// state is guarded by Detector.mu.
	state   State
	trigger chan struct{}
	stop    chan struct{}
	cancel  func()
}

// Option configures a Detector.
type Option func(*Detector)

// WithChangeSource replaces the default fsnotify source.
func WithChangeSource(src ChangeSource) Option {
	return func(d *Detector) { d.source = src }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Detector) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger.WithPrefix("detector")
		}
	}
}

// New creates a detector that reads task status through reader.
func New(reader StatusReader, opts ...Option) *Detector {
	d := &Detector{
		reader:       reader,
		pollInterval: DefaultPollInterval,
		logger:       log.New(io.Discard),
		watches:      make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.source == nil {
		d.source = NewFSNotifySource(d.logger)
	}
	return d
}

// Watch starts watching taskID, whose backing file is filePath. onDone is
// called once with Completed or TimedOut; it is never called for Stopped.
// A timeout of zero or less disables the timeout.
func (d *Detector) Watch(taskID, filePath string, timeout time.Duration, onDone func(Outcome)) error {
	w := &watch{
		taskID:  taskID,
		path:    filePath,
		timeout: timeout,
		onDone:  onDone,
		state:   Watching,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}

	d.mu.Lock()
	if _, exists := d.watches[taskID]; exists {
		d.mu.Unlock()
		return ErrAlreadyWatching
	}
	d.watches[taskID] = w
	d.mu.Unlock()

	cancel, err := d.source.Subscribe(filePath, w.notify)
	if err != nil {
		// Polling still covers this task.
		d.logger.Warn("change notifications unavailable", "task", taskID, "err", err)
		cancel = func() {}
	}

	d.mu.Lock()
	if d.watches[taskID] != w || w.state != Watching {
		// Stopped while subscribing.
		d.mu.Unlock()
		cancel()
		return nil
	}
	w.cancel = cancel
	d.mu.Unlock()

	go d.run(w)
	return nil
}

// notify schedules a status check without blocking the change source.
func (w *watch) notify() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (d *Detector) run(w *watch) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-w.stop:
			return
		case <-deadline:
			d.finish(w, Outcome{TaskID: w.taskID, State: TimedOut})
			return
		case <-w.trigger:
		case <-ticker.C:
		}

		if status, done := d.check(w); done {
			d.finish(w, Outcome{TaskID: w.taskID, State: Completed, Status: status})
			return
		}
	}
}

func (d *Detector) check(w *watch) (task.Status, bool) {
	t, err := d.reader.FindTask(w.taskID)
	if err != nil {
		d.logger.Debug("status check failed", "task", w.taskID, "err", err)
		return "", false
	}
	switch t.Status {
	case task.StatusDone, task.StatusTesting:
		return t.Status, true
	}
	return t.Status, false
}

// finish performs a terminal transition. It only acts when w is still the
// registered watch for its id and is still Watching.
func (d *Detector) finish(w *watch, outcome Outcome) bool {
	if !d.transition(w, outcome.State) {
		return false
	}
	d.logger.Debug("watch finished", "task", w.taskID, "state", outcome.State)
	if w.onDone != nil {
		w.onDone(outcome)
	}
	return true
}

func (d *Detector) transition(w *watch, state State) bool {
	d.mu.Lock()
	if d.watches[w.taskID] != w || w.state != Watching {
		d.mu.Unlock()
		return false
	}
	w.state = state
	delete(d.watches, w.taskID)
	cancel := w.cancel
	d.mu.Unlock()

	close(w.stop)
	if cancel != nil {
		cancel()
	}
	return true
}

// Stop ends the watch for taskID without invoking its callback. It reports
// whether a watch was active.
func (d *Detector) Stop(taskID string) bool {
	d.mu.Lock()
	w, ok := d.watches[taskID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	return d.transition(w, Stopped)
}

// IsWatching reports whether taskID has an active watch.
func (d *Detector) IsWatching(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.watches[taskID]
	return ok
}

// Close stops every active watch.
func (d *Detector) Close() {
	d.mu.Lock()
	ids := make([]string, 0, len(d.watches))
	for id := range d.watches {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.Stop(id)
	}
}
