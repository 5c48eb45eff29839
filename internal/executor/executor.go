// Package executor launches agent CLIs for tasks and drives sequential
// batches of them.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pablasso/kanrun/internal/detector"
	"github.com/pablasso/kanrun/internal/task"
	"github.com/pablasso/kanrun/internal/workspace"
)

var (
	// ErrAlreadyRunning is returned when a task or batch is already executing.
	ErrAlreadyRunning = errors.New("already running")

	// ErrStopped is returned by Start when the task was stopped while its
	// process was being launched.
	ErrStopped = errors.New("stopped before launch completed")
)

// LaunchError reports that a task's agent could not be started.
type LaunchError struct {
	TaskID string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch task %s: %v", e.TaskID, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// TaskStore is the part of task.Store the orchestrator needs.
type TaskStore interface {
	FindTask(id string) (*task.Task, error)
	UpdateTaskStatus(id string, status task.Status, order *int) (*task.Task, error)
}

// Watcher is the part of detector.Detector the orchestrator needs.
type Watcher interface {
	Watch(taskID, filePath string, timeout time.Duration, onDone func(detector.Outcome)) error
	Stop(taskID string) bool
}

// Outcome is how a started task ended: Completed, TimedOut or Stopped.
type Outcome struct {
	TaskID   string
	State    detector.State
	Duration time.Duration
}

// Config holds the execution settings.
type Config struct {
	Command CommandConfig
	// Timeout abandons a task that never reaches a terminal status. Zero
	// disables it.
	Timeout time.Duration
	// KillOnTimeout stops the agent process when the timeout fires.
	KillOnTimeout bool
}

// Handle is one task's in-progress execution. Its presence in the
// orchestrator's registry is what makes the task "running".
type Handle struct {
	TaskID    string
	Label     string
	BatchID   string
	StartedAt time.Time

	// process is nil while the launch is in flight.
	process Process
	inBatch bool
	onDone  func(Outcome)
}

// StartOption configures a single Start call.
type StartOption func(*Handle)

// WithCompletion registers fn to receive the task's outcome. fn is called
// exactly once when Start succeeds and never when it fails.
func WithCompletion(fn func(Outcome)) StartOption {
	return func(h *Handle) { h.onDone = fn }
}

// InBatch marks the execution as part of batch batchID. Single-task
// completion notifications are suppressed.
func InBatch(batchID string) StartOption {
	return func(h *Handle) {
		h.inBatch = true
		h.BatchID = batchID
	}
}

// Orchestrator starts and stops task executions.
type Orchestrator struct {
	store    TaskStore
	watcher  Watcher
	launcher Launcher
	config   Config
	notifier Notifier
	history  *workspace.History
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	handles map[string]*Handle
}

// New creates an Orchestrator. The launcher must be set with WithLauncher
// before Start is called.
func New(store TaskStore, watcher Watcher, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		watcher:  watcher,
		config:   cfg,
		notifier: NopNotifier{},
		logger:   log.New(io.Discard),
		now:      time.Now,
		handles:  make(map[string]*Handle),
	}
}

// WithLauncher sets the process launcher.
func (o *Orchestrator) WithLauncher(l Launcher) *Orchestrator {
	o.launcher = l
	return o
}

// WithNotifier sets the notifier.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	if n != nil {
		o.notifier = n
	}
	return o
}

// WithHistory records execution events to h.
func (o *Orchestrator) WithHistory(h *workspace.History) *Orchestrator {
	o.history = h
	return o
}

// WithLogger sets the logger.
func (o *Orchestrator) WithLogger(logger *log.Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger.WithPrefix("executor")
	}
	return o
}

// Start launches the agent for taskID, marks the task Doing and begins
// watching it for completion.
func (o *Orchestrator) Start(ctx context.Context, taskID string, opts ...StartOption) error {
	h := &Handle{TaskID: taskID}
	for _, opt := range opts {
		opt(h)
	}

	if !o.reserve(h) {
		return fmt.Errorf("task %s: %w", taskID, ErrAlreadyRunning)
	}

	t, err := o.store.FindTask(taskID)
	if err != nil {
		o.release(h)
		return err
	}
	h.Label = t.DisplayLabel()

	cmd, err := BuildCommand(o.config.Command, t)
	if err != nil {
		return o.launchFailed(h, err)
	}
	if o.launcher == nil {
		return o.launchFailed(h, errors.New("no launcher configured"))
	}

	proc, err := o.launcher.Launch(ctx, taskID, cmd)
	if err != nil {
		return o.launchFailed(h, err)
	}

	o.mu.Lock()
	if o.handles[taskID] != h {
		o.mu.Unlock()
		proc.Stop()
		return fmt.Errorf("task %s: %w", taskID, ErrStopped)
	}
	h.process = proc
	h.StartedAt = o.now()
	o.mu.Unlock()

	o.logger.Debug("agent launched", "task", taskID, "pid", proc.Pid(), "cmd", cmd)
	go o.logExit(taskID, proc)

	if _, err := o.store.UpdateTaskStatus(taskID, task.StatusDoing, nil); err != nil {
		o.logger.Warn("failed to mark task as doing", "task", taskID, "err", err)
	}

	if err := o.watcher.Watch(taskID, t.FilePath, o.config.Timeout, func(out detector.Outcome) {
		o.detected(h, out)
	}); err != nil {
		if !o.release(h) {
			// A concurrent Stop already delivered the outcome.
			return nil
		}
		proc.Stop()
		return o.launchFailed(h, err)
	}

	// A Stop that ran before Watch registered could not cancel the watch.
	if !o.IsRunning(taskID) {
		o.watcher.Stop(taskID)
	}

	o.recordHistory(func(hist *workspace.History) error {
		return hist.TaskStarted(taskID, proc.Pid(), h.BatchID)
	})
	o.notifier.TaskStarted(taskID, h.Label, h.inBatch)
	return nil
}

func (o *Orchestrator) reserve(h *Handle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.handles[h.TaskID]; exists {
		return false
	}
	o.handles[h.TaskID] = h
	return true
}

// release removes h from the registry if it is still registered.
func (o *Orchestrator) release(h *Handle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handles[h.TaskID] != h {
		return false
	}
	delete(o.handles, h.TaskID)
	return true
}

func (o *Orchestrator) launchFailed(h *Handle, err error) error {
	o.release(h)
	launchErr := &LaunchError{TaskID: h.TaskID, Err: err}
	o.recordHistory(func(hist *workspace.History) error {
		return hist.TaskFailed(h.TaskID, err)
	})
	o.notifier.TaskError(h.TaskID, launchErr)
	return launchErr
}

// detected handles a terminal outcome from the watcher.
func (o *Orchestrator) detected(h *Handle, out detector.Outcome) {
	if !o.release(h) {
		return
	}
	duration := o.now().Sub(h.StartedAt)

	switch out.State {
	case detector.Completed:
		o.recordHistory(func(hist *workspace.History) error {
			return hist.TaskCompleted(h.TaskID, duration)
		})
		if !h.inBatch {
			o.notifier.TaskCompleted(h.TaskID, h.Label, duration)
		}
	case detector.TimedOut:
		// The task status is left as it is.
		if o.config.KillOnTimeout {
			h.process.Stop()
		}
		o.recordHistory(func(hist *workspace.History) error {
			return hist.TaskTimedOut(h.TaskID, o.config.Timeout)
		})
		o.notifier.TaskTimedOut(h.TaskID, o.config.Timeout)
	}

	if h.onDone != nil {
		h.onDone(Outcome{TaskID: h.TaskID, State: out.State, Duration: duration})
	}
}

func (o *Orchestrator) logExit(taskID string, proc Process) {
	<-proc.Done()
	if err := proc.Err(); err != nil {
		o.logger.Debug("agent exited", "task", taskID, "err", err)
		return
	}
	o.logger.Debug("agent exited", "task", taskID)
}

// Stop terminates taskID's agent and stops watching it. It reports whether
// anything was running.
func (o *Orchestrator) Stop(taskID string) bool {
	o.mu.Lock()
	h, ok := o.handles[taskID]
	if !ok {
		o.mu.Unlock()
		return false
	}
	delete(o.handles, taskID)
	proc := h.process
	o.mu.Unlock()

	o.watcher.Stop(taskID)
	if proc == nil {
		// Start sees the missing handle and reports ErrStopped.
		return true
	}
	proc.Stop()

	o.recordHistory(func(hist *workspace.History) error {
		return hist.TaskStopped(taskID)
	})
	o.notifier.TaskStopped(taskID)
	if h.onDone != nil {
		h.onDone(Outcome{TaskID: taskID, State: detector.Stopped, Duration: o.now().Sub(h.StartedAt)})
	}
	return true
}

// IsRunning reports whether taskID has an execution handle.
func (o *Orchestrator) IsRunning(taskID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.handles[taskID]
	return ok
}

// Running returns the ids of all running tasks, sorted.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	ids := make([]string, 0, len(o.handles))
	for id := range o.handles {
		ids = append(ids, id)
	}
	o.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// StopAll stops every running task.
func (o *Orchestrator) StopAll() {
	for _, id := range o.Running() {
		o.Stop(id)
	}
}

func (o *Orchestrator) recordHistory(fn func(*workspace.History) error) {
	if o.history == nil {
		return
	}
	if err := fn(o.history); err != nil {
		o.logger.Warn("failed to write history", "err", err)
	}
}
