package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/pablasso/kanrun/internal/detector"
	"github.com/pablasso/kanrun/internal/workspace"
)

// ErrEmptyBatch is returned by StartBatch when no task ids are given.
var ErrEmptyBatch = errors.New("batch has no tasks")

// TaskRunner is the part of Orchestrator a batch drives.
type TaskRunner interface {
	Start(ctx context.Context, taskID string, opts ...StartOption) error
	Stop(taskID string) bool
	IsRunning(taskID string) bool
}

// Progress is a snapshot of a running batch.
type Progress struct {
	BatchID   string
	Current   string
	Index     int
	Total     int
	Completed int
	Skipped   int
}

// Summary is the final result of a batch run. Completed + Skipped always
// equals Total.
type Summary struct {
	BatchID   string
	Total     int
	Completed int
	Skipped   int
	Cancelled bool
	Duration  time.Duration
}

type batchRun struct {
	id        string
	ids       []string
	index     int
	current   string
	completed int
	skipped   int
	started   time.Time
	cancel    context.CancelFunc
}

// Batch executes tasks one after another. Only one run can be active.
type Batch struct {
	runner   TaskRunner
	notifier Notifier
	history  *workspace.History
	logger   *log.Logger

	mu  sync.Mutex
	run *batchRun
}

// NewBatch creates a batch queue over runner.
func NewBatch(runner TaskRunner) *Batch {
	return &Batch{
		runner:   runner,
		notifier: NopNotifier{},
		logger:   log.New(io.Discard),
	}
}

// WithNotifier sets the notifier.
func (b *Batch) WithNotifier(n Notifier) *Batch {
	if n != nil {
		b.notifier = n
	}
	return b
}

// WithHistory records batch events to h.
func (b *Batch) WithHistory(h *workspace.History) *Batch {
	b.history = h
	return b
}

// WithLogger sets the logger.
func (b *Batch) WithLogger(logger *log.Logger) *Batch {
	if logger != nil {
		b.logger = logger.WithPrefix("batch")
	}
	return b
}

// StartBatch runs ids in order in the background. The returned channel
// receives the Summary once the run finishes and is then closed.
func (b *Batch) StartBatch(ctx context.Context, ids []string) (<-chan Summary, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	b.mu.Lock()
	if b.run != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("batch: %w", ErrAlreadyRunning)
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := &batchRun{
		id:      uuid.NewString(),
		ids:     append([]string(nil), ids...),
		started: time.Now(),
		cancel:  cancel,
	}
	b.run = run
	b.mu.Unlock()

	if b.history != nil {
		if err := b.history.BatchStarted(run.id, run.ids); err != nil {
			b.logger.Warn("failed to write history", "err", err)
		}
	}
	b.logger.Debug("batch started", "batch", run.id, "tasks", len(run.ids))

	results := make(chan Summary, 1)
	go b.loop(runCtx, run, results)
	return results, nil
}

func (b *Batch) loop(ctx context.Context, run *batchRun, results chan<- Summary) {
	defer run.cancel()

	for {
		if ctx.Err() != nil {
			b.finalize(run, true, results)
			return
		}

		b.mu.Lock()
		if run.index >= len(run.ids) {
			b.mu.Unlock()
			b.finalize(run, false, results)
			return
		}
		id := run.ids[run.index]
		run.current = id
		b.mu.Unlock()
		b.notifier.BatchProgress(b.snapshot(run))

		if b.runner.IsRunning(id) {
			b.logger.Info("task already running, skipping", "task", id)
			b.advance(run, false)
			continue
		}

		done := make(chan Outcome, 1)
		err := b.runner.Start(ctx, id, InBatch(run.id), WithCompletion(func(o Outcome) {
			done <- o
		}))
		if err != nil {
			b.logger.Warn("task could not be started, skipping", "task", id, "err", err)
			b.advance(run, false)
			continue
		}

		var out Outcome
		select {
		case out = <-done:
		case <-ctx.Done():
			b.runner.Stop(id)
			out = <-done
		}
		b.advance(run, out.State == detector.Completed)
	}
}

func (b *Batch) advance(run *batchRun, completed bool) {
	b.mu.Lock()
	if completed {
		run.completed++
	} else {
		run.skipped++
	}
	run.index++
	run.current = ""
	b.mu.Unlock()
	b.notifier.BatchProgress(b.snapshot(run))
}

// finalize counts the unprocessed remainder as skipped and resets the queue.
func (b *Batch) finalize(run *batchRun, cancelled bool, results chan<- Summary) {
	b.mu.Lock()
	run.skipped += len(run.ids) - run.index
	run.index = len(run.ids)
	summary := Summary{
		BatchID:   run.id,
		Total:     len(run.ids),
		Completed: run.completed,
		Skipped:   run.skipped,
		Cancelled: cancelled,
		Duration:  time.Since(run.started),
	}
	if b.run == run {
		b.run = nil
	}
	b.mu.Unlock()

	if b.history != nil {
		if err := b.history.BatchFinished(summary.BatchID, summary.Cancelled, summary.Completed, summary.Skipped, summary.Total, summary.Duration); err != nil {
			b.logger.Warn("failed to write history", "err", err)
		}
	}
	b.notifier.BatchFinished(summary)
	results <- summary
	close(results)
}

func (b *Batch) snapshot(run *batchRun) Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Progress{
		BatchID:   run.id,
		Current:   run.current,
		Index:     run.index,
		Total:     len(run.ids),
		Completed: run.completed,
		Skipped:   run.skipped,
	}
}

// CancelBatch cancels the active run. The in-flight task is stopped and
// the run finalizes as cancelled. It reports whether a run was active.
func (b *Batch) CancelBatch() bool {
	b.mu.Lock()
	run := b.run
	b.mu.Unlock()
	if run == nil {
		return false
	}
	run.cancel()
	return true
}

// Progress returns a snapshot of the active run.
func (b *Batch) Progress() (Progress, bool) {
	b.mu.Lock()
	run := b.run
	b.mu.Unlock()
	if run == nil {
		return Progress{}, false
	}
	return b.snapshot(run), true
}

// Active reports whether a run is in progress.
func (b *Batch) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run != nil
}
