package executor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pablasso/kanrun/internal/ai"
)

// stopGracePeriod is how long a stopped agent gets to exit after the
// interrupt before it is killed.
const stopGracePeriod = 5 * time.Second

// Process is a launched agent.
type Process interface {
	Pid() int
	// Stop interrupts the process. It does not wait for exit.
	Stop()
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err is the exit error, valid after Done is closed.
	Err() error
}

// Launcher starts agent processes.
type Launcher interface {
	Launch(ctx context.Context, taskID string, cmd Command) (Process, error)
}

// ProcessLauncher runs the agent CLI through ai.CommandContext and tees its
// output into a per-task log file.
type ProcessLauncher struct {
	// WorkDir is the directory the agent runs in.
	WorkDir string
	// LogPath maps a task id to its output log. Output is discarded when nil.
	LogPath func(taskID string) string
}

// NewProcessLauncher creates a ProcessLauncher.
func NewProcessLauncher(workDir string, logPath func(string) string) *ProcessLauncher {
	return &ProcessLauncher{WorkDir: workDir, LogPath: logPath}
}

// Launch starts cmd. The process outlives ctx; it ends when it exits on its
// own or when Stop is called.
func (l *ProcessLauncher) Launch(ctx context.Context, taskID string, cmd Command) (Process, error) {
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var taskLog *TaskLog
	if l.LogPath != nil {
		var err error
		taskLog, err = OpenTaskLog(l.LogPath(taskID))
		if err != nil {
			cancel()
			return nil, err
		}
		taskLog.WriteHeader(taskID, cmd)
	}

	c := ai.CommandContext(procCtx, cmd.Path, cmd.Args...)
	c.Dir = l.WorkDir
	if taskLog != nil {
		c.Stdout = taskLog
		c.Stderr = taskLog
	}
	c.Cancel = func() error {
		return c.Process.Signal(os.Interrupt)
	}
	c.WaitDelay = stopGracePeriod

	if err := c.Start(); err != nil {
		cancel()
		if taskLog != nil {
			taskLog.WriteFooter(taskID, err)
			taskLog.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	p := &agentProcess{
		pid:    c.Process.Pid,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		err := c.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		if taskLog != nil {
			taskLog.WriteFooter(taskID, err)
			taskLog.Close()
		}
		cancel()
		close(p.done)
	}()

	return p, nil
}

type agentProcess struct {
	pid    int
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (p *agentProcess) Pid() int { return p.pid }

func (p *agentProcess) Stop() { p.cancel() }

func (p *agentProcess) Done() <-chan struct{} { return p.done }

func (p *agentProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
