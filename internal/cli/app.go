package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pablasso/kanrun/internal/ai"
	"github.com/pablasso/kanrun/internal/config"
	"github.com/pablasso/kanrun/internal/detector"
	"github.com/pablasso/kanrun/internal/executor"
	"github.com/pablasso/kanrun/internal/task"
	"github.com/pablasso/kanrun/internal/workspace"
)

// app is everything a command needs once the workspace is found.
type app struct {
	ws     *workspace.Workspace
	cfg    *config.Config
	store  *task.Store
	logger *log.Logger
}

// openApp finds the workspace above the working directory, loads its
// config and builds the task store.
func openApp(cmd *cobra.Command) (*app, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Find(wd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(ws.Root, ws.Dir())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	store := task.NewStore(afero.NewOsFs(), cfg.StoreConfig(ws.Root), logger)
	return &app{ws: ws, cfg: cfg, store: store, logger: logger}, nil
}

// newLogger builds the logger. The --log-level flag wins over config.
func newLogger(w io.Writer, level string) (*log.Logger, error) {
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	}), nil
}

// redirectLog sends log output to .kanrun/logs/kanrun.log so it does not
// draw over the batch view. The returned func closes the file.
func (a *app) redirectLog() (func(), error) {
	if err := os.MkdirAll(a.ws.LogsDir(), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(a.ws.LogsDir(), "kanrun.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	a.logger.SetOutput(f)
	return func() { f.Close() }, nil
}

// stack is the execution pipeline: detector, orchestrator and history.
type stack struct {
	detector     *detector.Detector
	orchestrator *executor.Orchestrator
	history      *workspace.History
	agent        *ai.Agent
}

// newStack resolves the agent CLI and wires the detector and orchestrator
// over the app's store.
func (a *app) newStack(notifier executor.Notifier) (*stack, error) {
	agent, err := ai.Detect(a.cfg.AgentSettings())
	if err != nil {
		return nil, &PrerequisiteError{
			Check:   "Agent CLI",
			Message: err.Error(),
			Help:    "Install claude, codex or gemini, or set execution.executable in .kanrun/config.yaml.",
		}
	}
	a.logger.Debug("agent detected", "name", agent.Name, "path", agent.Path)

	det := detector.New(a.store,
		detector.WithPollInterval(a.cfg.PollInterval()),
		detector.WithLogger(a.logger),
	)

	history := workspace.NewHistory(a.ws.HistoryPath())
	orch := executor.New(a.store, det, executor.Config{
		Command: executor.CommandConfig{
			Executable:     agent.Path,
			PromptTemplate: agent.PromptTemplate,
			Flags:          agent.Flags,
		},
		Timeout:       a.cfg.Timeout(),
		KillOnTimeout: a.cfg.Execution.KillOnTimeout,
	}).
		WithLauncher(executor.NewProcessLauncher(a.ws.Root, a.ws.TaskLogPath)).
		WithNotifier(notifier).
		WithHistory(history).
		WithLogger(a.logger)

	return &stack{detector: det, orchestrator: orch, history: history, agent: agent}, nil
}

// acquireLock takes the workspace run lock. The returned func releases it.
func (a *app) acquireLock() (func(), error) {
	lock := workspace.NewRunLock(a.ws)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(); err != nil {
			a.logger.Warn("failed to release run lock", "err", err)
		}
	}, nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
