package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pablasso/kanrun/internal/detector"
	"github.com/pablasso/kanrun/internal/display"
	"github.com/pablasso/kanrun/internal/executor"
)

var runCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run the agent on one task and wait until it is done",
	Long: `Launches the configured agent CLI on a task, moves the task to Doing and
watches the task file until the agent moves it to Testing or Done. Ctrl+C stops
the agent.`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

func runTask(cmd *cobra.Command, args []string) error {
	taskID := args[0]

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	release, err := a.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var notifier executor.Notifier = executor.NewLogNotifier(a.logger)
	out := cmd.OutOrStdout()
	if isTerminal(out) {
		d := display.New(out)
		d.Start()
		defer d.Stop()
		notifier = d
	}

	s, err := a.newStack(notifier)
	if err != nil {
		return err
	}
	defer s.detector.Close()

	done := make(chan executor.Outcome, 1)
	if err := s.orchestrator.Start(ctx, taskID, executor.WithCompletion(func(o executor.Outcome) {
		done <- o
	})); err != nil {
		return err
	}

	var outcome executor.Outcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		s.orchestrator.Stop(taskID)
		outcome = <-done
	}

	switch outcome.State {
	case detector.Completed:
		return nil
	case detector.TimedOut:
		return fmt.Errorf("task %s timed out after %s", taskID, a.cfg.Timeout())
	default:
		return fmt.Errorf("task %s was stopped", taskID)
	}
}
