package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pablasso/kanrun/internal/executor"
	"github.com/pablasso/kanrun/internal/task"
	"github.com/pablasso/kanrun/internal/tui"
)

var batchCmd = &cobra.Command{
	Use:   "batch <id>...",
	Short: "Run several tasks one after another",
	Long: `Runs the given tasks strictly in order. A task that cannot be started or
times out is skipped and the batch moves on. Ctrl+C cancels the batch and stops
the task in progress.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
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

	items := make([]tui.Item, len(args))
	for i, id := range args {
		items[i] = tui.Item{ID: id, Label: id}
		t, err := a.store.FindTask(id)
		switch {
		case err == nil:
			items[i].Label = t.DisplayLabel()
		case errors.Is(err, task.ErrNotFound):
			a.logger.Warn("task not found, it will be skipped", "task", id)
		default:
			return err
		}
	}

	out := cmd.OutOrStdout()
	interactive := isTerminal(out)
	if interactive {
		closeLog, err := a.redirectLog()
		if err != nil {
			return err
		}
		defer closeLog()
	}

	notifier := executor.NewLogNotifier(a.logger)
	s, err := a.newStack(notifier)
	if err != nil {
		return err
	}
	defer s.detector.Close()

	batch := executor.NewBatch(s.orchestrator).
		WithNotifier(notifier).
		WithHistory(s.history).
		WithLogger(a.logger)

	var summary executor.Summary
	if interactive {
		summary, err = tui.RunBatch(ctx, s.orchestrator, batch, items)
		if err != nil {
			return err
		}
	} else {
		results, err := batch.StartBatch(ctx, args)
		if err != nil {
			return err
		}
		summary = <-results
	}

	verb := "finished"
	if summary.Cancelled {
		verb = "cancelled"
	}
	fmt.Fprintf(out, "Batch %s: %d completed, %d skipped of %d in %s\n",
		verb, summary.Completed, summary.Skipped, summary.Total, summary.Duration.Round(time.Second))
	return nil
}
