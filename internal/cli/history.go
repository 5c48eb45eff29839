package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pablasso/kanrun/internal/workspace"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent execution events",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of events to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print raw JSON lines")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	events, err := workspace.ReadHistory(a.ws.HistoryPath(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No history yet.")
		return nil
	}

	for _, ev := range events {
		if historyJSON {
			line, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(line))
			continue
		}
		fmt.Fprintf(out, "%s  %-16s %s\n", ev.Timestamp.Local().Format(time.DateTime), ev.Event, formatEventData(ev.Data))
	}
	return nil
}

// formatEventData renders the task or batch id first, then the rest.
func formatEventData(data map[string]any) string {
	var parts []string
	for _, key := range []string{"task_id", "batch_id"} {
		if v, ok := data[key]; ok {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	for _, key := range []string{"task_ids", "pid", "duration_ms", "timeout_ms", "completed", "skipped", "total", "error"} {
		if v, ok := data[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	return strings.Join(parts, " ")
}
