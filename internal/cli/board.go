package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pablasso/kanrun/internal/task"
	"github.com/pablasso/kanrun/internal/tui/styles"
)

const boardColumnWidth = 24

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show tasks as kanban columns",
	Args:  cobra.NoArgs,
	RunE:  runBoard,
}

func runBoard(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	tasks, err := a.store.ParseTasks()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderBoard(task.GroupByStatus(tasks), boardColumnWidth))

	if unknown := task.UnknownStatus(tasks); len(unknown) > 0 {
		fmt.Fprintln(out, styles.WarningStyle.Render(
			fmt.Sprintf("%d task(s) have a status that is not on the board:", len(unknown))))
		printTasks(out, unknown)
	}
	return nil
}

// renderBoard lays the six columns out side by side.
func renderBoard(groups map[task.Status][]*task.Task, width int) string {
	columns := make([]string, 0, len(task.AllStatuses))
	for _, status := range task.AllStatuses {
		columns = append(columns, renderColumn(status, groups[status], width))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func renderColumn(status task.Status, tasks []*task.Task, width int) string {
	inner := width - 2 // horizontal padding
	var b strings.Builder
	b.WriteString(styles.StatusStyle(status).Render(fmt.Sprintf("%s (%d)", status, len(tasks))))
	for _, t := range tasks {
		b.WriteString("\n")
		b.WriteString(truncate(t.DisplayLabel(), inner))
		b.WriteString("\n")
		b.WriteString(styles.SubtleStyle.Render(truncate(fmt.Sprintf("%s · %s", t.ID, t.Priority), inner)))
	}
	return styles.ColumnStyle.Width(width).Render(b.String())
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
