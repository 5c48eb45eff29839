package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pablasso/kanrun/internal/task"
	"github.com/pablasso/kanrun/internal/tui/styles"
)

var (
	listStatus string

	newDescription string
	newType        string
	newPriority    string
	newStatus      string
	newPRD         string

	moveOrder int

	editLabel       string
	editDescription string
	editType        string
	editPriority    string
	editStatus      string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a task file",
	Args:  cobra.ExactArgs(1),
	RunE:  runNew,
}

var moveCmd = &cobra.Command{
	Use:   "move <id> <status>",
	Short: "Move a task to another column",
	Long:  "Moves a task to Backlog, To Do, Doing, Testing, Done or Blocked. A linked PRD is updated too.",
	Args:  cobra.ExactArgs(2),
	RunE:  runMove,
}

var orderCmd = &cobra.Command{
	Use:   "order <id> <position>",
	Short: "Set a task's position within its column",
	Args:  cobra.ExactArgs(2),
	RunE:  runOrder,
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit task fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id> <note>",
	Short: "Send a task back to To Do with a rejection note",
	Args:  cobra.ExactArgs(2),
	RunE:  runReject,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only list tasks with this status")

	newCmd.Flags().StringVar(&newDescription, "description", "", "Task description")
	newCmd.Flags().StringVar(&newType, "type", "", "Task type (feature, bug, chore...)")
	newCmd.Flags().StringVar(&newPriority, "priority", "", "Priority: high|medium|low")
	newCmd.Flags().StringVar(&newStatus, "status", "", "Initial status (defaults to tasks.default_status)")
	newCmd.Flags().StringVar(&newPRD, "prd", "", "Path of the linked PRD")

	moveCmd.Flags().IntVar(&moveOrder, "order", 0, "Position within the new column")

	editCmd.Flags().StringVar(&editLabel, "label", "", "Short label")
	editCmd.Flags().StringVar(&editDescription, "description", "", "Task description")
	editCmd.Flags().StringVar(&editType, "type", "", "Task type")
	editCmd.Flags().StringVar(&editPriority, "priority", "", "Priority: high|medium|low")
	editCmd.Flags().StringVar(&editStatus, "status", "", "Status")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	tasks, err := a.store.ParseTasks()
	if err != nil {
		return err
	}

	var filter task.Status
	if listStatus != "" {
		if filter, err = parseStatusArg(listStatus); err != nil {
			return err
		}
	}

	groups := task.GroupByStatus(tasks)
	var rows [][]string
	for _, status := range task.AllStatuses {
		if filter != "" && status != filter {
			continue
		}
		for _, t := range groups[status] {
			rows = append(rows, taskRow(t))
		}
	}
	if filter == "" {
		for _, t := range task.UnknownStatus(tasks) {
			rows = append(rows, taskRow(t))
		}
	}

	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return nil
	}
	fmt.Fprintln(out, renderTaskTable(rows))
	return nil
}

func taskRow(t *task.Task) []string {
	order := ""
	if t.Order != nil {
		order = strconv.Itoa(*t.Order)
	}
	return []string{t.ID, string(t.Status), string(t.Priority), order, t.DisplayLabel()}
}

func renderTaskTable(rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.SubtleStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.SelectedStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("ID", "STATUS", "PRIORITY", "ORDER", "LABEL").
		Rows(rows...).
		String()
}

func runNew(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}

	in := task.NewTask{
		Title:       strings.TrimSpace(args[0]),
		Description: newDescription,
		Type:        newType,
		PRDPath:     newPRD,
	}
	if newPriority != "" {
		if in.Priority, err = parsePriorityArg(newPriority); err != nil {
			return err
		}
	}
	if newStatus != "" {
		if in.Status, err = parseStatusArg(newStatus); err != nil {
			return err
		}
	}

	t, err := a.store.CreateTask(in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) at %s\n", t.ID, t.Status, t.FilePath)
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	status, err := parseStatusArg(args[1])
	if err != nil {
		return err
	}

	var order *int
	if cmd.Flags().Changed("order") {
		order = &moveOrder
	}

	t, err := a.store.UpdateTaskStatus(args[0], status, order)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", t.ID, t.Status)
	return nil
}

func runOrder(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	order, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid position %q: must be a number", args[1])
	}

	t, err := a.store.UpdateTaskOrder(args[0], order)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s order to %d\n", t.ID, order)
	return nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}

	var u task.Update
	flags := cmd.Flags()
	if flags.Changed("label") {
		u.Label = &editLabel
	}
	if flags.Changed("description") {
		u.Description = &editDescription
	}
	if flags.Changed("type") {
		u.Type = &editType
	}
	if flags.Changed("priority") {
		p, err := parsePriorityArg(editPriority)
		if err != nil {
			return err
		}
		u.Priority = &p
	}
	if flags.Changed("status") {
		s, err := parseStatusArg(editStatus)
		if err != nil {
			return err
		}
		u.Status = &s
	}
	if u == (task.Update{}) {
		return fmt.Errorf("nothing to edit: pass at least one of --label, --description, --type, --priority or --status")
	}

	t, err := a.store.UpdateTask(args[0], u)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", t.ID)
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	t, err := a.store.RejectTask(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s (rejections: %d)\n", t.ID, t.RejectionCount)
	return nil
}

func parseStatusArg(s string) (task.Status, error) {
	status := task.ParseStatus(s)
	if !status.Known() {
		return "", fmt.Errorf("%w: %q (expected one of %s)", task.ErrInvalidStatus, s, statusList())
	}
	return status, nil
}

func statusList() string {
	names := make([]string, len(task.AllStatuses))
	for i, s := range task.AllStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func parsePriorityArg(s string) (task.Priority, error) {
	p := task.ParsePriority(s)
	if !strings.EqualFold(string(p), strings.TrimSpace(s)) {
		return "", fmt.Errorf("invalid priority %q: expected high, medium or low", s)
	}
	return p, nil
}

// printTasks writes one line per task. Used for warnings where a table is
// too heavy.
func printTasks(w io.Writer, tasks []*task.Task) {
	for _, t := range tasks {
		fmt.Fprintf(w, "  %s  %q  (%s)\n", t.ID, t.Status, t.FilePath)
	}
}
