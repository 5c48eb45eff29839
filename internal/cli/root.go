package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pablasso/kanrun/internal/version"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "kanrun",
	Short: "Kanban board of markdown tasks that AI coding agents work through",
	Long: `Kanrun keeps tasks as markdown files in .kanrun/tasks, launches an AI coding
agent CLI on a task and watches the task file until the agent moves it to
Testing or Done.`,
	Version:       fmt.Sprintf("%s (%s, %s)", version.Version, version.CommitSHA, version.BuildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(historyCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
