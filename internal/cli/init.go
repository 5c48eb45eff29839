package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pablasso/kanrun/internal/config"
	"github.com/pablasso/kanrun/internal/workspace"
)

// gitignoreEntries keep per-machine execution state out of version control.
var gitignoreEntries = []string{
	workspace.DirName + "/run.lock",
	workspace.DirName + "/history.log",
	workspace.DirName + "/logs/",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize kanrun in the current directory",
	Long:  "Creates a .kanrun/ folder with tasks, prds and logs directories and a default config.yaml.",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	ws := workspace.New(wd)
	if err := ws.Init(); err != nil {
		return err
	}
	if err := config.Write(ws.ConfigPath(), config.Default()); err != nil {
		return err
	}
	for _, entry := range gitignoreEntries {
		if err := addToGitignore(filepath.Join(ws.Root, ".gitignore"), entry); err != nil {
			return fmt.Errorf("failed to update .gitignore: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Initialized kanrun in", ws.Dir())
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Create a task: kanrun new \"Add login page\"")
	fmt.Fprintln(out, "  2. Run it:        kanrun run <task-id>")
	return nil
}

// addToGitignore appends entry to the file at path unless a line already
// matches it.
func addToGitignore(path, entry string) error {
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == entry {
			return nil
		}
	}

	var b strings.Builder
	b.Write(content)
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		b.WriteString("\n")
	}
	b.WriteString(entry)
	b.WriteString("\n")
	return os.WriteFile(path, []byte(b.String()), 0644)
}
