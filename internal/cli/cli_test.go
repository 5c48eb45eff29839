package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pablasso/kanrun/internal/testutil"
)

// setupWorkspace runs kanrun init in a fresh directory and makes it the
// working directory for the rest of the test.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := testutil.SetupTestDir(t)
	t.Setenv("HOME", t.TempDir())

	if _, err := execute(t, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return dir
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags clears flag values left over from a previous execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// createTask runs kanrun new and returns the new task's id.
func createTask(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, append([]string{"new"}, args...)...)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "Created" {
		t.Fatalf("unexpected output from new: %q", out)
	}
	return fields[1]
}
