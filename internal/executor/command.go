package executor

import (
	"errors"
	"strings"

	"github.com/pablasso/kanrun/internal/task"
)

// TaskFilePlaceholder is replaced by the task's file path in the prompt
// template.
const TaskFilePlaceholder = "{taskFile}"

// ErrNoExecutable is returned when no agent executable is configured.
var ErrNoExecutable = errors.New("no agent executable configured")

// CommandConfig describes how an agent CLI is invoked.
type CommandConfig struct {
	Executable     string
	PromptTemplate string
	Flags          []string
}

// Command is a fully assembled invocation.
type Command struct {
	Path string
	Args []string
}

// String renders the command for logs. It is not meant to be fed to a shell.
func (c Command) String() string {
	parts := append([]string{c.Path}, c.Args...)
	return strings.Join(parts, " ")
}

// BuildCommand assembles the invocation for t: the configured flags followed
// by the prompt. The task path is substituted verbatim and no shell ever
// sees the result.
func BuildCommand(cfg CommandConfig, t *task.Task) (Command, error) {
	if strings.TrimSpace(cfg.Executable) == "" {
		return Command{}, ErrNoExecutable
	}

	args := make([]string, 0, len(cfg.Flags)+1)
	for _, f := range cfg.Flags {
		if f != "" {
			args = append(args, f)
		}
	}
	if cfg.PromptTemplate != "" {
		args = append(args, strings.ReplaceAll(cfg.PromptTemplate, TaskFilePlaceholder, t.FilePath))
	}

	return Command{Path: cfg.Executable, Args: args}, nil
}
