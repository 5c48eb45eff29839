// Package ai resolves the agent CLI that performs task work.
package ai

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// LookPath resolves executables. It can be replaced in tests.
var LookPath = exec.LookPath

// DefaultPromptTemplate is used when no template is configured. {taskFile}
// is replaced with the task's file path.
const DefaultPromptTemplate = "Read the task described in {taskFile} and complete it. " +
	"When the work is done, change the task's **Status:** line to Testing " +
	"and summarize what you did under **Agent-Notes:**."

// ErrAgentNotFound is returned when no agent CLI can be found.
var ErrAgentNotFound = errors.New("no agent CLI found in PATH")

// knownAgents lists the CLIs tried, in order, when none is configured,
// with the flags that make them run unattended.
var knownAgents = []struct {
	name  string
	flags []string
}{
	{name: "claude", flags: []string{"--dangerously-skip-permissions", "-p"}},
	{name: "codex", flags: []string{"exec", "--full-auto"}},
	{name: "gemini", flags: []string{"--yolo", "-p"}},
}

// Settings is the configured agent invocation. Empty fields fall back to
// the defaults of the detected CLI.
type Settings struct {
	Executable     string
	PromptTemplate string
	// Flags replaces the CLI's default flags when non-nil.
	Flags []string
}

// Agent is the resolved invocation contract: an executable path, a prompt
// template and flags.
type Agent struct {
	Name           string
	Path           string
	PromptTemplate string
	Flags          []string
}

// Detect resolves the agent CLI described by s.
func Detect(s Settings) (*Agent, error) {
	if s.Executable != "" {
		path, err := LookPath(s.Executable)
		if err != nil {
			return nil, fmt.Errorf("agent CLI %q not found: %w", s.Executable, err)
		}
		return resolve(s, path), nil
	}

	for _, known := range knownAgents {
		path, err := LookPath(known.name)
		if err != nil {
			continue
		}
		return resolve(s, path), nil
	}
	return nil, ErrAgentNotFound
}

// IsAvailable reports whether any agent CLI can be found.
func IsAvailable(s Settings) bool {
	_, err := Detect(s)
	return err == nil
}

func resolve(s Settings, path string) *Agent {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	agent := &Agent{
		Name:           name,
		Path:           path,
		PromptTemplate: s.PromptTemplate,
		Flags:          s.Flags,
	}
	if agent.PromptTemplate == "" {
		agent.PromptTemplate = DefaultPromptTemplate
	}
	if agent.Flags == nil {
		for _, known := range knownAgents {
			if known.name == name {
				agent.Flags = append([]string(nil), known.flags...)
				break
			}
		}
	}
	return agent
}
