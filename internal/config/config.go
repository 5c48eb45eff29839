// Package config loads kanrun settings from config files, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pablasso/kanrun/internal/ai"
	"github.com/pablasso/kanrun/internal/task"
)

const (
	envPrefix      = "KANRUN"
	configFileName = "config.yaml"
	globalDirName  = ".kanrun"
)

// Config is the merged kanrun configuration.
type Config struct {
	Tasks     TasksConfig     `mapstructure:"tasks" yaml:"tasks"`
	Execution ExecutionConfig `mapstructure:"execution" yaml:"execution"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// TasksConfig controls where tasks live and how they are discovered.
type TasksConfig struct {
	// Dir is the task file root. Relative paths are resolved against the
	// workspace root.
	Dir string `mapstructure:"dir" yaml:"dir" validate:"required"`
	// BaseDir is the first directory tried when resolving PRD links.
	BaseDir       string   `mapstructure:"base_dir" yaml:"base_dir"`
	DefaultStatus string   `mapstructure:"default_status" yaml:"default_status" validate:"required"`
	FilePattern   string   `mapstructure:"file_pattern" yaml:"file_pattern" validate:"required"`
	Exclude       []string `mapstructure:"exclude" yaml:"exclude"`
}

// ExecutionConfig controls how agents are launched and watched.
type ExecutionConfig struct {
	Executable     string   `mapstructure:"executable" yaml:"executable"`
	PromptTemplate string   `mapstructure:"prompt_template" yaml:"prompt_template"`
	Flags          []string `mapstructure:"flags" yaml:"flags,omitempty"`
	TimeoutMinutes int      `mapstructure:"timeout_minutes" yaml:"timeout_minutes" validate:"gte=0"`
	PollInterval   string   `mapstructure:"poll_interval" yaml:"poll_interval" validate:"required"`
	KillOnTimeout  bool     `mapstructure:"kill_on_timeout" yaml:"kill_on_timeout"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tasks: TasksConfig{
			Dir:           filepath.Join(globalDirName, "tasks"),
			BaseDir:       globalDirName,
			DefaultStatus: string(task.StatusToDo),
			FilePattern:   task.DefaultFilePattern,
			Exclude:       []string{"README.md"},
		},
		Execution: ExecutionConfig{
			PromptTemplate: ai.DefaultPromptTemplate,
			TimeoutMinutes: 60,
			PollInterval:   "10s",
		},
		Log: LogConfig{Level: "info"},
	}
}

var validate = validator.New()

// Load reads the global config (~/.kanrun/config.yaml), then the project
// config at projectDir/config.yaml, then KANRUN_* environment variables.
// A .env file in the workspace root is loaded first when present.
func Load(workspaceRoot, projectDir string) (*Config, error) {
	if workspaceRoot != "" {
		if err := godotenv.Load(filepath.Join(workspaceRoot, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	var globalPath string
	if home, err := os.UserHomeDir(); err == nil {
		globalPath = filepath.Join(home, globalDirName, configFileName)
	}
	var projectPath string
	if projectDir != "" {
		projectPath = filepath.Join(projectDir, configFileName)
	}
	return LoadFrom(globalPath, projectPath)
}

// LoadFrom merges the given config files over the defaults. Missing files
// are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Flags have no default, so AutomaticEnv would not see them.
	if err := v.BindEnv("execution.flags"); err != nil {
		return nil, err
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if !v.IsSet("execution.flags") {
		cfg.Execution.Flags = nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("tasks.dir", d.Tasks.Dir)
	v.SetDefault("tasks.base_dir", d.Tasks.BaseDir)
	v.SetDefault("tasks.default_status", d.Tasks.DefaultStatus)
	v.SetDefault("tasks.file_pattern", d.Tasks.FilePattern)
	v.SetDefault("tasks.exclude", d.Tasks.Exclude)
	v.SetDefault("execution.executable", d.Execution.Executable)
	v.SetDefault("execution.prompt_template", d.Execution.PromptTemplate)
	v.SetDefault("execution.timeout_minutes", d.Execution.TimeoutMinutes)
	v.SetDefault("execution.poll_interval", d.Execution.PollInterval)
	v.SetDefault("execution.kill_on_timeout", d.Execution.KillOnTimeout)
	v.SetDefault("log.level", d.Log.Level)
}

// Validate checks field constraints and normalizes the default status.
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	status := task.ParseStatus(c.Tasks.DefaultStatus)
	if status != task.StatusToDo && status != task.StatusBacklog {
		return fmt.Errorf("invalid config: tasks.default_status must be %q or %q, got %q",
			task.StatusToDo, task.StatusBacklog, c.Tasks.DefaultStatus)
	}
	c.Tasks.DefaultStatus = string(status)

	if _, err := filepath.Match(c.Tasks.FilePattern, ""); err != nil {
		return fmt.Errorf("invalid config: tasks.file_pattern: %w", err)
	}
	if d, err := time.ParseDuration(c.Execution.PollInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid config: execution.poll_interval %q is not a positive duration", c.Execution.PollInterval)
	}
	return nil
}

// TasksDir resolves the task root against the workspace root.
func (c *Config) TasksDir(root string) string {
	return resolve(root, c.Tasks.Dir)
}

// BaseDir resolves the PRD base directory against the workspace root.
func (c *Config) BaseDir(root string) string {
	if c.Tasks.BaseDir == "" {
		return root
	}
	return resolve(root, c.Tasks.BaseDir)
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Timeout is the per-task execution timeout. Zero disables it.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Execution.TimeoutMinutes) * time.Minute
}

// PollInterval is the completion poll interval. Validate guarantees it
// parses.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Execution.PollInterval)
	return d
}

// AgentSettings is the configured agent invocation.
func (c *Config) AgentSettings() ai.Settings {
	return ai.Settings{
		Executable:     c.Execution.Executable,
		PromptTemplate: c.Execution.PromptTemplate,
		Flags:          c.Execution.Flags,
	}
}

// StoreConfig builds the task store settings for a workspace.
func (c *Config) StoreConfig(root string) task.StoreConfig {
	return task.StoreConfig{
		TasksDir:      c.TasksDir(root),
		BaseDir:       c.BaseDir(root),
		WorkspaceRoot: root,
		DefaultStatus: task.Status(c.Tasks.DefaultStatus),
		FilePattern:   c.Tasks.FilePattern,
		Exclude:       c.Tasks.Exclude,
	}
}

// Write saves cfg as YAML at path.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
