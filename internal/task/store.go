package task

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DefaultFilePattern matches task files by base name.
const DefaultFilePattern = "*.md"

// StoreConfig configures where a Store finds tasks and PRDs.
type StoreConfig struct {
	// TasksDir is scanned recursively for task files.
	TasksDir string
	// BaseDir is the first place PRD links are resolved against.
	BaseDir string
	// WorkspaceRoot is the last place PRD links are resolved against.
	WorkspaceRoot string
	// DefaultStatus applies to task files without a Status field.
	DefaultStatus Status
	// FilePattern is a filepath.Match pattern applied to base names.
	FilePattern string
	// Exclude lists base names (or patterns) of files and directories to skip.
	Exclude []string
}

// Store reads and writes task files. Every mutation re-reads the file,
// rewrites only the lines it owns and replaces the file atomically.
type Store struct {
	fs       afero.Fs
	cfg      StoreConfig
	logger   *log.Logger
	validate *validator.Validate
	now      func() time.Time

	// mu serializes read-modify-write cycles within this process. Other
	// processes editing the same files are not locked out.
	mu sync.Mutex
}

// ErrInvalidStatus is returned when a status update names an unknown column.
var ErrInvalidStatus = errors.New("invalid status")

// NewStore creates a Store on the given filesystem. A nil logger discards output.
func NewStore(fsys afero.Fs, cfg StoreConfig, logger *log.Logger) *Store {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.DefaultStatus == "" {
		cfg.DefaultStatus = StatusToDo
	}
	if cfg.FilePattern == "" {
		cfg.FilePattern = DefaultFilePattern
	}
	return &Store{
		fs:       fsys,
		cfg:      cfg,
		logger:   logger.WithPrefix("store"),
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithClock replaces the time source (useful for testing).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Config returns the store configuration.
func (s *Store) Config() StoreConfig {
	return s.cfg
}

// ParseTasks scans the tasks directory and returns every task that parsed.
// Files that fail to parse are logged and skipped.
func (s *Store) ParseTasks() ([]*Task, error) {
	root := s.cfg.TasksDir
	exists, err := afero.DirExists(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tasks directory: %w", err)
	}
	if !exists {
		return nil, nil
	}

	var tasks []*Task
	err = afero.Walk(s.fs, root, func(path string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			s.logger.Warn("skipping unreadable path", "path", path, "err", walkErr)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if path != root && s.excluded(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.excluded(info.Name()) || !s.matches(info.Name()) {
			return nil
		}

		t, err := s.parseFile(path)
		if err != nil {
			if errors.Is(err, ErrNotTask) {
				s.logger.Debug("skipping non-task file", "path", path)
			} else {
				s.logger.Warn("skipping task file", "path", path, "err", err)
			}
			return nil
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks directory: %w", err)
	}
	return tasks, nil
}

// FindTask returns the task with the given id. An empty id never matches.
func (s *Store) FindTask(id string) (*Task, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	tasks, err := s.ParseTasks()
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// UpdateTaskStatus moves a task to a new status and optionally sets its
// order. A linked PRD is synced afterwards.
func (s *Store) UpdateTaskStatus(id string, status Status, order *int) (*Task, error) {
	if !status.Known() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	t, err := s.mutate(id, func(doc *document, current *Task, now time.Time) {
		doc.setField(FieldStatus, string(status))
		if order != nil {
			doc.setField(FieldOrder, strconv.Itoa(*order))
		}
		if status == StatusDone && current.CompletedAt == nil {
			doc.setField(FieldCompletedAt, FormatTime(now))
		}
	})
	if err != nil {
		return nil, err
	}
	s.syncPRD(t)
	return t, nil
}

// UpdateTaskOrder sets a task's position within its column.
func (s *Store) UpdateTaskOrder(id string, order int) (*Task, error) {
	return s.mutate(id, func(doc *document, _ *Task, _ time.Time) {
		doc.setField(FieldOrder, strconv.Itoa(order))
	})
}

// UpdateTask applies a partial update. A status change syncs the linked PRD.
func (s *Store) UpdateTask(id string, u Update) (*Task, error) {
	if err := s.validate.Struct(u); err != nil {
		return nil, fmt.Errorf("invalid update: %w", err)
	}
	if u.Status != nil && !u.Status.Known() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
	}

	statusChanged := false
	t, err := s.mutate(id, func(doc *document, current *Task, now time.Time) {
		if u.Label != nil {
			doc.setField(FieldLabel, *u.Label)
		}
		if u.Description != nil {
			doc.setField(FieldDescription, *u.Description)
		}
		if u.Type != nil {
			doc.setField(FieldType, *u.Type)
		}
		if u.Priority != nil {
			doc.setField(FieldPriority, string(*u.Priority))
		}
		if u.Status != nil && *u.Status != current.Status {
			statusChanged = true
			doc.setField(FieldStatus, string(*u.Status))
			if *u.Status == StatusDone && current.CompletedAt == nil {
				doc.setField(FieldCompletedAt, FormatTime(now))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if statusChanged {
		s.syncPRD(t)
	}
	return t, nil
}

// RejectTask sends a task back to To Do, bumps its rejection count, clears
// the claim fields and records the note in the rejection log.
func (s *Store) RejectTask(id, note string) (*Task, error) {
	t, err := s.mutate(id, func(doc *document, current *Task, now time.Time) {
		doc.setField(FieldStatus, string(StatusToDo))
		doc.setField(FieldRejectionCount, strconv.Itoa(current.RejectionCount+1))
		doc.removeField(FieldClaimedBy)
		doc.removeField(FieldClaimedAt)
		doc.removeField(FieldCompletedAt)
		doc.appendRejection(now, note)
	})
	if err != nil {
		return nil, err
	}
	s.syncPRD(t)
	return t, nil
}

// WriteTask serializes a whole task to its file. When FilePath is empty it
// is derived from the id.
func (s *Store) WriteTask(t *Task) error {
	if err := s.validate.Struct(t); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if t.FilePath == "" {
		if t.ID == "" {
			return fmt.Errorf("invalid task: id or file path required")
		}
		t.FilePath = filepath.Join(s.cfg.TasksDir, "task-"+strings.TrimPrefix(t.ID, "task-")+".md")
	}
	if err := s.fs.MkdirAll(filepath.Dir(t.FilePath), 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(t.FilePath, []byte(Serialize(t)))
}

// CreateTask assigns an id and timestamps and writes a new task file.
func (s *Store) CreateTask(in NewTask) (*Task, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	status := in.Status
	if status == "" {
		status = s.cfg.DefaultStatus
	}
	if !status.Known() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	t := &Task{
		ID:          "task-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Title:       in.Title,
		Label:       in.Label,
		Description: in.Description,
		Type:        in.Type,
		Status:      status,
		Priority:    ParsePriority(string(in.Priority)),
		Created:     now,
		Updated:     now,
		PRDPath:     in.PRDPath,
	}
	if err := s.WriteTask(t); err != nil {
		return nil, err
	}
	s.syncPRD(t)
	return t, nil
}

// mutate re-reads the task file, lets apply edit it, stamps Updated and
// writes it back.
func (s *Store) mutate(id string, apply func(doc *document, current *Task, now time.Time)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.FindTask(id)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, found.FilePath)
	if err != nil {
		return nil, &ParseError{Path: found.FilePath, Err: err}
	}
	doc, err := parseDocument(string(data))
	if err != nil {
		return nil, &ParseError{Path: found.FilePath, Err: err}
	}
	current := doc.task(s.cfg.DefaultStatus)
	if current.ID != id {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := s.stamp(current.Updated)
	apply(doc, current, now)
	doc.setField(FieldUpdated, FormatTime(now))

	if err := s.writeAtomic(found.FilePath, []byte(doc.String())); err != nil {
		return nil, err
	}

	updated := doc.task(s.cfg.DefaultStatus)
	updated.FilePath = found.FilePath
	return updated, nil
}

// stamp returns the current time, never earlier than prev.
func (s *Store) stamp(prev time.Time) time.Time {
	now := s.now().UTC().Truncate(time.Millisecond)
	if now.Before(prev) {
		return prev.UTC()
	}
	return now
}

func (s *Store) parseFile(path string) (*Task, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	t, err := Parse(string(data), s.cfg.DefaultStatus)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	t.FilePath = path
	return t, nil
}

// writeAtomic writes to a temp file and renames it over path.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := afero.WriteFile(s.fs, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (s *Store) matches(name string) bool {
	ok, err := filepath.Match(s.cfg.FilePattern, name)
	return err == nil && ok
}

func (s *Store) excluded(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range s.cfg.Exclude {
		if name == pattern {
			return true
		}
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
