package task

import (
	"strings"
	"testing"
)

func TestSetDocumentStatus(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "inserts after first heading",
			content: "# Login PRD\n\nSome scope.\n",
			want:    "# Login PRD\n**Status:** Done\n\nSome scope.\n",
		},
		{
			name:    "inserts at top without heading",
			content: "Plain text\n",
			want:    "**Status:** Done\nPlain text\n",
		},
		{
			name:    "replaces bold field",
			content: "# PRD\n\n**Status:** Draft\n\nBody\n",
			want:    "# PRD\n\n**Status:** Done\n\nBody\n",
		},
		{
			name:    "replaces plain field",
			content: "# PRD\nStatus: In Review\n",
			want:    "# PRD\nStatus: Done\n",
		},
		{
			name:    "replaces only the first field",
			content: "**Status:** A\n**Status:** B\n",
			want:    "**Status:** Done\n**Status:** B\n",
		},
		{
			name:    "keeps crlf",
			content: "# PRD\r\n**Status:** Draft\r\nBody\r\n",
			want:    "# PRD\r\n**Status:** Done\r\nBody\r\n",
		},
		{
			name:    "empty document",
			content: "",
			want:    "**Status:** Done\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SetDocumentStatus(tt.content, StatusDone); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStripParentSegments(t *testing.T) {
	tests := map[string]string{
		"../prds/a.md":    "prds/a.md",
		"../../prds/a.md": "prds/a.md",
		"./prds/a.md":     "prds/a.md",
		"prds/a.md":       "prds/a.md",
	}
	for in, want := range tests {
		if got := stripParentSegments(in); got != want {
			t.Errorf("stripParentSegments(%q): expected %q, got %q", in, want, got)
		}
	}
}

func taskWithPRD(link string) string {
	return "## Task: Linked\n\n**ID:** task-1\n**Status:** To Do\n**PRD:** [Link](" + link + ")\n\n---\n"
}

func TestStore_PRDSync_ResolutionStrategies(t *testing.T) {
	tests := []struct {
		name     string
		link     string
		prdPath  string
		taskPath string
	}{
		{
			name:     "base dir with parent segments stripped",
			link:     "../../prds/login.md",
			prdPath:  "/ws/.kanrun/prds/login.md",
			taskPath: "/ws/.kanrun/tasks/sub/task-1.md",
		},
		{
			name:     "relative to task file",
			link:     "specs/login.md",
			prdPath:  "/ws/.kanrun/tasks/specs/login.md",
			taskPath: "/ws/.kanrun/tasks/task-1.md",
		},
		{
			name:     "relative to workspace root",
			link:     "docs/login.md",
			prdPath:  "/ws/docs/login.md",
			taskPath: "/ws/.kanrun/tasks/task-1.md",
		},
		{
			name:     "absolute path",
			link:     "/elsewhere/login.md",
			prdPath:  "/elsewhere/login.md",
			taskPath: "/ws/.kanrun/tasks/task-1.md",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, fsys := newTestStore(t)
			writeFile(t, fsys, tt.taskPath, taskWithPRD(tt.link))
			writeFile(t, fsys, tt.prdPath, "# Login\n\nScope.\n")

			if _, err := store.UpdateTaskStatus("task-1", StatusTesting, nil); err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}

			got := readFile(t, fsys, tt.prdPath)
			if got != "# Login\n**Status:** Testing\n\nScope.\n" {
				t.Errorf("expected status inserted after heading, got:\n%s", got)
			}
		})
	}
}

func TestStore_PRDSync_FirstStrategyWins(t *testing.T) {
	store, fsys := newTestStore(t)
	writeFile(t, fsys, "/ws/.kanrun/tasks/task-1.md", taskWithPRD("../prds/a.md"))
	writeFile(t, fsys, "/ws/.kanrun/prds/a.md", "# Base\n")
	writeFile(t, fsys, "/ws/prds/a.md", "# Root\n")

	if _, err := store.UpdateTaskStatus("task-1", StatusDone, nil); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if !strings.Contains(readFile(t, fsys, "/ws/.kanrun/prds/a.md"), "**Status:** Done") {
		t.Error("expected base dir PRD to be synced")
	}
	if strings.Contains(readFile(t, fsys, "/ws/prds/a.md"), "Status") {
		t.Error("expected workspace PRD to be untouched")
	}
}

func TestStore_PRDSync_MissingDocumentIsSkipped(t *testing.T) {
	store, fsys := newTestStore(t)
	writeFile(t, fsys, "/ws/.kanrun/tasks/task-1.md", taskWithPRD("../prds/missing.md"))

	updated, err := store.UpdateTaskStatus("task-1", StatusDoing, nil)
	if err != nil {
		t.Fatalf("expected missing PRD not to fail the update, got: %v", err)
	}
	if updated.Status != StatusDoing {
		t.Errorf("expected status Doing, got: %q", updated.Status)
	}
}

func TestStore_PRDSync_ReplacesExistingStatus(t *testing.T) {
	store, fsys := newTestStore(t)
	writeFile(t, fsys, "/ws/.kanrun/tasks/task-1.md", taskWithPRD("../prds/a.md"))
	writeFile(t, fsys, "/ws/.kanrun/prds/a.md", "# PRD\n\n**Status:** To Do\n")

	if _, err := store.RejectTask("task-1", "again"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if _, err := store.UpdateTask("task-1", Update{Status: statusPtr(StatusBlocked)}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	got := readFile(t, fsys, "/ws/.kanrun/prds/a.md")
	if got != "# PRD\n\n**Status:** Blocked\n" {
		t.Errorf("expected replaced status, got %q", got)
	}
}

func statusPtr(s Status) *Status {
	return &s
}
