package task

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

var prdStatusRe = regexp.MustCompile(`(?m)^([ \t]*(?:[-*][ \t]+)?(?:\*\*)?Status:(?:\*\*)?)[ \t]*(.*?)(\r?)$`)

// syncPRD mirrors the task status into its linked PRD. Failures are logged
// and never returned.
func (s *Store) syncPRD(t *Task) {
	if t == nil || t.PRDPath == "" {
		return
	}
	if err := s.SyncPRD(t); err != nil {
		s.logger.Warn("prd sync failed", "task", t.ID, "err", err)
	}
}

// SyncPRD writes the task's status into the linked PRD's Status field. A
// link that resolves to no existing file is skipped without error.
func (s *Store) SyncPRD(t *Task) error {
	if t.PRDPath == "" {
		return nil
	}
	path, ok := s.ResolvePRD(t)
	if !ok {
		s.logger.Debug("prd not found, skipping sync", "task", t.ID, "prd", t.PRDPath)
		return nil
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return &PRDSyncError{TaskID: t.ID, Path: path, Err: err}
	}
	content := string(data)
	updated := SetDocumentStatus(content, t.Status)
	if updated == content {
		return nil
	}
	if err := s.writeAtomic(path, []byte(updated)); err != nil {
		return &PRDSyncError{TaskID: t.ID, Path: path, Err: err}
	}
	s.logger.Debug("prd synced", "task", t.ID, "prd", path, "status", t.Status)
	return nil
}

// ResolvePRD finds the PRD file a task links to. Candidates are tried in
// order: the base directory (with leading "../" segments dropped), the task
// file's directory, then the workspace root.
func (s *Store) ResolvePRD(t *Task) (string, bool) {
	for _, candidate := range s.prdCandidates(t.PRDPath, t.FilePath) {
		info, err := s.fs.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func (s *Store) prdCandidates(link, taskFile string) []string {
	link = filepath.FromSlash(strings.TrimSpace(link))
	if link == "" {
		return nil
	}
	if filepath.IsAbs(link) {
		return []string{filepath.Clean(link)}
	}

	var candidates []string
	if s.cfg.BaseDir != "" {
		candidates = append(candidates, filepath.Join(s.cfg.BaseDir, stripParentSegments(link)))
	}
	if taskFile != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(taskFile), link))
	}
	if s.cfg.WorkspaceRoot != "" {
		candidates = append(candidates, filepath.Join(s.cfg.WorkspaceRoot, link))
	}
	return candidates
}

// stripParentSegments drops leading "..", "." and empty segments.
func stripParentSegments(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	i := 0
	for i < len(parts) && (parts[i] == ".." || parts[i] == "." || parts[i] == "") {
		i++
	}
	return filepath.FromSlash(strings.Join(parts[i:], "/"))
}

// SetDocumentStatus replaces the first Status field in a document, or
// inserts "**Status:** <status>" right after the first heading (or at the
// top when there is no heading).
func SetDocumentStatus(content string, status Status) string {
	if loc := prdStatusRe.FindStringSubmatchIndex(content); loc != nil {
		prefix := content[loc[2]:loc[3]]
		cr := content[loc[6]:loc[7]]
		return content[:loc[0]] + fmt.Sprintf("%s %s%s", prefix, status, cr) + content[loc[1]:]
	}

	lineEnding := defaultLineEnding
	if strings.Contains(content, crlf) {
		lineEnding = crlf
	}
	lines := strings.Split(content, lineEnding)
	statusLine := fieldLine(FieldStatus, string(status))

	insertAt := 0
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			insertAt = i + 1
			break
		}
	}
	if content == "" {
		return statusLine + lineEnding
	}
	tail := append([]string{}, lines[insertAt:]...)
	lines = append(append(lines[:insertAt], statusLine), tail...)
	return strings.Join(lines, lineEnding)
}
