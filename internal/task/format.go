package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field names as they appear in task files.
const (
	FieldID             = "ID"
	FieldLabel          = "Label"
	FieldDescription    = "Description"
	FieldType           = "Type"
	FieldStatus         = "Status"
	FieldPriority       = "Priority"
	FieldOrder          = "Order"
	FieldCreated        = "Created"
	FieldUpdated        = "Updated"
	FieldPRD            = "PRD"
	FieldClaimedBy      = "Claimed-By"
	FieldClaimedAt      = "Claimed-At"
	FieldCompletedAt    = "Completed-At"
	FieldRejectionCount = "Rejection-Count"
	FieldAgentNotes     = "Agent-Notes"
)

const (
	titlePrefix       = "## Task:"
	metadataEnd       = "---"
	rejectionHeading  = "### Rejection Log"
	timestampLayout   = "2006-01-02T15:04:05.000Z07:00"
	prdLinkText       = "Link"
	byteOrderMark     = "\ufeff"
	crlf              = "\r\n"
	defaultLineEnding = "\n"
)

var (
	titleRe = regexp.MustCompile(`^##\s*Task:\s*(.*)$`)
	fieldRe = regexp.MustCompile(`^\*\*([A-Za-z][A-Za-z -]*):\*\*\s?(.*)$`)
	linkRe  = regexp.MustCompile(`\[[^\]]*\]\(([^)]+)\)`)
)

// acceptedTimeLayouts are tried in order when reading timestamps.
var acceptedTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// FormatTime renders a timestamp the way task files store it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTime reads a task file timestamp. It returns false for empty or
// unrecognized values.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range acceptedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// document is a task file split into lines, with the positions of the title
// and the end of the metadata block. Edits touch only the lines they own.
type document struct {
	lines    []string
	crlf     bool
	titleIdx int
	// metaEnd is the index of the "---" line, or len(lines) when absent.
	metaEnd int
}

func parseDocument(content string) (*document, error) {
	content = strings.TrimPrefix(content, byteOrderMark)
	doc := &document{crlf: strings.Contains(content, crlf)}
	if doc.crlf {
		content = strings.ReplaceAll(content, crlf, defaultLineEnding)
	}
	doc.lines = strings.Split(content, defaultLineEnding)

	doc.titleIdx = -1
	for i, line := range doc.lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if titleRe.MatchString(strings.TrimSpace(line)) {
			doc.titleIdx = i
		}
		break
	}
	if doc.titleIdx == -1 {
		return nil, ErrNotTask
	}

	doc.metaEnd = len(doc.lines)
	for i := doc.titleIdx + 1; i < len(doc.lines); i++ {
		if strings.TrimSpace(doc.lines[i]) == metadataEnd {
			doc.metaEnd = i
			break
		}
	}
	return doc, nil
}

func (d *document) String() string {
	out := strings.Join(d.lines, defaultLineEnding)
	if d.crlf {
		out = strings.ReplaceAll(out, defaultLineEnding, crlf)
	}
	return out
}

func (d *document) title() string {
	m := titleRe.FindStringSubmatch(strings.TrimSpace(d.lines[d.titleIdx]))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// fields returns the metadata fields in file order. Agent-Notes collects
// the lines that follow it until the next field or the end of the block.
func (d *document) fields() map[string]string {
	values := make(map[string]string)
	current := ""
	for i := d.titleIdx + 1; i < d.metaEnd; i++ {
		line := d.lines[i]
		if m := fieldRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			current = canonicalField(m[1])
			values[current] = strings.TrimSpace(m[2])
			continue
		}
		if current == FieldAgentNotes {
			if values[current] == "" {
				values[current] = line
			} else {
				values[current] += defaultLineEnding + line
			}
		}
	}
	if notes, ok := values[FieldAgentNotes]; ok {
		values[FieldAgentNotes] = strings.TrimSpace(notes)
	}
	return values
}

// fieldIndex returns the line index of the named field, or -1.
func (d *document) fieldIndex(name string) int {
	for i := d.titleIdx + 1; i < d.metaEnd; i++ {
		m := fieldRe.FindStringSubmatch(strings.TrimSpace(d.lines[i]))
		if m != nil && strings.EqualFold(canonicalField(m[1]), name) {
			return i
		}
	}
	return -1
}

// setField replaces the named field in place, or inserts it after the last
// non-blank line of the metadata block.
func (d *document) setField(name, value string) {
	line := fieldLine(name, value)
	if idx := d.fieldIndex(name); idx >= 0 {
		d.lines[idx] = line
		return
	}

	insertAt := d.titleIdx + 1
	for i := d.metaEnd - 1; i > d.titleIdx; i-- {
		if strings.TrimSpace(d.lines[i]) != "" {
			insertAt = i + 1
			break
		}
	}
	d.insertLines(insertAt, line)
	if insertAt <= d.metaEnd {
		d.metaEnd++
	}
}

// removeField deletes a single-line field. It reports whether it was present.
func (d *document) removeField(name string) bool {
	idx := d.fieldIndex(name)
	if idx < 0 {
		return false
	}
	d.lines = append(d.lines[:idx], d.lines[idx+1:]...)
	d.metaEnd--
	return true
}

func (d *document) insertLines(at int, lines ...string) {
	tail := append([]string{}, d.lines[at:]...)
	d.lines = append(append(d.lines[:at], lines...), tail...)
}

// appendRejection adds a dated entry to the rejection log section, creating
// the section at the end of the file if needed.
func (d *document) appendRejection(at time.Time, note string) {
	entry := fmt.Sprintf("- **%s:** %s", FormatTime(at), strings.TrimSpace(note))

	section := -1
	for i := d.metaEnd; i < len(d.lines); i++ {
		if strings.EqualFold(strings.TrimSpace(d.lines[i]), rejectionHeading) {
			section = i
			break
		}
	}

	if section >= 0 {
		last := section
		for i := section + 1; i < len(d.lines); i++ {
			trimmed := strings.TrimSpace(d.lines[i])
			if strings.HasPrefix(trimmed, "#") {
				break
			}
			if trimmed != "" {
				last = i
			}
		}
		if last == section {
			d.insertLines(last+1, "", entry)
			return
		}
		d.insertLines(last+1, entry)
		return
	}

	// Trim trailing blank lines, then add the new section.
	for len(d.lines) > 0 && strings.TrimSpace(d.lines[len(d.lines)-1]) == "" {
		d.lines = d.lines[:len(d.lines)-1]
	}
	if d.metaEnd >= len(d.lines) {
		d.lines = append(d.lines, "", metadataEnd)
		d.metaEnd = len(d.lines) - 1
	}
	d.lines = append(d.lines, "", rejectionHeading, "", entry, "")
}

func fieldLine(name, value string) string {
	if value == "" {
		return fmt.Sprintf("**%s:**", name)
	}
	return fmt.Sprintf("**%s:** %s", name, value)
}

var knownFields = []string{
	FieldID, FieldLabel, FieldDescription, FieldType, FieldStatus, FieldPriority,
	FieldOrder, FieldCreated, FieldUpdated, FieldPRD, FieldClaimedBy, FieldClaimedAt,
	FieldCompletedAt, FieldRejectionCount, FieldAgentNotes,
}

// canonicalField maps "claimed-by" or "Claimed By" to "Claimed-By".
func canonicalField(name string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
	for _, known := range knownFields {
		if strings.ToLower(known) == key {
			return known
		}
	}
	return strings.TrimSpace(name)
}

// Parse reads a task from file content. Missing fields get their defaults;
// defaultStatus is used when the file has no Status.
func Parse(content string, defaultStatus Status) (*Task, error) {
	doc, err := parseDocument(content)
	if err != nil {
		return nil, err
	}
	return doc.task(defaultStatus), nil
}

func (d *document) task(defaultStatus Status) *Task {
	f := d.fields()
	t := &Task{
		ID:          f[FieldID],
		Title:       d.title(),
		Label:       f[FieldLabel],
		Description: f[FieldDescription],
		Type:        f[FieldType],
		Status:      ParseStatus(f[FieldStatus]),
		Priority:    ParsePriority(f[FieldPriority]),
		PRDPath:     parsePRDLink(f[FieldPRD]),
		ClaimedBy:   f[FieldClaimedBy],
		AgentNotes:  f[FieldAgentNotes],
	}
	if t.Status == "" {
		t.Status = defaultStatus
	}
	if t.Label == "" {
		t.Label = t.Title
	}
	if raw, ok := f[FieldOrder]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			t.Order = &n
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(f[FieldRejectionCount])); err == nil && n > 0 {
		t.RejectionCount = n
	}
	if ts, ok := ParseTime(f[FieldCreated]); ok {
		t.Created = ts
	}
	if ts, ok := ParseTime(f[FieldUpdated]); ok {
		t.Updated = ts
	}
	if ts, ok := ParseTime(f[FieldClaimedAt]); ok {
		t.ClaimedAt = &ts
	}
	if ts, ok := ParseTime(f[FieldCompletedAt]); ok {
		t.CompletedAt = &ts
	}
	if d.metaEnd < len(d.lines) {
		t.Body = strings.Join(d.lines[d.metaEnd+1:], defaultLineEnding)
	}
	return t
}

// parsePRDLink accepts "[Link](path)" or a bare path.
func parsePRDLink(value string) string {
	if m := linkRe.FindStringSubmatch(value); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(value)
}

func formatPRDLink(path string) string {
	return fmt.Sprintf("[%s](%s)", prdLinkText, path)
}

// Serialize renders a task in the canonical file format.
func Serialize(t *Task) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s\n\n", titlePrefix, t.Title))

	write := func(name, value string) {
		sb.WriteString(fieldLine(name, value))
		sb.WriteString(defaultLineEnding)
	}
	writeOptional := func(name, value string) {
		if value != "" {
			write(name, value)
		}
	}

	write(FieldID, t.ID)
	if t.Label != "" && t.Label != t.Title {
		write(FieldLabel, t.Label)
	}
	writeOptional(FieldDescription, t.Description)
	writeOptional(FieldType, t.Type)
	write(FieldStatus, string(t.Status))
	write(FieldPriority, string(ParsePriority(string(t.Priority))))
	if t.Order != nil {
		write(FieldOrder, strconv.Itoa(*t.Order))
	}
	if !t.Created.IsZero() {
		write(FieldCreated, FormatTime(t.Created))
	}
	if !t.Updated.IsZero() {
		write(FieldUpdated, FormatTime(t.Updated))
	}
	if t.PRDPath != "" {
		write(FieldPRD, formatPRDLink(t.PRDPath))
	}
	writeOptional(FieldClaimedBy, t.ClaimedBy)
	if t.ClaimedAt != nil {
		write(FieldClaimedAt, FormatTime(*t.ClaimedAt))
	}
	if t.CompletedAt != nil {
		write(FieldCompletedAt, FormatTime(*t.CompletedAt))
	}
	if t.RejectionCount > 0 {
		write(FieldRejectionCount, strconv.Itoa(t.RejectionCount))
	}
	writeOptional(FieldAgentNotes, t.AgentNotes)

	sb.WriteString("\n")
	sb.WriteString(metadataEnd)
	sb.WriteString(defaultLineEnding)
	if t.Body != "" {
		sb.WriteString(t.Body)
		if !strings.HasSuffix(t.Body, defaultLineEnding) {
			sb.WriteString(defaultLineEnding)
		}
	}
	return sb.String()
}
