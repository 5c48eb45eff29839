package components

import (
	"fmt"
	"strings"
)

const (
	completedChar = "■"
	skippedChar   = "▪"
	emptyChar     = "□"
)

// Progress renders batch progress like: ■■▪▪□□□□ 2/4
//
// Completed tasks fill the bar first, skipped tasks follow.
type Progress struct {
	Completed int
	Skipped   int
	Total     int
	Width     int // character width of the bar portion
}

// NewProgress creates a new Progress instance.
func NewProgress(completed, skipped, total, width int) Progress {
	return Progress{
		Completed: completed,
		Skipped:   skipped,
		Total:     total,
		Width:     width,
	}
}

// View returns the rendered progress bar string.
func (p Progress) View() string {
	if p.Total <= 0 || p.Width <= 0 {
		return ""
	}

	completed := clamp(p.Completed, 0, p.Total)
	skipped := clamp(p.Skipped, 0, p.Total-completed)
	processed := completed + skipped

	filled := (completed * p.Width) / p.Total
	marked := (processed * p.Width) / p.Total

	bar := strings.Repeat(completedChar, filled) +
		strings.Repeat(skippedChar, marked-filled) +
		strings.Repeat(emptyChar, p.Width-marked)

	return fmt.Sprintf("%s %d/%d", bar, processed, p.Total)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
