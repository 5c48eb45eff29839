package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"

	"github.com/pablasso/kanrun/internal/tui/styles"
)

// StatusBar renders a bottom help bar from key bindings.
type StatusBar struct{}

// NewStatusBar creates a new StatusBar instance.
func NewStatusBar() StatusBar {
	return StatusBar{}
}

// Render returns the status bar for the given width. Disabled bindings are
// left out; notes are shown before the bindings.
func (s StatusBar) Render(width int, notes []string, bindings ...key.Binding) string {
	items := append([]string(nil), notes...)
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		items = append(items, h.Key+" "+h.Desc)
	}
	return styles.StatusBarStyle.Width(width).Render(strings.Join(items, " • "))
}
