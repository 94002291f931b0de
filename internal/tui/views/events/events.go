// Package events renders the recent event log, newest first.
package events

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/observatory-dash/backend/internal/tui/theme"
)

// Model holds the recent events panel.
type Model struct {
	Width  int
	events []state.RecentEvent
}

// New creates an events panel.
func New() Model {
	return Model{}
}

// SetEvents replaces the rendered events. The server already keeps them
// newest first.
func (m *Model) SetEvents(events []state.RecentEvent) {
	m.events = append(m.events[:0], events...)
}

// View renders the panel.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	if len(m.events) == 0 {
		return theme.Panel("Recent Events", theme.StyleDimmed.Render("No events yet"), width)
	}

	typeStyle := lipgloss.NewStyle().Foreground(theme.ColorAccent).Width(22)
	// Border, padding, clock and type column.
	summaryWidth := width - 4 - 10 - 22
	lines := make([]string, 0, len(m.events))
	for _, e := range m.events {
		lines = append(lines, theme.StyleDimmed.Render(e.Time.Local().Format("15:04:05"))+"  "+
			typeStyle.Render(truncate(e.Type, 21))+truncate(e.Summary, summaryWidth))
	}
	return theme.Panel("Recent Events", strings.Join(lines, "\n"), width)
}

func truncate(s string, n int) string {
	if n <= 3 || len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
