// Package status renders the one-line connection bar at the top of the viewer.
package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/observatory-dash/backend/internal/controller"
	"github.com/observatory-dash/backend/internal/observatory"
	"github.com/observatory-dash/backend/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected  bool
	Server     *observatory.Status
	LastUpdate time.Time
	LastReason string
	Notice     string
	Width      int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")

	var content string
	if m.Connected {
		content = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Dashboard")
	} else {
		content = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	if m.Server != nil {
		content += sep + controllerLabel(m.Server.Connection)
		if m.Server.Seeded {
			content += sep + theme.StyleDimmed.Render("seeded")
		}
	}

	if !m.LastUpdate.IsZero() {
		upd := fmt.Sprintf("updated %s", m.LastUpdate.Local().Format("15:04:05"))
		if m.LastReason != "" {
			upd += " (" + m.LastReason + ")"
		}
		content += sep + theme.StyleDimmed.Render(upd)
	}

	if m.Notice != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorAccent).Render(m.Notice)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func controllerLabel(s controller.ConnState) string {
	var color lipgloss.Color
	switch s {
	case controller.StateConnected:
		color = theme.ColorHealthy
	case controller.StateConnecting, controller.StateReconnectScheduled:
		color = theme.ColorWarning
	case controller.StateDisabled:
		color = theme.ColorDimmed
	default:
		color = theme.ColorDanger
	}
	return lipgloss.NewStyle().Foreground(color).Render("controller: " + string(s))
}
