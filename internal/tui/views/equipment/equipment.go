// Package equipment renders the equipment table.
package equipment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/observatory-dash/backend/internal/tui/theme"
)

// Model holds the equipment table state.
type Model struct {
	Width   int
	devices []state.EquipmentDevice
}

// New creates an equipment table model.
func New() Model {
	return Model{}
}

// SetDevices replaces the device list. Devices are shown in a stable order
// by type, then name.
func (m *Model) SetDevices(devices []state.EquipmentDevice) {
	m.devices = append(m.devices[:0], devices...)
	sort.SliceStable(m.devices, func(i, j int) bool {
		if m.devices[i].Type != m.devices[j].Type {
			return m.devices[i].Type < m.devices[j].Type
		}
		return m.devices[i].Name < m.devices[j].Name
	})
}

// View renders the table.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	if len(m.devices) == 0 {
		return theme.Panel("Equipment", theme.StyleDimmed.Render("No equipment reported"), width)
	}

	rows := make([][]string, 0, len(m.devices))
	for _, d := range m.devices {
		rows = append(rows, []string{
			theme.StatusGlyph(d.Status) + " " + d.Name,
			string(d.Type),
			string(d.Status),
			Details(d.Details),
			d.LastChange.Local().Format("15:04:05"),
		})
	}

	devices := m.devices
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		BorderColumn(false).
		Width(width).
		Headers("DEVICE", "TYPE", "STATUS", "DETAILS", "CHANGED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(theme.ColorBright)
			}
			if row < 0 || row >= len(devices) {
				return s
			}
			d := devices[row]
			switch {
			case !d.Connected:
				return s.Foreground(theme.ColorDisconnected)
			case col == 2:
				return s.Foreground(theme.StatusColor(d.Status))
			case col == 4:
				return s.Foreground(theme.ColorDimmed)
			}
			return s
		})

	return t.Render()
}

// Details renders a device's details map as sorted key=value pairs.
func Details(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(details[k]))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%g", t)
	case string:
		return t
	case time.Time:
		return t.Local().Format("15:04:05")
	default:
		return fmt.Sprint(t)
	}
}
