// Package theme provides the Lip Gloss palette and shared styles for the
// observatory terminal viewer. It is a leaf package with no internal
// imports apart from state, so views can depend on it freely.
package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/observatory-dash/backend/internal/state"
)

// Equipment status colors.
var (
	ColorIdle         = lipgloss.Color("#9ca3af")
	ColorSlewing      = lipgloss.Color("#d97706")
	ColorTracking     = lipgloss.Color("#22c55e")
	ColorExposing     = lipgloss.Color("#3b82f6")
	ColorSettling     = lipgloss.Color("#eab308")
	ColorCooling      = lipgloss.Color("#06b6d4")
	ColorWarming      = lipgloss.Color("#f97316")
	ColorCalibrating  = lipgloss.Color("#a855f7")
	ColorMoving       = lipgloss.Color("#f59e0b")
	ColorDisconnected = lipgloss.Color("#374151")
	ColorUnknown      = lipgloss.Color("#6b7280")
)

// Guiding RMS thresholds, in arcseconds.
var (
	ColorRMSGood = lipgloss.Color("#22c55e") // <1"
	ColorRMSFair = lipgloss.Color("#d97706") // 1-2"
	ColorRMSPoor = lipgloss.Color("#dc2626") // >2"
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#818cf8")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for an equipment status.
func StatusColor(s state.EquipmentStatus) lipgloss.Color {
	switch s {
	case state.StatusIdle:
		return ColorIdle
	case state.StatusSlewing:
		return ColorSlewing
	case state.StatusTracking:
		return ColorTracking
	case state.StatusExposing:
		return ColorExposing
	case state.StatusSettling:
		return ColorSettling
	case state.StatusCooling:
		return ColorCooling
	case state.StatusWarming:
		return ColorWarming
	case state.StatusCalibrating:
		return ColorCalibrating
	case state.StatusMoving:
		return ColorMoving
	case state.StatusDisconnected:
		return ColorDisconnected
	default:
		return ColorUnknown
	}
}

// StatusGlyph returns a single glyph for an equipment status.
func StatusGlyph(s state.EquipmentStatus) string {
	switch s {
	case state.StatusSlewing, state.StatusMoving:
		return "↻"
	case state.StatusTracking:
		return "●"
	case state.StatusExposing:
		return "◉"
	case state.StatusSettling, state.StatusCalibrating:
		return "◌"
	case state.StatusCooling:
		return "❄"
	case state.StatusWarming:
		return "♨"
	case state.StatusDisconnected:
		return "✗"
	case state.StatusIdle:
		return "○"
	default:
		return "·"
	}
}

// RMSColor returns the color for a total guiding RMS in arcseconds.
func RMSColor(rms float64) lipgloss.Color {
	switch {
	case rms > 2:
		return ColorRMSPoor
	case rms >= 1:
		return ColorRMSFair
	default:
		return ColorRMSGood
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorDimmed).
			Width(10)
)

// Panel wraps content in the standard rounded border at the given width.
func Panel(title, content string, width int) string {
	if width < 20 {
		width = 20
	}
	body := lipgloss.JoinVertical(lipgloss.Left, StyleHeader.Render(title), content)
	return StyleBorder.Width(width - 2).Padding(0, 1).Render(body)
}
