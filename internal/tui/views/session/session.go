// Package session renders the current imaging session: target, sequence
// progress, last image and guiding.
package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/observatory-dash/backend/internal/tui/theme"
)

// Model holds the session panel state.
type Model struct {
	Width   int
	session *state.Session
	bar     progress.Model
}

// New creates a session panel.
func New() Model {
	return Model{
		bar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// SetSession replaces the rendered session. nil clears the panel.
func (m *Model) SetSession(s *state.Session) {
	m.session = s
}

// View renders the session and guiding panels side by side.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	if m.session == nil {
		return theme.Panel("Session", theme.StyleDimmed.Render("No session"), width)
	}

	left := width * 3 / 5
	right := width - left
	return lipgloss.JoinHorizontal(lipgloss.Top,
		theme.Panel(m.title(), m.renderImaging(left-6), left),
		theme.Panel("Guiding", m.renderGuiding(), right),
	)
}

func (m Model) title() string {
	if m.session.Active() {
		return "Session " + lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● active")
	}
	return "Session " + theme.StyleDimmed.Render("○ inactive")
}

func (m Model) renderImaging(barWidth int) string {
	s := m.session
	var lines []string

	target := str(s.Target.TargetName)
	if s.Target.PanelIndex != nil {
		target += fmt.Sprintf(" (panel %d)", *s.Target.PanelIndex)
	}
	lines = append(lines, row("Target", target))
	if s.Target.ProjectName != nil {
		lines = append(lines, row("Project", *s.Target.ProjectName))
	}
	if s.Target.RA != nil && s.Target.Dec != nil {
		lines = append(lines, row("Coords", FormatCoords(*s.Target.RA, *s.Target.Dec)))
	}
	if s.Target.EndTime != nil {
		end := s.Target.EndTime.Local().Format("15:04")
		if s.Target.Expired(time.Now()) {
			end += " " + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("(expired)")
		}
		lines = append(lines, row("Ends", end))
	}
	if s.Imaging.SequenceName != nil {
		lines = append(lines, row("Sequence", *s.Imaging.SequenceName))
	}

	exposure := str(s.Imaging.CurrentFilter)
	if s.Imaging.ExposureSeconds != nil {
		exposure += fmt.Sprintf("  %gs", *s.Imaging.ExposureSeconds)
	}
	if s.Imaging.FrameType != nil {
		exposure += "  " + *s.Imaging.FrameType
	}
	lines = append(lines, row("Filter", exposure))

	if p := s.Imaging.Progress; p != nil && p.TotalFrames > 0 {
		bar := m.bar
		if barWidth > 28 {
			bar.Width = barWidth - 18
		}
		pct := float64(p.FrameIndex) / float64(p.TotalFrames)
		if pct > 1 {
			pct = 1
		}
		lines = append(lines, row("Progress", fmt.Sprintf("%s %d/%d", bar.ViewAs(pct), p.FrameIndex, p.TotalFrames)))
	}

	if li := s.Imaging.LastImage; li != nil {
		parts := []string{li.At.Local().Format("15:04:05")}
		if li.FilePath != nil {
			parts = append(parts, filepath.Base(*li.FilePath))
		}
		if li.Stars != nil {
			parts = append(parts, fmt.Sprintf("%d stars", *li.Stars))
		}
		if li.HFR != nil {
			parts = append(parts, fmt.Sprintf("HFR %.2f", *li.HFR))
		}
		lines = append(lines, row("Last", strings.Join(parts, "  ")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderGuiding() string {
	g := m.session.Guiding
	var lines []string
	if g.IsGuiding {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● guiding"))
	} else {
		lines = append(lines, theme.StyleDimmed.Render("○ not guiding"))
	}
	if g.LastRMSTotal != nil {
		total := lipgloss.NewStyle().Foreground(theme.RMSColor(*g.LastRMSTotal)).
			Render(fmt.Sprintf("%.2f\"", *g.LastRMSTotal))
		lines = append(lines, row("RMS", total))
	}
	if g.LastRMSRA != nil {
		lines = append(lines, row("RA", fmt.Sprintf("%.2f\"", *g.LastRMSRA)))
	}
	if g.LastRMSDec != nil {
		lines = append(lines, row("Dec", fmt.Sprintf("%.2f\"", *g.LastRMSDec)))
	}
	if g.LastUpdate != nil {
		lines = append(lines, row("Updated", g.LastUpdate.Local().Format("15:04:05")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// FormatCoords renders RA (hours) and Dec (degrees) in sexagesimal form.
func FormatCoords(raHours, decDeg float64) string {
	rh, rm, rs := sexagesimal(raHours)
	sign := "+"
	if decDeg < 0 {
		sign = "-"
		decDeg = -decDeg
	}
	dd, dm, ds := sexagesimal(decDeg)
	return fmt.Sprintf("%02dh%02dm%02ds %s%02d°%02d'%02d\"", rh, rm, rs, sign, dd, dm, ds)
}

func sexagesimal(v float64) (int, int, int) {
	total := int(v*3600 + 0.5)
	return total / 3600, (total / 60) % 60, total % 60
}

func row(label, value string) string {
	return theme.StyleLabel.Render(label) + value
}

func str(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}
