// Package app holds the root Bubble Tea model of the observatory viewer.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/observatory-dash/backend/internal/observatory"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/observatory-dash/backend/internal/tui/client"
	"github.com/observatory-dash/backend/internal/tui/theme"
	"github.com/observatory-dash/backend/internal/tui/views/equipment"
	"github.com/observatory-dash/backend/internal/tui/views/events"
	"github.com/observatory-dash/backend/internal/tui/views/session"
	"github.com/observatory-dash/backend/internal/tui/views/status"
)

type serverStatusMsg struct {
	status *observatory.Status
	err    error
}

type refreshDoneMsg struct {
	seeded bool
	err    error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	help   help.Model
	width  int
	height int

	statusBar status.Model
	session   session.Model
	equipment equipment.Model
	events    events.Model

	connected  bool
	refreshing bool
	retryIn    time.Duration
	lastErr    error
}

// New creates the root model. http may be nil, which disables refresh and
// server status.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		statusBar: status.New(),
		session:   session.New(),
		equipment: equipment.New(),
		events:    events.New(),
	}
}

// Init starts the websocket connection.
func (m Model) Init() tea.Cmd {
	return m.ws.Listen(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.session.Width = msg.Width
		m.equipment.Width = msg.Width
		m.events.Width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.retryIn = 0
		m.lastErr = nil
		return m, tea.Batch(m.ws.ReadLoop(), m.fetchStatus())

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		m.lastErr = msg.Err
		return m, m.ws.Listen(m.ctx)

	case client.WSRetryMsg:
		m.retryIn = msg.Delay
		m.lastErr = msg.Err
		return m, m.ws.Listen(m.ctx)

	case client.WSEnvelopeMsg:
		cmd := m.apply(msg.Envelope)
		return m, tea.Batch(m.ws.ReadLoop(), cmd)

	case serverStatusMsg:
		if msg.err == nil {
			m.statusBar.Server = msg.status
		}
		return m, nil

	case refreshDoneMsg:
		m.refreshing = false
		switch {
		case msg.err != nil:
			m.statusBar.Notice = "refresh failed: " + msg.err.Error()
		case msg.seeded:
			m.statusBar.Notice = "refreshed from history"
		default:
			m.statusBar.Notice = "refresh: history unavailable"
		}
		return m, m.fetchStatus()
	}

	return m, nil
}

// apply folds one envelope into the model. Heartbeats only bump the
// update clock; every other kind carries the full state.
func (m *Model) apply(env state.Envelope) tea.Cmd {
	m.statusBar.LastUpdate = env.Timestamp
	m.statusBar.LastReason = env.UpdateReason
	if env.UpdateKind == state.KindHeartbeat {
		return nil
	}

	m.session.SetSession(env.State.CurrentSession)
	m.equipment.SetDevices(env.State.Equipment)
	m.events.SetEvents(env.State.RecentEvents)

	if env.UpdateKind == state.KindFullSync {
		return m.fetchStatus()
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		if m.ws != nil {
			m.ws.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Refresh):
		if m.http == nil || m.refreshing {
			return m, nil
		}
		m.refreshing = true
		m.statusBar.Notice = "refreshing..."
		return m, m.refresh()
	}
	return m, nil
}

func (m Model) refresh() tea.Cmd {
	hc := m.http
	return func() tea.Msg {
		seeded, err := hc.Refresh()
		return refreshDoneMsg{seeded: seeded, err: err}
	}
}

func (m Model) fetchStatus() tea.Cmd {
	if m.http == nil {
		return nil
	}
	hc := m.http
	return func() tea.Msg {
		st, err := hc.GetStatus()
		return serverStatusMsg{status: st, err: err}
	}
}

// View renders the full viewer.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if !m.connected {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.statusBar.View(),
			m.renderDisconnected(),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		m.session.View(),
		m.equipment.View(),
		m.events.View(),
		"  "+m.help.View(m.keys),
	)
}

func (m Model) renderDisconnected() string {
	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED"),
		"",
	}
	if m.retryIn > 0 {
		lines = append(lines, fmt.Sprintf("Reconnecting (last retry waited %s)...", m.retryIn))
	} else {
		lines = append(lines, "Reconnecting...")
	}
	if m.lastErr != nil {
		lines = append(lines, theme.StyleDimmed.Render(m.lastErr.Error()))
	}

	box := lipgloss.NewStyle().
		Padding(1, 4).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorDanger).
		Render(lipgloss.JoinVertical(lipgloss.Center, lines...))

	height := m.height - 3
	if height < lipgloss.Height(box) {
		height = lipgloss.Height(box)
	}
	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, box)
}
