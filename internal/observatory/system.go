// Package observatory wires the controller clients, normalizer, seeder and
// state store into one System, the only object the outer surfaces (the
// dashboard server, the CLI) talk to.
package observatory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/observatory-dash/backend/internal/controller"
	"github.com/observatory-dash/backend/internal/event"
	"github.com/observatory-dash/backend/internal/seeder"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by Start after Stop; a stopped system cannot be
// restarted because its socket client is disabled for good.
var ErrStopped = errors.New("observatory system stopped")

// Socket is satisfied by controller.SocketClient.
type Socket interface {
	Connect()
	Disconnect()
	State() controller.ConnState
	LastEventAt() time.Time
}

// Writer is satisfied by normalizer.Normalizer. Every store mutation made
// by the System runs inside Exclusive so it is ordered with live events.
type Writer interface {
	Exclusive(fn func(apply func(event.Event) bool))
}

// HistorySeeder is satisfied by seeder.Seeder.
type HistorySeeder interface {
	SeedWith(ctx context.Context, apply func(event.Event) bool) bool
	Watermark() *seeder.Watermark
}

type Status struct {
	Initialized      bool                 `json:"initialized"`
	Seeded           bool                 `json:"seeded"`
	Connection       controller.ConnState `json:"connection"`
	Connected        bool                 `json:"connected"`
	EquipmentCount   int                  `json:"equipmentCount"`
	ConnectedCount   int                  `json:"connectedCount"`
	SessionActive    bool                 `json:"sessionActive"`
	RecentEventCount int                  `json:"recentEventCount"`
	Subscribers      int                  `json:"subscribers"`
	Watermark        *seeder.Watermark    `json:"watermark"`
	LastEventAt      *time.Time           `json:"lastEventAt"`
}

// System sequences startup (seed, then connect) and exposes the state and
// administrative operations.
type System struct {
	store  *state.Store
	writer Writer
	socket Socket
	seeder HistorySeeder
	logger zerolog.Logger
	gauge  func(int)

	// opMu serializes Start, Stop and RefreshState.
	opMu sync.Mutex

	mu          sync.RWMutex
	initialized bool
	seeded      bool
	stopped     bool
}

// New builds a System from its parts. seeder may be nil when history
// seeding is disabled.
func New(store *state.Store, writer Writer, socket Socket, hs HistorySeeder, logger zerolog.Logger) *System {
	return &System{store: store, writer: writer, socket: socket, seeder: hs, logger: logger}
}

// Start seeds the store from history and only then opens the live
// connection, so replayed and live events never interleave. Calling Start
// on a running system is a no-op.
func (s *System) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	initialized, stopped := s.initialized, s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrStopped
	}
	if initialized {
		return nil
	}

	seeded := false
	if s.seeder != nil {
		s.writer.Exclusive(func(apply func(event.Event) bool) {
			seeded = s.seeder.SeedWith(ctx, apply)
		})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.socket.Connect()

	s.mu.Lock()
	s.initialized = true
	s.seeded = seeded
	s.mu.Unlock()

	sum := s.store.Summary()
	s.logger.Info().
		Bool("seeded", seeded).
		Int("equipment", sum.EquipmentCount).
		Bool("sessionActive", sum.SessionActive).
		Msg("observatory state system started")
	return nil
}

// Stop disconnects from the controller. It is idempotent.
func (s *System) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.initialized = false
	s.mu.Unlock()

	s.socket.Disconnect()
	s.logger.Info().Msg("observatory state system stopped")
}

func (s *System) GetState() state.UnifiedState {
	return s.store.GetState()
}

// SetSubscriberGauge reports the listener count after every Subscribe and
// unsubscribe. Call before Start.
func (s *System) SetSubscriberGauge(gauge func(int)) {
	s.gauge = gauge
}

// Subscribe registers l for every envelope and returns its unsubscribe
// function.
func (s *System) Subscribe(l state.Listener) func() {
	unsub := s.store.Subscribe(l)
	s.reportSubscribers()
	return func() {
		unsub()
		s.reportSubscribers()
	}
}

func (s *System) reportSubscribers() {
	if s.gauge != nil {
		s.gauge(s.store.SubscriberCount())
	}
}

func (s *System) GetStatus() Status {
	s.mu.RLock()
	st := Status{
		Initialized: s.initialized,
		Seeded:      s.seeded,
	}
	s.mu.RUnlock()

	st.Connection = s.socket.State()
	st.Connected = st.Connection == controller.StateConnected

	sum := s.store.Summary()
	st.EquipmentCount = sum.EquipmentCount
	st.ConnectedCount = sum.ConnectedCount
	st.SessionActive = sum.SessionActive
	st.RecentEventCount = sum.RecentEventCount
	st.Subscribers = s.store.SubscriberCount()

	if s.seeder != nil {
		st.Watermark = s.seeder.Watermark()
	}
	if t := s.socket.LastEventAt(); !t.IsZero() {
		st.LastEventAt = &t
	}
	return st
}

// RefreshState wipes the store, replays history again and broadcasts a
// full sync. It reports whether seeding succeeded. Live events arriving
// meanwhile wait and are applied after the replay, in order.
func (s *System) RefreshState(ctx context.Context) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	seeded := false
	s.writer.Exclusive(func(apply func(event.Event) bool) {
		s.store.Reset()
		if s.seeder != nil {
			seeded = s.seeder.SeedWith(ctx, apply)
		}

		s.mu.Lock()
		s.seeded = seeded
		s.mu.Unlock()

		s.store.NotifyListeners(state.KindFullSync, "refresh", nil)
	})
	s.logger.Info().Bool("seeded", seeded).Msg("state refreshed from history")
	return seeded
}

// ClearSession drops the current session and broadcasts the change.
func (s *System) ClearSession() {
	s.writer.Exclusive(func(func(event.Event) bool) {
		s.store.ClearSession()
		s.store.NotifyListeners(state.KindSession, "session-cleared", &state.Change{
			Path:    "currentSession",
			Summary: "Session cleared",
		})
	})
}

// Reset wipes all state and broadcasts a full sync.
func (s *System) Reset() {
	s.writer.Exclusive(func(func(event.Event) bool) {
		s.store.Reset()
		s.store.NotifyListeners(state.KindFullSync, "reset", nil)
	})
}
