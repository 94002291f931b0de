package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Listener receives every Envelope published by the store. Listeners are
// called synchronously in subscription order; a slow listener delays the
// ones after it and the next inbound event.
type Listener func(Envelope)

type subscription struct {
	id       uuid.UUID
	listener Listener
}

// Store owns the single UnifiedState. Reads return deep copies; writes go
// through the structured mutation methods.
type Store struct {
	mu    sync.RWMutex
	state UnifiedState

	subMu sync.RWMutex
	subs  []subscription

	now    func() time.Time
	logger zerolog.Logger
}

func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		state:  emptyState(),
		now:    time.Now,
		logger: logger,
	}
}

func emptyState() UnifiedState {
	return UnifiedState{
		Equipment:    []EquipmentDevice{},
		RecentEvents: []RecentEvent{},
	}
}

// SetClock overrides the time source used for timestamps. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) GetState() UnifiedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// SetState replaces the whole state. Nil slices are normalised to empty.
func (s *Store) SetState(full UnifiedState) {
	c := full.Clone()
	if len(c.RecentEvents) > MaxRecentEvents {
		c.RecentEvents = c.RecentEvents[:MaxRecentEvents]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = c
}

// Reset wipes all state back to the boot-time empty value.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = emptyState()
}

// ClearSession drops the current session, leaving equipment and events.
func (s *Store) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentSession = nil
}

// UpdateSession creates the session on first use and merges p into it.
func (s *Store) UpdateSession(p SessionPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentSession == nil {
		s.state.CurrentSession = &Session{}
	}
	s.state.CurrentSession.Apply(p)
}

// UpsertEquipment inserts or updates a device keyed by ID. For an existing
// device name, connected and status are overwritten and details are merged
// shallowly; lastChange is always stamped.
func (s *Store) UpsertEquipment(d EquipmentDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for i := range s.state.Equipment {
		existing := &s.state.Equipment[i]
		if existing.ID != d.ID {
			continue
		}
		existing.Name = d.Name
		existing.Connected = d.Connected
		existing.Status = d.Status
		if existing.Details == nil {
			existing.Details = make(map[string]any, len(d.Details))
		}
		for k, v := range d.Details {
			existing.Details[k] = cloneValue(v)
		}
		existing.LastChange = now
		return
	}

	added := d.clone()
	if added.Details == nil {
		added.Details = map[string]any{}
	}
	added.LastChange = now
	s.state.Equipment = append(s.state.Equipment, added)
}

// Equipment returns a copy of the device with the given id.
func (s *Store) Equipment(id string) (EquipmentDevice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.state.Equipment {
		if d.ID == id {
			return d.clone(), true
		}
	}
	return EquipmentDevice{}, false
}

// AddRecentEvent prepends e and truncates to MaxRecentEvents.
func (s *Store) AddRecentEvent(e RecentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Meta = cloneMap(e.Meta)
	events := make([]RecentEvent, 0, MaxRecentEvents)
	events = append(events, e)
	events = append(events, s.state.RecentEvents...)
	if len(events) > MaxRecentEvents {
		events = events[:MaxRecentEvents]
	}
	s.state.RecentEvents = events
}

// Subscribe registers l and returns a function that removes it. The
// returned function is safe to call more than once.
func (s *Store) Subscribe(l Listener) func() {
	id := uuid.New()
	s.subMu.Lock()
	s.subs = append(s.subs, subscription{id: id, listener: l})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subs)
}

// NotifyListeners delivers an envelope carrying a fresh snapshot to every
// listener. A panicking listener is logged and skipped.
func (s *Store) NotifyListeners(kind UpdateKind, reason string, changed *Change) {
	s.mu.RLock()
	env := Envelope{
		SchemaVersion: SchemaVersion,
		Timestamp:     s.now(),
		UpdateKind:    kind,
		UpdateReason:  reason,
		Changed:       changed,
		State:         s.state.Clone(),
	}
	s.mu.RUnlock()

	s.subMu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()

	for _, sub := range subs {
		s.deliver(sub, env)
	}
}

func (s *Store) deliver(sub subscription, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("subscriber", sub.id.String()).
				Str("reason", env.UpdateReason).
				Err(fmt.Errorf("%v", r)).
				Msg("subscriber panicked")
		}
	}()
	// Each listener gets its own copy so one cannot corrupt another's view.
	sub.listener(Envelope{
		SchemaVersion: env.SchemaVersion,
		Timestamp:     env.Timestamp,
		UpdateKind:    env.UpdateKind,
		UpdateReason:  env.UpdateReason,
		Changed:       env.Changed.Clone(),
		State:         env.State.Clone(),
	})
}

// Summary is a cheap aggregate used for status and logging.
type Summary struct {
	EquipmentCount   int  `json:"equipmentCount"`
	ConnectedCount   int  `json:"connectedCount"`
	SessionActive    bool `json:"sessionActive"`
	RecentEventCount int  `json:"recentEventCount"`
}

func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{
		EquipmentCount:   len(s.state.Equipment),
		SessionActive:    s.state.CurrentSession.Active(),
		RecentEventCount: len(s.state.RecentEvents),
	}
	for _, d := range s.state.Equipment {
		if d.Connected {
			sum.ConnectedCount++
		}
	}
	return sum
}
