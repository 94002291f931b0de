// Package normalizer interprets classified controller events and applies
// them to the state store. Live and replayed history events take the same
// path.
package normalizer

import (
	"fmt"
	"sync"
	"time"

	"github.com/observatory-dash/backend/internal/event"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/rs/zerolog"
)

// Recorder observes normalizer outcomes. The metrics package implements it.
type Recorder interface {
	EventProcessed(domain string)
	EventUnknown()
	EventFailed()
}

type nopRecorder struct{}

func (nopRecorder) EventProcessed(string) {}
func (nopRecorder) EventUnknown()         {}
func (nopRecorder) EventFailed()          {}

type Options struct {
	// Location is the observatory timezone.
	Location *time.Location
	// EndTimeMislabeledUTC re-reads a Z-suffixed TargetEndTime as wall-clock
	// time in Location.
	EndTimeMislabeledUTC bool
	Recorder             Recorder
	Now                  func() time.Time
}

// Normalizer is the single writer for the store. ProcessEvent calls are
// serialized so one event is fully applied before the next begins; other
// writers join the same order through Exclusive.
type Normalizer struct {
	mu     sync.Mutex
	store  *state.Store
	opts   Options
	logger zerolog.Logger
}

func New(store *state.Store, opts Options, logger zerolog.Logger) *Normalizer {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Normalizer{store: store, opts: opts, logger: logger}
}

// outcome is what a rule reports back after mutating the store.
type outcome struct {
	kind    state.UpdateKind
	reason  string
	path    string
	summary string
	meta    map[string]any
}

// ProcessEvent applies ev to the store, records a recent event and
// notifies subscribers once. It reports whether the event was understood.
// Unknown kinds leave the state untouched; a failure inside one event is
// logged and never propagates.
func (n *Normalizer) ProcessEvent(ev event.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.process(ev)
}

// Exclusive runs fn as the single writer. Live events wait until fn
// returns. apply processes an event without taking the lock again and is
// only valid inside fn.
func (n *Normalizer) Exclusive(fn func(apply func(event.Event) bool)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(n.process)
}

func (n *Normalizer) process(ev event.Event) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			n.opts.Recorder.EventFailed()
			n.logger.Error().
				Err(fmt.Errorf("%v", r)).
				Str("type", ev.Type).
				Msg("failed to normalize event")
			handled = false
		}
	}()

	if !ev.Kind.Known() {
		n.opts.Recorder.EventUnknown()
		n.logger.Info().Str("type", ev.Type).Msg("ignoring unrecognized controller event")
		return false
	}

	var out outcome
	switch ev.Kind.Domain {
	case event.DomainGuiding:
		out = n.guiding(ev)
	case event.DomainSession:
		out = n.session(ev)
	case event.DomainEquipment:
		out = n.equipment(ev)
	case event.DomainImage:
		out = n.image(ev)
	case event.DomainStack:
		out = n.stack(ev)
	}

	n.store.AddRecentEvent(state.RecentEvent{
		Time:    ev.Time,
		Type:    recentType(ev.Kind.Domain),
		Summary: out.summary,
		Meta:    out.meta,
	})
	n.store.NotifyListeners(out.kind, out.reason, &state.Change{
		Path:    out.path,
		Summary: out.summary,
		Meta:    out.meta,
	})
	n.opts.Recorder.EventProcessed(ev.Kind.Domain.String())

	n.logger.Debug().
		Str("type", ev.Type).
		Str("reason", out.reason).
		Msg(out.summary)
	return true
}

var recentTypes = map[event.Domain]string{
	event.DomainGuiding:   "GUIDING",
	event.DomainSession:   "SESSION",
	event.DomainEquipment: "EQUIPMENT",
	event.DomainImage:     "IMAGE",
	event.DomainStack:     "STACK",
}

func recentType(d event.Domain) string {
	if t, ok := recentTypes[d]; ok {
		return t
	}
	return "UNKNOWN"
}

// meta builds a Meta map from alternating key/value pairs, skipping nil
// values. The raw type is always included.
func meta(ev event.Event, kv ...any) map[string]any {
	m := map[string]any{"event": ev.Type}
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		if k == "" || kv[i+1] == nil {
			continue
		}
		m[k] = kv[i+1]
	}
	return m
}
