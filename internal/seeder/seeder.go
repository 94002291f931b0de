// Package seeder bootstraps the state store from the controller's event
// history before live events are processed.
package seeder

import (
	"context"
	"sync"
	"time"

	"github.com/observatory-dash/backend/internal/event"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/rs/zerolog"
)

// DefaultLimit is how many of the most recent history entries are replayed.
const DefaultLimit = 100

// HistorySource is satisfied by controller.HistoryClient.
type HistorySource interface {
	FetchHistory(ctx context.Context) ([]event.Event, error)
}

// Processor is satisfied by normalizer.Normalizer.
type Processor interface {
	ProcessEvent(ev event.Event) bool
}

// Recorder observes seeding outcomes.
type Recorder interface {
	SeedCompleted(replayed int, ok bool)
}

// Watermark identifies the last replayed event.
type Watermark struct {
	Time time.Time `json:"time"`
	Type string    `json:"type"`
}

type Seeder struct {
	history   HistorySource
	processor Processor
	store     *state.Store
	limit     int
	recorder  Recorder
	logger    zerolog.Logger

	mu        sync.Mutex
	watermark *Watermark
}

func New(history HistorySource, processor Processor, store *state.Store, limit int, logger zerolog.Logger) *Seeder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Seeder{
		history:   history,
		processor: processor,
		store:     store,
		limit:     limit,
		logger:    logger,
	}
}

// SetRecorder installs an optional outcome observer.
func (s *Seeder) SetRecorder(r Recorder) {
	s.recorder = r
}

// SeedFromHistory replays the newest history entries, oldest first,
// through the processor. It reports false when the history is unavailable
// or empty; the store is then left as it was.
func (s *Seeder) SeedFromHistory(ctx context.Context) bool {
	return s.SeedWith(ctx, s.processor.ProcessEvent)
}

// SeedWith is SeedFromHistory with apply in place of the processor, for
// callers that already hold the single writer.
func (s *Seeder) SeedWith(ctx context.Context, apply func(event.Event) bool) bool {
	start := time.Now()
	events, err := s.history.FetchHistory(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("event history unavailable, starting with empty state")
		s.record(0, false)
		return false
	}
	if len(events) == 0 {
		s.logger.Warn().Msg("event history is empty, starting with empty state")
		s.record(0, false)
		return false
	}

	if len(events) > s.limit {
		events = events[len(events)-s.limit:]
	}

	handled := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			s.logger.Warn().Err(ctx.Err()).Int("replayed", handled).Msg("seeding interrupted")
			break
		}
		if apply(ev) {
			handled++
		}
		s.mu.Lock()
		s.watermark = &Watermark{Time: ev.Time, Type: ev.Type}
		s.mu.Unlock()
	}

	sum := s.store.Summary()
	s.logger.Info().
		Int("history", len(events)).
		Int("applied", handled).
		Int("equipment", sum.EquipmentCount).
		Int("connected", sum.ConnectedCount).
		Bool("sessionActive", sum.SessionActive).
		Int("recentEvents", sum.RecentEventCount).
		Dur("took", time.Since(start)).
		Msg("seeded state from history")

	s.record(handled, true)
	return true
}

// Watermark returns the last replayed event, nil before a successful seed.
func (s *Seeder) Watermark() *Watermark {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watermark == nil {
		return nil
	}
	w := *s.watermark
	return &w
}

func (s *Seeder) record(n int, ok bool) {
	if s.recorder != nil {
		s.recorder.SeedCompleted(n, ok)
	}
}
