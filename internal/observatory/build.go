package observatory

import (
	"fmt"
	"time"

	"github.com/observatory-dash/backend/internal/config"
	"github.com/observatory-dash/backend/internal/controller"
	"github.com/observatory-dash/backend/internal/event"
	"github.com/observatory-dash/backend/internal/metrics"
	"github.com/observatory-dash/backend/internal/normalizer"
	"github.com/observatory-dash/backend/internal/seeder"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/rs/zerolog"
)

// BuildOptions tweak how Build assembles the system.
type BuildOptions struct {
	// Offline replaces the controller connection with a detached socket.
	// Events are then fed through Ingest, as the mock generator does.
	Offline bool
}

// Built is a wired System together with the parts callers may need.
type Built struct {
	*System
	Store      *state.Store
	Normalizer *normalizer.Normalizer
}

// Ingest applies one event as if it had arrived on the live socket.
func (b *Built) Ingest(ev event.Event) bool {
	return b.Normalizer.ProcessEvent(ev)
}

// Build wires store, normalizer, seeder and socket client from cfg. rec
// may be nil.
func Build(cfg *config.Config, rec *metrics.Recorder, opts BuildOptions, logger zerolog.Logger) (*Built, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("observatory timezone: %w", err)
	}

	store := state.NewStore(logger.With().Str("component", "store").Logger())
	norm := normalizer.New(store, normalizer.Options{
		Location:             loc,
		EndTimeMislabeledUTC: cfg.Controller.EndTimeMislabeledUTC,
		Recorder:             rec,
	}, logger.With().Str("component", "normalizer").Logger())

	var hs HistorySeeder
	if cfg.Seeding.Enabled && !opts.Offline {
		history := controller.NewHistoryClient(
			cfg.Controller.HistoryURL(),
			cfg.Controller.HistoryTimeout,
			loc,
			logger.With().Str("component", "history").Logger(),
		)
		sd := seeder.New(history, norm, store, cfg.Seeding.Limit,
			logger.With().Str("component", "seeder").Logger())
		sd.SetRecorder(rec)
		hs = sd
	}

	var socket Socket
	if opts.Offline {
		socket = detachedSocket{}
	} else {
		sc := controller.NewSocketClient(controller.SocketConfig{
			URL:                  cfg.Controller.EventsURL(),
			ReconnectDelay:       cfg.Controller.ReconnectDelay,
			MaxReconnectAttempts: cfg.Controller.MaxReconnectAttempts,
			ReconnectJitter:      cfg.Controller.ReconnectJitter,
			PingInterval:         cfg.Controller.PingInterval,
			Location:             loc,
		}, func(ev event.Event) {
			norm.ProcessEvent(ev)
		}, logger.With().Str("component", "socket").Logger())
		sc.SetHooks(controller.Hooks{
			OnStateChange: func(s controller.ConnState) {
				rec.ConnectionState(string(s))
			},
			OnDecodeError:        rec.DecodeError,
			OnReconnectScheduled: rec.ReconnectScheduled,
		})
		socket = sc
	}

	sys := New(store, norm, socket, hs, logger.With().Str("component", "observatory").Logger())
	sys.SetSubscriberGauge(rec.SetSubscribers)
	return &Built{System: sys, Store: store, Normalizer: norm}, nil
}

// detachedSocket stands in for the controller connection in offline mode.
type detachedSocket struct{}

func (detachedSocket) Connect()                    {}
func (detachedSocket) Disconnect()                 {}
func (detachedSocket) State() controller.ConnState { return controller.StateDisabled }
func (detachedSocket) LastEventAt() time.Time      { return time.Time{} }
