// Package natspub republishes state envelopes onto a NATS subject so other
// services can follow the observatory without a websocket.
package natspub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/observatory-dash/backend/internal/config"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/rs/zerolog"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// FailureRecorder counts failed publishes.
type FailureRecorder interface {
	PublishFailed()
}

// Publisher is a state.Listener. Each envelope goes to
// "<subject>.<updateKind>". Publishing is buffered by the NATS client, so
// the listener never blocks on the network.
type Publisher struct {
	conn     Conn
	subject  string
	recorder FailureRecorder
	logger   zerolog.Logger
}

func New(conn Conn, subject string, logger zerolog.Logger) *Publisher {
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// Connect dials the configured server and returns a ready publisher.
func Connect(cfg config.NATSConfig, logger zerolog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, errors.New("nats publishing is disabled")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("observatory-state"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("nats publisher connected")
	return New(nc, cfg.Subject, logger), nil
}

// SetRecorder installs an optional failure counter.
func (p *Publisher) SetRecorder(r FailureRecorder) {
	p.recorder = r
}

// Subject returns the subject an envelope of kind is published on.
func (p *Publisher) Subject(kind state.UpdateKind) string {
	return p.subject + "." + string(kind)
}

// Publish is the state.Listener.
func (p *Publisher) Publish(env state.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		p.fail(err, env)
		return
	}
	if err := p.conn.Publish(p.Subject(env.UpdateKind), data); err != nil {
		p.fail(err, env)
	}
}

func (p *Publisher) fail(err error, env state.Envelope) {
	if p.recorder != nil {
		p.recorder.PublishFailed()
	}
	p.logger.Warn().Err(err).Str("reason", env.UpdateReason).Msg("failed to publish state envelope")
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
