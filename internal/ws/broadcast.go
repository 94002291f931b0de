// Package ws serves the dashboard: a websocket fan-out of state envelopes
// and a small JSON API over the observatory system.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/observatory-dash/backend/internal/state"
	"github.com/rs/zerolog"
)

// ErrTooManyConnections is returned by AddClient when the client limit is
// reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const (
	writeWait         = 10 * time.Second
	defaultSendBuffer = 64
)

// Snapshotter provides the state sent to new clients and on heartbeats.
type Snapshotter interface {
	GetState() state.UnifiedState
}

// Recorder observes the client set.
type Recorder interface {
	SetDashboardClients(n int)
	SlowClientDropped()
	ObserveBroadcast(bytes int)
}

type nopRecorder struct{}

func (nopRecorder) SetDashboardClients(int) {}
func (nopRecorder) SlowClientDropped()      {}
func (nopRecorder) ObserveBroadcast(int)    {}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.logger.Debug().Err(err).Str("client", c.id.String()).Msg("ws write failed")
			c.b.RemoveClient(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

type BroadcastOptions struct {
	// SendBuffer is the per-client queue length. A client whose queue is
	// full is disconnected.
	SendBuffer int
	// MaxClients caps concurrent clients. Zero means unlimited.
	MaxClients int
	// Heartbeat is the interval of heartbeat envelopes. Zero disables them.
	Heartbeat time.Duration
}

// Broadcaster is a state.Listener that forwards every envelope to all
// connected dashboard clients. Publish never blocks on the network.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool

	source   Snapshotter
	opts     BroadcastOptions
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewBroadcaster(source Snapshotter, opts BroadcastOptions, logger zerolog.Logger) *Broadcaster {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		source:   source,
		opts:     opts,
		recorder: nopRecorder{},
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if opts.Heartbeat > 0 {
		go b.heartbeatLoop(opts.Heartbeat)
	}
	return b
}

// SetRecorder installs client metrics. Call before AddClient.
func (b *Broadcaster) SetRecorder(r Recorder) {
	if r != nil {
		b.recorder = r
	}
}

// AddClient registers conn and queues a fullSync envelope carrying the
// current state. The snapshot is queued before the client becomes visible
// to Publish, so it is always the first envelope the client receives.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		id:   uuid.New(),
		conn: conn,
		b:    b,
		send: make(chan []byte, b.opts.SendBuffer),
	}

	b.mu.Lock()
	if b.opts.MaxClients > 0 && len(b.clients) >= b.opts.MaxClients {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	data, err := json.Marshal(b.envelope(state.KindFullSync, "client-connected"))
	if err == nil {
		c.send <- data
	} else {
		b.logger.Error().Err(err).Msg("marshal initial sync")
	}
	b.clients[c] = true
	n := len(b.clients)
	b.mu.Unlock()
	b.recorder.SetDashboardClients(n)

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	if ok {
		delete(b.clients, c)
		close(c.send)
	}
	n := len(b.clients)
	b.mu.Unlock()
	if ok {
		b.recorder.SetDashboardClients(n)
	}
}

// Publish is the state.Listener.
func (b *Broadcaster) Publish(env state.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		b.logger.Error().Err(err).Str("reason", env.UpdateReason).Msg("broadcast marshal error")
		return
	}
	b.recorder.ObserveBroadcast(len(data))

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn().Str("client", c.id.String()).Msg("ws client too slow, disconnecting")
		b.recorder.SlowClientDropped()
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) envelope(kind state.UpdateKind, reason string) state.Envelope {
	return state.Envelope{
		SchemaVersion: state.SchemaVersion,
		Timestamp:     b.now(),
		UpdateKind:    kind,
		UpdateReason:  reason,
		State:         b.source.GetState(),
	}
}

func (b *Broadcaster) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if b.ClientCount() == 0 {
				continue
			}
			b.Publish(b.envelope(state.KindHeartbeat, "tick"))
		}
	}
}

// Stop ends the heartbeat and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
		b.recorder.SetDashboardClients(0)
	})
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
