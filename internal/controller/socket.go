// Package controller talks to the device-control application: a
// long-lived websocket for live events and an HTTP endpoint for event
// history.
package controller

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/observatory-dash/backend/internal/event"
	"github.com/rs/zerolog"
)

// ConnState is the socket client's connection state.
type ConnState string

const (
	StateDisconnected       ConnState = "disconnected"
	StateConnecting         ConnState = "connecting"
	StateConnected          ConnState = "connected"
	StateReconnectScheduled ConnState = "reconnect-scheduled"
	StateDisabled           ConnState = "disabled"
)

const (
	writeTimeout        = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	handshakeTimeout    = 10 * time.Second
)

// Handler receives every decoded event, in arrival order, from a single
// goroutine.
type Handler func(event.Event)

// Hooks are optional observers. They run with the client's lock held and
// must not call back into the client.
type Hooks struct {
	OnStateChange        func(ConnState)
	OnDecodeError        func(error)
	OnReconnectScheduled func(attempt int, delay time.Duration)
}

type SocketConfig struct {
	URL            string
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed attempts. Zero means
	// retry forever.
	MaxReconnectAttempts int
	ReconnectJitter      time.Duration
	PingInterval         time.Duration
	Location             *time.Location
	Header               http.Header
}

// SocketClient maintains the live event connection. A closed or failed
// connection schedules exactly one reconnect after a fixed delay until
// Disconnect is called.
type SocketClient struct {
	cfg     SocketConfig
	handler Handler
	decoder event.Decoder
	dialer  *websocket.Dialer
	hooks   Hooks
	logger  zerolog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     ConnState
	conn      *websocket.Conn
	timer     *time.Timer
	attempts  int
	gen       uint64
	lastEvent time.Time
}

func NewSocketClient(cfg SocketConfig, handler Handler, logger zerolog.Logger) *SocketClient {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SocketClient{
		cfg:     cfg,
		handler: handler,
		decoder: event.Decoder{Location: cfg.Location},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
	}
}

// SetHooks installs observers. Call before Connect.
func (c *SocketClient) SetHooks(h Hooks) {
	c.mu.Lock()
	c.hooks = h
	c.mu.Unlock()
}

// Connect starts a connection attempt in the background. It is a no-op
// while connecting, connected or disabled.
func (c *SocketClient) Connect() {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateDisabled:
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	gen := c.gen
	c.setState(StateConnecting)
	c.mu.Unlock()

	go c.run(gen)
}

// Disconnect closes the connection and disables reconnection for good.
func (c *SocketClient) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisabled {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	c.setState(StateDisabled)
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	c.logger.Info().Msg("controller socket disconnected")
}

func (c *SocketClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SocketClient) Connected() bool {
	return c.State() == StateConnected
}

// LastEventAt is the receive time of the last decoded event, zero if none.
func (c *SocketClient) LastEventAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEvent
}

func (c *SocketClient) setState(s ConnState) {
	c.state = s
	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(s)
	}
}

func (c *SocketClient) run(gen uint64) {
	conn, _, err := c.dialer.DialContext(c.ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.cfg.URL).Msg("controller dial failed")
		c.handleClose(gen, err)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state == StateDisabled {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.setState(StateConnected)
	c.mu.Unlock()

	c.logger.Info().Str("url", c.cfg.URL).Msg("controller socket connected")

	done := make(chan struct{})
	go c.pingLoop(conn, done)
	err = c.readLoop(conn)
	close(done)
	conn.Close()

	c.handleClose(gen, err)
}

func (c *SocketClient) readLoop(conn *websocket.Conn) error {
	pongWait := 2 * c.cfg.PingInterval
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
}

func (c *SocketClient) dispatch(data []byte) {
	receivedAt := c.now()
	ev, err := c.decoder.Decode(data, receivedAt)
	if err != nil {
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed controller frame")
		c.mu.Lock()
		if c.hooks.OnDecodeError != nil {
			c.hooks.OnDecodeError(err)
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.lastEvent = receivedAt
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("type", ev.Type).Msg("event handler panicked")
		}
	}()
	if c.handler != nil {
		c.handler(ev)
	}
}

func (c *SocketClient) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// handleClose is the single path for errors and closes. It schedules a
// reconnect unless one is already pending, the client is disabled or the
// close belongs to a superseded connection.
func (c *SocketClient) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state == StateDisabled {
		return
	}
	c.conn = nil
	if c.timer != nil {
		return
	}
	if c.cfg.MaxReconnectAttempts > 0 && c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Error().Int("attempts", c.attempts).Msg("controller unreachable, giving up reconnecting")
		c.setState(StateDisconnected)
		return
	}

	c.attempts++
	delay := c.reconnectDelay()
	c.timer = time.AfterFunc(delay, c.reconnect)
	c.setState(StateReconnectScheduled)
	if c.hooks.OnReconnectScheduled != nil {
		c.hooks.OnReconnectScheduled(c.attempts, delay)
	}

	l := c.logger.Info().Int("attempt", c.attempts).Dur("delay", delay)
	if cause != nil {
		l = l.Err(cause)
	}
	l.Msg("controller connection closed, reconnect scheduled")
}

func (c *SocketClient) reconnectDelay() time.Duration {
	d := c.cfg.ReconnectDelay
	if c.cfg.ReconnectJitter > 0 {
		d += rand.N(c.cfg.ReconnectJitter)
	}
	return d
}

func (c *SocketClient) reconnect() {
	c.mu.Lock()
	if c.state != StateReconnectScheduled {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	c.Connect()
}

func (c *SocketClient) pendingReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}
