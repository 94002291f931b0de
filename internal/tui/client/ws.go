// Package client talks to the dashboard server for the terminal viewer.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/observatory-dash/backend/internal/state"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSClient manages the websocket connection to the dashboard server.
type WSClient struct {
	url   string
	token string

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	pingCtx context.CancelFunc
	attempt int
}

func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token}
}

// WSConnectedMsg is sent when the websocket connects.
type WSConnectedMsg struct{}

// WSDisconnectedMsg is sent when the connection drops.
type WSDisconnectedMsg struct{ Err error }

// WSRetryMsg reports a failed dial before the next attempt.
type WSRetryMsg struct {
	Err   error
	Delay time.Duration
}

// WSEnvelopeMsg delivers one state envelope.
type WSEnvelopeMsg struct{ Envelope state.Envelope }

// Listen returns a command that dials once. On failure it sleeps for the
// current backoff and reports WSRetryMsg; the model calls Listen again.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		if ctx.Err() != nil {
			return nil
		}

		header := http.Header{}
		if c.token != "" {
			header.Set("Authorization", "Bearer "+c.token)
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
		if err != nil {
			delay := c.nextDelay()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			return WSRetryMsg{Err: err, Delay: delay}
		}

		c.mu.Lock()
		if c.pingCtx != nil {
			c.pingCtx()
		}
		pingCtx, pingCancel := context.WithCancel(ctx)
		c.conn = conn
		c.pingCtx = pingCancel
		c.attempt = 0
		c.mu.Unlock()

		go c.pingLoop(pingCtx, conn)
		return WSConnectedMsg{}
	}
}

func (c *WSClient) nextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	delay := reconnectBaseDelay << c.attempt
	if delay > reconnectMaxDelay || delay <= 0 {
		delay = reconnectMaxDelay
	} else {
		c.attempt++
	}
	return delay
}

// ReadLoop returns a command that reads the next envelope. It should be
// re-issued after every WSEnvelopeMsg.
func (c *WSClient) ReadLoop() tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: fmt.Errorf("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return WSDisconnectedMsg{Err: err}
			}

			var env state.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			return WSEnvelopeMsg{Envelope: env}
		}
	}
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close drops the current connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
