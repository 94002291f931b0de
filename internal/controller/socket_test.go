package controller

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/observatory-dash/backend/internal/event"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// controllerServer accepts websocket connections, writes frames and
// optionally hangs up.
func controllerServer(t *testing.T, frames []string, hangup bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if hangup {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSocketClientDeliversEvents(t *testing.T) {
	srv, _ := controllerServer(t, []string{
		`{"Response":{"Event":"GUIDER-START"},"Success":true}`,
		`not json`,
		`{"Event":"IMAGE-SAVE"}`,
	}, false)

	rec := &recorder{}
	var decodeErrors atomic.Int32
	c := NewSocketClient(SocketConfig{URL: wsURL(srv), ReconnectDelay: time.Hour}, rec.handle, zerolog.Nop())
	c.SetHooks(Hooks{OnDecodeError: func(error) { decodeErrors.Add(1) }})
	c.Connect()
	defer c.Disconnect()

	require.Eventually(t, func() bool { return len(rec.types()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"GUIDER-START", "IMAGE-SAVE"}, rec.types())
	assert.Equal(t, int32(1), decodeErrors.Load())
	assert.True(t, c.Connected())
	assert.False(t, c.LastEventAt().IsZero())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMalformedFrameLoggedAtDefaultLevel(t *testing.T) {
	srv, _ := controllerServer(t, []string{`not json`, `{"Event":"GUIDER-STOP"}`}, false)

	out := &syncBuffer{}
	logger := zerolog.New(out).Level(zerolog.InfoLevel)
	rec := &recorder{}
	c := NewSocketClient(SocketConfig{URL: wsURL(srv), ReconnectDelay: time.Hour}, rec.handle, logger)
	c.Connect()
	defer c.Disconnect()

	require.Eventually(t, func() bool { return len(rec.types()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "dropping malformed controller frame")
	assert.Contains(t, out.String(), `"level":"warn"`)
}

func TestSocketClientRecoversHandlerPanic(t *testing.T) {
	srv, _ := controllerServer(t, []string{`{"Event":"BOOM"}`, `{"Event":"GUIDER-STOP"}`}, false)

	rec := &recorder{}
	handler := func(ev event.Event) {
		if ev.Type == "BOOM" {
			panic("handler exploded")
		}
		rec.handle(ev)
	}
	c := NewSocketClient(SocketConfig{URL: wsURL(srv), ReconnectDelay: time.Hour}, handler, zerolog.Nop())
	c.Connect()
	defer c.Disconnect()

	require.Eventually(t, func() bool { return len(rec.types()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateConnected, c.State())
}

func TestSocketClientReconnectsAfterClose(t *testing.T) {
	srv, conns := controllerServer(t, []string{`{"Event":"MOUNT-CONNECTED"}`}, true)

	var scheduled atomic.Int32
	rec := &recorder{}
	c := NewSocketClient(SocketConfig{URL: wsURL(srv), ReconnectDelay: 20 * time.Millisecond}, rec.handle, zerolog.Nop())
	c.SetHooks(Hooks{OnReconnectScheduled: func(int, time.Duration) { scheduled.Add(1) }})
	c.Connect()
	defer c.Disconnect()

	require.Eventually(t, func() bool { return conns.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, scheduled.Load(), int32(2))
	assert.GreaterOrEqual(t, len(rec.types()), 2)
}

func TestSocketClientDialFailureSchedulesReconnect(t *testing.T) {
	c := NewSocketClient(SocketConfig{URL: "ws://127.0.0.1:1/v2/socket", ReconnectDelay: time.Hour}, nil, zerolog.Nop())
	c.Connect()
	defer c.Disconnect()

	require.Eventually(t, func() bool { return c.State() == StateReconnectScheduled }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.pendingReconnect())
}

func TestRepeatedCloseSchedulesSingleTimer(t *testing.T) {
	c := NewSocketClient(SocketConfig{URL: "ws://unused", ReconnectDelay: time.Hour}, nil, zerolog.Nop())
	var scheduled atomic.Int32
	c.SetHooks(Hooks{OnReconnectScheduled: func(int, time.Duration) { scheduled.Add(1) }})

	c.mu.Lock()
	c.state = StateConnected
	gen := c.gen
	c.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.handleClose(gen, errors.New("connection reset"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), scheduled.Load())
	assert.True(t, c.pendingReconnect())
	assert.Equal(t, StateReconnectScheduled, c.State())

	c.Disconnect()
	assert.False(t, c.pendingReconnect())
	assert.Equal(t, StateDisabled, c.State())
}

func TestStaleCloseIsIgnored(t *testing.T) {
	c := NewSocketClient(SocketConfig{URL: "ws://unused", ReconnectDelay: time.Hour}, nil, zerolog.Nop())
	c.mu.Lock()
	c.state = StateConnected
	c.gen = 2
	c.mu.Unlock()

	c.handleClose(1, errors.New("old connection"))
	assert.False(t, c.pendingReconnect())
	assert.Equal(t, StateConnected, c.State())
}

func TestMaxReconnectAttempts(t *testing.T) {
	c := NewSocketClient(SocketConfig{
		URL:                  "ws://unused",
		ReconnectDelay:       time.Hour,
		MaxReconnectAttempts: 2,
	}, nil, zerolog.Nop())
	defer c.Disconnect()

	c.mu.Lock()
	c.attempts = 2
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	c.handleClose(gen, errors.New("refused"))
	assert.False(t, c.pendingReconnect())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDisconnectDisablesReconnect(t *testing.T) {
	c := NewSocketClient(SocketConfig{URL: "ws://unused", ReconnectDelay: time.Hour}, nil, zerolog.Nop())
	c.Disconnect()
	c.Disconnect()

	c.Connect()
	assert.Equal(t, StateDisabled, c.State())

	c.handleClose(c.gen, errors.New("late close"))
	assert.False(t, c.pendingReconnect())
}

func TestReconnectJitterBounds(t *testing.T) {
	c := NewSocketClient(SocketConfig{ReconnectDelay: time.Second, ReconnectJitter: 500 * time.Millisecond}, nil, zerolog.Nop())
	for i := 0; i < 100; i++ {
		d := c.reconnectDelay()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}
