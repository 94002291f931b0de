package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/observatory-dash/backend/internal/state"
)

func TestWSClientReceivesEnvelopes(t *testing.T) {
	authCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		env := state.Envelope{
			SchemaVersion: state.SchemaVersion,
			UpdateKind:    state.KindFullSync,
			UpdateReason:  "client-connected",
			State:         state.UnifiedState{Equipment: []state.EquipmentDevice{}, RecentEvents: []state.RecentEvent{}},
		}
		data, _ := json.Marshal(env)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, data)
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), "tok")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, ok := c.Listen(ctx)().(WSConnectedMsg); !ok {
		t.Fatal("expected WSConnectedMsg")
	}
	msg, ok := c.ReadLoop()().(WSEnvelopeMsg)
	if !ok {
		t.Fatal("expected WSEnvelopeMsg")
	}
	if msg.Envelope.UpdateKind != state.KindFullSync {
		t.Errorf("updateKind = %q, want fullSync", msg.Envelope.UpdateKind)
	}
	if gotAuth := <-authCh; gotAuth != "Bearer tok" {
		t.Errorf("authorization = %q, want bearer token", gotAuth)
	}
}

func TestWSClientDialFailureRetries(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, ok := c.Listen(ctx)().(WSRetryMsg)
	if !ok {
		t.Fatal("expected WSRetryMsg")
	}
	if msg.Delay != reconnectBaseDelay {
		t.Errorf("first delay = %v, want %v", msg.Delay, reconnectBaseDelay)
	}
	if next := c.nextDelay(); next != 2*reconnectBaseDelay {
		t.Errorf("second delay = %v, want %v", next, 2*reconnectBaseDelay)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	c := NewWSClient("", "")
	var last time.Duration
	for i := 0; i < 20; i++ {
		last = c.nextDelay()
	}
	if last != reconnectMaxDelay {
		t.Errorf("delay = %v, want cap %v", last, reconnectMaxDelay)
	}
}

func TestReadLoopWithoutConnection(t *testing.T) {
	c := NewWSClient("", "")
	msg, ok := c.ReadLoop()().(WSDisconnectedMsg)
	if !ok || msg.Err == nil {
		t.Fatalf("expected WSDisconnectedMsg with error, got %#v", msg)
	}
}

func TestHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/api/state" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"currentSession":null,"equipment":[{"id":"mount","name":"Mount","connected":true}],"recentEvents":[]}`))
		case r.URL.Path == "/api/status" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"initialized":true,"connection":"connected","connected":true}`))
		case r.URL.Path == "/api/state/refresh" && r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"seeded":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok")

	st, err := c.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if len(st.Equipment) != 1 || st.Equipment[0].ID != "mount" {
		t.Errorf("unexpected equipment %+v", st.Equipment)
	}

	status, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.Connected {
		t.Error("expected connected status")
	}

	seeded, err := c.Refresh()
	if err != nil || !seeded {
		t.Errorf("Refresh = %v, %v; want true, nil", seeded, err)
	}

	bad := NewHTTPClient(srv.URL, "wrong")
	if _, err := bad.GetState(); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 error, got %v", err)
	}
}
