package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tests run without network I/O: clients have a nil websocket.Conn and
// the hub guards against nil on eviction.

// newTestHub returns a hub with small buffers for deterministic tests.
func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.Default(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		conn:       nil,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     slog.Default(),
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c1 := newTestClient(hub, "c1", 4)
	c2 := newTestClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	msg := []byte(`{"type":"route_changed","data":{"route":"headphones"}}`)

	// BroadcastBytes is non-blocking and may drop; feed the hub directly.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, string(got), string(msg))
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for hub to stop")
	}
	if n := hub.clientCount(); n != 0 {
		t.Fatalf("expected no clients after shutdown, got %d", n)
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 1, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	// Pre-fill slow client buffer to simulate it being stuck.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"mute_changed","data":{"target":0,"name":"master","muted":true}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", string(got), string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}

	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.clientCount(); n != 1 {
		t.Fatalf("expected 1 remaining client, got %d", n)
	}
}

// readEnvelope decodes a frame queued on the hub's broadcast channel.
func readEnvelope(t *testing.T, ch <-chan []byte) map[string]any {
	t.Helper()
	select {
	case raw := <-ch:
		var env map[string]any
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal %q: %v", raw, err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for broadcast frame")
		return nil
	}
}

func TestRunBroadcaster_CoalescesUnforcedSliderLevels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 16)
	src := make(chan StateBroadcast, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(ctx, hub, src, slog.Default())
	}()

	src <- BroadcastSliderLevels{Levels: []int{10, 0}}
	src <- BroadcastSliderLevels{Levels: []int{20, 0}}
	src <- BroadcastSliderLevels{Levels: []int{30, 0}}
	src <- BroadcastMuteChanged{Target: 0, Name: "master", Muted: true, ByLevel: true}

	// The pending levels are flushed ahead of the mute change, latest wins.
	env := readEnvelope(t, hub.broadcast)
	if env["type"] != "slider_levels" {
		t.Fatalf("first frame type = %v, want slider_levels", env["type"])
	}
	data := env["data"].(map[string]any)
	levels := data["levels"].([]any)
	if levels[0].(float64) != 30 {
		t.Fatalf("coalesced levels = %v, want latest [30 0]", levels)
	}
	if _, ok := env["ts"]; !ok {
		t.Fatalf("expected ts in envelope")
	}

	env = readEnvelope(t, hub.broadcast)
	if env["type"] != "mute_changed" {
		t.Fatalf("second frame type = %v, want mute_changed", env["type"])
	}
	data = env["data"].(map[string]any)
	if data["name"] != "master" || data["muted"] != true || data["by_level"] != true {
		t.Fatalf("unexpected mute_changed data: %v", data)
	}

	select {
	case raw := <-hub.broadcast:
		t.Fatalf("unexpected extra frame %s", raw)
	case <-time.After(2 * wsSliderCoalesceWindow):
	}

	close(src)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcaster did not stop after source closed")
	}
}

func TestRunBroadcaster_ForcedLevelsAndRouteAreImmediate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 16)
	src := make(chan StateBroadcast, 8)
	go RunBroadcaster(ctx, hub, src, slog.Default())

	src <- BroadcastRouteChanged{Route: "headphones"}
	env := readEnvelope(t, hub.broadcast)
	if env["type"] != "route_changed" {
		t.Fatalf("type = %v, want route_changed", env["type"])
	}
	if env["data"].(map[string]any)["route"] != "headphones" {
		t.Fatalf("unexpected route data: %v", env["data"])
	}

	src <- BroadcastSliderLevels{Levels: []int{50, 0}, Forced: true}
	env = readEnvelope(t, hub.broadcast)
	if env["type"] != "slider_levels" || env["data"].(map[string]any)["forced"] != true {
		t.Fatalf("unexpected forced frame: %v", env)
	}
}

func TestServer_SendsStateInitFromLoopSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 1)
	srv := NewServer(slog.Default(), events, HubConfig{})
	go srv.Hub().Run(ctx)

	// Stand-in for the control loop answering snapshot requests.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				req, ok := ev.(RequestStateSnapshot)
				if !ok {
					continue
				}
				req.Reply <- StateSnapshot{
					Levels:      []int{50, 0},
					LevelsKnown: true,
					Targets:     []TargetSnapshot{{Name: "master", Muted: true, MutedByLevel: true}},
					Route:       "speakers",
					Reports:     1,
				}
			}
		}
	}()

	mux := http.NewServeMux()
	srv.Register(mux, "/ws/state")
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/state"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env struct {
		Type string            `json:"type"`
		Data wsMessageSnapshot `json:"data"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read state_init: %v", err)
	}
	if env.Type != "state_init" {
		t.Fatalf("type = %q, want state_init", env.Type)
	}
	if env.Data.Route != "speakers" || len(env.Data.Targets) != 1 || !env.Data.Targets[0].Muted {
		t.Fatalf("unexpected snapshot payload: %+v", env.Data)
	}
	if len(env.Data.Levels) != 2 || env.Data.Levels[0] != 50 {
		t.Fatalf("unexpected levels: %v", env.Data.Levels)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
