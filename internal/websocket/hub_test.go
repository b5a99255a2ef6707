package websocket

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"watchtower/pkg/logging"
)

func quietLogger() logging.Logger {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(h *Hub, channels ...string) *Client {
	return &Client{
		hub:      h,
		send:     make(chan []byte, 8),
		done:     make(chan struct{}),
		channels: channels,
		logger:   h.logger,
	}
}

func TestSubscribedTo(t *testing.T) {
	h := NewHub(quietLogger(), nil)

	cases := []struct {
		name     string
		channels []string
		channel  string
		want     bool
	}{
		{"exact match", []string{"angle_value"}, "angle_value", true},
		{"no match", []string{"angle_value"}, "ai_alert", false},
		{"all matches everything", []string{"all"}, "direction_result", true},
		{"empty subscription", nil, "angle_value", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(h, tc.channels...)
			if got := c.subscribedTo(tc.channel); got != tc.want {
				t.Fatalf("subscribedTo(%q) = %v, want %v", tc.channel, got, tc.want)
			}
		})
	}
}

func TestBroadcastReachesSubscribedClientsOnly(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	go h.Run()

	alerts := newTestClient(h, "ai_alert")
	everything := newTestClient(h, "all")
	angles := newTestClient(h, "angle_value")

	h.register <- alerts
	h.register <- everything
	h.register <- angles

	h.Broadcast("ai_alert", []byte(`{"type":"ai_alert"}`))

	expectPayload(t, alerts.send, `{"type":"ai_alert"}`)
	expectPayload(t, everything.send, `{"type":"ai_alert"}`)
	expectNothing(t, angles.send)
}

func expectPayload(t *testing.T, ch chan []byte, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if string(got) != want {
			t.Fatalf("payload = %s, want %s", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
	}
}

func expectNothing(t *testing.T, ch chan []byte) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected payload %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleSubscriptionUpdatesChannels(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	c := newTestClient(h)

	c.handleSubscription(&SubscriptionMessage{Action: "subscribe", Channels: []string{"angle_value", "ai_alert"}})
	if len(c.channels) != 2 {
		t.Fatalf("channels = %v, want 2 entries", c.channels)
	}
	assertControl(t, c.send, "subscription_confirmed")

	c.handleSubscription(&SubscriptionMessage{Action: "unsubscribe", Channels: []string{"angle_value"}})
	if len(c.channels) != 1 || c.channels[0] != "ai_alert" {
		t.Fatalf("channels after unsubscribe = %v, want [ai_alert]", c.channels)
	}
	assertControl(t, c.send, "unsubscription_confirmed")
}

func assertControl(t *testing.T, ch chan []byte, wantType string) {
	t.Helper()
	select {
	case raw := <-ch:
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("control message not JSON: %v", err)
		}
		if doc["type"] != wantType {
			t.Fatalf("control type = %v, want %s", doc["type"], wantType)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for control message")
	}
}

func TestStatsCountsClientsAndChannels(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	go h.Run()

	first := newTestClient(h, "ai_alert")
	h.register <- first
	h.register <- newTestClient(h, "ai_alert", "angle_value")

	// The hub loop is sequential: once a broadcast sent after both registers
	// has been delivered, both clients are visible to Stats.
	h.Broadcast("ai_alert", []byte(`{}`))
	expectPayload(t, first.send, `{}`)

	stats := h.Stats()
	if stats["total_clients"] != 2 {
		t.Fatalf("total_clients = %v, want 2", stats["total_clients"])
	}
	channels := stats["channel_subscriptions"].(map[string]int)
	if channels["ai_alert"] != 2 || channels["angle_value"] != 1 {
		t.Fatalf("channel_subscriptions = %v", channels)
	}
}

func TestFullClientQueueDoesNotKillHub(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	go h.Run()

	slow := &Client{
		hub:    h,
		send:   make(chan []byte, 1),
		done:   make(chan struct{}),
		logger: h.logger,
	}
	healthy := newTestClient(h, "all")
	h.register <- slow
	h.register <- healthy

	// Fill the slow client's queue, then make its read path emit a control
	// message. The confirmation must be dropped, not crash anything.
	slow.send <- []byte("backlog")
	slow.handleSubscription(&SubscriptionMessage{Action: "subscribe", Channels: []string{"all"}})

	// The broadcast finds the slow client's queue still full and drops the
	// connection; the hub loop must survive and keep serving other clients.
	h.Broadcast("ai_alert", []byte(`{"n":1}`))
	expectPayload(t, healthy.send, `{"n":1}`)

	h.Broadcast("ai_alert", []byte(`{"n":2}`))
	expectPayload(t, healthy.send, `{"n":2}`)

	select {
	case <-slow.done:
	default:
		t.Error("slow client was not torn down")
	}
}

func TestUnregisterTwiceIsSafe(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	go h.Run()

	c := newTestClient(h, "all")
	h.register <- c
	h.unregister <- c
	h.unregister <- c

	// The loop is still alive and the client is gone.
	h.Broadcast("ai_alert", []byte(`{}`))
	expectNothing(t, c.send)

	stats := h.Stats()
	if stats["total_clients"] != 0 {
		t.Fatalf("total_clients = %v, want 0", stats["total_clients"])
	}
}

func TestSubscriptionUpdatesDuringBroadcast(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	go h.Run()

	c := &Client{
		hub:    h,
		send:   make(chan []byte, 1024),
		done:   make(chan struct{}),
		logger: h.logger,
	}
	h.register <- c

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c.handleSubscription(&SubscriptionMessage{Action: "subscribe", Channels: []string{"angle_value"}})
			c.handleSubscription(&SubscriptionMessage{Action: "unsubscribe", Channels: []string{"angle_value"}})
		}
	}()

	for i := 0; i < 200; i++ {
		h.Broadcast("angle_value", []byte(`{}`))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription churn did not finish")
	}
}
