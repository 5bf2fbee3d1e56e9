package wsfeed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"weight-ledger/internal/domain"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func readEvent(t *testing.T, conn *websocket.Conn) *domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var e domain.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return &e
}

func TestHub_PublishReachesClient(t *testing.T) {
	hub := New(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == 1 })

	hub.Publish(&domain.Event{
		Seq:         7,
		Type:        domain.EventVoteCast,
		Timestamp:   1000,
		Position:    "pos1",
		Account:     "alice",
		Weight:      300,
		PayoutIndex: -1,
	})

	got := readEvent(t, conn)
	if got.Seq != 7 {
		t.Errorf("seq = %d, want 7", got.Seq)
	}
	if got.Type != domain.EventVoteCast {
		t.Errorf("type = %s, want vote_cast", got.Type)
	}
	if got.Weight != 300 {
		t.Errorf("weight = %d, want 300", got.Weight)
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := New(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	first := dial(t, srv)
	defer first.Close()
	second := dial(t, srv)
	defer second.Close()
	waitFor(t, "two clients", func() bool { return hub.ClientCount() == 2 })

	hub.Publish(&domain.Event{Seq: 1, Type: domain.EventPositionWrapped, PayoutIndex: -1})

	for _, conn := range []*websocket.Conn{first, second} {
		if got := readEvent(t, conn); got.Seq != 1 {
			t.Errorf("seq = %d, want 1", got.Seq)
		}
	}
}

func TestHub_OrderPreservedPerClient(t *testing.T) {
	hub := New(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == 1 })

	for seq := uint64(1); seq <= 5; seq++ {
		hub.Publish(&domain.Event{Seq: seq, Type: domain.EventVoteCast, PayoutIndex: -1})
	}
	for seq := uint64(1); seq <= 5; seq++ {
		if got := readEvent(t, conn); got.Seq != seq {
			t.Fatalf("seq = %d, want %d", got.Seq, seq)
		}
	}
}

func TestHub_FullBufferDropsEventNotClient(t *testing.T) {
	hub := New(Options{SendBuffer: 1})

	// A registered client whose write pump never runs: the buffer holds
	// one event and every further publish must be dropped.
	c := &client{send: make(chan []byte, 1)}
	hub.mu.Lock()
	hub.clients[c] = struct{}{}
	hub.mu.Unlock()

	for seq := uint64(1); seq <= 3; seq++ {
		hub.Publish(&domain.Event{Seq: seq, Type: domain.EventVoteCast, PayoutIndex: -1})
	}

	if hub.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1", hub.ClientCount())
	}
	if len(c.send) != 1 {
		t.Fatalf("buffered messages = %d, want 1", len(c.send))
	}

	var e domain.Event
	if err := json.Unmarshal(<-c.send, &e); err != nil {
		t.Fatalf("unmarshal buffered event: %v", err)
	}
	if e.Seq != 1 {
		t.Errorf("buffered seq = %d, want the first event", e.Seq)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := New(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, "client removal", func() bool { return hub.ClientCount() == 0 })
}

func TestHub_Close(t *testing.T) {
	hub := New(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == 1 })

	if err := hub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("client count after close = %d", hub.ClientCount())
	}

	// The client sees the close frame as a read error.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read after hub close succeeded")
	}

	if err := hub.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}

	// New connections are rejected once closed.
	late := dial(t, srv)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("closed hub accepted a subscriber")
	}

	// Publishing after close must not panic.
	hub.Publish(&domain.Event{Seq: 9, Type: domain.EventVoteCast, PayoutIndex: -1})
}
