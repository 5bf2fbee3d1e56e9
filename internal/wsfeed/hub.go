// Package wsfeed streams the audit event feed to websocket subscribers.
// The hub is an audit sink: every durably recorded event is fanned out to
// all connected clients as one JSON message.
package wsfeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/observability"
)

// DefaultSendBuffer is the per-client outgoing message buffer.
const DefaultSendBuffer = 64

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
	maxReadBytes = 512
)

// Hub upgrades feed subscribers and broadcasts events to them. A client
// whose buffer is full misses events rather than stalling the emitter;
// the feed is best-effort and the event store remains the durable record.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	sendBuf  int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Options for creating a Hub.
type Options struct {
	SendBuffer int         // optional, defaults to DefaultSendBuffer
	Logger     *zap.Logger // optional
}

// New creates a new Hub.
func New(opts Options) *Hub {
	sendBuf := opts.SendBuffer
	if sendBuf <= 0 {
		sendBuf = DefaultSendBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			// The feed is read-only; any origin may subscribe.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		sendBuf: sendBuf,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.sendBuf)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	observability.FeedClientConnected()
	h.logger.Debug("feed client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	go h.readPump(c)
}

// Publish implements audit.Sink. The event is marshaled once and sent to
// every client without blocking; full client buffers drop the event.
func (h *Hub) Publish(e *domain.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn("marshal feed event", zap.Uint64("seq", e.Seq), zap.Error(err))
		return
	}

	observability.RecordFeedBroadcast()

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			observability.RecordFeedDropped()
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		observability.FeedClientDisconnected()
	}
	h.mu.Unlock()
	return nil
}

// remove unregisters the client. Closing the send channel makes the
// write pump send the close frame and exit.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		observability.FeedClientDisconnected()
	}
	h.mu.Unlock()
}

// writePump writes buffered events and periodic pings to the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump consumes the connection to process control frames and detect
// disconnects. Subscribers never send data messages.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxReadBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
