// Package debugview streams battle snapshots to browser clients over a
// websocket and accepts toggle changes back.
package debugview

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// ErrUnknownMessage is returned for inbound messages with an unknown type.
var ErrUnknownMessage = errors.New("unknown message type")

// ToggleFunc applies a named toggle. It must be safe to call from any goroutine.
type ToggleFunc func(name string, value bool) error

// InboundMessage is a JSON message from a client.
type InboundMessage struct {
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Value bool   `json:"value,omitempty"`
}

// Reply answers an inbound message.
type Reply struct {
	Type  string `json:"type"` // "ack" or "error"
	Name  string `json:"name,omitempty"`
	Error string `json:"error,omitempty"`
}

type frame struct {
	kind int
	data []byte
}

type client struct {
	conn *websocket.Conn
	send chan frame
}

// Hub fans snapshots out to connected clients. Publish never blocks: a
// client whose buffer is full misses that frame.
type Hub struct {
	log      *slog.Logger
	buffer   int
	onToggle ToggleFunc
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Int64
}

// NewHub creates a hub. buffer is the per-client frame queue length.
func NewHub(log *slog.Logger, buffer int, onToggle ToggleFunc) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		log:      log,
		buffer:   buffer,
		onToggle: onToggle,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish queues a msgpack snapshot for every client.
func (h *Hub) Publish(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame{kind: websocket.BinaryMessage, data: data}:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many frames were skipped for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	c := &client{conn: conn, send: make(chan frame, h.buffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	h.log.Info("debug client connected", "remote", r.RemoteAddr, "clients", h.Clients())

	go h.writePump(c)
	h.readPump(c)

	h.unregister(c)
	h.log.Info("debug client disconnected", "remote", r.RemoteAddr, "clients", h.Clients())
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump handles inbound toggle messages until the connection fails.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("debug client read failed", "error", err)
			}
			return
		}
		reply := h.handle(data)
		out, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			select {
			case c.send <- frame{kind: websocket.TextMessage, data: out}:
			default:
				h.dropped.Add(1)
			}
		}
		h.mu.Unlock()
	}
}

// handle applies one inbound message and builds the reply.
func (h *Hub) handle(data []byte) Reply {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Reply{Type: "error", Error: "invalid json: " + err.Error()}
	}
	switch msg.Type {
	case "toggle":
		if h.onToggle == nil {
			return Reply{Type: "error", Name: msg.Name, Error: "toggles disabled"}
		}
		if err := h.onToggle(msg.Name, msg.Value); err != nil {
			return Reply{Type: "error", Name: msg.Name, Error: err.Error()}
		}
		return Reply{Type: "ack", Name: msg.Name}
	default:
		return Reply{Type: "error", Error: ErrUnknownMessage.Error() + ": " + msg.Type}
	}
}

// writePump sends queued frames and keepalive pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
