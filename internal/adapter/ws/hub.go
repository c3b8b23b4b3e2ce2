// Package ws implements the WebSocket feed of committed board events.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/port/eventbus"
	"github.com/Strob0t/EscrowBoard/internal/port/messagequeue"
)

const (
	writeTimeout = 5 * time.Second
	// sendBuffer is how many messages a connection may fall behind before it
	// is dropped.
	sendBuffer = 64
)

var (
	_ eventbus.Publisher   = (*Hub)(nil)
	_ messagequeue.Handler = (*Hub)(nil).Relay
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. A non-empty task limits the
// connection to events of that task. Its writer goroutine drains send.
type conn struct {
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	task   string
	send   chan []byte
}

// Hub manages all active WebSocket connections and fans out board events.
// Publishing never waits on a client: each connection has its own queue and
// writer, and a connection whose queue is full is disconnected.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*conn]struct{}
	origins []string
}

// NewHub creates a new WebSocket hub. origins lists the host patterns allowed
// to connect from a browser; empty means same-origin only.
func NewHub(origins ...string) *Hub {
	return &Hub{
		conns:   make(map[*conn]struct{}),
		origins: origins,
	}
}

// HandleWS upgrades the request to a WebSocket. The optional "task" query
// parameter subscribes to a single task's events.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "websocket accept failed", "error", err)
		return
	}

	// The request context ends when the handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		task:   r.URL.Query().Get("task"),
		send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "task", c.task)

	go h.writeLoop(c)

	// Read loop detects disconnects and consumes pings.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Publish sends ev to every connection subscribed to its task.
func (h *Hub) Publish(ctx context.Context, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.broadcast(ctx, ev.TaskName, Message{Type: string(ev.Type), Payload: data})
	return nil
}

// Relay is a messagequeue.Handler that forwards board events read from the
// event stream to the connections of this replica.
func (h *Hub) Relay(ctx context.Context, subject string, data []byte) error {
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode event on %s: %w", subject, err)
	}
	return h.Publish(ctx, ev)
}

func (h *Hub) broadcast(ctx context.Context, task string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "websocket marshal failed", "error", err)
		return
	}

	var slow []*conn
	h.mu.RLock()
	for c := range h.conns {
		if c.task != "" && c.task != task {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.WarnContext(ctx, "websocket client too slow, disconnecting", "task", c.task)
		h.remove(c)
	}
}

// writeLoop writes queued messages to c until its context ends.
func (h *Hub) writeLoop(c *conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "error", err)
				h.remove(c)
				return
			}
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "task", c.task)
	}
}
