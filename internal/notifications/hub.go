package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"animelight/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// Max UI connections attached to one daemon.
const maxUIConns = 64

// Frame types pushed to the UI.
const (
	FrameNewPosts    = "new_posts"
	FrameFeedChanged = "feed_changed"
	FrameAlert       = "alert"
)

var ErrHubClosed = errors.New("ui hub closed")

// Frame is one message pushed to every UI connection.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub fans session events out to the UI websocket connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "ui hub" }

// Register attaches a connection. conn may be nil in tests.
func (h *Hub) Register(conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if len(h.clients) >= maxUIConns {
		return nil, errors.New("ui connection limit reached")
	}
	client := NewClient(h, conn)
	h.clients[client] = struct{}{}
	observability.UIConnections.Set(float64(len(h.clients)))
	return client, nil
}

func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	observability.UIConnections.Set(float64(len(h.clients)))
}

// Count returns the number of attached connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encodeFrame(frameType string, payload any) ([]byte, bool) {
	data, err := json.Marshal(Frame{Type: frameType, Payload: payload})
	if err != nil {
		observability.GlobalLogger.Error("marshal ui frame", "type", frameType, "error", err.Error())
		return nil, false
	}
	return data, true
}

// SendTo queues a frame for one connection, e.g. the initial state after it attaches.
func (h *Hub) SendTo(c *Client, frameType string, payload any) {
	if data, ok := encodeFrame(frameType, payload); ok {
		c.TrySend(data)
	}
}

// Broadcast sends a frame to every connection.
func (h *Hub) Broadcast(frameType string, payload any) {
	data, ok := encodeFrame(frameType, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.TrySend(data)
	}
}

// WireSignal pushes every new-posts counter change to the UI.
func (h *Hub) WireSignal(s *Signal) {
	s.OnChange(func(n int) {
		h.Broadcast(FrameNewPosts, map[string]int{"count": n})
	})
}

// Shutdown closes every connection; later registrations fail.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for client := range h.clients {
		if client.Conn != nil {
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				observability.GlobalLogger.Warn("failed to write ui close message", "error", err.Error())
			}
			_ = client.Conn.Close()
		}
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	observability.UIConnections.Set(0)
	return nil
}
