// Package events pushes cache invalidation signals to a user's open
// dashboards over websockets.
package events

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message is the JSON frame sent to subscribers
type Message struct {
	Type    string   `json:"type"`
	Groups  []string `json:"groups,omitempty"`
	Message string   `json:"message,omitempty"`
}

// conn serializes writes; gorilla allows one concurrent writer per connection
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return fn()
}

// Hub tracks websocket connections per user
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*conn]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates a hub accepting browser connections from allowedOrigins.
// "*" accepts any origin; requests without an Origin header are always accepted.
func NewHub(allowedOrigins []string) *Hub {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return &Hub{
		clients: make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowAll {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Publish tells every connection of userID that the given procedure groups changed
func (h *Hub) Publish(userID string, groups ...string) {
	h.mu.RLock()
	set := h.clients[userID]
	conns := make([]*conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	msg := Message{Type: "invalidate", Groups: groups}
	for _, c := range conns {
		if err := c.write(func() error { return c.ws.WriteJSON(msg) }); err != nil {
			log.Printf("Failed to publish to user %s: %v", userID, err)
			h.remove(userID, c)
			c.ws.Close()
		}
	}
}

// Subscribers returns the number of open connections for userID
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) add(userID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*conn]struct{})
	}
	h.clients[userID][c] = struct{}{}
}

func (h *Hub) remove(userID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
}

// ServeWS upgrades the request and keeps the connection registered for
// userID until the peer goes away or stops answering pings.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &conn{ws: ws}
	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		ws.Close()
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.add(userID, c)
	done := make(chan struct{})
	defer func() {
		close(done)
		h.remove(userID, c)
		ws.Close()
	}()

	if err := c.write(func() error {
		return ws.WriteJSON(Message{Type: "connected", Message: "WebSocket connection established"})
	}); err != nil {
		log.Printf("Failed to send welcome message: %v", err)
		return
	}

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(func() error { return ws.WriteMessage(websocket.PingMessage, nil) }); err != nil {
					return
				}
			}
		}
	}()

	// the client never sends anything meaningful; reading drives pong handling
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for user %s: %v", userID, err)
			}
			return
		}
	}
}
