package resources

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Hub fans resource samples out to connected websocket clients.
type Hub struct {
	monitor        *Monitor
	allowedOrigins []string

	mu      sync.RWMutex
	clients map[string]*websocket.Conn
	nextID  atomic.Uint64
}

// NewHub creates a hub serving samples from monitor. An empty origin list or
// one containing "*" accepts any origin.
func NewHub(monitor *Monitor, allowedOrigins []string) *Hub {
	return &Hub{
		monitor:        monitor,
		allowedOrigins: allowedOrigins,
		clients:        make(map[string]*websocket.Conn),
	}
}

// Register adds a client connection.
func (h *Hub) Register(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[id]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "client replaced")
	}
	h.clients[id] = conn
	slog.Debug("Resource feed client registered", "client_id", id)
}

// Unregister removes a client if conn is still the registered connection.
func (h *Hub) Unregister(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[id]; ok && current == conn {
		delete(h.clients, id)
		slog.Debug("Resource feed client unregistered", "client_id", id)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a sample to every client. Clients that fail to receive it
// are dropped.
func (h *Hub) Broadcast(usage domain.ResourceUsage) {
	data, err := json.Marshal(usage)
	if err != nil {
		slog.Error("Failed to encode resource sample", "error", err)
		return
	}

	h.mu.RLock()
	targets := make(map[string]*websocket.Conn, len(h.clients))
	for id, conn := range h.clients {
		targets[id] = conn
	}
	h.mu.RUnlock()

	for id, conn := range targets {
		if err := write(conn, data); err != nil {
			slog.Debug("Dropping resource feed client", "client_id", id, "error", err)
			h.Unregister(id, conn)
			_ = conn.Close(websocket.StatusGoingAway, "write failed")
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, id)
	}
}

// ServeHTTP upgrades the request and streams samples until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	id := strconv.FormatUint(h.nextID.Add(1), 10)

	// Client messages are ignored; CloseRead cancels ctx once the peer goes away.
	ctx := ws.CloseRead(r.Context())

	if h.monitor != nil {
		data, err := json.Marshal(h.monitor.Current(ctx))
		if err == nil {
			if err := write(ws, data); err != nil {
				slog.Debug("Failed to send initial resource sample", "error", err)
				return
			}
		}
	}

	h.Register(id, ws)
	defer h.Unregister(id, ws)

	<-ctx.Done()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
