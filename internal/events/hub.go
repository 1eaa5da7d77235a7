package events

import (
	"sync"

	"github.com/gorilla/websocket"

	"riviera/internal/batch"
	"riviera/internal/logging"
)

// Hub pushes job events to connected websocket clients. It satisfies
// batch.Notifier; a client that fails a write is dropped on the spot.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*websocket.Conn
	logger logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]*websocket.Conn),
		logger: logging.OrNop(logger),
	}
}

// Add registers a client connection under a unique id. The hub takes
// over writes; the caller keeps reading to detect disconnects.
func (h *Hub) Add(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = conn
	h.logger.Debug("websocket client connected: %s (%d total)", id, len(h.conns))
}

// Remove unregisters and closes a client connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
		h.logger.Debug("websocket client disconnected: %s", id)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends the event to every client. Failed writes drop the
// client; nothing is retried.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	targets := make(map[string]*websocket.Conn, len(h.conns))
	for id, conn := range h.conns {
		targets[id] = conn
	}
	h.mu.RUnlock()

	for id, conn := range targets {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Warn("websocket write to %s failed, dropping client: %v", id, err)
			h.Remove(id)
		}
	}
}

// Close drops every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*websocket.Conn)
	h.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (h *Hub) BatchSubmitted(job *batch.Job) {
	h.Broadcast(fromJob(TypeBatchSubmitted, job))
}

func (h *Hub) BatchProcessing(job *batch.Job) {
	h.Broadcast(fromJob(TypeBatchProcessing, job))
}
