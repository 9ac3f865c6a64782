package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"talkio/internal/chat"
	"talkio/internal/models"
	"talkio/internal/observability"
)

// hubConn pairs a websocket connection with its write lock. The engine
// serializes its own deliveries, but the read loop reports dispatch errors
// outside the engine lock, and gorilla/websocket forbids concurrent
// writers. Every write goes through writeMessage.
type hubConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (c *hubConn) writeMessage(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks live websocket connections by id and delivers server events to
// them. It implements the engine's Router. Dead connections are pruned on
// write error.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*hubConn
	info  map[string]ConnInfo
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*hubConn),
		info:  make(map[string]ConnInfo),
	}
}

// Add registers a websocket connection under its id.
func (h *Hub) Add(connID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connID] = &hubConn{conn: conn}
	h.info[connID] = info
}

// Remove drops the connection from the hub.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
	delete(h.info, connID)
}

// Info returns the transport metadata of a connection.
func (h *Hub) Info(connID string) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info, ok := h.info[connID]
	return info, ok
}

// Len reports the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ToConn sends one event to one connection.
func (h *Hub) ToConn(connID string, event string, data any) {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	payload, err := json.Marshal(models.ServerEvent{Event: event, Data: data})
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.write(connID, conn, payload)
}

// ToConns sends one event to each listed connection.
func (h *Hub) ToConns(connIDs []string, event string, data any) {
	payload, err := json.Marshal(models.ServerEvent{Event: event, Data: data})
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}

	for _, connID := range connIDs {
		h.mu.RLock()
		conn, ok := h.conns[connID]
		h.mu.RUnlock()
		if ok {
			h.write(connID, conn, payload)
		}
	}
}

// ToAll sends one event to every connection, authenticated or not.
func (h *Hub) ToAll(event string, data any) {
	h.ToAllExcept("", event, data)
}

// ToAllExcept sends one event to every connection but the excluded one.
func (h *Hub) ToAllExcept(excludeConnID string, event string, data any) {
	payload, err := json.Marshal(models.ServerEvent{Event: event, Data: data})
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}

	h.mu.RLock()
	targets := make(map[string]*hubConn, len(h.conns))
	for connID, conn := range h.conns {
		if connID != excludeConnID {
			targets[connID] = conn
		}
	}
	h.mu.RUnlock()

	for connID, conn := range targets {
		h.write(connID, conn, payload)
	}
}

func (h *Hub) write(connID string, conn *hubConn, payload []byte) {
	if err := conn.writeMessage(payload); err != nil {
		log.Printf("websocket write error: %v", err)
		info, _ := h.Info(connID)
		conn.conn.Close()
		h.Remove(connID)
		h.publishWriteFailure(info, err)
	}
}

func (h *Hub) publishWriteFailure(info ConnInfo, err error) {
	observability.PublishConnEvent(context.Background(), observability.ConnEvent{
		Name:     "ws_error",
		ConnID:   info.ConnID,
		ClientID: info.ClientID,
		IP:       info.IP,
		UptimeMs: time.Since(info.ConnectedAt).Milliseconds(),
		Reason:   err.Error(),
	}, observability.TraceHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent("ws_error")
}

var _ chat.Router = (*Hub)(nil)
