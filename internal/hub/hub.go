// Package hub fans out live session events to websocket subscribers.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/medeval/internal/domain"
)

// Connection is a single subscriber bound to one session.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

// Hub manages all subscriber connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Sessions maps session_id to set of connection IDs
	sessions map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *sessionMessage
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

type sessionMessage struct {
	SessionID string
	Data      []byte
}

// New creates a new Hub.
func New(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *sessionMessage, 256),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for id, conn := range h.connections {
			close(conn.Send)
			delete(h.connections, id)
		}
		h.sessions = make(map[string]map[string]bool)
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.sessions[conn.SessionID] == nil {
				h.sessions[conn.SessionID] = make(map[string]bool)
			}
			h.sessions[conn.SessionID][conn.ID] = true
			h.mu.Unlock()
			h.logger.Debug("subscriber registered", zap.String("conn_id", conn.ID), zap.String("session_id", conn.SessionID))

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Connection
			for connID := range h.sessions[msg.SessionID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.logger.Warn("subscriber buffer full, closing", zap.String("conn_id", conn.ID))
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.sessions[conn.SessionID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.sessions, conn.SessionID)
		}
	}
	close(conn.Send)
	h.logger.Debug("subscriber unregistered", zap.String("conn_id", conn.ID))
}

// NewConnection creates a connection bound to sessionID. ws may be nil for
// in-process subscribers.
func (h *Hub) NewConnection(ws *websocket.Conn, sessionID string) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Conn:      ws,
		Send:      make(chan []byte, 64),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish sends an event to every subscriber of its session. It never blocks
// the caller; events are dropped when the hub is saturated or stopped.
func (h *Hub) Publish(event domain.SessionEvent) {
	if event.Ts == 0 {
		event.Ts = time.Now().UnixMilli()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to marshal session event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &sessionMessage{SessionID: event.SessionID, Data: data}:
	case <-h.done:
	default:
		h.logger.Warn("hub broadcast queue full, dropping event", zap.String("session_id", event.SessionID))
	}
}

// SubscriberCount returns the number of subscribers of a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}
