// Package ws streams load progress to WebSocket clients.
package ws

import (
	"context"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"
)

// StatusProviderFunc returns the current load status for new or
// re-syncing clients.
type StatusProviderFunc func() (any, error)

// Hub tracks connected clients and fans broadcasts out to them.
type Hub struct {
	clients        map[*Client]bool
	broadcast      chan []byte
	register       chan *Client
	unregister     chan *Client
	logger         *slog.Logger
	mu             sync.RWMutex
	statusProvider StatusProviderFunc
}

// Client is a single WebSocket connection.
type Client struct {
	hub  *Hub
	send chan []byte
	conn *websocket.Conn
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetStatusProvider sets the function that supplies the status snapshot
// sent on connect and on sync requests.
func (h *Hub) SetStatusProvider(fn StatusProviderFunc) {
	h.statusProvider = fn
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues a raw message for every client. It drops the message
// when the queue is full so a stalled hub never blocks a load.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes payload under msgType and broadcasts it.
func (h *Hub) BroadcastJSON(msgType MessageType, payload any) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error("encoding websocket message", "type", msgType, "error", err)
		return
	}
	h.Broadcast(msg)
}

// BroadcastError sends an error message to all clients.
func (h *Hub) BroadcastError(errMsg string) {
	h.BroadcastJSON(MsgError, map[string]string{"message": errMsg})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) statusMessage() ([]byte, bool) {
	if h.statusProvider == nil {
		return nil, false
	}
	status, err := h.statusProvider()
	if err != nil {
		h.logger.Warn("reading load status for websocket client", "error", err)
		return nil, false
	}
	msg, err := NewMessage(MsgStatus, status)
	if err != nil {
		return nil, false
	}
	return msg, true
}
