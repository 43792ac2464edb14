package api

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub fans kitchen updates out to connected dashboards
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.RWMutex
	done      chan struct{}
}

// NewHub creates a hub with a buffered broadcast queue
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}
}

// Run delivers queued messages until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case msg := <-h.broadcast:
			h.deliver(msg)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) deliver(msg []byte) {
	h.mutex.RLock()
	var failed []*websocket.Conn
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			failed = append(failed, client)
		}
	}
	h.mutex.RUnlock()
	for _, client := range failed {
		h.RemoveClient(client)
	}
}

// Stop ends Run and closes every client
func (h *Hub) Stop() {
	close(h.done)
	h.mutex.Lock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.mutex.Unlock()
}

// AddClient registers a connection
func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
}

// RemoveClient unregisters and closes a connection
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

// BroadcastMessage queues a message for every client; it drops the message when the queue is full
func (h *Hub) BroadcastMessage(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

// GetClientsCount returns the number of connected clients
func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
