package web

import (
	"sync"

	"github.com/codefionn/castcheck/internal/logger"
)

// Hub fans run progress out to websocket clients. A client either follows
// every run or, when it subscribed with a run ID, only that run.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	broadcast  chan *WebMessage
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan *WebMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run services registrations and broadcasts until Stop.
func (h *Hub) Run() {
	logger.Info("websocket hub started")
	defer logger.Info("websocket hub stopped")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			logger.Debug("websocket client %s subscribed (run %q)", c.ID, c.runID)

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// deliver hands msg to every subscriber of its run. Clients whose buffer is
// full are disconnected rather than stalling the other runs.
func (h *Hub) deliver(msg *WebMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.follows(msg.RunID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			logger.Warn("websocket client %s too slow for run %s, disconnecting", c.ID, msg.RunID)
			h.drop(c)
		}
	}
}

// drop removes c and closes its send channel. h.mu must be held.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	logger.Debug("websocket client %s unsubscribed", c.ID)
}

// Stop disconnects every client and ends Run. It is idempotent.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Register subscribes a client.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Broadcast queues msg for the subscribers of its run. It never blocks.
func (h *Hub) Broadcast(msg *WebMessage) {
	select {
	case h.broadcast <- msg:
	default:
		logger.Warn("broadcast queue full, dropping %s message of run %s", msg.Type, msg.RunID)
	}
}

// ClientCount returns the number of subscribed clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
