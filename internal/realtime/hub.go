package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stocksim/stocksim/internal/domain"
)

// Hub fans executed-trade events out to connected websocket clients.
// Delivery is best effort; a client that fails a write is dropped.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

// client wraps a connection with a write lock. Trades are published from
// request handlers and from the monitor goroutine, and the websocket library
// allows only one writer on a connection at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]*client),
	}
}

func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = &client{conn: conn}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected")
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// PublishTrade implements domain.TradePublisher.
func (h *Hub) PublishTrade(event domain.TradeEvent) {
	h.broadcastJSON(event)
}

func (h *Hub) broadcastJSON(v any) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(v); err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			h.RemoveClient(c.conn)
		}
	}
}
