package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/agentpulse/internal/logging"
	"github.com/scrypster/agentpulse/internal/notify"
)

const (
	clientBuffer   = 64
	broadcastQueue = 256
	writeTimeout   = 10 * time.Second
)

var errBroadcastFull = errors.New("websocket broadcast queue full")

// Hub fans feed events out to connected websocket clients.
type Hub struct {
	clients    map[hubClient]bool
	broadcast  chan notify.Event
	register   chan hubClient
	unregister chan hubClient
	origins    []string
	logger     *zap.Logger
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// hubClient lets tests register channel-backed clients without a socket.
type hubClient interface {
	sendChannel() chan []byte
	close()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *wsClient) sendChannel() chan []byte { return c.send }

func (c *wsClient) close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
}

// NewHub creates a hub accepting the given origin patterns. Requests without
// an Origin header are always accepted.
func NewHub(origins []string, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[hubClient]bool),
		broadcast:  make(chan notify.Event, broadcastQueue),
		register:   make(chan hubClient),
		unregister: make(chan hubClient),
		origins:    origins,
		logger:     logging.OrNop(logger),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("server: websocket client connected", zap.Int("clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.sendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("server: websocket client disconnected", zap.Int("clients", count))

		case evt := <-h.broadcast:
			data, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("server: marshal websocket event", zap.Error(err))
				continue
			}
			// Slow clients are dropped, so this needs the write lock.
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.sendChannel() <- data:
				default:
					close(client.sendChannel())
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.sendChannel())
		client.close()
	}
	h.clients = make(map[hubClient]bool)
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues evt for every client. It never blocks; a full queue drops
// the event and reports an error.
func (h *Hub) Publish(_ context.Context, evt notify.Event) error {
	select {
	case h.broadcast <- evt:
		return nil
	default:
		h.logger.Warn("server: websocket broadcast queue full, dropping event",
			zap.String("type", evt.Type))
		return errBroadcastFull
	}
}

func (h *Hub) add(client hubClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) remove(client hubClient) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("server: websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.add(client) {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) writePump() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()
		if err != nil {
			c.hub.logger.Debug("server: websocket write failed", zap.Error(err))
			return
		}
	}
}

// readPump drains client frames so close frames are noticed.
func (c *wsClient) readPump() {
	defer c.hub.remove(c)
	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}
