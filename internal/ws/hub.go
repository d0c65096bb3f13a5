// Package ws streams pub/sub updates to websocket clients. Each client is
// bound to one topic at connect time.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/postpulse/postpulse-backend/internal/metrics"
	"github.com/postpulse/postpulse-backend/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
	idleTimeout    = 2 * pongWait
)

type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type clientRequest struct {
	Type string `json:"type"`
}

type Client struct {
	id         uuid.UUID
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	topic      string
	lastActive atomic.Int64
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().UnixMilli())
}

type topicSub struct {
	sub     store.Subscription
	cancel  context.CancelFunc
	clients map[*Client]struct{}
}

type Hub struct {
	cache    *store.Cache
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
	topics  map[string]*topicSub
}

// NewHub creates a hub. allowedOrigins may contain "*"; requests without an
// Origin header are always accepted.
func NewHub(cache *store.Cache, logger *zap.SugaredLogger, m *metrics.Metrics, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cache:   cache,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
		topics:  make(map[string]*topicSub),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Run evicts idle clients until ctx ends, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("WebSocket hub shutting down")
			h.Close()
			return
		case <-ticker.C:
			h.cleanupInactiveClients(time.Now().Add(-idleTimeout))
		}
	}
}

// Close disconnects every client and drops all subscriptions.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// Clients reports the connected client count.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	t, ok := h.topics[c.topic]
	if !ok {
		ctx, cancel := context.WithCancel(h.ctx)
		t = &topicSub{
			sub:     h.cache.Subscribe(ctx, c.topic),
			cancel:  cancel,
			clients: make(map[*Client]struct{}),
		}
		h.topics[c.topic] = t
		go h.forward(c.topic, t.sub)
	}
	t.clients[c] = struct{}{}

	h.metrics.IncrementConnections(context.Background())
	h.logger.Debugw("Client registered", "client_id", c.id, "topic", c.topic)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	if t, ok := h.topics[c.topic]; ok {
		delete(t.clients, c)
		if len(t.clients) == 0 {
			t.cancel()
			t.sub.Close()
			delete(h.topics, c.topic)
		}
	}

	h.metrics.DecrementConnections(context.Background())
	h.logger.Debugw("Client unregistered", "client_id", c.id, "topic", c.topic)
}

func (h *Hub) forward(topic string, sub store.Subscription) {
	for msg := range sub.Channel() {
		data := json.RawMessage(msg.Payload)
		if !json.Valid(data) {
			h.logger.Warnw("Dropping non-JSON pubsub payload", "topic", topic)
			continue
		}
		out, err := json.Marshal(Message{
			Type:      "update",
			Topic:     topic,
			Data:      data,
			Timestamp: time.Now().Unix(),
		})
		if err != nil {
			h.logger.Errorw("Failed to marshal WebSocket message", "error", err)
			continue
		}
		h.broadcast(topic, out)
	}
}

func (h *Hub) broadcast(topic string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[topic]
	if !ok {
		return
	}
	for c := range t.clients {
		select {
		case c.send <- message:
		default:
			h.logger.Debugw("Dropping slow client", "client_id", c.id)
			h.removeLocked(c)
		}
	}
}

// deliver queues message for c unless c has already been removed.
func (h *Hub) deliver(c *Client, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

func (h *Hub) cleanupInactiveClients(cutoff time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if c.lastActive.Load() < cutoff.UnixMilli() {
			h.logger.Debugw("Cleaned up inactive client", "client_id", c.id)
			h.removeLocked(c)
		}
	}
}

// Serve upgrades the request and streams topic to the client until it
// disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		id:    uuid.New(),
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		topic: topic,
	}
	c.touch()
	h.register(c)

	hello, _ := json.Marshal(Message{Type: "subscribed", Topic: topic, Timestamp: time.Now().Unix()})
	h.deliver(c, hello)

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnw("WebSocket error", "client_id", c.id, "error", err)
			}
			return
		}
		c.touch()
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var req clientRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.hub.logger.Debugw("Invalid client message", "client_id", c.id, "error", err)
		return
	}
	if req.Type != "ping" {
		return
	}

	pong, _ := json.Marshal(Message{Type: "pong", Timestamp: time.Now().Unix()})
	c.hub.deliver(c, pong)
}
