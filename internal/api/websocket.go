package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"arena-clash/internal/config"
	"arena-clash/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Message is the envelope used in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ClientHandler receives the inbound traffic of a connection.
type ClientHandler interface {
	HandleMessage(c *Client, msg Message)
	HandleDisconnect(c *Client)
}

// Client is one WebSocket connection.
type Client struct {
	ID     string // socket id, unique per connection
	UserID string // from the verified token
	IP     string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	rooms   map[string]struct{} // guarded by hub.mu
}

// Hub manages all WebSocket connections and their room membership. It
// implements game.Gateway: sends never block, a full queue drops the message.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	limits    config.ResourceLimits
	origins   *OriginChecker
	wsLimiter *WebSocketRateLimiter
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

// NewHub creates a hub with connection limiting
func NewHub(limits config.ResourceLimits, allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.SendQueue <= 0 {
		limits.SendQueue = 64
	}
	h := &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		limits:    limits,
		origins:   NewOriginChecker(allowedOrigins),
		wsLimiter: NewWebSocketRateLimiter(limits.MaxWSPerIP),
		log:       logger.Named("hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.origins.Allowed(origin) {
				return true
			}
			h.log.Warn("WebSocket connection rejected", zap.String("origin", origin))
			metrics.RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Serve upgrades an authenticated request and runs the connection until it
// closes. Inbound messages are dispatched to handler.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string, handler ClientHandler) {
	ip := GetClientIP(r)

	if h.ClientCount() >= h.limits.MaxWSConnections {
		h.log.Warn("WebSocket connection rejected: total limit reached", zap.Int("limit", h.limits.MaxWSConnections))
		metrics.RecordConnectionRejected("ws_limit")
		writeError(w, http.StatusServiceUnavailable, "Too many connections")
		return
	}
	if !h.wsLimiter.Allow(ip) {
		h.log.Warn("WebSocket connection rejected: per-IP limit reached", zap.String("ip", ip))
		metrics.RecordConnectionRejected("ws_limit")
		writeError(w, http.StatusTooManyRequests, "Too many connections from your IP")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.log.Debug("WebSocket upgrade failed", zap.Error(err))
		h.wsLimiter.Release(ip)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		ID:      uuid.NewString(),
		UserID:  userID,
		IP:      ip,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.limits.SendQueue),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.limits.EventsPerSecond), h.limits.EventBurst),
		rooms:   make(map[string]struct{}),
	}
	h.register(c)

	go c.writePump()
	c.readPump(handler)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	metrics.UpdateWSConnections(count)
	h.log.Info("Client connected",
		zap.String("socket_id", c.ID),
		zap.String("player_id", c.UserID),
		zap.String("ip", c.IP),
		zap.Int("total", count),
	)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	count := len(h.clients)
	h.mu.Unlock()

	c.close()
	h.wsLimiter.Release(c.IP)
	metrics.UpdateWSConnections(count)
	h.log.Info("Client disconnected", zap.String("socket_id", c.ID), zap.Int("remaining", count))
}

// Join adds a connection to a room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.ID] = c
	c.rooms[room] = struct{}{}
}

// Leave removes a connection, by socket id, from a room.
func (h *Hub) Leave(socketID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[socketID]; ok {
		h.leaveLocked(c, room)
	}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Emit sends an event to every connection in room.
func (h *Hub) Emit(room, event string, payload any) {
	b, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		c.enqueue(b)
	}
}

// EmitTo sends an event to a single connection.
func (h *Hub) EmitTo(c *Client, event string, payload any) {
	if b, ok := h.encode(event, payload); ok {
		c.enqueue(b)
	}
}

// CloseRoom drops every membership of room. Connections stay open.
func (h *Hub) CloseRoom(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.rooms[room] {
		delete(c.rooms, room)
	}
	delete(h.rooms, room)
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. Their read pumps then run the usual
// disconnect handling.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	b, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		h.log.Error("Failed to encode message", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return b, true
}

// enqueue never blocks; a slow client loses messages instead of stalling
// the sender.
func (c *Client) enqueue(b []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- b:
	default:
		metrics.IncWSDropped()
	}
}

// close asks the write pump to send a close frame and drop the connection,
// which in turn ends the read pump.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump(handler ClientHandler) {
	defer func() {
		c.hub.unregister(c)
		handler.HandleDisconnect(c)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("WebSocket read error", zap.String("socket_id", c.ID), zap.Error(err))
			}
			return
		}
		metrics.IncWSInbound()

		if !c.limiter.Allow() {
			c.hub.EmitTo(c, EventError, Response{Type: ResponseError, Message: "Too many events"})
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.hub.EmitTo(c, EventError, Response{Type: ResponseError, Message: "Malformed message"})
			continue
		}
		handler.HandleMessage(c, msg)
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
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.close()
				return
			}
			metrics.IncWSOutbound()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
