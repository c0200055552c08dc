package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mlplayground/recommend"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
	sendBuffer = 256
)

// Message is the envelope every websocket frame carries.
type Message struct {
	Type      recommend.EventType `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	ID        string              `json:"id"`
	Data      json.RawMessage     `json:"data,omitempty"`
}

// ClientMessage is sent by browsers to narrow the stream.
type ClientMessage struct {
	Type  string `json:"type"` // subscribe or unsubscribe; anything else is ignored
	Topic string `json:"topic"`
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string

	mu            sync.RWMutex
	subscriptions map[recommend.EventType]bool
}

// wants reports whether the client should receive t. A client with no
// subscriptions receives everything.
func (c *Client) wants(t recommend.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

type outbound struct {
	kind    recommend.EventType
	payload []byte
}

type HubStats struct {
	ConnectedClients int64     `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesDropped  int64     `json:"messages_dropped"`
	StartTime        time.Time `json:"start_time"`
}

// Hub relays worker events to websocket clients. It implements
// recommend.Sink so it can be subscribed to the worker bus.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	metrics    *Metrics

	connected int64
	sent      int64
	dropped   int64
	started   time.Time
}

// NewHub accepts connections from the given origins; "*" or an empty list
// allows any origin.
func NewHub(logger *zap.Logger, metrics *Metrics, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
		started:    time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(set) == 0 || origin == "" || set[origin]
	}
}

// Run owns the client set until ctx is done. It must be called once.
func (h *Hub) Run(ctx context.Context) error {
	defer h.logger.Info("websocket hub stopped")
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setConnected(len(h.clients))
			h.logger.Info("websocket client connected", zap.String("client", client.id), zap.Int("total", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.setConnected(len(h.clients))
			h.logger.Info("websocket client disconnected", zap.String("client", client.id), zap.Int("total", len(h.clients)))

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.kind) {
					continue
				}
				select {
				case client.send <- msg.payload:
					atomic.AddInt64(&h.sent, 1)
				default:
					// Slow consumer; drop the connection rather than block the hub.
					close(client.send)
					delete(h.clients, client)
					atomic.AddInt64(&h.dropped, 1)
				}
			}
			h.setConnected(len(h.clients))

		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setConnected(0)
			return nil
		}
	}
}

func (h *Hub) setConnected(n int) {
	atomic.StoreInt64(&h.connected, int64(n))
	if h.metrics != nil {
		h.metrics.WebsocketClients.Set(float64(n))
	}
}

// Publish wraps the event in an envelope and queues it for broadcast. Events
// are dropped when the queue is full.
func (h *Hub) Publish(e recommend.Event) {
	payload, err := Envelope(e)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{kind: e.Type, payload: payload}:
	default:
		atomic.AddInt64(&h.dropped, 1)
		h.logger.Warn("websocket broadcast queue is full, dropping message", zap.String("type", string(e.Type)))
	}
}

// Envelope encodes an event the way it is sent to clients.
func Envelope(e recommend.Event) ([]byte, error) {
	msg := Message{
		Type:      e.Type,
		Timestamp: time.Now().UTC(),
		ID:        uuid.NewString(),
	}
	if e.Data != nil {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}

func (h *Hub) Stats() HubStats {
	return HubStats{
		ConnectedClients: atomic.LoadInt64(&h.connected),
		MessagesSent:     atomic.LoadInt64(&h.sent),
		MessagesDropped:  atomic.LoadInt64(&h.dropped),
		StartTime:        h.started,
	}
}

// HandleWebSocket upgrades the request and registers the client with the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            uuid.NewString(),
		subscriptions: make(map[recommend.EventType]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

func (c *Client) writePump(logger *zap.Logger) {
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
				logger.Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
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

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ignoring malformed client message", zap.String("client", c.id), zap.Error(err))
			continue
		}
		c.handleClientMessage(msg)
	}
}

func (c *Client) handleClientMessage(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case "subscribe":
		c.subscriptions[recommend.EventType(msg.Topic)] = true
	case "unsubscribe":
		delete(c.subscriptions, recommend.EventType(msg.Topic))
	}
}
