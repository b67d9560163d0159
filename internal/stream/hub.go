package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/pkg/logger"
	"github.com/GoPolymarket/polyfactory/internal/pkg/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeMsg narrows what a client receives. Entities are ledger, factory
// or market addresses; types are event types. Empty means everything.
type subscribeMsg struct {
	Action   string            `json:"action"` // subscribe | unsubscribe
	Entities []string          `json:"entities"`
	Types    []model.EventType `json:"types"`
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	mu       sync.RWMutex
	entities map[string]bool
	types    map[model.EventType]bool
}

// Hub pushes domain events to websocket clients. It is an event sink for the
// in-process event service, or a consumer of a pub/sub feed when several
// instances share one.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan model.Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan model.Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Publish queues e for broadcast. A full queue drops the event.
func (h *Hub) Publish(_ context.Context, e model.Event) error {
	select {
	case h.broadcast <- e:
	default:
		metrics.EventsDropped.Inc()
		logger.Warn("stream: broadcast queue full, dropping event", "type", e.Type)
	}
	return nil
}

// Feed forwards events from an external source, e.g. a Redis subscription,
// until it closes or ctx is done.
func (h *Hub) Feed(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				logger.Warn("stream: feed closed")
				return
			}
			_ = h.Publish(ctx, e)
		}
	}
}

// Run is the hub loop. It returns when ctx is cancelled, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.StreamClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.StreamClients.Set(float64(n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.StreamClients.Set(float64(n))

		case e := <-h.broadcast:
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(e) {
					continue
				}
				select {
				case c.send <- payload:
				default:
					logger.Warn("stream: dropping event for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client. Query parameters
// entity and type pre-seed the subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("stream: upgrade failed", "error", err)
		return
	}
	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		entities: make(map[string]bool),
		types:    make(map[model.EventType]bool),
	}
	q := r.URL.Query()
	c.apply(subscribeMsg{
		Action:   "subscribe",
		Entities: q["entity"],
		Types:    toTypes(q["type"]),
	})

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func toTypes(raw []string) []model.EventType {
	out := make([]model.EventType, 0, len(raw))
	for _, t := range raw {
		out = append(out, model.EventType(t))
	}
	return out
}

func (c *client) wants(e model.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entities) > 0 && !c.entities[strings.ToLower(e.Entity)] {
		return false
	}
	if len(c.types) > 0 && !c.types[e.Type] {
		return false
	}
	return true
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, e := range msg.Entities {
			c.entities[strings.ToLower(strings.TrimSpace(e))] = true
		}
		for _, t := range msg.Types {
			c.types[t] = true
		}
	case "unsubscribe":
		for _, e := range msg.Entities {
			delete(c.entities, strings.ToLower(strings.TrimSpace(e)))
		}
		for _, t := range msg.Types {
			delete(c.types, t)
		}
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("stream: unexpected close", "error", err)
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil {
			c.apply(sub)
		}
	}
}

func (c *client) writePump() {
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
