// Package websocket pushes live events to browser clients. Each client is
// subscribed to exactly one topic (an intake session id) for the life of its
// connection.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/platform/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Event is one message delivered to subscribers of Topic.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Client is a single subscriber.
type Client struct {
	ID    string
	Topic string
	Send  chan []byte
	once  sync.Once
}

func (c *Client) closeSend() {
	c.once.Do(func() { close(c.Send) })
}

// Hub tracks clients by topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}

	upgrader gorillawebsocket.Upgrader
	now      func() time.Time
	logger   zerolog.Logger
}

// NewHub returns a Hub accepting upgrades from allowedOrigins. An empty list
// or "*" accepts any origin.
func NewHub(logger zerolog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		topics: make(map[string]map[*Client]struct{}),
		now:    time.Now,
		logger: logger,
	}
	h.upgrader = gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
		// Echoed back to clients that carry their token in the subprotocol list.
		Subprotocols: []string{auth.WebSocketTokenProtocol},
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[client.Topic] == nil {
		h.topics[client.Topic] = make(map[*Client]struct{})
	}
	h.topics[client.Topic][client] = struct{}{}
}

// Unregister removes client and closes its Send channel. Safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	if subs, ok := h.topics[client.Topic]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.topics, client.Topic)
		}
	}
	client.closeSend()
}

// Publish marshals payload into an Event of the given type and delivers it
// to every subscriber of topic. Slow clients whose buffers are full miss
// the event.
func (h *Hub) Publish(topic, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("websocket: marshal payload")
		return
	}
	msg, err := json.Marshal(Event{Type: eventType, Topic: topic, Timestamp: h.now().UTC(), Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("websocket: marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.topics[topic] {
		select {
		case client.Send <- msg:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("type", eventType).Msg("websocket: client buffer full, event dropped")
		}
	}
}

// CloseTopic disconnects every subscriber of topic.
func (h *Hub) CloseTopic(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.topics[topic] {
		h.removeLocked(client)
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Serve upgrades the request and subscribes the connection to topic. The
// pumps run in their own goroutines; Serve returns once the client is
// registered.
func (h *Hub) Serve(c echo.Context, topic string) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}

	client := &Client{
		ID:    uuid.New().String(),
		Topic: topic,
		Send:  make(chan []byte, sendBuffer),
	}
	h.Register(client)
	h.logger.Debug().Str("client_id", client.ID).Str("topic", topic).Msg("websocket: client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

// readPump drains inbound frames so pongs and close frames are processed.
// Clients do not send application messages.
func (h *Hub) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(512)
	ws.SetReadDeadline(h.now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(h.now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			ws.SetWriteDeadline(h.now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage,
					gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(h.now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
