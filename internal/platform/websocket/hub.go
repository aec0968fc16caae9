// Package websocket carries per-connection sessions over WebSockets. Each
// connection owns one Session that receives the client's messages and may
// push frames back; the Hub additionally fans document change events out to
// clients subscribed to collection or document topics.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Event is the frame pushed to topic subscribers when a document changes.
type Event struct {
	Type       string    `json:"type"`
	Topic      string    `json:"topic"`
	Collection string    `json:"collection"`
	ID         string    `json:"id,omitempty"`
	Op         string    `json:"op"`
	Timestamp  time.Time `json:"timestamp"`
}

// ClientMessage is an inbound frame. subscribe/unsubscribe are handled by the
// hub; every other action goes to the connection's Session.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
	Token  string   `json:"token,omitempty"`
	Path   string   `json:"path,omitempty"`
}

// Session handles one connection's messages. Close is called once when the
// connection ends.
type Session interface {
	HandleMessage(ctx context.Context, msg ClientMessage)
	Close()
}

// TopicAuthorizer is implemented by sessions that restrict topic subscriptions.
type TopicAuthorizer interface {
	CanSubscribe(topic string) bool
}

// SessionFactory builds the Session for a new client. ctx is cancelled when
// the connection closes.
type SessionFactory func(ctx context.Context, c *Client) Session

// Observer is notified of connection lifecycle, e.g. for a gauge.
type Observer interface {
	GateConnected()
	GateDisconnected()
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one WebSocket connection.
type Client struct {
	ID string

	mu     sync.Mutex
	topics []string
	send   chan []byte
	closed bool
	conn   Conn
}

func newClient(conn Conn) *Client {
	return &Client{ID: uuid.New().String(), send: make(chan []byte, sendBuffer), conn: conn}
}

// SendJSON queues v for delivery. It reports false when the client is gone
// or its buffer is full.
func (c *Client) SendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.trySend(data)
}

func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Topics returns a copy of the client's subscriptions.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.topics)
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks connected clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
}

// Unregister drops the client from every topic and closes its send queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics() {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	client.shutdown()
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	defer client.mu.Unlock()
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
		if !slices.Contains(client.topics, topic) {
			client.topics = append(client.topics, topic)
		}
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		h.removeLocked(topic, client)
	}
	client.mu.Lock()
	client.topics = slices.DeleteFunc(client.topics, func(t string) bool {
		return slices.Contains(topics, t)
	})
	client.mu.Unlock()
}

// UnsubscribeAll clears every subscription of client, used when the
// connection's identity changes.
func (h *Hub) UnsubscribeAll(client *Client) {
	h.Unsubscribe(client, client.Topics())
}

// ProcessMessage applies hub-level actions. It reports whether msg was one.
func (h *Hub) ProcessMessage(client *Client, session Session, msg ClientMessage) bool {
	switch msg.Action {
	case "subscribe":
		allowed := msg.Topics
		if auth, ok := session.(TopicAuthorizer); ok {
			allowed = slices.DeleteFunc(slices.Clone(msg.Topics), func(t string) bool {
				return !auth.CanSubscribe(t)
			})
		}
		h.Subscribe(client, allowed)
		return true
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
		return true
	}
	return false
}

// Broadcast sends event to the subscribers of topic. Full client buffers
// drop the frame.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		client.trySend(data)
	}
}

// Relay forwards bus change events on collections to hub subscribers of the
// collection topic and of the document topic.
func (h *Hub) Relay(bus pubsub.Bus, collections ...string) (stop func()) {
	var unsubs []func()
	for _, coll := range collections {
		unsubs = append(unsubs, bus.Subscribe(coll, func(e pubsub.Event) {
			for _, topic := range e.Topics() {
				h.Broadcast(topic, Event{
					Type:       "change",
					Topic:      topic,
					Collection: e.Collection,
					ID:         e.ID,
					Op:         e.Op,
					Timestamp:  e.At,
				})
			}
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// HandlerOptions configures the upgrade endpoint.
type HandlerOptions struct {
	// AllowedOrigins lists accepted Origin headers; empty accepts any.
	AllowedOrigins []string
	Observer       Observer
	Logger         zerolog.Logger
}

// Handler upgrades HTTP requests and runs one Session per connection.
type Handler struct {
	hub      *Hub
	sessions SessionFactory
	opts     HandlerOptions
	upgrader gorillawebsocket.Upgrader
}

func NewHandler(hub *Hub, sessions SessionFactory, opts HandlerOptions) *Handler {
	h := &Handler{hub: hub, sessions: sessions, opts: opts}
	h.upgrader = gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.opts.AllowedOrigins, origin)
}

// HandleConnect upgrades the request and starts the connection pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote an error response.
		return nil
	}
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.Serve(&gorillaConnAdapter{conn: ws})
	return nil
}

// Serve runs a connection until it closes. It blocks.
func (h *Handler) Serve(conn Conn) {
	client := newClient(conn)
	ctx, cancel := context.WithCancel(context.Background())
	session := h.sessions(ctx, client)

	h.hub.Register(client)
	if h.opts.Observer != nil {
		h.opts.Observer.GateConnected()
	}
	log := h.opts.Logger.With().Str("conn_id", client.ID).Logger()
	log.Debug().Msg("websocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(client)
	}()

	readPump(ctx, h.hub, client, session)

	cancel()
	session.Close()
	h.hub.Unregister(client)
	<-done
	conn.Close()
	if h.opts.Observer != nil {
		h.opts.Observer.GateDisconnected()
	}
	log.Debug().Msg("websocket disconnected")
}

func readPump(ctx context.Context, hub *Hub, client *Client, session Session) {
	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendJSON(map[string]string{"error": "malformed message"})
			continue
		}
		if hub.ProcessMessage(client, session, msg) {
			continue
		}
		session.HandleMessage(ctx, msg)
	}
}

type pinger interface {
	Ping() error
}

func writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				client.conn.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				client.conn.Close()
				return
			}
		case <-ticker.C:
			if p, ok := client.conn.(pinger); ok {
				if err := p.Ping(); err != nil {
					client.conn.Close()
					return
				}
			}
		}
	}
}

// gorillaConnAdapter applies write deadlines and keepalive pings to a
// gorilla connection.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	a.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Ping() error {
	return a.conn.WriteControl(gorillawebsocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
