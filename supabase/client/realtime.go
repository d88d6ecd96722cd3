package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// RealtimeClient speaks the Phoenix channel protocol used by Supabase
// Realtime.
type RealtimeClient struct {
	mu        sync.Mutex
	url       string
	conn      *websocket.Conn
	channels  map[string]*Channel
	handlers  map[string][]EventHandler
	done      chan struct{}
	ref       int
	heartbeat time.Duration
}

// EventHandler handles realtime events.
type EventHandler func(event *RealtimeEvent)

// RealtimeEvent is one frame received on a channel. Payload is kept raw.
type RealtimeEvent struct {
	Event   string          `json:"event"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

// ChangeType returns INSERT, UPDATE or DELETE for postgres change frames.
func (e *RealtimeEvent) ChangeType() string {
	if t := gjson.GetBytes(e.Payload, "data.type"); t.Exists() {
		return strings.ToUpper(t.String())
	}
	if t := gjson.GetBytes(e.Payload, "type"); t.Exists() {
		return strings.ToUpper(t.String())
	}
	return e.Event
}

// Channel is one joined topic.
type Channel struct {
	client  *RealtimeClient
	topic   string
	config  map[string]any
	joined  bool
	joinRef string
}

// NewRealtimeClient derives the websocket endpoint from the project URL.
func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	wsURL := strings.TrimSuffix(supabaseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	wsURL += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &RealtimeClient{
		url:       wsURL,
		channels:  make(map[string]*Channel),
		handlers:  make(map[string][]EventHandler),
		heartbeat: 30 * time.Second,
	}
}

// Realtime returns a realtime client for the same project.
func (c *Client) Realtime() *RealtimeClient {
	return NewRealtimeClient(c.baseURL, c.apiKey)
}

// Connect establishes the websocket connection.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	go r.readLoop(conn, r.done)
	go r.heartbeatLoop(r.done, r.heartbeat)
	return nil
}

// Disconnect closes the connection and forgets every channel.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	close(r.done)

	err := r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	r.conn.Close()
	r.conn = nil
	for _, ch := range r.channels {
		ch.joined = false
	}
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// Channel returns or creates a channel.
func (r *RealtimeClient) Channel(topic string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[topic]; ok {
		return ch
	}
	ch := &Channel{client: r, topic: topic}
	r.channels[topic] = ch
	return ch
}

func (r *RealtimeClient) nextRefLocked() string {
	r.ref++
	return strconv.Itoa(r.ref)
}

func (r *RealtimeClient) writeLocked(msg map[string]any) error {
	if r.conn == nil {
		return errors.New("realtime: not connected")
	}
	return r.conn.WriteJSON(msg)
}

// Subscribe joins the channel.
func (c *Channel) Subscribe(_ context.Context) error {
	r := c.client
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.joined {
		return nil
	}
	ref := r.nextRefLocked()
	payload := map[string]any{}
	if c.config != nil {
		payload["config"] = c.config
	}
	if err := r.writeLocked(map[string]any{
		"topic":    c.topic,
		"event":    "phx_join",
		"payload":  payload,
		"ref":      ref,
		"join_ref": ref,
	}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	c.joinRef = ref
	c.joined = true
	return nil
}

// Unsubscribe leaves the channel.
func (c *Channel) Unsubscribe(_ context.Context) error {
	r := c.client
	r.mu.Lock()
	defer r.mu.Unlock()

	if !c.joined {
		return nil
	}
	if err := r.writeLocked(map[string]any{
		"topic":    c.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      r.nextRefLocked(),
		"join_ref": c.joinRef,
	}); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	c.joined = false
	delete(r.channels, c.topic)
	for key := range r.handlers {
		if strings.HasPrefix(key, c.topic+"|") {
			delete(r.handlers, key)
		}
	}
	return nil
}

// On registers a handler for a change type or channel event; "*" matches all.
func (c *Channel) On(event string, handler EventHandler) *Channel {
	c.client.mu.Lock()
	defer c.client.mu.Unlock()

	key := c.topic + "|" + strings.ToUpper(event)
	c.client.handlers[key] = append(c.client.handlers[key], handler)
	return c
}

func (r *RealtimeClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case <-done:
			return
		default:
		}

		var event RealtimeEvent
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		r.dispatch(&event)
	}
}

func (r *RealtimeClient) dispatch(event *RealtimeEvent) {
	change := event.ChangeType()

	r.mu.Lock()
	handlers := append([]EventHandler(nil), r.handlers[event.Topic+"|"+change]...)
	if isChange(change) {
		handlers = append(handlers, r.handlers[event.Topic+"|*"]...)
	}
	r.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func isChange(t string) bool {
	return t == "INSERT" || t == "UPDATE" || t == "DELETE"
}

func (r *RealtimeClient) heartbeatLoop(done chan struct{}, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			_ = r.writeLocked(map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
				"ref":     r.nextRefLocked(),
			})
			r.mu.Unlock()
		}
	}
}

// =============================================================================
// Postgres Changes Subscription
// =============================================================================

// PostgresChangesConfig selects the rows a subscription receives.
type PostgresChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE, *
	Schema string
	Table  string
	Filter string // optional, e.g. "agency_id=eq.abc"
}

// SubscribeToPostgresChanges joins a channel for one table and routes its
// change frames to handler.
func (r *RealtimeClient) SubscribeToPostgresChanges(ctx context.Context, cfg PostgresChangesConfig, handler EventHandler) (*Channel, error) {
	if cfg.Table == "" {
		return nil, errors.New("table is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	topic := fmt.Sprintf("realtime:%s:%s", cfg.Schema, cfg.Table)
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}

	change := map[string]any{"event": cfg.Event, "schema": cfg.Schema, "table": cfg.Table}
	if cfg.Filter != "" {
		change["filter"] = cfg.Filter
	}

	ch := r.Channel(topic)
	r.mu.Lock()
	ch.config = map[string]any{"postgres_changes": []any{change}}
	r.mu.Unlock()
	ch.On(cfg.Event, handler)

	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}
