package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestRealtimeURL(t *testing.T) {
	rt := NewRealtimeClient("https://proj.supabase.co/", "anon")
	assert.Equal(t, "wss://proj.supabase.co/realtime/v1/websocket?apikey=anon&vsn=1.0.0", rt.url)
	rt = NewRealtimeClient("http://localhost:54321", "anon")
	assert.Equal(t, "ws://localhost:54321/realtime/v1/websocket?apikey=anon&vsn=1.0.0", rt.url)

	c, err := New(Config{URL: "https://proj.supabase.co", APIKey: "service"})
	require.NoError(t, err)
	assert.Equal(t, "wss://proj.supabase.co/realtime/v1/websocket?apikey=service&vsn=1.0.0", c.Realtime().url)
}

func TestChangeType(t *testing.T) {
	v2 := &RealtimeEvent{Event: "postgres_changes", Payload: []byte(`{"data":{"type":"update"}}`)}
	assert.Equal(t, "UPDATE", v2.ChangeType())
	v1 := &RealtimeEvent{Event: "DELETE", Payload: []byte(`{"type":"DELETE"}`)}
	assert.Equal(t, "DELETE", v1.ChangeType())
	other := &RealtimeEvent{Event: "phx_reply", Payload: []byte(`{"status":"ok"}`)}
	assert.Equal(t, "phx_reply", other.ChangeType())
}

func TestSubscribeToPostgresChanges(t *testing.T) {
	upgrader := websocket.Upgrader{}
	joined := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		joined <- msg
		topic := gjson.GetBytes(msg, "topic").String()
		_ = conn.WriteJSON(map[string]any{"topic": topic, "event": "phx_reply", "payload": map[string]any{"status": "ok"}, "ref": "1"})
		_ = conn.WriteJSON(map[string]any{
			"topic":   topic,
			"event":   "postgres_changes",
			"payload": map[string]any{"data": map[string]any{"type": "UPDATE", "table": "clients", "record": map[string]any{"id": "c1", "name": "Acme"}}},
			"ref":     nil,
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rt := NewRealtimeClient(srv.URL, "anon")
	require.NoError(t, rt.Connect(context.Background()))
	defer rt.Disconnect()

	got := make(chan *RealtimeEvent, 1)
	ch, err := rt.SubscribeToPostgresChanges(context.Background(), PostgresChangesConfig{Table: "clients"}, func(e *RealtimeEvent) {
		got <- e
	})
	require.NoError(t, err)
	require.NotNil(t, ch)

	select {
	case msg := <-joined:
		assert.Equal(t, "realtime:public:clients", gjson.GetBytes(msg, "topic").String())
		assert.Equal(t, "phx_join", gjson.GetBytes(msg, "event").String())
		assert.Equal(t, "clients", gjson.GetBytes(msg, "payload.config.postgres_changes.0.table").String())
	case <-time.After(2 * time.Second):
		t.Fatal("join not received")
	}

	select {
	case e := <-got:
		assert.Equal(t, "UPDATE", e.ChangeType())
		assert.Equal(t, "Acme", gjson.GetBytes(e.Payload, "data.record.name").String())
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	rt := NewRealtimeClient("http://localhost", "anon")
	_, err := rt.SubscribeToPostgresChanges(context.Background(), PostgresChangesConfig{Table: "projects"}, func(*RealtimeEvent) {})
	assert.Error(t, err)
}

func TestUnsubscribeSendsLeave(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := make(chan []byte, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- msg
		}
	}))
	defer srv.Close()

	rt := NewRealtimeClient(srv.URL, "anon")
	require.NoError(t, rt.Connect(context.Background()))
	defer rt.Disconnect()

	ch, err := rt.SubscribeToPostgresChanges(context.Background(), PostgresChangesConfig{Table: "projects"}, func(*RealtimeEvent) {})
	require.NoError(t, err)
	require.NoError(t, ch.Unsubscribe(context.Background()))
	require.NoError(t, ch.Unsubscribe(context.Background()), "leaving twice is a no-op")

	var events []string
	for len(events) < 2 {
		select {
		case msg := <-frames:
			events = append(events, gjson.GetBytes(msg, "event").String())
			assert.Equal(t, "realtime:public:projects", gjson.GetBytes(msg, "topic").String())
		case <-time.After(2 * time.Second):
			t.Fatalf("saw only %v", events)
		}
	}
	assert.Equal(t, []string{"phx_join", "phx_leave"}, events)

	rt.mu.Lock()
	_, stillJoined := rt.channels["realtime:public:projects"]
	rt.mu.Unlock()
	assert.False(t, stillJoined)
}
