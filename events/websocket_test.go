package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShadeREPO/elizaOS-sub000/pkg/backoff"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSource_NormalizesFrames(t *testing.T) {
	frames := []string{
		`{"type": "messageBroadcast", "agentId": "agent-1", "roomId": "room-1"}`,
		`{"ignored": true}`,
		`{"event": "memory:created", "data": {"roomId": "room-2"}}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	source, err := NewWebSocketSource(WebSocketConfig{
		URL:       wsURL(srv),
		Reconnect: backoff.Config{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond},
	}, nil, nil)
	require.NoError(t, err)
	defer func() { _ = source.Close() }()

	var got []ChangeEvent
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-source.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d", len(got))
		}
	}

	assert.Equal(t, KindMessage, got[0].Kind)
	assert.Equal(t, "room-1", got[0].RoomID)
	assert.Equal(t, KindMemory, got[1].Kind)
	assert.Equal(t, "room-2", got[1].RoomID)
}

func TestWebSocketSource_CloseIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	source, err := NewWebSocketSource(WebSocketConfig{URL: wsURL(srv)}, nil, nil)
	require.NoError(t, err)

	assert.NoError(t, source.Close())
	assert.NoError(t, source.Close())

	// Channel is closed after Close
	_, open := <-source.Events()
	assert.False(t, open)
}

func TestWebSocketSource_RequiresURL(t *testing.T) {
	_, err := NewWebSocketSource(WebSocketConfig{}, nil, nil)
	assert.Error(t, err)
}
