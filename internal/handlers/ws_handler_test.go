package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-hub/internal/config"
	"chat-hub/internal/middleware"
	"chat-hub/internal/models"
	"chat-hub/internal/realtime"
	"chat-hub/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()
	r := gin.New()
	ws := NewWSHandler(env.hub, env.cfg, env.metrics, testutil.DiscardLogger())
	r.GET("/ws", middleware.JWTAuthMiddleware(env.tokens), ws.ServeWS)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = env.hub.Shutdown(ctx)
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := realtime.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// readUntil reads frames until one named event satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, event string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env realtime.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event && (match == nil || match(env.Data)) {
			return env.Data
		}
	}
}

func onlineEquals(want ...string) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var got []string
		_ = json.Unmarshal(raw, &got)
		return assert.ObjectsAreEqual(want, got)
	}
}

func TestWebSocket_MessageRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u-alice", "alice")
	env.seedUser(t, "u-bob", "bob")
	env.seedRoom(t, "general")
	srv := newWSServer(t, env)

	alice := dial(t, srv, env.token(t, "u-alice", "alice"))
	send(t, alice, realtime.EventAuthenticate, "u-alice")
	readUntil(t, alice, realtime.EventOnlineUsers, onlineEquals("u-alice"))
	send(t, alice, realtime.EventJoinRoom, "general")
	require.Eventually(t, func() bool {
		return len(env.hub.Rooms().SubscribersOf("general")) == 1
	}, time.Second, 10*time.Millisecond)

	bob := dial(t, srv, env.token(t, "u-bob", "bob"))
	send(t, bob, realtime.EventAuthenticate, map[string]string{"userId": "u-bob"})
	readUntil(t, bob, realtime.EventOnlineUsers, onlineEquals("u-alice", "u-bob"))
	send(t, bob, realtime.EventJoinRoom, map[string]string{"roomId": "general"})

	// Alice learning about bob means both subscriptions are in place.
	readUntil(t, alice, realtime.EventUserJoined, nil)

	send(t, alice, realtime.EventSendMessage, map[string]string{"roomId": "general", "content": "hi"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		raw := readUntil(t, conn, realtime.EventReceiveMessage, nil)
		var msg models.EnrichedMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "general", msg.RoomID)
		assert.Equal(t, "alice", msg.Sender.Username)
	}

	require.NoError(t, alice.Close())
	readUntil(t, bob, realtime.EventOnlineUsers, onlineEquals("u-bob"))
	assert.Eventually(t, func() bool { return env.hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocket_ErrorsStayOnOriginConnection(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u-alice", "alice")
	srv := newWSServer(t, env)

	alice := dial(t, srv, env.token(t, "u-alice", "alice"))
	send(t, alice, realtime.EventSendMessage, map[string]string{"roomId": "general", "content": "hi"})

	raw := readUntil(t, alice, realtime.EventMessageError, nil)
	assert.Contains(t, string(raw), "authentication required")

	send(t, alice, realtime.EventAuthenticate, "u-bob")
	raw = readUntil(t, alice, realtime.EventError, nil)
	assert.Contains(t, string(raw), `"code":"access_denied"`)
}

func TestWebSocket_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	srv := newWSServer(t, env)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.ClientURLs = "http://localhost:3000"
	srv := newWSServer(t, env)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + env.token(t, "u-alice", "alice")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocket_RateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u-alice", "alice")
	env.cfg.RateLimit = 0.001
	env.cfg.RateBurst = 1
	srv := newWSServer(t, env)

	alice := dial(t, srv, env.token(t, "u-alice", "alice"))
	send(t, alice, realtime.EventAuthenticate, "u-alice")
	send(t, alice, realtime.EventJoinRoom, "general")

	raw := readUntil(t, alice, realtime.EventError, nil)
	assert.Contains(t, string(raw), `"code":"rate_limited"`)
	assert.Equal(t, 1.0, promtest.ToFloat64(env.metrics.EventsRateLimited))
}

func TestWSClient_SendNeverBlocks(t *testing.T) {
	c := newWSClient(nil, 1)

	assert.True(t, c.Send([]byte("one")))
	assert.False(t, c.Send([]byte("two")), "full queue")

	c.Close()
	c.Close()
	<-c.send
	assert.False(t, c.Send([]byte("three")), "closed client")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker(config.Config{ClientURLs: "http://localhost:3000/, https://chat.example.com"}.AllowedOrigins())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"HTTP://LOCALHOST:3000", true},
		{"https://chat.example.com/", true},
		{"http://chat.example.com", false},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, check(r), tt.origin)
	}

	all := originChecker([]string{"*"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://anything.example")
	assert.True(t, all(r))
}
