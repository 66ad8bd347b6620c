package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harborchat/harbor/internal/auth"
	"github.com/harborchat/harbor/internal/blob"
	"github.com/harborchat/harbor/internal/chat"
	"github.com/harborchat/harbor/internal/domain"
	"github.com/harborchat/harbor/internal/store"
)

type testEnv struct {
	ts     *httptest.Server
	tokens *auth.TokenService
	db     *store.Store
	blobs  *blob.Store
	hub    *chat.Hub
}

func defaultChatConfig() chat.Config {
	return chat.Config{
		PingInterval:   time.Hour,
		PongTimeout:    time.Hour,
		SendBufferSize: 16,
		MaxMessageSize: 1 << 20,
		RateLimit:      chat.RateLimitConfig{Burst: 100, RefillInterval: time.Second},
	}
}

func newTestEnv(t *testing.T, cfg chat.Config) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := store.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	blobs, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)

	hub := chat.NewHub(logger, cfg, db, blobs)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	tokens := auth.NewTokenService("test-secret", time.Hour)
	api := NewServer(logger, tokens, db, db, hub, blobs.Dir(), []string{"*"})

	ts := httptest.NewServer(api.Router())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, tokens: tokens, db: db, blobs: blobs, hub: hub}
}

func (e *testEnv) mintToken(t *testing.T, id, name string) string {
	t.Helper()
	token, err := e.tokens.Generate(domain.Identity{ID: id, DisplayName: name})
	require.NoError(t, err)
	return token
}

// wsClient wraps a dialed connection with a background reader so that
// control frames keep being processed while tests wait on data frames.
type wsClient struct {
	conn   *websocket.Conn
	frames chan map[string]any
	closed chan struct{}
}

func (e *testEnv) dialWS(t *testing.T, token string, ignorePings bool) *wsClient {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", tokenCookie+"="+token)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	if ignorePings {
		// Replace the default handler, which would answer with a pong.
		conn.SetPingHandler(func(string) error { return nil })
	}

	client := &wsClient{
		conn:   conn,
		frames: make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go func() {
		defer close(client.closed)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if json.Unmarshal(raw, &frame) == nil {
				client.frames <- frame
			}
		}
	}()
	return client
}

func (c *wsClient) send(t *testing.T, payload any) {
	t.Helper()
	require.NoError(t, c.conn.WriteJSON(payload))
}

// waitRoster reads frames until a presence event carries exactly the given
// user ids, in any order.
func (c *wsClient) waitRoster(t *testing.T, userIDs ...string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-c.frames:
			online, ok := frame["online"].([]any)
			if !ok {
				continue
			}
			got := make([]string, 0, len(online))
			for _, entry := range online {
				if m, ok := entry.(map[string]any); ok {
					if id, ok := m["userId"].(string); ok {
						got = append(got, id)
					}
				}
			}
			if len(got) == len(userIDs) && matchSet(got, userIDs) {
				return
			}
		case <-deadline:
			t.Fatalf("roster %v never observed", userIDs)
		}
	}
}

func matchSet(got, want []string) bool {
	seen := make(map[string]int, len(got))
	for _, id := range got {
		seen[id]++
	}
	for _, id := range want {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}

// nextMessage reads frames until a routed message event arrives.
func (c *wsClient) nextMessage(t *testing.T) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-c.frames:
			if _, ok := frame["id"]; ok {
				return frame
			}
		case <-deadline:
			t.Fatal("no message event received")
		}
	}
}

// waitClosed blocks until the server has torn the connection down.
func (c *wsClient) waitClosed(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(timeout):
		t.Fatal("connection was not closed in time")
	}
}
