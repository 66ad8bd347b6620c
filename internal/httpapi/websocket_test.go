package httpapi

import (
	"encoding/base64"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harborchat/harbor/internal/chat"
)

func heartbeatConfig() chat.Config {
	cfg := defaultChatConfig()
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PongTimeout = 50 * time.Millisecond
	return cfg
}

func TestPresenceBothSidesSeeBoth(t *testing.T) {
	env := newTestEnv(t, defaultChatConfig())

	alice := env.dialWS(t, env.mintToken(t, "u1", "alice"), false)
	alice.waitRoster(t, "u1")

	bob := env.dialWS(t, env.mintToken(t, "u2", "bob"), false)

	alice.waitRoster(t, "u1", "u2")
	bob.waitRoster(t, "u1", "u2")
}

func TestAnonymousConnectionGetsPresenceButNoRosterEntry(t *testing.T) {
	env := newTestEnv(t, defaultChatConfig())

	anon := env.dialWS(t, "", false)
	_ = env.dialWS(t, env.mintToken(t, "u1", "alice"), false)

	// The anonymous peer observes the roster without appearing in it.
	anon.waitRoster(t, "u1")
}

func TestMessageEndToEnd(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, defaultChatConfig())

	alice := env.dialWS(t, env.mintToken(t, "u1", "alice"), false)
	bob := env.dialWS(t, env.mintToken(t, "u2", "bob"), false)
	alice.waitRoster(t, "u1", "u2")
	bob.waitRoster(t, "u1", "u2")

	alice.send(t, map[string]string{"recipient": "u2", "text": "hi"})

	frame := bob.nextMessage(t)
	req.Equal("hi", frame["text"])
	req.Equal("u1", frame["sender"])
	req.Equal("u2", frame["recipient"])
	req.Nil(frame["attachmentRef"])
	req.NotEmpty(frame["id"])

	// The delivered id matches the persisted record.
	persisted, err := env.db.Find("u1", "u2")
	req.NoError(err)
	req.Len(persisted, 1)
	req.Equal(persisted[0].ID.String(), frame["id"])

	// And the history endpoint serves the same conversation.
	resp := getWithToken(t, env.ts.URL+"/messages/u1", env.mintToken(t, "u2", "bob"))
	req.Equal(http.StatusOK, resp.StatusCode)
	var history []messageResponse
	decodeBody(t, resp, &history)
	req.Len(history, 1)
	req.Equal("hi", history[0].Text)
}

func TestAttachmentEndToEnd(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, defaultChatConfig())

	alice := env.dialWS(t, env.mintToken(t, "u1", "alice"), false)
	bob := env.dialWS(t, env.mintToken(t, "u2", "bob"), false)
	alice.waitRoster(t, "u1", "u2")
	bob.waitRoster(t, "u1", "u2")

	payload := []byte("pretend this is a picture")
	alice.send(t, map[string]any{
		"recipient": "u2",
		"file": map[string]string{
			"name": "pic.png",
			"data": "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload),
		},
	})

	frame := bob.nextMessage(t)
	ref, ok := frame["attachmentRef"].(string)
	req.True(ok, "attachmentRef missing: %v", frame)
	req.NotEmpty(ref)

	resp, err := http.Get(env.ts.URL + "/uploads/" + ref)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	served, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal(payload, served)
}

func TestDisconnectShrinksRoster(t *testing.T) {
	env := newTestEnv(t, defaultChatConfig())

	alice := env.dialWS(t, env.mintToken(t, "u1", "alice"), false)
	bob := env.dialWS(t, env.mintToken(t, "u2", "bob"), false)
	alice.waitRoster(t, "u1", "u2")
	bob.waitRoster(t, "u1", "u2")

	require.NoError(t, bob.conn.Close())

	alice.waitRoster(t, "u1")
}

func TestHeartbeatEvictsSilentClient(t *testing.T) {
	env := newTestEnv(t, heartbeatConfig())

	alice := env.dialWS(t, env.mintToken(t, "u1", "alice"), false)
	deadBob := env.dialWS(t, env.mintToken(t, "u2", "bob"), true)
	alice.waitRoster(t, "u1", "u2")

	// No pong ever arrives from bob, so the server closes the connection
	// within one ping interval plus the pong timeout.
	deadBob.waitClosed(t, 2*time.Second)
	alice.waitRoster(t, "u1")
}

func TestHeartbeatKeepsResponsiveClient(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, heartbeatConfig())

	alice := env.dialWS(t, env.mintToken(t, "u1", "alice"), false)
	bob := env.dialWS(t, env.mintToken(t, "u2", "bob"), false)
	alice.waitRoster(t, "u1", "u2")
	bob.waitRoster(t, "u1", "u2")

	// Outlive many ping cycles; the default handler answers every ping.
	time.Sleep(500 * time.Millisecond)

	alice.send(t, map[string]string{"recipient": "u2", "text": "still here"})
	frame := bob.nextMessage(t)
	req.Equal("still here", frame["text"])
}
