package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginPolicyAllowList(t *testing.T) {
	req := require.New(t)
	policy := newOriginPolicy(zerolog.Nop(), []string{"http://localhost:5173", "https://Chat.Example.com"})

	req.True(policy.check(requestWithOrigin("http://localhost:5173")))
	req.True(policy.check(requestWithOrigin("HTTPS://CHAT.EXAMPLE.COM")))
	req.False(policy.check(requestWithOrigin("http://evil.example.com")))
}

func TestOriginPolicyAllowsMissingHeader(t *testing.T) {
	policy := newOriginPolicy(zerolog.Nop(), []string{"http://localhost:5173"})
	require.True(t, policy.check(requestWithOrigin("")))
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := newOriginPolicy(zerolog.Nop(), []string{"*"})
	require.True(t, policy.check(requestWithOrigin("http://anywhere.example.com")))
}

func TestOriginPolicySkipsInvalidEntries(t *testing.T) {
	req := require.New(t)
	policy := newOriginPolicy(zerolog.Nop(), []string{"not a url", "", "http://localhost:5173"})

	req.True(policy.check(requestWithOrigin("http://localhost:5173")))
	req.False(policy.check(requestWithOrigin("not a url")))
}
