package httpapi

import (
	"net/http"

	"github.com/harborchat/harbor/internal/chat"
	"github.com/harborchat/harbor/internal/domain"
)

// handleWebSocket upgrades the connection, resolves the token cookie into
// an identity, and hands the client to the hub. A rejected token leaves the
// connection anonymous rather than failing the upgrade: anonymous peers
// still receive presence frames but are excluded from roster and fan-out.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	var identity *domain.Identity
	if cookie, err := r.Cookie(tokenCookie); err == nil {
		resolved, err := s.tokens.Resolve(cookie.Value)
		if err != nil {
			s.log.Debug().Err(err).Msg("token rejected; connection stays anonymous")
		} else {
			identity = &resolved
		}
	}

	client := chat.NewClient(s.hub, conn, r.RemoteAddr, identity)
	if !s.hub.Register(client) {
		s.log.Warn().Str("addr", r.RemoteAddr).Msg("hub is shutting down; closing new connection")
		_ = conn.Close()
	}
}
