// Package httpapi exposes the HTTP surface: account endpoints, message
// history, attachment downloads, and the WebSocket upgrade.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/harborchat/harbor/internal/auth"
	"github.com/harborchat/harbor/internal/chat"
	"github.com/harborchat/harbor/internal/domain"
)

// UserStore is the account persistence collaborator.
type UserStore interface {
	CreateUser(username, passwordHash string) (domain.User, error)
	GetUserByUsername(username string) (domain.User, error)
	ListUsers() ([]domain.User, error)
}

// HistoryStore serves the message history fetch.
type HistoryStore interface {
	Find(participantA, participantB string) ([]domain.Message, error)
}

// Server bundles the handlers' dependencies.
type Server struct {
	log        zerolog.Logger
	tokens     *auth.TokenService
	users      UserStore
	history    HistoryStore
	hub        *chat.Hub
	uploadsDir string
	validate   *validator.Validate
	upgrader   websocket.Upgrader
}

func NewServer(
	log zerolog.Logger,
	tokens *auth.TokenService,
	users UserStore,
	history HistoryStore,
	hub *chat.Hub,
	uploadsDir string,
	allowedOrigins []string,
) *Server {
	origins := newOriginPolicy(log, allowedOrigins)
	return &Server{
		log:        log,
		tokens:     tokens,
		users:      users,
		history:    history,
		hub:        hub,
		uploadsDir: uploadsDir,
		validate:   validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Router configures all application routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Get("/profile", s.handleProfile)
	r.Get("/people", s.handlePeople)
	r.Get("/messages/{userId}", s.handleMessages)

	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadsDir))))

	r.Get("/ws", s.handleWebSocket)

	return r
}
