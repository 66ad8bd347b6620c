package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/harborchat/harbor/internal/auth"
	"github.com/harborchat/harbor/internal/domain"
	"github.com/harborchat/harbor/internal/store"
)

const tokenCookie = "token"

type credentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type personResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type messageResponse struct {
	ID            string    `json:"id"`
	Sender        string    `json:"sender"`
	Recipient     string    `json:"recipient"`
	Text          string    `json:"text,omitempty"`
	AttachmentRef *string   `json:"attachmentRef"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Msg("writing JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Harbor server is running!"))
}

func (s *Server) setTokenCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// identityFromRequest resolves the caller's identity from the token cookie.
func (s *Server) identityFromRequest(r *http.Request) (domain.Identity, error) {
	cookie, err := r.Cookie(tokenCookie)
	if err != nil {
		return domain.Identity{}, auth.ErrInvalidCredential
	}
	return s.tokens.Resolve(cookie.Value)
}

func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return credentialsRequest{}, false
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid credentials payload")
		return credentialsRequest{}, false
	}
	return req, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	user, err := s.users.CreateUser(req.Username, hashed)
	if errors.Is(err, store.ErrUserExists) {
		s.writeError(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	s.issueToken(w, user)
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := s.users.GetUserByUsername(req.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	s.issueToken(w, user)
	s.writeJSON(w, http.StatusOK, map[string]string{"id": user.ID})
}

func (s *Server) issueToken(w http.ResponseWriter, user domain.User) {
	token, err := s.tokens.Generate(domain.Identity{ID: user.ID, DisplayName: user.Username})
	if err != nil {
		s.log.Error().Err(err).Str("user", user.ID).Msg("token generation failed")
		return
	}
	s.setTokenCookie(w, token, 0)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.setTokenCookie(w, "", -1)
	s.writeJSON(w, http.StatusOK, "ok")
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identityFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"userId":   identity.ID,
		"username": identity.DisplayName,
	})
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}

	people := lo.Map(users, func(user domain.User, _ int) personResponse {
		return personResponse{ID: user.ID, Username: user.Username}
	})
	s.writeJSON(w, http.StatusOK, people)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	identity, err := s.identityFromRequest(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	other := chi.URLParam(r, "userId")
	if other == "" {
		s.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	messages, err := s.history.Find(identity.ID, other)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	body := lo.Map(messages, func(msg domain.Message, _ int) messageResponse {
		resp := messageResponse{
			ID:        msg.ID.String(),
			Sender:    msg.Sender,
			Recipient: msg.Recipient,
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
		}
		if msg.AttachmentRef != "" {
			ref := msg.AttachmentRef
			resp.AttachmentRef = &ref
		}
		return resp
	})
	s.writeJSON(w, http.StatusOK, body)
}
