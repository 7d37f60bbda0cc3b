// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/lernspiel/arena/internal/auth"
	"github.com/lernspiel/arena/internal/models"
)

// CreateUserHandler registers a permanent user account and logs it in.
// POST /user/create
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	user := &models.User{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	}
	if err := s.Users.CreateUser(r.Context(), user); err != nil {
		writeError(w, s.Logger, err)
		return
	}

	token, err := auth.CreateJWT(user.ID.String(), user.Role, false)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	setAuthCookie(w, token)
	user.Password = ""
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user})
}

// LoginHandler verifies credentials and sets the auth cookie.
// POST /user/login
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.Users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.Logger.WithError(err).Info("login rejected")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token})
}

// GuestHandler mints a guest identity without credentials so a client can
// join guest-friendly lobbies.
// POST /user/guest
func (s *Server) GuestHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := s.EnsureGuestUser(w, r)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  actor.UserID,
		"is_guest": actor.IsGuest,
	})
}

// EnsureGuestUser returns the request's actor, creating and logging in an
// ephemeral guest user when no valid auth cookie is present. The guest gets a
// real user row so foreign keys and audit trails stay intact.
func (s *Server) EnsureGuestUser(w http.ResponseWriter, r *http.Request) (models.Actor, error) {
	if actor, ok := actorFromRequest(r); ok {
		return actor, nil
	}

	guest := &models.User{
		Email:    fmt.Sprintf("guest-%s@guest.local", uuid.NewString()),
		Password: uuid.NewString(),
		Username: fmt.Sprintf("guest-%s", uuid.NewString()[:8]),
		IsGuest:  true,
	}
	if err := s.Users.CreateUser(r.Context(), guest); err != nil {
		return models.Actor{}, fmt.Errorf("create guest user: %w", err)
	}

	token, err := auth.CreateJWT(guest.ID.String(), guest.Role, true)
	if err != nil {
		return models.Actor{}, fmt.Errorf("mint guest token: %w", err)
	}
	setAuthCookie(w, token)
	s.ensureGuestToken(w, r)

	return models.Actor{UserID: guest.ID, Role: guest.Role, IsGuest: true}, nil
}

// ensureGuestToken returns the caller's opaque guest token, issuing one when
// missing. The token keys participant de-duplication across guest rejoins.
func (s *Server) ensureGuestToken(w http.ResponseWriter, r *http.Request) string {
	if tok := extractCookieToken(r.Header.Get("Cookie"), "guest_token"); tok != "" {
		return tok
	}
	tok := auth.NewGuestToken()
	http.SetCookie(w, &http.Cookie{
		Name:     "guest_token",
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return tok
}

func setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
