// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/lernspiel/arena/internal/session"
)

// JoinLobbyHandler admits the caller into a session of the lobby under the
// lobby's invitation strategy. Unauthenticated callers are given an ephemeral
// guest identity first; whether guests may actually join is decided by the
// lobby's settings.
// POST /session/join
func (s *Server) JoinLobbyHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := s.EnsureGuestUser(w, r)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}

	var req struct {
		LobbyID            uuid.UUID  `json:"lobby_id"`
		SessionID          *uuid.UUID `json:"session_id,omitempty"`
		DisplayName        string     `json:"display_name"`
		Team               string     `json:"team"`
		MaxPlayersOverride int        `json:"max_players_override"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	join := session.JoinRequest{
		SessionID:          req.SessionID,
		DisplayName:        req.DisplayName,
		Team:               req.Team,
		MaxPlayersOverride: req.MaxPlayersOverride,
	}
	if actor.IsGuest {
		join.GuestToken = s.ensureGuestToken(w, r)
	}

	participant, sess, err := s.Sessions.Join(r.Context(), req.LobbyID, join, actor)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"participant": participant,
		"session":     sess,
	})
}

// CreateSessionHandler creates a session explicitly; only lobbies using the
// manual_selection strategy allow this.
// POST /session/create
func (s *Server) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		LobbyID    uuid.UUID `json:"lobby_id"`
		Name       string    `json:"name"`
		MaxPlayers int       `json:"max_players"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := s.Sessions.Create(r.Context(), req.LobbyID, session.CreateParams{
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
	}, actor)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": sess})
}

// LeaveSessionHandler removes a participant from a session. Participants may
// remove themselves; the lobby owner, host, or an admin may remove anyone.
// POST /session/leave
func (s *Server) LeaveSessionHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		SessionID     uuid.UUID `json:"session_id"`
		ParticipantID uuid.UUID `json:"participant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.Sessions.Leave(r.Context(), req.SessionID, req.ParticipantID, actor); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"left": true})
}

// UpdateGameStateHandler replaces the session's opaque game-state document.
// POST /session/state
func (s *Server) UpdateGameStateHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		SessionID uuid.UUID       `json:"session_id"`
		State     json.RawMessage `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.Sessions.UpdateGameState(r.Context(), req.SessionID, req.State, actor); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": true})
}

// ListSessionsHandler returns a lobby's sessions, numbered ascending, each
// with its derived status.
// GET /lobby/{id}/sessions
func (s *Server) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFromRequest(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	lobbyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid lobby id", http.StatusBadRequest)
		return
	}

	sessions, statuses, err := s.Sessions.List(r.Context(), lobbyID)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(sessions))
	for i := range sessions {
		out = append(out, map[string]interface{}{
			"session": sessions[i],
			"status":  statuses[i],
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}
