// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lernspiel/arena/internal/lobby"
	"github.com/lernspiel/arena/internal/models"
)

// CreateLobbyHandler creates a pending lobby for a game the actor owns.
// POST /lobby/create
func (s *Server) CreateLobbyHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		GameID   uuid.UUID            `json:"game_id"`
		Settings models.LobbySettings `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	lob, err := s.Lobbies.Create(r.Context(), req.GameID, req.Settings, actor)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"lobby":  lob,
		"status": lobby.Status{State: lobby.StatePending},
	})
}

// ActivateLobbyHandler opens a pending lobby by assigning its expiration, and
// optionally seeds sessions up front.
// POST /lobby/activate
func (s *Server) ActivateLobbyHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		LobbyID         uuid.UUID  `json:"lobby_id"`
		ExpiresAt       *time.Time `json:"expires_at,omitempty"`
		Indefinite      bool       `json:"indefinite"`
		DurationMinutes int        `json:"duration_minutes"`
		MaxPlayers      int        `json:"max_players"`
		Sessions        *struct {
			Count      int    `json:"count"`
			PlayersPer int    `json:"players_per"`
			Name       string `json:"name"`
		} `json:"sessions,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	params := lobby.ActivateParams{
		ExpiresAt:   req.ExpiresAt,
		Indefinite:  req.Indefinite,
		DurationMin: req.DurationMinutes,
		MaxPlayers:  req.MaxPlayers,
	}
	if req.Sessions != nil {
		params.Sessions = &lobby.SessionSeed{
			Count:      req.Sessions.Count,
			PlayersPer: req.Sessions.PlayersPer,
			Name:       req.Sessions.Name,
		}
	}

	lob, err := s.Lobbies.Activate(r.Context(), req.LobbyID, params, actor)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lobby":  lob,
		"status": lobby.ComputeStatus(time.Now(), lob.ExpiresAt, lob.ClosedAt),
	})
}

// CloseLobbyHandler closes a lobby and expires its sessions. Idempotent.
// POST /lobby/close
func (s *Server) CloseLobbyHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		LobbyID uuid.UUID `json:"lobby_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	lob, err := s.Lobbies.Close(r.Context(), req.LobbyID, actor)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lobby":  lob,
		"status": lobby.Status{State: lobby.StateClosed},
	})
}

// SetLobbyExpirationHandler rewrites the lobby expiration. The expiration
// field accepts an RFC3339 timestamp, "indefinite", or "pending".
// POST /lobby/expiration
func (s *Server) SetLobbyExpirationHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		LobbyID    uuid.UUID `json:"lobby_id"`
		Expiration string    `json:"expiration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var value lobby.Expiration
	switch req.Expiration {
	case "", "pending":
		value.Pending = true
	case "indefinite":
		value.Indefinite = true
	default:
		at, err := time.Parse(time.RFC3339, req.Expiration)
		if err != nil {
			http.Error(w, "expiration must be RFC3339, \"indefinite\", or \"pending\"", http.StatusBadRequest)
			return
		}
		value.At = &at
	}

	lob, err := s.Lobbies.SetExpiration(r.Context(), req.LobbyID, value, actor)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lobby":  lob,
		"status": lobby.ComputeStatus(time.Now(), lob.ExpiresAt, lob.ClosedAt),
	})
}

// GetLobbyHandler returns a lobby with its derived status.
// GET /lobby/{id}
func (s *Server) GetLobbyHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFromRequest(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid lobby id", http.StatusBadRequest)
		return
	}

	lob, status, err := s.Lobbies.Get(r.Context(), id)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lobby":  lob,
		"status": status,
	})
}

// FindLobbyByCodeHandler resolves a shareable join code to a joinable lobby.
// Unauthenticated on purpose: the code is the capability.
// GET /lobby/code/{code}
func (s *Server) FindLobbyByCodeHandler(w http.ResponseWriter, r *http.Request) {
	lob, status, err := s.Lobbies.FindByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lobby":  lob,
		"status": status,
	})
}

// ListMyLobbiesHandler returns the lobbies owned by the actor, newest first,
// each with its derived status.
// GET /lobby/list
func (s *Server) ListMyLobbiesHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	lobbies, err := s.Lookup.ListLobbiesByOwner(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}

	now := time.Now()
	out := make([]map[string]interface{}, 0, len(lobbies))
	for i := range lobbies {
		out = append(out, map[string]interface{}{
			"lobby":  lobbies[i],
			"status": lobby.ComputeStatus(now, lobbies[i].ExpiresAt, lobbies[i].ClosedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lobbies": out})
}
