// internal/handlers/game.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/lernspiel/arena/internal/apperr"
)

// GetGameHandler returns the catalog entry backing a lobby's game so clients
// can render the title and type without a marketplace round trip.
// GET /game/{id}
func (s *Server) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFromRequest(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	game, err := s.Lookup.GetGame(r.Context(), id)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	if game == nil {
		writeError(w, s.Logger, apperr.New(apperr.NotFound, "game %s does not exist", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"game": game})
}
