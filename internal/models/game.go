package models

import "github.com/google/uuid"

// Game is the catalog entry a lobby is scoped to. The marketplace owns the
// full product record; the orchestrator only needs existence, ownership, and
// the game type used for configuration lookups.
type Game struct {
	ID       uuid.UUID `json:"id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	GameType string    `json:"game_type"`
	Title    string    `json:"title"`
}
