// internal/models/session.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is one bounded round of play nested under a lobby, with its own
// participant roster and an opaque game-state blob owned by the play engine.
type Session struct {
	ID      uuid.UUID `json:"id"`
	LobbyID uuid.UUID `json:"lobby_id"`

	// Number is the lobby-scoped sequence number. Monotonically increasing,
	// never reused while the lobby has any session, even across recycled
	// empty sessions.
	Number int `json:"session_number"`

	Participants []Participant   `json:"participants"`
	GameState    json.RawMessage `json:"game_state,omitempty"`

	// ExpiresAt nil means the session inherits the lobby's expiration.
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Meta SessionMeta `json:"meta"`

	// EverJoined latches to true the first time any participant is admitted
	// and never resets, even if the roster empties again.
	EverJoined bool `json:"-"`
}

// CanDelete reports whether the session may be deleted or recycled: only if
// no participant has ever joined it.
func (s *Session) CanDelete() bool { return !s.EverJoined }

// SessionMeta is the session's metadata bag.
type SessionMeta struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"max_players"`
	GameType   string `json:"game_type"`
	CreatedBy  string `json:"created_by"` // activation_seed, order_overflow, or manual
}

// Participant is a session-scoped roster entry. Identity fields supplied by
// clients are descriptive; the server-assigned ID is authoritative.
type Participant struct {
	ID          uuid.UUID  `json:"id"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	GuestToken  string     `json:"guest_token,omitempty"`
	DisplayName string     `json:"display_name"`
	Team        string     `json:"team,omitempty"`
	JoinedAt    time.Time  `json:"joined_at"`
}

// SameIdentity applies the de-duplication rule: two participant records are
// the same if they share a user id, or share a guest token, or (absent both)
// share a display name within the session. Guest records carry both an
// ephemeral user id and a token; the token comparison keeps a guest
// recognizable even after their ephemeral identity is re-minted.
func (p Participant) SameIdentity(o Participant) bool {
	if p.UserID != nil && o.UserID != nil && *p.UserID == *o.UserID {
		return true
	}
	if p.GuestToken != "" && o.GuestToken != "" {
		return p.GuestToken == o.GuestToken
	}
	if p.UserID == nil && o.UserID == nil && p.GuestToken == "" && o.GuestToken == "" {
		return p.DisplayName == o.DisplayName
	}
	return false
}
