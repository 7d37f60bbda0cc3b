// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation strategies governing how joining participants are placed into sessions.
const (
	InviteManualSelection = "manual_selection"
	InviteOrder           = "order"
)

// Lobby represents a row in the lobbies table: a shareable, time-bounded
// container for one or more play sessions of a single game.
//
// Status is never stored. It is derived from (now, ExpiresAt, ClosedAt) on
// every read; see the lobby package.
type Lobby struct {
	ID      uuid.UUID `json:"id"`
	GameID  uuid.UUID `json:"game_id"`
	OwnerID uuid.UUID `json:"owner_id"`
	HostID  uuid.UUID `json:"host_id"`

	// Code is the human-shareable 6-character join code (no ambiguous glyphs).
	Code string `json:"code"`

	Settings LobbySettings `json:"settings"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// LobbySettings holds the per-lobby settings bag.
type LobbySettings struct {
	MaxPlayers          int    `json:"max_players"`
	SessionTimeLimitMin int    `json:"session_time_limit_min"`
	AllowGuestUsers     bool   `json:"allow_guest_users"`
	InvitationType      string `json:"invitation_type"` // manual_selection or order
	AutoCloseIdleMin    int    `json:"auto_close_idle_min"`
	MaxSessions         int    `json:"max_sessions"`
}
