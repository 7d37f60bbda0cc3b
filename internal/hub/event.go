// internal/hub/event.go
package hub

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is the unit pushed to subscribed connections. The payload is
// event-specific; the transport serializes the whole struct as JSON.
type Event struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Channel type prefixes. A channel key is "<type>:<id>".
const (
	ChannelGame    = "game"
	ChannelLobby   = "lobby"
	ChannelSession = "session"
	ChannelUser    = "user"
	ChannelSystem  = "system"
	ChannelGlobal  = "global"
)

// GameChannel returns the channel key for a game's events.
func GameChannel(id uuid.UUID) string { return ChannelGame + ":" + id.String() }

// LobbyChannel returns the channel key for a lobby's events.
func LobbyChannel(id uuid.UUID) string { return ChannelLobby + ":" + id.String() }

// SessionChannel returns the channel key for a session's events.
func SessionChannel(id uuid.UUID) string { return ChannelSession + ":" + id.String() }

// UserChannel returns the private channel key for one user.
func UserChannel(id uuid.UUID) string { return ChannelUser + ":" + id.String() }

// ChannelType extracts the type prefix of a channel key, or "" when the key
// is malformed.
func ChannelType(channel string) string {
	typ, _, ok := strings.Cut(channel, ":")
	if !ok || typ == "" {
		return ""
	}
	switch typ {
	case ChannelGame, ChannelLobby, ChannelSession, ChannelUser, ChannelSystem, ChannelGlobal:
		return typ
	}
	return ""
}

// NewEvent stamps an event with the current server time.
func NewEvent(eventType string, payload map[string]interface{}) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload}
}
