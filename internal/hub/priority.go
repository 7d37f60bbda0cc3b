// internal/hub/priority.go
package hub

// Tier is a connection's fixed eviction priority, assigned once at admission.
// Lower numbers are higher priority and are never evicted for a same-or-lower
// priority newcomer.
type Tier int

const (
	TierActiveGameSession Tier = 1 // active participant on a session channel
	TierLobbyManagement   Tier = 2 // owner/host or admin on a lobby channel
	TierSessionMonitoring Tier = 3 // non-owner subscriber of a session channel
	TierLobbyStatus       Tier = 4 // non-owner subscriber of a lobby or game channel
	TierCatalogBrowsing   Tier = 5 // everything else
)

func (t Tier) String() string {
	switch t {
	case TierActiveGameSession:
		return "active_game_session"
	case TierLobbyManagement:
		return "lobby_management"
	case TierSessionMonitoring:
		return "session_monitoring"
	case TierLobbyStatus:
		return "lobby_status"
	default:
		return "catalog_browsing"
	}
}

// classify computes a connection's tier from its requested channels, role,
// and session context. First matching rule wins; the result is stored on the
// connection and never re-evaluated.
func classify(req AdmitRequest) Tier {
	var hasSession, hasLobbyOrGame, hasLobby bool
	for _, ch := range req.Channels {
		switch ChannelType(ch) {
		case ChannelSession:
			hasSession = true
		case ChannelLobby:
			hasLobby = true
			hasLobbyOrGame = true
		case ChannelGame:
			hasLobbyOrGame = true
		}
	}

	switch {
	case hasSession && req.SessionParticipant:
		return TierActiveGameSession
	case hasLobby && (req.LobbyOwner || req.Admin):
		return TierLobbyManagement
	case hasSession:
		return TierSessionMonitoring
	case hasLobbyOrGame:
		return TierLobbyStatus
	default:
		return TierCatalogBrowsing
	}
}
