// Package gametypes is the static game-type configuration registry consumed
// by lobby activation and session placement.
package gametypes

// Config holds the lobby and session defaults for one game type.
type Config struct {
	Name string

	// Lobby defaults.
	DefaultDurationMin int
	DefaultMaxPlayers  int
	MaxMaxPlayers      int

	// Session defaults.
	DefaultSessionName       string
	DefaultPlayersPerSession int
}

var registry = map[string]Config{
	"quiz": {
		Name:                     "quiz",
		DefaultDurationMin:       30,
		DefaultMaxPlayers:        30,
		MaxMaxPlayers:            100,
		DefaultSessionName:       "Quiz Round",
		DefaultPlayersPerSession: 30,
	},
	"flashcards": {
		Name:                     "flashcards",
		DefaultDurationMin:       20,
		DefaultMaxPlayers:        8,
		MaxMaxPlayers:            16,
		DefaultSessionName:       "Study Group",
		DefaultPlayersPerSession: 4,
	},
	"wordrace": {
		Name:                     "wordrace",
		DefaultDurationMin:       15,
		DefaultMaxPlayers:        10,
		MaxMaxPlayers:            20,
		DefaultSessionName:       "Race",
		DefaultPlayersPerSession: 5,
	},
	"boardgame": {
		Name:                     "boardgame",
		DefaultDurationMin:       60,
		DefaultMaxPlayers:        6,
		MaxMaxPlayers:            12,
		DefaultSessionName:       "Match",
		DefaultPlayersPerSession: 2,
	},
}

// fallback covers unknown game types so lobbies for new catalog entries keep
// working before a dedicated config lands.
var fallback = Config{
	Name:                     "default",
	DefaultDurationMin:       30,
	DefaultMaxPlayers:        10,
	MaxMaxPlayers:            50,
	DefaultSessionName:       "Session",
	DefaultPlayersPerSession: 10,
}

// Lookup returns the configuration for the given game type. The second value
// reports whether a dedicated config exists; if not, the default is returned.
func Lookup(gameType string) (Config, bool) {
	if c, ok := registry[gameType]; ok {
		return c, true
	}
	return fallback, false
}

// Distribution recommends how to split a target headcount into sessions.
// It returns the number of sessions and players per session.
func (c Config) Distribution(headcount int) (sessions, perSession int) {
	per := c.DefaultPlayersPerSession
	if per <= 0 {
		per = 1
	}
	if headcount <= 0 {
		return 0, per
	}
	n := (headcount + per - 1) / per
	return n, per
}
