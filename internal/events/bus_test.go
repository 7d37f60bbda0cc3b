// internal/events/bus_test.go
package events

import (
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernspiel/arena/internal/hub"
)

func drain(c *hub.Conn) []hub.Event {
	var out []hub.Event
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func newTestBus(t *testing.T) (*Bus, *hub.Hub) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := hub.New(hub.Config{MaxConnections: 16}, logger)
	return NewBus(h, nil, logger), h
}

func TestAnnounceLobbyFansOutToGameChannel(t *testing.T) {
	bus, h := newTestBus(t)
	gameID := uuid.New()
	lobbyID := uuid.New()

	onLobby, err := h.Admit(hub.AdmitRequest{UserID: uuid.New(), Channels: []string{hub.LobbyChannel(lobbyID)}})
	require.NoError(t, err)
	onGame, err := h.Admit(hub.AdmitRequest{UserID: uuid.New(), Channels: []string{hub.GameChannel(gameID)}})
	require.NoError(t, err)
	elsewhere, err := h.Admit(hub.AdmitRequest{UserID: uuid.New(), Channels: []string{hub.LobbyChannel(uuid.New())}})
	require.NoError(t, err)

	bus.AnnounceLobby("lobby:activated", gameID, lobbyID, map[string]interface{}{"status": "open"})

	evs := drain(onLobby)
	require.Len(t, evs, 1)
	assert.Equal(t, "lobby:activated", evs[0].Type)
	assert.Equal(t, "open", evs[0].Payload["status"])
	assert.Len(t, drain(onGame), 1, "game watchers see lobby events")
	assert.Empty(t, drain(elsewhere), "unrelated lobby subscribers see nothing")
}

func TestAnnounceSessionFansOutThreeWays(t *testing.T) {
	bus, h := newTestBus(t)
	gameID := uuid.New()
	lobbyID := uuid.New()
	sessionID := uuid.New()

	conns := make([]*hub.Conn, 0, 3)
	for _, ch := range []string{
		hub.SessionChannel(sessionID),
		hub.LobbyChannel(lobbyID),
		hub.GameChannel(gameID),
	} {
		c, err := h.Admit(hub.AdmitRequest{UserID: uuid.New(), Channels: []string{ch}})
		require.NoError(t, err)
		conns = append(conns, c)
	}

	bus.AnnounceSession("session:participant_joined", gameID, lobbyID, sessionID, nil)

	for _, c := range conns {
		assert.Len(t, drain(c), 1)
	}
}

func TestAnnounceSystemReachesEveryone(t *testing.T) {
	bus, h := newTestBus(t)
	c1, err := h.Admit(hub.AdmitRequest{UserID: uuid.New()})
	require.NoError(t, err)
	c2, err := h.Admit(hub.AdmitRequest{UserID: uuid.New(), Channels: []string{hub.GameChannel(uuid.New())}})
	require.NoError(t, err)

	bus.AnnounceSystem("system:maintenance", map[string]interface{}{"in": "5m"})

	assert.Len(t, drain(c1), 1)
	assert.Len(t, drain(c2), 1)
}
