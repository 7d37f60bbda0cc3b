// Package events composes the post-commit announcement path: hub broadcast
// plus the Redis journal. Announcements are fire-and-forget; nothing here can
// fail or block the transactional operation that triggered them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernspiel/arena/internal/cache"
	"github.com/lernspiel/arena/internal/hub"
)

// Bus fans announced events out to the hub and, when configured, to the
// journal. The journal write happens on a detached goroutine with its own
// timeout so a slow Redis never delays a broadcast.
type Bus struct {
	hub     *hub.Hub
	journal *cache.Journal // nil disables journaling
	logger  *logrus.Logger
}

func NewBus(h *hub.Hub, journal *cache.Journal, logger *logrus.Logger) *Bus {
	return &Bus{hub: h, journal: journal, logger: logger}
}

// AnnounceLobby broadcasts a lobby event to the lobby's and its game's
// channels.
func (b *Bus) AnnounceLobby(eventType string, gameID, lobbyID uuid.UUID, payload map[string]interface{}) {
	channels := []string{hub.LobbyChannel(lobbyID), hub.GameChannel(gameID)}
	b.emit(eventType, channels, payload)
}

// AnnounceSession broadcasts a session event to the session's, its lobby's,
// and its game's channels.
func (b *Bus) AnnounceSession(eventType string, gameID, lobbyID, sessionID uuid.UUID, payload map[string]interface{}) {
	channels := []string{
		hub.SessionChannel(sessionID),
		hub.LobbyChannel(lobbyID),
		hub.GameChannel(gameID),
	}
	b.emit(eventType, channels, payload)
}

// AnnounceSystem broadcasts a system event to every connection.
func (b *Bus) AnnounceSystem(eventType string, payload map[string]interface{}) {
	ev := hub.NewEvent(eventType, payload)
	b.hub.BroadcastAll(ev)
	b.journalize(ev, []string{"system:all"})
}

func (b *Bus) emit(eventType string, channels []string, payload map[string]interface{}) {
	ev := hub.NewEvent(eventType, payload)
	b.hub.Broadcast(ev, channels, nil)
	b.journalize(ev, channels)
}

func (b *Bus) journalize(ev hub.Event, channels []string) {
	if b.journal == nil {
		return
	}
	record := cache.EventRecord{
		Channels:  channels,
		EventType: ev.Type,
		Timestamp: ev.Timestamp.Unix(),
		Payload:   ev.Payload,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := b.journal.Publish(ctx, record); err != nil {
			b.logger.WithError(err).Warn("event journal write failed")
		}
	}()
}
