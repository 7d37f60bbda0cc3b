// internal/handlers/api_server.go
package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernspiel/arena/internal/hub"
	"github.com/lernspiel/arena/internal/lobby"
	"github.com/lernspiel/arena/internal/models"
	"github.com/lernspiel/arena/internal/session"
)

// UserStore is the identity surface the route layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (string, error)
}

// LookupStore covers the reads used for websocket priority classification and
// owner dashboards.
type LookupStore interface {
	GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ListLobbiesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Lobby, error)
}

// Server bundles the managers and the hub behind the HTTP surface.
type Server struct {
	Lobbies  *lobby.Manager
	Sessions *session.Manager
	Hub      *hub.Hub
	Users    UserStore
	Lookup   LookupStore
	Logger   *logrus.Logger
}

func NewServer(lobbies *lobby.Manager, sessions *session.Manager, h *hub.Hub, users UserStore, lookup LookupStore, logger *logrus.Logger) *Server {
	return &Server{
		Lobbies:  lobbies,
		Sessions: sessions,
		Hub:      h,
		Users:    users,
		Lookup:   lookup,
		Logger:   logger,
	}
}
