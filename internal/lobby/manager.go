// internal/lobby/manager.go
package lobby

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernspiel/arena/internal/apperr"
	"github.com/lernspiel/arena/internal/gametypes"
	"github.com/lernspiel/arena/internal/models"
)

// Store is the persistent-store surface the manager needs. The pgx
// implementation lives in internal/database; tests use an in-memory fake.
type Store interface {
	InsertLobby(ctx context.Context, l *models.Lobby) error
	GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error)
	LobbyCodeExists(ctx context.Context, code string) (bool, error)
	// ActivateLobby sets expires_at, clears closed_at, and (when maxPlayers > 0)
	// updates the stored max-players setting, all in one statement.
	ActivateLobby(ctx context.Context, id uuid.UUID, expiresAt time.Time, maxPlayers int) error
	// SetLobbyExpiration writes expires_at (nil reverts the lobby to pending)
	// and clears closed_at.
	SetLobbyExpiration(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error
	// CloseLobby sets closed_at and expires_at to now and cascades expires_at
	// to every session of the lobby, inside one transaction.
	CloseLobby(ctx context.Context, id uuid.UUID, now time.Time) error
}

// Catalog is the game/ownership lookup collaborator.
type Catalog interface {
	GameExists(ctx context.Context, id uuid.UUID) (bool, error)
	ResolveOwner(ctx context.Context, gameID uuid.UUID) (uuid.UUID, error)
	ResolveGameType(ctx context.Context, gameID uuid.UUID) (string, error)
}

// Announcer receives fire-and-forget event announcements after a storage
// commit. Implementations must never block or fail the caller.
type Announcer interface {
	AnnounceLobby(eventType string, gameID, lobbyID uuid.UUID, payload map[string]interface{})
}

// Seeder creates the initial sessions for a freshly activated lobby.
// Implemented by the session manager; wired after construction.
type Seeder interface {
	SeedSessions(ctx context.Context, lob *models.Lobby, gameType string, count, playersPer int, name string) error
}

// Manager owns lobby creation, activation, closing, and expiration.
type Manager struct {
	store    Store
	catalog  Catalog
	announce Announcer
	seeder   Seeder
	logger   *logrus.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewManager builds a lobby Manager. The seeder is attached separately via
// SetSeeder because the session manager is constructed after this one.
func NewManager(store Store, catalog Catalog, announce Announcer, logger *logrus.Logger) *Manager {
	return &Manager{
		store:    store,
		catalog:  catalog,
		announce: announce,
		logger:   logger,
		now:      time.Now,
	}
}

// SetSeeder attaches the session seeder used during activation.
func (m *Manager) SetSeeder(s Seeder) { m.seeder = s }

// Create validates the game, generates a unique join code, and persists a
// pending lobby (expires_at null). The actor must own the game or be an
// administrator.
func (m *Manager) Create(ctx context.Context, gameID uuid.UUID, settings models.LobbySettings, actor models.Actor) (*models.Lobby, error) {
	exists, err := m.catalog.GameExists(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("game lookup: %w", err)
	}
	if !exists {
		return nil, apperr.New(apperr.NotFound, "game %s does not exist", gameID)
	}

	ownerID, err := m.catalog.ResolveOwner(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("resolve game owner: %w", err)
	}
	if ownerID != actor.UserID && !actor.IsAdmin() {
		return nil, apperr.New(apperr.AccessDenied, "only the game owner may create lobbies")
	}

	gameType, err := m.catalog.ResolveGameType(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("resolve game type: %w", err)
	}
	applySettingsDefaults(&settings, gameType)

	code, err := generateCode(ctx, m.store.LobbyCodeExists)
	if err != nil {
		return nil, err
	}

	lob := &models.Lobby{
		ID:        uuid.New(),
		GameID:    gameID,
		OwnerID:   actor.UserID,
		HostID:    actor.UserID,
		Code:      code,
		Settings:  settings,
		CreatedAt: m.now(),
	}
	if err := m.store.InsertLobby(ctx, lob); err != nil {
		return nil, fmt.Errorf("insert lobby: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"lobby": lob.ID, "game": gameID, "code": code,
	}).Info("lobby created")
	m.announce.AnnounceLobby("lobby:created", gameID, lob.ID, map[string]interface{}{
		"code":   code,
		"status": string(StatePending),
	})
	return lob, nil
}

// ActivateParams selects the expiration encoding for Activate. Precedence:
// explicit timestamp, then Indefinite, then DurationMin, then the game-type
// default duration.
type ActivateParams struct {
	ExpiresAt   *time.Time
	Indefinite  bool
	DurationMin int
	MaxPlayers  int
	Sessions    *SessionSeed
}

// SessionSeed asks Activate to eagerly create sessions. Zero values fall back
// to the game-type defaults.
type SessionSeed struct {
	Count      int
	PlayersPer int
	Name       string
}

// Activate opens a pending (or closed) lobby by giving it an expiration.
// Re-activation clears closed_at.
func (m *Manager) Activate(ctx context.Context, lobbyID uuid.UUID, p ActivateParams, actor models.Actor) (*models.Lobby, error) {
	lob, err := m.authorize(ctx, lobbyID, actor)
	if err != nil {
		return nil, err
	}

	gameType, err := m.catalog.ResolveGameType(ctx, lob.GameID)
	if err != nil {
		return nil, fmt.Errorf("resolve game type: %w", err)
	}
	cfg, _ := gametypes.Lookup(gameType)

	if p.MaxPlayers > cfg.MaxMaxPlayers {
		return nil, apperr.New(apperr.CapacityExceeded,
			"max_players %d exceeds %s ceiling of %d", p.MaxPlayers, cfg.Name, cfg.MaxMaxPlayers)
	}

	now := m.now()
	var expiresAt time.Time
	switch {
	case p.ExpiresAt != nil:
		expiresAt = *p.ExpiresAt
	case p.Indefinite:
		expiresAt = IndefiniteExpiry(now)
	case p.DurationMin > 0:
		expiresAt = now.Add(time.Duration(p.DurationMin) * time.Minute)
	default:
		expiresAt = now.Add(time.Duration(cfg.DefaultDurationMin) * time.Minute)
	}

	if err := m.store.ActivateLobby(ctx, lobbyID, expiresAt, p.MaxPlayers); err != nil {
		return nil, fmt.Errorf("activate lobby: %w", err)
	}
	lob.ExpiresAt = &expiresAt
	lob.ClosedAt = nil
	if p.MaxPlayers > 0 {
		lob.Settings.MaxPlayers = p.MaxPlayers
	}

	if p.Sessions != nil && m.seeder != nil {
		seed := *p.Sessions
		if seed.PlayersPer <= 0 {
			seed.PlayersPer = cfg.DefaultPlayersPerSession
		}
		if seed.Count <= 0 {
			seed.Count, _ = cfg.Distribution(lob.Settings.MaxPlayers)
			if seed.Count <= 0 {
				seed.Count = 1
			}
		}
		if seed.Name == "" {
			seed.Name = cfg.DefaultSessionName
		}
		if err := m.seeder.SeedSessions(ctx, lob, gameType, seed.Count, seed.PlayersPer, seed.Name); err != nil {
			return nil, fmt.Errorf("seed sessions: %w", err)
		}
	}

	status := ComputeStatus(now, lob.ExpiresAt, nil)
	m.logger.WithFields(logrus.Fields{
		"lobby": lobbyID, "status": status.State, "expires_at": expiresAt,
	}).Info("lobby activated")
	m.announce.AnnounceLobby("lobby:activated", lob.GameID, lobbyID, map[string]interface{}{
		"status":     string(status.State),
		"expires_at": expiresAt,
	})
	return lob, nil
}

// Close logically closes a lobby: closed_at and expires_at are both set to
// now so the derived status reads closed unambiguously even under clock skew,
// and every session of the lobby has its expiration forced to now. Closing an
// already-closed lobby is a no-op.
func (m *Manager) Close(ctx context.Context, lobbyID uuid.UUID, actor models.Actor) (*models.Lobby, error) {
	lob, err := m.authorize(ctx, lobbyID, actor)
	if err != nil {
		return nil, err
	}
	if lob.ClosedAt != nil {
		return lob, nil
	}

	now := m.now()
	if err := m.store.CloseLobby(ctx, lobbyID, now); err != nil {
		return nil, fmt.Errorf("close lobby: %w", err)
	}
	lob.ClosedAt = &now
	lob.ExpiresAt = &now

	m.logger.WithField("lobby", lobbyID).Info("lobby closed")
	m.announce.AnnounceLobby("lobby:closed", lob.GameID, lobbyID, map[string]interface{}{
		"status": string(StateClosed),
	})
	return lob, nil
}

// Expiration is the value accepted by SetExpiration: a specific timestamp,
// indefinite, or pending (clear).
type Expiration struct {
	At         *time.Time
	Indefinite bool
	Pending    bool
}

// SetExpiration rewrites the lobby expiration using the same encoding as
// Activate. Setting any value clears closed_at.
func (m *Manager) SetExpiration(ctx context.Context, lobbyID uuid.UUID, value Expiration, actor models.Actor) (*models.Lobby, error) {
	lob, err := m.authorize(ctx, lobbyID, actor)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	switch {
	case value.Pending:
		expiresAt = nil
	case value.Indefinite:
		t := IndefiniteExpiry(m.now())
		expiresAt = &t
	case value.At != nil:
		expiresAt = value.At
	default:
		expiresAt = nil
	}

	if err := m.store.SetLobbyExpiration(ctx, lobbyID, expiresAt); err != nil {
		return nil, fmt.Errorf("set lobby expiration: %w", err)
	}
	lob.ExpiresAt = expiresAt
	lob.ClosedAt = nil

	status := ComputeStatus(m.now(), lob.ExpiresAt, lob.ClosedAt)
	m.announce.AnnounceLobby("lobby:expiration_changed", lob.GameID, lobbyID, map[string]interface{}{
		"status":     string(status.State),
		"expires_at": expiresAt,
	})
	return lob, nil
}

// FindByCode looks a lobby up by its shareable code, case-insensitively. It
// returns the lobby only while the derived status is joinable; a known but
// non-joinable code fails with NotJoinable and leaks nothing further.
func (m *Manager) FindByCode(ctx context.Context, code string) (*models.Lobby, Status, error) {
	lob, err := m.store.GetLobbyByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, Status{}, err
	}
	if lob == nil {
		return nil, Status{}, apperr.New(apperr.NotFound, "no lobby with code %q", code)
	}
	status := ComputeStatus(m.now(), lob.ExpiresAt, lob.ClosedAt)
	if !status.Joinable() {
		return nil, Status{}, apperr.New(apperr.NotJoinable, "lobby %s is not joinable", lob.ID)
	}
	return lob, status, nil
}

// Get returns a lobby with its derived status.
func (m *Manager) Get(ctx context.Context, lobbyID uuid.UUID) (*models.Lobby, Status, error) {
	lob, err := m.store.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, Status{}, err
	}
	if lob == nil {
		return nil, Status{}, apperr.New(apperr.NotFound, "lobby %s does not exist", lobbyID)
	}
	return lob, ComputeStatus(m.now(), lob.ExpiresAt, lob.ClosedAt), nil
}

// authorize loads the lobby and verifies the actor is owner, host, or admin.
func (m *Manager) authorize(ctx context.Context, lobbyID uuid.UUID, actor models.Actor) (*models.Lobby, error) {
	lob, err := m.store.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("get lobby: %w", err)
	}
	if lob == nil {
		return nil, apperr.New(apperr.NotFound, "lobby %s does not exist", lobbyID)
	}
	if actor.UserID != lob.OwnerID && actor.UserID != lob.HostID && !actor.IsAdmin() {
		return nil, apperr.New(apperr.AccessDenied, "actor %s may not modify lobby %s", actor.UserID, lobbyID)
	}
	return lob, nil
}

func applySettingsDefaults(s *models.LobbySettings, gameType string) {
	cfg, _ := gametypes.Lookup(gameType)
	if s.InvitationType == "" {
		s.InvitationType = models.InviteOrder
	}
	if s.MaxPlayers <= 0 {
		s.MaxPlayers = cfg.DefaultMaxPlayers
	}
	if s.SessionTimeLimitMin <= 0 {
		s.SessionTimeLimitMin = cfg.DefaultDurationMin
	}
	if s.MaxSessions <= 0 {
		s.MaxSessions = 10
	}
}
