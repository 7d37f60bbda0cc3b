// internal/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lernspiel/arena/internal/apperr"
	"github.com/lernspiel/arena/internal/gametypes"
	"github.com/lernspiel/arena/internal/lobby"
	"github.com/lernspiel/arena/internal/models"
)

// Tx is the per-transaction storage surface. All methods run inside one
// storage transaction with the lobby row locked, so session-number allocation
// and roster updates cannot interleave between two admissions to the same
// lobby.
type Tx interface {
	// ListSessions returns the lobby's sessions ordered by number ascending.
	ListSessions(ctx context.Context, lobbyID uuid.UUID) ([]*models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	InsertSession(ctx context.Context, s *models.Session) error
	UpdateSession(ctx context.Context, s *models.Session) error
}

// Store is the persistent-store surface the session manager needs.
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	// WithLobbyTx runs fn inside a transaction holding a row lock on the
	// lobby. Returning an error rolls back every effect of fn.
	WithLobbyTx(ctx context.Context, lobbyID uuid.UUID, fn func(ctx context.Context, tx Tx, lob *models.Lobby) error) error
}

// Announcer receives fire-and-forget session event announcements after commit.
type Announcer interface {
	AnnounceSession(eventType string, gameID, lobbyID, sessionID uuid.UUID, payload map[string]interface{})
}

// Manager owns sessions nested under lobbies: creation, participant
// admission under the lobby's invitation strategy, and state updates.
type Manager struct {
	store    Store
	announce Announcer
	logger   *logrus.Logger

	now func() time.Time
}

func NewManager(store Store, announce Announcer, logger *logrus.Logger) *Manager {
	return &Manager{store: store, announce: announce, logger: logger, now: time.Now}
}

// EffectiveStatus derives a session's status as the more restrictive of its
// own expiration and the parent lobby's derived status. A closed lobby forces
// every session closed regardless of the session's own expires_at.
func EffectiveStatus(now time.Time, s *models.Session, lob *models.Lobby) lobby.Status {
	expiry := s.ExpiresAt
	if expiry == nil {
		expiry = lob.ExpiresAt
	}
	own := lobby.ComputeStatus(now, expiry, nil)
	parent := lobby.ComputeStatus(now, lob.ExpiresAt, lob.ClosedAt)
	return lobby.MoreRestrictive(own, parent)
}

// SeedSessions eagerly creates count sessions for a freshly activated lobby.
// Implements lobby.Seeder.
func (m *Manager) SeedSessions(ctx context.Context, lob *models.Lobby, gameType string, count, playersPer int, name string) error {
	created := make([]uuid.UUID, 0, count)
	err := m.store.WithLobbyTx(ctx, lob.ID, func(ctx context.Context, tx Tx, lob *models.Lobby) error {
		existing, err := tx.ListSessions(ctx, lob.ID)
		if err != nil {
			return err
		}
		next := maxNumber(existing) + 1
		for i := 0; i < count; i++ {
			s := &models.Session{
				ID:      uuid.New(),
				LobbyID: lob.ID,
				Number:  next + i,
				Meta: models.SessionMeta{
					Name:       fmt.Sprintf("%s %d", name, next+i),
					MaxPlayers: playersPer,
					GameType:   gameType,
					CreatedBy:  "activation_seed",
				},
			}
			if err := tx.InsertSession(ctx, s); err != nil {
				return err
			}
			created = append(created, s.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range created {
		m.announce.AnnounceSession("session:created", lob.GameID, lob.ID, id, nil)
	}
	return nil
}

// JoinRequest carries a joining client's payload. Identity fields are
// descriptive; the server-derived participant record is authoritative.
type JoinRequest struct {
	// SessionID targets a specific session under manual_selection.
	SessionID *uuid.UUID

	DisplayName string
	GuestToken  string
	Team        string

	// MaxPlayersOverride overrides per-session capacity under the order
	// strategy.
	MaxPlayersOverride int
}

// Join admits a participant into a session of the lobby per the lobby's
// invitation strategy and returns the canonical stored participant record
// together with the session it landed in.
func (m *Manager) Join(ctx context.Context, lobbyID uuid.UUID, req JoinRequest, actor models.Actor) (*models.Participant, *models.Session, error) {
	var (
		joined  *models.Participant
		target  *models.Session
		gameID  uuid.UUID
		sessNew bool
	)
	err := m.store.WithLobbyTx(ctx, lobbyID, func(ctx context.Context, tx Tx, lob *models.Lobby) error {
		gameID = lob.GameID
		now := m.now()

		if !lobby.ComputeStatus(now, lob.ExpiresAt, lob.ClosedAt).Joinable() {
			return apperr.New(apperr.NotJoinable, "lobby %s is not open", lobbyID)
		}
		if actor.IsGuest && !lob.Settings.AllowGuestUsers {
			return apperr.New(apperr.GuestsNotAllowed, "lobby %s does not admit guests", lobbyID)
		}

		incoming := m.participantFrom(req, actor)

		var err error
		switch lob.Settings.InvitationType {
		case models.InviteManualSelection:
			target, err = m.pickManual(ctx, tx, lob, req, now)
		default: // models.InviteOrder
			target, sessNew, err = m.pickByOrder(ctx, tx, lob, req, now)
		}
		if err != nil {
			return err
		}

		joined = admit(target, incoming, now)
		return tx.UpdateSession(ctx, target)
	})
	if err != nil {
		return nil, nil, err
	}

	if sessNew {
		m.announce.AnnounceSession("session:created", gameID, lobbyID, target.ID, map[string]interface{}{
			"session_number": target.Number,
		})
	}
	m.announce.AnnounceSession("session:participant_joined", gameID, lobbyID, target.ID, map[string]interface{}{
		"participant_id": joined.ID,
		"display_name":   joined.DisplayName,
	})
	return joined, target, nil
}

// pickManual resolves the client-chosen target session and checks it is open
// with remaining capacity.
func (m *Manager) pickManual(ctx context.Context, tx Tx, lob *models.Lobby, req JoinRequest, now time.Time) (*models.Session, error) {
	if req.SessionID == nil {
		return nil, apperr.New(apperr.NotFound, "manual_selection join requires a target session id")
	}
	s, err := tx.GetSession(ctx, *req.SessionID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.LobbyID != lob.ID {
		return nil, apperr.New(apperr.NotFound, "session %s does not exist in lobby %s", req.SessionID, lob.ID)
	}
	if !EffectiveStatus(now, s, lob).Joinable() {
		return nil, apperr.New(apperr.NotJoinable, "session %s is not open", s.ID)
	}
	if cap := sessionCapacity(s, lob, req.MaxPlayersOverride); len(s.Participants) >= cap {
		return nil, apperr.New(apperr.CapacityExceeded, "session %s is full (%d players)", s.ID, cap)
	}
	return s, nil
}

// pickByOrder scans sessions by number ascending and returns the first with
// remaining capacity, creating a new session when all are full.
func (m *Manager) pickByOrder(ctx context.Context, tx Tx, lob *models.Lobby, req JoinRequest, now time.Time) (*models.Session, bool, error) {
	sessions, err := tx.ListSessions(ctx, lob.ID)
	if err != nil {
		return nil, false, err
	}
	for _, s := range sessions {
		if !EffectiveStatus(now, s, lob).Joinable() {
			continue
		}
		if len(s.Participants) < sessionCapacity(s, lob, req.MaxPlayersOverride) {
			return s, false, nil
		}
	}

	gameType := ""
	if len(sessions) > 0 {
		gameType = sessions[0].Meta.GameType
	}
	cfg, _ := gametypes.Lookup(gameType)
	maxPlayers := req.MaxPlayersOverride
	if maxPlayers <= 0 {
		maxPlayers = lob.Settings.MaxPlayers
	}
	if maxPlayers <= 0 {
		maxPlayers = cfg.DefaultPlayersPerSession
	}
	s := &models.Session{
		ID:      uuid.New(),
		LobbyID: lob.ID,
		Number:  maxNumber(sessions) + 1,
		Meta: models.SessionMeta{
			Name:       fmt.Sprintf("%s %d", cfg.DefaultSessionName, maxNumber(sessions)+1),
			MaxPlayers: maxPlayers,
			GameType:   gameType,
			CreatedBy:  "order_overflow",
		},
	}
	if err := tx.InsertSession(ctx, s); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// CreateParams configures an explicit client-requested session under the
// manual_selection strategy.
type CreateParams struct {
	Name       string
	MaxPlayers int
}

// Create makes a brand-new session on behalf of a client, capped by the
// lobby's max_sessions setting. Empty never-joined sessions are recycled in
// place, but always under a fresh session number.
func (m *Manager) Create(ctx context.Context, lobbyID uuid.UUID, p CreateParams, actor models.Actor) (*models.Session, error) {
	var created *models.Session
	var gameID uuid.UUID
	err := m.store.WithLobbyTx(ctx, lobbyID, func(ctx context.Context, tx Tx, lob *models.Lobby) error {
		gameID = lob.GameID
		now := m.now()

		if !lobby.ComputeStatus(now, lob.ExpiresAt, lob.ClosedAt).Joinable() {
			return apperr.New(apperr.NotJoinable, "lobby %s is not open", lobbyID)
		}
		if lob.Settings.InvitationType != models.InviteManualSelection {
			return apperr.New(apperr.AccessDenied, "explicit session creation requires the manual_selection strategy")
		}

		sessions, err := tx.ListSessions(ctx, lob.ID)
		if err != nil {
			return err
		}

		// A recyclable session does not count against max_sessions since it
		// is reused rather than added.
		var recycle *models.Session
		for _, s := range sessions {
			if s.CanDelete() {
				recycle = s
				break
			}
		}
		if recycle == nil && lob.Settings.MaxSessions > 0 && len(sessions) >= lob.Settings.MaxSessions {
			return apperr.New(apperr.SessionLimitReached,
				"lobby %s already has %d sessions", lobbyID, len(sessions))
		}

		gameType := ""
		if len(sessions) > 0 {
			gameType = sessions[0].Meta.GameType
		}
		cfg, _ := gametypes.Lookup(gameType)
		name := p.Name
		if name == "" {
			name = cfg.DefaultSessionName
		}
		maxPlayers := p.MaxPlayers
		if maxPlayers <= 0 {
			maxPlayers = lob.Settings.MaxPlayers
		}

		next := maxNumber(sessions) + 1
		meta := models.SessionMeta{
			Name:       name,
			MaxPlayers: maxPlayers,
			GameType:   gameType,
			CreatedBy:  "manual",
		}
		if recycle != nil {
			recycle.Number = next
			recycle.Participants = nil
			recycle.GameState = nil
			recycle.StartedAt = nil
			recycle.FinishedAt = nil
			recycle.Meta = meta
			created = recycle
			return tx.UpdateSession(ctx, recycle)
		}
		created = &models.Session{
			ID:      uuid.New(),
			LobbyID: lob.ID,
			Number:  next,
			Meta:    meta,
		}
		return tx.InsertSession(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	m.announce.AnnounceSession("session:created", gameID, lobbyID, created.ID, map[string]interface{}{
		"session_number": created.Number,
	})
	return created, nil
}

// Leave removes a participant from a session. EverJoined stays latched, so
// the session can never be recycled afterwards.
func (m *Manager) Leave(ctx context.Context, sessionID, participantID uuid.UUID, actor models.Actor) error {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return apperr.New(apperr.NotFound, "session %s does not exist", sessionID)
	}

	var gameID uuid.UUID
	err = m.store.WithLobbyTx(ctx, s.LobbyID, func(ctx context.Context, tx Tx, lob *models.Lobby) error {
		gameID = lob.GameID
		cur, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperr.New(apperr.NotFound, "session %s does not exist", sessionID)
		}
		idx := -1
		for i, p := range cur.Participants {
			if p.ID == participantID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperr.New(apperr.NotFound, "participant %s is not in session %s", participantID, sessionID)
		}
		p := cur.Participants[idx]
		owns := p.UserID != nil && *p.UserID == actor.UserID
		if !owns && actor.UserID != lob.OwnerID && actor.UserID != lob.HostID && !actor.IsAdmin() {
			return apperr.New(apperr.AccessDenied, "actor %s may not remove participant %s", actor.UserID, participantID)
		}
		cur.Participants = append(cur.Participants[:idx], cur.Participants[idx+1:]...)
		return tx.UpdateSession(ctx, cur)
	})
	if err != nil {
		return err
	}

	m.announce.AnnounceSession("session:participant_left", gameID, s.LobbyID, sessionID, map[string]interface{}{
		"participant_id": participantID,
	})
	return nil
}

// UpdateGameState replaces the session's opaque game-state blob. The first
// update stamps started_at. Finishing a session (finished_at) is owned by the
// game-play engine and has no route here.
func (m *Manager) UpdateGameState(ctx context.Context, sessionID uuid.UUID, state json.RawMessage, actor models.Actor) error {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return apperr.New(apperr.NotFound, "session %s does not exist", sessionID)
	}

	var gameID uuid.UUID
	err = m.store.WithLobbyTx(ctx, s.LobbyID, func(ctx context.Context, tx Tx, lob *models.Lobby) error {
		gameID = lob.GameID
		now := m.now()
		cur, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperr.New(apperr.NotFound, "session %s does not exist", sessionID)
		}
		if !EffectiveStatus(now, cur, lob).Joinable() {
			return apperr.New(apperr.NotJoinable, "session %s is not open", sessionID)
		}
		isMember := false
		for _, p := range cur.Participants {
			if p.UserID != nil && *p.UserID == actor.UserID {
				isMember = true
				break
			}
		}
		if !isMember && actor.UserID != lob.OwnerID && actor.UserID != lob.HostID && !actor.IsAdmin() {
			return apperr.New(apperr.AccessDenied, "actor %s may not update session %s", actor.UserID, sessionID)
		}
		cur.GameState = state
		if cur.StartedAt == nil {
			cur.StartedAt = &now
		}
		return tx.UpdateSession(ctx, cur)
	})
	if err != nil {
		return err
	}

	m.announce.AnnounceSession("session:state_updated", gameID, s.LobbyID, sessionID, nil)
	return nil
}

// List returns the lobby's sessions together with their derived statuses.
func (m *Manager) List(ctx context.Context, lobbyID uuid.UUID) ([]*models.Session, []lobby.Status, error) {
	var (
		sessions []*models.Session
		statuses []lobby.Status
	)
	err := m.store.WithLobbyTx(ctx, lobbyID, func(ctx context.Context, tx Tx, lob *models.Lobby) error {
		list, err := tx.ListSessions(ctx, lobbyID)
		if err != nil {
			return err
		}
		now := m.now()
		sessions = list
		statuses = make([]lobby.Status, len(list))
		for i, s := range list {
			statuses[i] = EffectiveStatus(now, s, lob)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sessions, statuses, nil
}

// participantFrom builds the incoming roster entry from the request and the
// authenticated identity. Client identity fields never override the actor.
// Guests keep their ephemeral user id on the record so self-service
// authorization and priority classification can match them; the guest token
// additionally keys de-duplication across re-minted guest identities.
func (m *Manager) participantFrom(req JoinRequest, actor models.Actor) models.Participant {
	uid := actor.UserID
	p := models.Participant{
		UserID:      &uid,
		DisplayName: req.DisplayName,
		Team:        req.Team,
	}
	if actor.IsGuest {
		p.GuestToken = req.GuestToken
	}
	if p.DisplayName == "" {
		p.DisplayName = "Player"
	}
	return p
}

// admit applies the de-duplication rule and appends or refreshes the roster
// entry, returning the canonical stored record.
func admit(s *models.Session, incoming models.Participant, now time.Time) *models.Participant {
	for i := range s.Participants {
		if s.Participants[i].SameIdentity(incoming) {
			if incoming.DisplayName != "" {
				s.Participants[i].DisplayName = incoming.DisplayName
			}
			if incoming.Team != "" {
				s.Participants[i].Team = incoming.Team
			}
			return &s.Participants[i]
		}
	}
	incoming.ID = uuid.New()
	incoming.JoinedAt = now
	s.Participants = append(s.Participants, incoming)
	s.EverJoined = true
	return &s.Participants[len(s.Participants)-1]
}

// sessionCapacity resolves a session's player cap: explicit override, then
// session metadata, then lobby settings, then the game-type default.
func sessionCapacity(s *models.Session, lob *models.Lobby, override int) int {
	if override > 0 {
		return override
	}
	if s.Meta.MaxPlayers > 0 {
		return s.Meta.MaxPlayers
	}
	if lob.Settings.MaxPlayers > 0 {
		return lob.Settings.MaxPlayers
	}
	cfg, _ := gametypes.Lookup(s.Meta.GameType)
	return cfg.DefaultPlayersPerSession
}

func maxNumber(sessions []*models.Session) int {
	max := 0
	for _, s := range sessions {
		if s.Number > max {
			max = s.Number
		}
	}
	return max
}
