package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lernspiel/arena/internal/models"
)

const lobbyColumns = `
	id, game_id, owner_id, host_id, code,
	max_players, session_time_limit_min, allow_guest_users,
	invitation_type, auto_close_idle_min, max_sessions,
	expires_at, closed_at, created_at
`

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	err := row.Scan(
		&l.ID, &l.GameID, &l.OwnerID, &l.HostID, &l.Code,
		&l.Settings.MaxPlayers, &l.Settings.SessionTimeLimitMin, &l.Settings.AllowGuestUsers,
		&l.Settings.InvitationType, &l.Settings.AutoCloseIdleMin, &l.Settings.MaxSessions,
		&l.ExpiresAt, &l.ClosedAt, &l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// InsertLobby creates a new lobby row. The code column carries a unique
// constraint; collisions surface as errors and are retried by the caller's
// code generator.
func (s *Store) InsertLobby(ctx context.Context, l *models.Lobby) error {
	q := `
	INSERT INTO lobbies (
		id, game_id, owner_id, host_id, code,
		max_players, session_time_limit_min, allow_guest_users,
		invitation_type, auto_close_idle_min, max_sessions,
		expires_at, closed_at, created_at
	)
	VALUES ($1, $2, $3, $4, $5,
	        $6, $7, $8,
	        $9, $10, $11,
	        $12, $13, $14)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			l.ID, l.GameID, l.OwnerID, l.HostID, l.Code,
			l.Settings.MaxPlayers, l.Settings.SessionTimeLimitMin, l.Settings.AllowGuestUsers,
			l.Settings.InvitationType, l.Settings.AutoCloseIdleMin, l.Settings.MaxSessions,
			l.ExpiresAt, l.ClosedAt, l.CreatedAt,
		)
		return err
	})
}

// GetLobby fetches a lobby by ID, returning nil when no row exists.
func (s *Store) GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1`
	return scanLobby(s.pool.QueryRow(ctx, q, id))
}

// GetLobbyByCode fetches a lobby by join code, case-insensitively.
func (s *Store) GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE upper(code) = upper($1)`
	return scanLobby(s.pool.QueryRow(ctx, q, code))
}

// LobbyCodeExists probes whether a join code is taken.
func (s *Store) LobbyCodeExists(ctx context.Context, code string) (bool, error) {
	var tmp int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM lobbies WHERE upper(code) = upper($1) LIMIT 1`, code).Scan(&tmp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ActivateLobby sets the expiration, clears closed_at, and optionally
// rewrites the max-players setting.
func (s *Store) ActivateLobby(ctx context.Context, id uuid.UUID, expiresAt time.Time, maxPlayers int) error {
	q := `
	UPDATE lobbies
	SET expires_at = $2,
	    closed_at = NULL,
	    max_players = CASE WHEN $3 > 0 THEN $3 ELSE max_players END
	WHERE id = $1
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, id, expiresAt, maxPlayers)
		return err
	})
}

// SetLobbyExpiration writes expires_at (nil reverts to pending) and clears
// closed_at.
func (s *Store) SetLobbyExpiration(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error {
	q := `UPDATE lobbies SET expires_at = $2, closed_at = NULL WHERE id = $1`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, id, expiresAt)
		return err
	})
}

// CloseLobby sets closed_at and expires_at to now and forces every session of
// the lobby to expire at the same instant, in one transaction. Session
// finished_at is untouched: finishing is a game-outcome event, not a side
// effect of closure.
func (s *Store) CloseLobby(ctx context.Context, id uuid.UUID, now time.Time) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE lobbies SET closed_at = $2, expires_at = $2 WHERE id = $1`, id, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE sessions SET expires_at = $2 WHERE lobby_id = $1`, id, now)
		return err
	})
}

// ListLobbiesByOwner returns all lobbies created by one owner, newest first.
func (s *Store) ListLobbiesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []models.Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, *l)
	}
	return lobbies, rows.Err()
}
