package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lernspiel/arena/internal/models"
)

// The games table is owned by the marketplace catalog; the orchestrator only
// reads it for existence, ownership, and game-type lookups.

// GameExists reports whether the catalog knows the game.
func (s *Store) GameExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var tmp int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM games WHERE id = $1`, id).Scan(&tmp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResolveOwner returns the game's owner, used to authorize lobby creation.
func (s *Store) ResolveOwner(ctx context.Context, gameID uuid.UUID) (uuid.UUID, error) {
	var ownerID uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT owner_id FROM games WHERE id = $1`, gameID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	return ownerID, err
}

// ResolveGameType returns the game's type for configuration lookups.
func (s *Store) ResolveGameType(ctx context.Context, gameID uuid.UUID) (string, error) {
	var gameType string
	err := s.pool.QueryRow(ctx, `SELECT game_type FROM games WHERE id = $1`, gameID).Scan(&gameType)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return gameType, err
}

// GetGame returns the catalog entry the orchestrator cares about.
func (s *Store) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	var g models.Game
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, game_type, title FROM games WHERE id = $1`, id).
		Scan(&g.ID, &g.OwnerID, &g.GameType, &g.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}
