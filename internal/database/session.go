package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lernspiel/arena/internal/apperr"
	"github.com/lernspiel/arena/internal/models"
	"github.com/lernspiel/arena/internal/session"
)

const sessionColumns = `
	id, lobby_id, session_number, participants, game_state,
	expires_at, started_at, finished_at, meta, ever_joined
`

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s            models.Session
		participants []byte
		meta         []byte
	)
	err := row.Scan(
		&s.ID, &s.LobbyID, &s.Number, &participants, &s.GameState,
		&s.ExpiresAt, &s.StartedAt, &s.FinishedAt, &meta, &s.EverJoined,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(participants) > 0 {
		if err := json.Unmarshal(participants, &s.Participants); err != nil {
			return nil, fmt.Errorf("decode participants: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Meta); err != nil {
			return nil, fmt.Errorf("decode session meta: %w", err)
		}
	}
	return &s, nil
}

func sessionArgs(s *models.Session) ([]byte, []byte, error) {
	participants, err := json.Marshal(s.Participants)
	if err != nil {
		return nil, nil, fmt.Errorf("encode participants: %w", err)
	}
	meta, err := json.Marshal(s.Meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode session meta: %w", err)
	}
	return participants, meta, nil
}

// GetSession fetches one session by ID outside any lobby transaction.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(s.pool.QueryRow(ctx, q, id))
}

// WithLobbyTx runs fn inside one transaction holding a FOR UPDATE lock on the
// lobby row. The lock serializes concurrent admissions into the same lobby,
// which is what keeps max+1 session-number allocation collision-free.
func (s *Store) WithLobbyTx(ctx context.Context, lobbyID uuid.UUID, fn func(ctx context.Context, tx session.Tx, lob *models.Lobby) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1 FOR UPDATE`
		lob, err := scanLobby(tx.QueryRow(ctx, q, lobbyID))
		if err != nil {
			return err
		}
		if lob == nil {
			return apperr.New(apperr.NotFound, "lobby %s does not exist", lobbyID)
		}
		return fn(ctx, &sessionTx{tx: tx}, lob)
	})
}

// sessionTx implements session.Tx on top of an open pgx transaction.
type sessionTx struct {
	tx pgx.Tx
}

func (t *sessionTx) ListSessions(ctx context.Context, lobbyID uuid.UUID) ([]*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE lobby_id = $1 ORDER BY session_number ASC`
	rows, err := t.tx.Query(ctx, q, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (t *sessionTx) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(t.tx.QueryRow(ctx, q, id))
}

func (t *sessionTx) InsertSession(ctx context.Context, s *models.Session) error {
	participants, meta, err := sessionArgs(s)
	if err != nil {
		return err
	}
	q := `
	INSERT INTO sessions (
		id, lobby_id, session_number, participants, game_state,
		expires_at, started_at, finished_at, meta, ever_joined
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = t.tx.Exec(ctx, q,
		s.ID, s.LobbyID, s.Number, participants, s.GameState,
		s.ExpiresAt, s.StartedAt, s.FinishedAt, meta, s.EverJoined,
	)
	return err
}

func (t *sessionTx) UpdateSession(ctx context.Context, s *models.Session) error {
	participants, meta, err := sessionArgs(s)
	if err != nil {
		return err
	}
	// ever_joined only ever latches on; OR-ing guards against a stale struct
	// clearing it.
	q := `
	UPDATE sessions
	SET session_number = $2, participants = $3, game_state = $4,
	    expires_at = $5, started_at = $6, finished_at = $7, meta = $8,
	    ever_joined = ever_joined OR $9
	WHERE id = $1
	`
	_, err = t.tx.Exec(ctx, q,
		s.ID, s.Number, participants, s.GameState,
		s.ExpiresAt, s.StartedAt, s.FinishedAt, meta, s.EverJoined,
	)
	return err
}
