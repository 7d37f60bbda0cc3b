// internal/session/manager_test.go
package session

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernspiel/arena/internal/apperr"
	"github.com/lernspiel/arena/internal/models"
)

// memStore implements Store and Tx against in-memory maps. WithLobbyTx runs
// fn directly; manager tests are single-goroutine so the row lock is moot.
type memStore struct {
	lobbies  map[uuid.UUID]*models.Lobby
	sessions map[uuid.UUID]*models.Session
}

func newMemStore() *memStore {
	return &memStore{
		lobbies:  make(map[uuid.UUID]*models.Lobby),
		sessions: make(map[uuid.UUID]*models.Session),
	}
}

func (m *memStore) GetLobby(_ context.Context, id uuid.UUID) (*models.Lobby, error) {
	l, ok := m.lobbies[id]
	if !ok {
		return nil, nil
	}
	return l, nil
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (m *memStore) WithLobbyTx(ctx context.Context, lobbyID uuid.UUID, fn func(ctx context.Context, tx Tx, lob *models.Lobby) error) error {
	lob, ok := m.lobbies[lobbyID]
	if !ok {
		return apperr.New(apperr.NotFound, "lobby %s does not exist", lobbyID)
	}
	return fn(ctx, m, lob)
}

func (m *memStore) ListSessions(_ context.Context, lobbyID uuid.UUID) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range m.sessions {
		if s.LobbyID == lobbyID {
			out = append(out, s)
		}
	}
	// Number-ascending, matching the SQL ORDER BY.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Number < out[i].Number {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memStore) InsertSession(_ context.Context, s *models.Session) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s *models.Session) error {
	m.sessions[s.ID] = s
	return nil
}

type recorder struct {
	events []string
}

func (r *recorder) AnnounceSession(eventType string, _, _, _ uuid.UUID, _ map[string]interface{}) {
	r.events = append(r.events, eventType)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixture struct {
	m     *Manager
	store *memStore
	rec   *recorder
	lob   *models.Lobby
	now   time.Time
}

func newFixture(t *testing.T, settings models.LobbySettings) *fixture {
	t.Helper()
	store := newMemStore()
	rec := &recorder{}
	m := NewManager(store, rec, quietLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	exp := now.Add(time.Hour)
	lob := &models.Lobby{
		ID:        uuid.New(),
		GameID:    uuid.New(),
		OwnerID:   uuid.New(),
		HostID:    uuid.New(),
		Code:      "ABCDEF",
		Settings:  settings,
		ExpiresAt: &exp,
		CreatedAt: now,
	}
	store.lobbies[lob.ID] = lob
	return &fixture{m: m, store: store, rec: rec, lob: lob, now: now}
}

func guest(name, token string) (JoinRequest, models.Actor) {
	return JoinRequest{DisplayName: name, GuestToken: token},
		models.Actor{UserID: uuid.New(), Role: models.RoleUser, IsGuest: true}
}

func user(name string) (JoinRequest, models.Actor) {
	return JoinRequest{DisplayName: name},
		models.Actor{UserID: uuid.New(), Role: models.RoleUser}
}

func TestOrderStrategyFillsThenOverflows(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      2,
		AllowGuestUsers: true,
		InvitationType:  models.InviteOrder,
	})
	ctx := context.Background()

	// First two guests land in session 1.
	req, actor := guest("anna", "tok-a")
	_, s1, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	assert.Equal(t, 1, s1.Number)

	req, actor = guest("ben", "tok-b")
	_, s1b, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s1b.ID)
	assert.Len(t, s1b.Participants, 2)

	// Third guest overflows into a freshly created session 2.
	req, actor = guest("cara", "tok-c")
	_, s2, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, s2.Number)
	assert.Len(t, s2.Participants, 1)
	assert.Equal(t, "order_overflow", s2.Meta.CreatedBy)
}

func TestManualSelectionJoin(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      4,
		AllowGuestUsers: true,
		InvitationType:  models.InviteManualSelection,
		MaxSessions:     5,
	})
	ctx := context.Background()

	created, err := f.m.Create(ctx, f.lob.ID, CreateParams{Name: "Table A", MaxPlayers: 2}, models.Actor{UserID: f.lob.OwnerID})
	require.NoError(t, err)

	// A target session id is mandatory under manual selection.
	req, actor := guest("dora", "tok-d")
	_, _, err = f.m.Join(ctx, f.lob.ID, req, actor)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	req.SessionID = &created.ID
	_, got, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	// The session's own max_players caps admissions, no auto-overflow.
	req2, actor2 := guest("ed", "tok-e")
	req2.SessionID = &created.ID
	_, _, err = f.m.Join(ctx, f.lob.ID, req2, actor2)
	require.NoError(t, err)

	req3, actor3 := guest("fay", "tok-f")
	req3.SessionID = &created.ID
	_, _, err = f.m.Join(ctx, f.lob.ID, req3, actor3)
	assert.Equal(t, apperr.CapacityExceeded, apperr.KindOf(err))
}

func TestJoinDeduplication(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      5,
		AllowGuestUsers: true,
		InvitationType:  models.InviteOrder,
	})
	ctx := context.Background()

	// Same registered user joining twice refreshes in place.
	req, actor := user("greta")
	p1, s, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	req.Team = "blue"
	p2, _, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "blue", p2.Team)
	assert.Len(t, f.store.sessions[s.ID].Participants, 1)

	// Same guest token dedupes even when the display name changes.
	greq, gactor := guest("hal", "tok-h")
	g1, _, err := f.m.Join(ctx, f.lob.ID, greq, gactor)
	require.NoError(t, err)
	greq.DisplayName = "hal the second"
	g2, _, err := f.m.Join(ctx, f.lob.ID, greq, gactor)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, g2.ID)
	assert.Equal(t, "hal the second", g2.DisplayName)

	// Distinct guest tokens are distinct participants despite equal names.
	oreq, oactor := guest("hal the second", "tok-other")
	g3, _, err := f.m.Join(ctx, f.lob.ID, oreq, oactor)
	require.NoError(t, err)
	assert.NotEqual(t, g1.ID, g3.ID)

	// A guest whose ephemeral identity was re-minted keeps the same token and
	// still dedupes to the original record.
	rereq := JoinRequest{DisplayName: "hal reborn", GuestToken: "tok-h"}
	reactor := models.Actor{UserID: uuid.New(), Role: models.RoleUser, IsGuest: true}
	g4, _, err := f.m.Join(ctx, f.lob.ID, rereq, reactor)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, g4.ID)
}

func TestJoinGating(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:     5,
		InvitationType: models.InviteOrder,
		// AllowGuestUsers false
	})
	ctx := context.Background()

	req, actor := guest("ivy", "tok-i")
	_, _, err := f.m.Join(ctx, f.lob.ID, req, actor)
	assert.Equal(t, apperr.GuestsNotAllowed, apperr.KindOf(err))

	// Closed lobby admits nobody.
	closedAt := f.now.Add(-time.Minute)
	f.lob.ClosedAt = &closedAt
	ureq, uactor := user("jon")
	_, _, err = f.m.Join(ctx, f.lob.ID, ureq, uactor)
	assert.Equal(t, apperr.NotJoinable, apperr.KindOf(err))
}

func TestSessionNumbersNeverReused(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      4,
		AllowGuestUsers: true,
		InvitationType:  models.InviteManualSelection,
		MaxSessions:     2,
	})
	ctx := context.Background()
	owner := models.Actor{UserID: f.lob.OwnerID}

	s1, err := f.m.Create(ctx, f.lob.ID, CreateParams{}, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, s1.Number)

	// Someone joins s1; it is permanently non-recyclable.
	req, actor := guest("kim", "tok-k")
	req.SessionID = &s1.ID
	_, _, err = f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)

	s2, err := f.m.Create(ctx, f.lob.ID, CreateParams{}, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, s2.Number)

	// At max_sessions with no recyclable session: limit reached... except s2
	// never saw a participant, so it is recycled in place under a new number.
	s3, err := f.m.Create(ctx, f.lob.ID, CreateParams{Name: "Fresh"}, owner)
	require.NoError(t, err)
	assert.Equal(t, s2.ID, s3.ID, "empty never-joined session is recycled")
	assert.Equal(t, 3, s3.Number, "recycled session still gets a fresh number")
	assert.Equal(t, "Fresh", s3.Meta.Name)

	// Join s3 so nothing is recyclable, then the cap actually bites.
	req2, actor2 := guest("lee", "tok-l")
	req2.SessionID = &s3.ID
	_, _, err = f.m.Join(ctx, f.lob.ID, req2, actor2)
	require.NoError(t, err)

	_, err = f.m.Create(ctx, f.lob.ID, CreateParams{}, owner)
	assert.Equal(t, apperr.SessionLimitReached, apperr.KindOf(err))
}

func TestEverJoinedLatches(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      4,
		AllowGuestUsers: true,
		InvitationType:  models.InviteOrder,
	})
	ctx := context.Background()

	req, actor := user("mia")
	p, s, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	assert.False(t, f.store.sessions[s.ID].CanDelete())

	// Roster empties, but the latch holds.
	require.NoError(t, f.m.Leave(ctx, s.ID, p.ID, actor))
	stored := f.store.sessions[s.ID]
	assert.Empty(t, stored.Participants)
	assert.False(t, stored.CanDelete())
}

func TestLeaveAuthorization(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      4,
		AllowGuestUsers: true,
		InvitationType:  models.InviteOrder,
	})
	ctx := context.Background()

	req, actor := user("nils")
	p, s, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)

	stranger := models.Actor{UserID: uuid.New(), Role: models.RoleUser}
	err = f.m.Leave(ctx, s.ID, p.ID, stranger)
	assert.Equal(t, apperr.AccessDenied, apperr.KindOf(err))

	// The lobby host may remove anyone.
	err = f.m.Leave(ctx, s.ID, p.ID, models.Actor{UserID: f.lob.HostID})
	assert.NoError(t, err)
}

func TestGuestSelfLeave(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      4,
		AllowGuestUsers: true,
		InvitationType:  models.InviteOrder,
	})
	ctx := context.Background()

	req, actor := guest("quinn", "tok-q")
	p, s, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	require.NotNil(t, p.UserID, "guest participants carry their ephemeral user id")
	assert.Equal(t, actor.UserID, *p.UserID)

	// The guest removes their own roster entry without lobby authority.
	require.NoError(t, f.m.Leave(ctx, s.ID, p.ID, actor))
	assert.Empty(t, f.store.sessions[s.ID].Participants)

	// A different guest still cannot remove somebody else's entry.
	req2, actor2 := guest("rex", "tok-r")
	p2, s2, err := f.m.Join(ctx, f.lob.ID, req2, actor2)
	require.NoError(t, err)
	req3, actor3 := guest("sal", "tok-s")
	_, _, err = f.m.Join(ctx, f.lob.ID, req3, actor3)
	require.NoError(t, err)
	err = f.m.Leave(ctx, s2.ID, p2.ID, actor3)
	assert.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestUpdateGameState(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      4,
		AllowGuestUsers: true,
		InvitationType:  models.InviteOrder,
	})
	ctx := context.Background()

	req, actor := user("oda")
	_, s, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)
	require.Nil(t, f.store.sessions[s.ID].StartedAt)

	state := json.RawMessage(`{"round":1}`)
	require.NoError(t, f.m.UpdateGameState(ctx, s.ID, state, actor))

	stored := f.store.sessions[s.ID]
	assert.JSONEq(t, `{"round":1}`, string(stored.GameState))
	require.NotNil(t, stored.StartedAt, "first state write stamps started_at")
	started := *stored.StartedAt

	// Subsequent writes keep the original start time.
	require.NoError(t, f.m.UpdateGameState(ctx, s.ID, json.RawMessage(`{"round":2}`), actor))
	assert.Equal(t, started, *f.store.sessions[s.ID].StartedAt)

	// Non-members without lobby authority may not write.
	stranger := models.Actor{UserID: uuid.New(), Role: models.RoleUser}
	err = f.m.UpdateGameState(ctx, s.ID, state, stranger)
	assert.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestEffectiveStatusInheritsLobby(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lobExp := now.Add(time.Hour)
	lob := &models.Lobby{ExpiresAt: &lobExp}

	// Session without its own expiry inherits the lobby's.
	s := &models.Session{}
	st := EffectiveStatus(now, s, lob)
	assert.Equal(t, 60*time.Minute, st.TimeRemaining)

	// A shorter session expiry wins.
	sExp := now.Add(10 * time.Minute)
	s.ExpiresAt = &sExp
	st = EffectiveStatus(now, s, lob)
	assert.Equal(t, 10*time.Minute, st.TimeRemaining)

	// A closed lobby forces the session closed regardless.
	closedAt := now
	lob.ClosedAt = &closedAt
	st = EffectiveStatus(now, s, lob)
	assert.False(t, st.Joinable())
}

func TestSeedSessionsNumbersFromMax(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      4,
		AllowGuestUsers: true,
		InvitationType:  models.InviteOrder,
	})
	ctx := context.Background()

	require.NoError(t, f.m.SeedSessions(ctx, f.lob, "quiz", 2, 4, "Quiz Round"))

	sessions, _, err := f.m.List(ctx, f.lob.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 1, sessions[0].Number)
	assert.Equal(t, 2, sessions[1].Number)
	assert.Equal(t, "Quiz Round 1", sessions[0].Meta.Name)
	assert.Equal(t, "activation_seed", sessions[0].Meta.CreatedBy)

	// Seeding again continues the numbering.
	require.NoError(t, f.m.SeedSessions(ctx, f.lob, "quiz", 1, 4, "Quiz Round"))
	sessions, _, err = f.m.List(ctx, f.lob.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, 3, sessions[2].Number)
}

func TestAnnouncements(t *testing.T) {
	f := newFixture(t, models.LobbySettings{
		MaxPlayers:      1,
		AllowGuestUsers: true,
		InvitationType:  models.InviteOrder,
	})
	ctx := context.Background()

	req, actor := guest("pia", "tok-p")
	_, _, err := f.m.Join(ctx, f.lob.ID, req, actor)
	require.NoError(t, err)

	// First join creates session 1 (new) and admits pia.
	assert.Equal(t, []string{"session:created", "session:participant_joined"}, f.rec.events)
}
