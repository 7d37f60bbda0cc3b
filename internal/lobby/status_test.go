// internal/lobby/status_test.go
package lobby

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(30 * time.Minute)
	past := now.Add(-time.Minute)
	far := now.Add(indefiniteHorizon)

	tests := []struct {
		name      string
		expiresAt *time.Time
		closedAt  *time.Time
		want      State
	}{
		{"no expiration is pending", nil, nil, StatePending},
		{"future expiration is open", &soon, nil, StateOpen},
		{"past expiration is closed", &past, nil, StateClosed},
		{"expiration exactly now is closed", &now, nil, StateClosed},
		{"horizon expiration is open indefinitely", &far, nil, StateOpenIndefinitely},
		{"closed_at wins over future expiration", &soon, &past, StateClosed},
		{"closed_at wins over missing expiration", nil, &past, StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStatus(now, tt.expiresAt, tt.closedAt)
			assert.Equal(t, tt.want, got.State)
		})
	}
}

func TestComputeStatusTimeRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in45 := now.Add(45 * time.Minute)

	got := ComputeStatus(now, &in45, nil)
	assert.Equal(t, StateOpen, got.State)
	assert.Equal(t, 45*time.Minute, got.TimeRemaining)

	// Only the open state carries a remaining time.
	assert.Zero(t, ComputeStatus(now, nil, nil).TimeRemaining)
	far := now.Add(indefiniteHorizon + time.Hour)
	assert.Zero(t, ComputeStatus(now, &far, nil).TimeRemaining)
}

func TestComputeStatusIsPure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	first := ComputeStatus(now, &exp, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ComputeStatus(now, &exp, nil))
	}
}

func TestJoinable(t *testing.T) {
	assert.False(t, Status{State: StatePending}.Joinable())
	assert.True(t, Status{State: StateOpen}.Joinable())
	assert.True(t, Status{State: StateOpenIndefinitely}.Joinable())
	assert.False(t, Status{State: StateClosed}.Joinable())
}

func TestMoreRestrictive(t *testing.T) {
	closed := Status{State: StateClosed}
	pending := Status{State: StatePending}
	open10 := Status{State: StateOpen, TimeRemaining: 10 * time.Minute}
	open60 := Status{State: StateOpen, TimeRemaining: 60 * time.Minute}
	forever := Status{State: StateOpenIndefinitely}

	assert.Equal(t, closed, MoreRestrictive(closed, forever))
	assert.Equal(t, closed, MoreRestrictive(open10, closed))
	assert.Equal(t, pending, MoreRestrictive(pending, open60))
	assert.Equal(t, open60, MoreRestrictive(open60, forever))

	// Two open statuses: the shorter remaining time wins either way.
	assert.Equal(t, open10, MoreRestrictive(open10, open60))
	assert.Equal(t, open10, MoreRestrictive(open60, open10))
}

func TestIndefiniteExpiryRoundTrips(t *testing.T) {
	wrote := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := IndefiniteExpiry(wrote)

	// Reading at the write instant and at any realistic later read classifies
	// back to open_indefinitely; the sentinel must survive a moving clock.
	for _, read := range []time.Time{
		wrote,
		wrote.Add(time.Second),
		wrote.Add(12 * time.Hour),
		wrote.Add(90 * 24 * time.Hour),
	} {
		got := ComputeStatus(read, &exp, nil)
		assert.Equal(t, StateOpenIndefinitely, got.State, "read at %s", read)
	}
}
