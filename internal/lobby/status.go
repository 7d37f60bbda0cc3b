// internal/lobby/status.go
package lobby

import "time"

// State is the derived lobby status. It is computed from timestamps at read
// time and never persisted.
type State string

const (
	StatePending          State = "pending"
	StateOpen             State = "open"
	StateOpenIndefinitely State = "open_indefinitely"
	StateClosed           State = "closed"
)

// indefiniteHorizon is the sentinel distance for "never expires".
const indefiniteHorizon = 100 * 365 * 24 * time.Hour

// indefiniteThreshold classifies a stored sentinel back to open_indefinitely.
// It sits well below the horizon because reads happen after the write that
// encoded the sentinel; comparing against the horizon itself would flip the
// status to plain open the moment the clock advances past the write instant.
const indefiniteThreshold = 99 * 365 * 24 * time.Hour

// Status pairs the derived state with the remaining open time (only set for
// StateOpen).
type Status struct {
	State         State         `json:"state"`
	TimeRemaining time.Duration `json:"time_remaining,omitempty"`
}

// ComputeStatus derives the lobby status from the clock and the two nullable
// timestamps. Pure: same inputs always yield the same result. ClosedAt set
// takes precedence over everything.
func ComputeStatus(now time.Time, expiresAt, closedAt *time.Time) Status {
	switch {
	case closedAt != nil:
		return Status{State: StateClosed}
	case expiresAt == nil:
		return Status{State: StatePending}
	case !expiresAt.After(now):
		return Status{State: StateClosed}
	case expiresAt.Sub(now) >= indefiniteThreshold:
		return Status{State: StateOpenIndefinitely}
	default:
		return Status{State: StateOpen, TimeRemaining: expiresAt.Sub(now)}
	}
}

// Joinable reports whether a lobby in this state admits participants.
func (s Status) Joinable() bool {
	return s.State == StateOpen || s.State == StateOpenIndefinitely
}

// restrictiveness orders states from most to least restrictive, used when
// combining a session's own status with its parent lobby's.
func restrictiveness(s State) int {
	switch s {
	case StateClosed:
		return 0
	case StatePending:
		return 1
	case StateOpen:
		return 2
	default: // StateOpenIndefinitely
		return 3
	}
}

// MoreRestrictive returns whichever of the two statuses is more restrictive.
// For two open statuses the shorter remaining time wins.
func MoreRestrictive(a, b Status) Status {
	ra, rb := restrictiveness(a.State), restrictiveness(b.State)
	if ra < rb {
		return a
	}
	if rb < ra {
		return b
	}
	if a.State == StateOpen && b.TimeRemaining < a.TimeRemaining {
		return b
	}
	return a
}

// IndefiniteExpiry returns the timestamp encoding "never expires".
func IndefiniteExpiry(now time.Time) time.Time {
	return now.Add(indefiniteHorizon)
}
