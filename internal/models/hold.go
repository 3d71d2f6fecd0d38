package models

import "time"

type Hold struct {
	ID        string    `json:"hold_id"`
	QuestID   string    `json:"quest_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}

type HoldState string

const (
	HoldStateActive    HoldState = "active"
	HoldStateCommitted HoldState = "committed"
	HoldStateReleased  HoldState = "released"
	HoldStateExpired   HoldState = "expired"
	HoldStateUnknown   HoldState = "unknown"
)

// HoldInfo describes a live hold or the tombstone left behind by a finished one.
type HoldInfo struct {
	State HoldState `json:"state"`
	Hold  *Hold     `json:"hold,omitempty"`
}

type CommitOutcome int

const (
	// CommitApplied means this call moved the tickets from held to sold.
	CommitApplied CommitOutcome = iota
	CommitAlreadyCommitted
	// CommitAlreadyReleased means the hold was cancelled before; nothing was sold.
	CommitAlreadyReleased
)

func (o CommitOutcome) String() string {
	switch o {
	case CommitApplied:
		return "applied"
	case CommitAlreadyCommitted:
		return "already_committed"
	case CommitAlreadyReleased:
		return "already_released"
	default:
		return "unknown"
	}
}
