package domain

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the side of a wager. Values match the persisted encoding.
type Direction uint8

const (
	DirectionDown Direction = 0
	DirectionUp   Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Valid reports whether d is one of the two sides.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// ParseDirection accepts up/down and the bull/bear aliases, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "bull":
		return DirectionUp, nil
	case "down", "bear":
		return DirectionDown, nil
	default:
		return 0, ErrInvalidDirection.With("%q", s)
	}
}

// Outcome is the result of a round once both prices are known.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeUp      Outcome = "UP"
	OutcomeDown    Outcome = "DOWN"
	OutcomePush    Outcome = "PUSH"
)

// Round is one epoch of the market.
//
// Zero time values and zero prices mean "unset". The three stake
// accumulators always satisfy TotalStake == UpStake + DownStake.
type Round struct {
	Epoch     uint64
	StartTime time.Time
	LockTime  time.Time
	CloseTime time.Time

	LockPrice  uint64
	ClosePrice uint64

	TotalStake uint64
	UpStake    uint64
	DownStake  uint64

	PayoutBase uint64 // winning side's stake
	PayoutPool uint64 // total stake minus the treasury cut
	Settled    bool   // rewards computed
}

// NewRound opens epoch at start. Lock and close follow at one interval each.
func NewRound(epoch uint64, start time.Time, interval time.Duration) Round {
	lock := start.Add(interval)
	return Round{
		Epoch:     epoch,
		StartTime: start,
		LockTime:  lock,
		CloseTime: lock.Add(interval),
	}
}

func (r Round) Started() bool { return !r.StartTime.IsZero() }
func (r Round) Locked() bool  { return r.LockPrice != 0 }
func (r Round) Closed() bool  { return r.ClosePrice != 0 }

// Biddable reports whether bets are accepted at now: strictly after start and
// strictly before lock.
func (r Round) Biddable(now time.Time) bool {
	return !r.StartTime.IsZero() &&
		!r.LockTime.IsZero() &&
		now.After(r.StartTime) &&
		now.Before(r.LockTime)
}

// Outcome compares close against lock. Rounds without both prices are pending.
func (r Round) Outcome() Outcome {
	if !r.Locked() || !r.Closed() {
		return OutcomePending
	}
	switch {
	case r.ClosePrice > r.LockPrice:
		return OutcomeUp
	case r.ClosePrice < r.LockPrice:
		return OutcomeDown
	default:
		return OutcomePush
	}
}

// Phase is a coarse label for display.
func (r Round) Phase(now time.Time) string {
	switch {
	case r.Settled:
		return "SETTLED"
	case r.Locked():
		return "LIVE"
	case r.Biddable(now):
		return "OPEN"
	case r.Started():
		return "PENDING_LOCK"
	default:
		return "NOT_STARTED"
	}
}

// Wins reports whether a wager on d wins this settled round.
func (r Round) Wins(d Direction) bool {
	switch r.Outcome() {
	case OutcomeUp:
		return d == DirectionUp
	case OutcomeDown:
		return d == DirectionDown
	default:
		return false
	}
}

// Wager is a user's single bet on one epoch. Stake never changes once placed.
type Wager struct {
	Epoch     uint64
	User      Address
	Direction Direction
	Stake     uint64
	Claimed   bool
}
