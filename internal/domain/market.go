package domain

import (
	"fmt"
	"time"
)

// MarketConfig is fixed at initialization.
type MarketConfig struct {
	PoolID   string        // price source pool identifier
	Self     Address       // the market's own identity, used by scheduled calls
	FeeBps   uint32        // treasury fee, basis points
	MinStake uint64        // minimum wager
	Interval time.Duration // lock = start + interval, close = lock + interval
	Buffer   time.Duration // grace after lock/close time
}

// Validate checks bounds that Initialize enforces.
func (c MarketConfig) Validate() error {
	if c.FeeBps > MaxTreasuryFeeBps {
		return ErrFeeTooHigh.With("%d bps > %d", c.FeeBps, MaxTreasuryFeeBps)
	}
	if c.Interval <= 0 {
		return ErrInvalidConfig.With("interval must be positive, got %s", c.Interval)
	}
	if c.Buffer <= 0 {
		return ErrInvalidConfig.With("buffer must be positive, got %s", c.Buffer)
	}
	if c.PoolID == "" {
		return ErrInvalidConfig.With("pool id is required")
	}
	if !c.Self.Valid() {
		return ErrInvalidConfig.With("self address %q is invalid", c.Self)
	}
	return nil
}

// MarketState is the mutable singleton of the market.
type MarketState struct {
	Owner        Address
	PendingOwner Address

	CurrentEpoch uint64
	Treasury     uint64

	GenesisStarted    bool
	GenesisLocked     bool
	AutomationEnabled bool
	Paused            bool

	// CallID is the handle of the pending scheduled call, "" if none.
	CallID string
}

// GenesisDone is true once rounds are advancing on their own.
func (s MarketState) GenesisDone() bool {
	return s.GenesisStarted && s.GenesisLocked
}

// Operation names an entry point a scheduled call can target.
type Operation string

const (
	OpGenesisLock Operation = "genesisLockRound"
	OpAdvance     Operation = "executeRound"
)

func (o Operation) Valid() bool {
	return o == OpGenesisLock || o == OpAdvance
}

// ScheduledCall is a deferred invocation of an operation at a slot.
type ScheduledCall struct {
	ID       string
	Target   Address
	Op       Operation
	Slot     uint64
	MaxGas   uint64
	Params   []byte
	Cost     uint64
	BookedAt time.Time
}

func (c ScheduledCall) String() string {
	return fmt.Sprintf("%s@%d(%s)", c.Op, c.Slot, c.ID)
}

// MarketSnapshot is a read-only view for operators and status output.
type MarketSnapshot struct {
	Config  MarketConfig
	State   MarketState
	Rounds  []Round // most recent first
	Balance uint64
	TakenAt time.Time
}
