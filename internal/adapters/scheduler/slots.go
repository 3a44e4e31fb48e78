// Package scheduler implements ports.Scheduler as an in-process slot book.
//
// Time is cut into fixed slots counted from a genesis instant. Each slot has
// a gas capacity; booking gas in a slot makes it more expensive, so
// FindSlot spreads calls toward quieter slots. Due calls are handed to a
// dispatcher by Fire, which the keeper drives from a ticker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
	"github.com/google/uuid"
)

const (
	// SlotDuration is the length of one slot.
	SlotDuration = 16 * time.Second

	DefaultSlotCapacity = uint64(1_000_000_000)

	baseFee  = uint64(10_000)
	gasUnit  = uint64(1_000) // gas per fee unit at zero congestion
	byteFee  = uint64(10)
	maxSurge = uint64(9) // a full slot costs (1+maxSurge)x an empty one
)

var (
	// ErrNoSlot is returned when no slot in the window can fit the call.
	ErrNoSlot = errors.New("scheduler: no slot available in window")
	// ErrSlotInPast is returned when booking a slot that already started.
	ErrSlotInPast = errors.New("scheduler: slot is not in the future")
)

// Dispatcher runs a due call.
type Dispatcher = func(ctx context.Context, call domain.ScheduledCall) error

// Config configures a SlotScheduler.
type Config struct {
	Genesis      time.Time     // instant of slot 0
	SlotDuration time.Duration // default SlotDuration
	Capacity     uint64        // gas per slot, default DefaultSlotCapacity
}

// SlotScheduler is safe for concurrent use.
type SlotScheduler struct {
	clock    ports.Clock
	genesis  time.Time
	slotDur  time.Duration
	capacity uint64

	mu     sync.Mutex
	calls  map[string]domain.ScheduledCall
	booked map[uint64]uint64 // slot -> gas booked
}

var _ ports.Scheduler = (*SlotScheduler)(nil)

// New creates an empty scheduler.
func New(clock ports.Clock, cfg Config) *SlotScheduler {
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = SlotDuration
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultSlotCapacity
	}
	return &SlotScheduler{
		clock:    clock,
		genesis:  cfg.Genesis.UTC(),
		slotDur:  cfg.SlotDuration,
		capacity: cfg.Capacity,
		calls:    make(map[string]domain.ScheduledCall),
		booked:   make(map[uint64]uint64),
	}
}

// SlotAt returns the slot containing t. Instants before genesis are slot 0.
func (s *SlotScheduler) SlotAt(t time.Time) uint64 {
	d := t.Sub(s.genesis)
	if d <= 0 {
		return 0
	}
	return uint64(d / s.slotDur)
}

// SlotTime returns the start instant of slot.
func (s *SlotScheduler) SlotTime(slot uint64) time.Time {
	return s.genesis.Add(time.Duration(slot) * s.slotDur)
}

func (s *SlotScheduler) CurrentSlot(_ context.Context) (uint64, error) {
	return s.SlotAt(s.clock.Now()), nil
}

func (s *SlotScheduler) FindSlot(_ context.Context, from, to, maxGas uint64, paramsSize int) (uint64, error) {
	if from > to {
		return 0, fmt.Errorf("scheduler.FindSlot: empty window [%d, %d]", from, to)
	}
	if maxGas > s.capacity {
		return 0, fmt.Errorf("scheduler.FindSlot: gas %d exceeds slot capacity %d: %w", maxGas, s.capacity, ErrNoSlot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.SlotAt(s.clock.Now())
	var (
		best     uint64
		bestCost uint64
		found    bool
	)
	for slot := from; slot <= to; slot++ {
		if slot <= current {
			continue
		}
		cost, ok := s.quoteLocked(slot, maxGas, paramsSize)
		if !ok {
			continue
		}
		if !found || cost < bestCost {
			best, bestCost, found = slot, cost, true
		}
		if slot == to { // guard against overflow at math.MaxUint64
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("scheduler.FindSlot: [%d, %d]: %w", from, to, ErrNoSlot)
	}
	return best, nil
}

func (s *SlotScheduler) Quote(_ context.Context, slot, maxGas uint64, paramsSize int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cost, ok := s.quoteLocked(slot, maxGas, paramsSize)
	if !ok {
		return 0, fmt.Errorf("scheduler.Quote: slot %d cannot fit %d gas: %w", slot, maxGas, ErrNoSlot)
	}
	return cost, nil
}

// quoteLocked prices a booking: a base fee, gas at a rate that rises with the
// slot's occupancy, and a per-byte fee for parameters.
func (s *SlotScheduler) quoteLocked(slot, maxGas uint64, paramsSize int) (uint64, bool) {
	used := s.booked[slot]
	if used+maxGas > s.capacity {
		return 0, false
	}
	gasFee := maxGas / gasUnit
	surge := gasFee * maxSurge * used / s.capacity
	return baseFee + gasFee + surge + uint64(paramsSize)*byteFee, true
}

func (s *SlotScheduler) Register(_ context.Context, call domain.ScheduledCall) (string, error) {
	if !call.Op.Valid() {
		return "", fmt.Errorf("scheduler.Register: unknown operation %q", call.Op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if call.Slot <= s.SlotAt(s.clock.Now()) {
		return "", fmt.Errorf("scheduler.Register: slot %d: %w", call.Slot, ErrSlotInPast)
	}
	cost, ok := s.quoteLocked(call.Slot, call.MaxGas, len(call.Params))
	if !ok {
		return "", fmt.Errorf("scheduler.Register: slot %d full: %w", call.Slot, ErrNoSlot)
	}

	call.ID = uuid.NewString()
	call.Cost = cost
	call.BookedAt = s.clock.Now()
	s.calls[call.ID] = call
	s.booked[call.Slot] += call.MaxGas

	slog.Debug("scheduler: registered", "call_id", call.ID, "op", call.Op, "slot", call.Slot, "cost", cost)
	return call.ID, nil
}

func (s *SlotScheduler) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.calls[id]
	return ok, nil
}

func (s *SlotScheduler) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	return nil
}

// Pending returns registered calls ordered by slot.
func (s *SlotScheduler) Pending() []domain.ScheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(domain.ScheduledCall) bool { return true })
}

// Fire dispatches every call booked at or before upTo, in slot order. Each
// call is removed before it runs, so Exists is false while and after it
// executes. Dispatch errors are logged and do not stop the others.
func (s *SlotScheduler) Fire(ctx context.Context, upTo uint64, dispatch Dispatcher) int {
	s.mu.Lock()
	due := s.sortedLocked(func(c domain.ScheduledCall) bool { return c.Slot <= upTo })
	for _, c := range due {
		s.removeLocked(c.ID)
	}
	s.mu.Unlock()

	for _, c := range due {
		if err := dispatch(ctx, c); err != nil {
			slog.Warn("scheduler: dispatch failed", "call_id", c.ID, "op", c.Op, "slot", c.Slot, "err", err)
			continue
		}
		slog.Info("scheduler: fired", "call_id", c.ID, "op", c.Op, "slot", c.Slot)
	}
	return len(due)
}

func (s *SlotScheduler) removeLocked(id string) {
	c, ok := s.calls[id]
	if !ok {
		return
	}
	delete(s.calls, id)
	if left := s.booked[c.Slot] - c.MaxGas; left > 0 {
		s.booked[c.Slot] = left
	} else {
		delete(s.booked, c.Slot)
	}
}

func (s *SlotScheduler) sortedLocked(keep func(domain.ScheduledCall) bool) []domain.ScheduledCall {
	var out []domain.ScheduledCall
	for _, c := range s.calls {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot < out[j].Slot
		}
		return out[i].BookedAt.Before(out[j].BookedAt)
	})
	return out
}
