// Package keeper drives the market's automation: it fires due scheduler
// slots into the engine and prints periodic status reports.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
	"github.com/robfig/cron/v3"
)

const (
	defaultTick   = time.Second
	defaultRounds = 5
)

// Market is the part of the engine the keeper calls.
type Market interface {
	Execute(ctx context.Context, caller domain.Address, op domain.Operation) error
	Rearm(ctx context.Context, caller domain.Address) error
	State(ctx context.Context) (domain.MarketState, error)
	Snapshot(ctx context.Context, n int) (domain.MarketSnapshot, error)
}

// Slots is a scheduler whose due calls can be fired on demand.
type Slots interface {
	CurrentSlot(ctx context.Context) (uint64, error)
	Fire(ctx context.Context, upTo uint64, dispatch func(context.Context, domain.ScheduledCall) error) int
	Pending() []domain.ScheduledCall
	Cancel(ctx context.Context, id string) error
}

// FireObserver is told the outcome of every dispatched call.
type FireObserver interface {
	ObserveFire(op domain.Operation, err error)
}

// Config holds keeper settings.
type Config struct {
	Self       domain.Address // caller identity for scheduled calls
	Tick       time.Duration  // how often due slots are checked
	StatusSpec string         // cron spec for status reports, "" disables them
	Rounds     int            // rounds shown per report
}

// Keeper runs the automation loop.
type Keeper struct {
	market   Market
	slots    Slots
	notifier ports.Notifier
	observer FireObserver
	cfg      Config
}

// New creates a keeper. notifier and observer may be nil.
func New(m Market, s Slots, notifier ports.Notifier, observer FireObserver, cfg Config) *Keeper {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = defaultRounds
	}
	return &Keeper{market: m, slots: s, notifier: notifier, observer: observer, cfg: cfg}
}

// Run blocks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	k.Reconcile(ctx)

	if k.cfg.StatusSpec != "" && k.notifier != nil {
		c := cron.New()
		if _, err := c.AddFunc(k.cfg.StatusSpec, func() {
			if err := k.Report(ctx); err != nil {
				slog.Warn("keeper: status report failed", "err", err)
			}
		}); err != nil {
			return fmt.Errorf("keeper.Run: status spec %q: %w", k.cfg.StatusSpec, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	slog.Info("keeper: started", "tick", k.cfg.Tick, "status", k.cfg.StatusSpec)
	ticker := time.NewTicker(k.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper: stopped")
			return nil
		case <-ticker.C:
			k.Tick(ctx)
		}
	}
}

// Tick reconciles the bookings, then fires every call due by the current
// slot and returns how many ran.
func (k *Keeper) Tick(ctx context.Context) int {
	k.Reconcile(ctx)
	slot, err := k.slots.CurrentSlot(ctx)
	if err != nil {
		slog.Warn("keeper: current slot", "err", err)
		return 0
	}
	return k.slots.Fire(ctx, slot, k.dispatch)
}

// Reconcile makes this process's slots match the booking stored in the
// market. Other processes sharing the store (admin commands) book into their
// own schedulers: their booking is replaced by one made here, and calls
// booked here that the market no longer points at are dropped.
func (k *Keeper) Reconcile(ctx context.Context) {
	if err := k.market.Rearm(ctx, k.cfg.Self); err != nil {
		if errors.Is(err, domain.ErrNotInitialized) {
			slog.Debug("keeper: market not initialized")
		} else {
			slog.Warn("keeper: rearm failed", "err", err)
		}
		return
	}
	st, err := k.market.State(ctx)
	if err != nil {
		slog.Warn("keeper: read state", "err", err)
		return
	}
	for _, call := range k.slots.Pending() {
		if call.ID == st.CallID || !call.Target.Equal(k.cfg.Self) {
			continue
		}
		if err := k.slots.Cancel(ctx, call.ID); err != nil {
			slog.Warn("keeper: cancel stale call", "call_id", call.ID, "err", err)
			continue
		}
		slog.Info("keeper: dropped stale call", "call_id", call.ID, "op", call.Op, "slot", call.Slot)
	}
}

func (k *Keeper) dispatch(ctx context.Context, call domain.ScheduledCall) error {
	if !call.Target.Equal(k.cfg.Self) {
		return fmt.Errorf("keeper: call %s targets %s, not this market", call.ID, call.Target)
	}
	err := k.market.Execute(ctx, k.cfg.Self, call.Op)
	if k.observer != nil {
		k.observer.ObserveFire(call.Op, err)
	}
	if err != nil {
		return fmt.Errorf("keeper: %s: %w", call.Op, err)
	}
	return nil
}

// Report prints the current market snapshot.
func (k *Keeper) Report(ctx context.Context) error {
	if k.notifier == nil {
		return nil
	}
	snap, err := k.market.Snapshot(ctx, k.cfg.Rounds)
	if err != nil {
		return fmt.Errorf("keeper.Report: %w", err)
	}
	return k.notifier.NotifyRounds(ctx, snap)
}
