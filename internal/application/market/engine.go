// Package market runs the epoch-based binary prediction market.
//
// Every mutating entry point executes as one call: rules are checked against
// a staged view of the ledger, and only when all of them pass are the writes
// committed and the events emitted. A failed call leaves nothing behind.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ledger"
	"github.com/alejandrodnm/predictbot/internal/ports"
)

// Observer is told about every mutating call once it has finished.
type Observer interface {
	ObserveCall(op string, err error, elapsed time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver attaches o to the engine.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.obs = o }
}

// Engine owns a single market. It is safe for concurrent use: calls are
// serialized one whole call at a time.
//
// Re-entry is recognised through the ctx an engine hands to its
// collaborators. A collaborator that calls back into the engine with an
// unrelated ctx (context.Background, say) is not detected and blocks on the
// engine lock. Collaborators must pass the ctx they were given.
type Engine struct {
	store  ports.KVStore
	clock  ports.Clock
	prices ports.PriceSource
	funds  ports.Funds
	events ports.EventSink
	sched  ports.Scheduler
	obs    Observer

	mu sync.Mutex
}

// New creates an engine over the given ports.
func New(
	store ports.KVStore,
	clock ports.Clock,
	prices ports.PriceSource,
	funds ports.Funds,
	events ports.EventSink,
	sched ports.Scheduler,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:  store,
		clock:  clock,
		prices: prices,
		funds:  funds,
		events: events,
		sched:  sched,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type guardKey struct{}

// enter takes the engine lock and marks ctx. A ctx already marked by this
// engine means a call is re-entering itself.
func (e *Engine) enter(ctx context.Context) (context.Context, func(), error) {
	if e.guarded(ctx) {
		return nil, nil, domain.ErrReentrantCall
	}
	e.mu.Lock()
	return context.WithValue(ctx, guardKey{}, e), e.mu.Unlock, nil
}

func (e *Engine) guarded(ctx context.Context) bool {
	owner, _ := ctx.Value(guardKey{}).(*Engine)
	return owner == e
}

// mutate runs fn as one call against an initialized market.
func (e *Engine) mutate(ctx context.Context, op string, fn func(t *txn) error) error {
	return e.run(ctx, op, true, fn)
}

func (e *Engine) run(ctx context.Context, op string, needInit bool, fn func(t *txn) error) (err error) {
	start := time.Now()
	defer func() {
		if e.obs != nil {
			e.obs.ObserveCall(op, err, time.Since(start))
		}
	}()

	ctx, release, err := e.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	t := e.begin(ctx, op)
	if needInit {
		if err := t.load(); err != nil {
			return err
		}
	}
	if err := fn(t); err != nil {
		t.rollback()
		slog.Debug("market: call rejected", "op", op, "err", err)
		return err
	}
	if err := t.commit(); err != nil {
		t.rollback()
		slog.Error("market: commit failed", "op", op, "err", err)
		return err
	}
	t.finish()
	return nil
}

// view runs a read-only fn over committed state. Under a marked ctx the
// caller already holds the lock, so it reads directly.
func (e *Engine) view(ctx context.Context, fn func(l *ledger.Ledger) error) error {
	if !e.guarded(ctx) {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	return fn(ledger.New(e.store))
}

// Execute dispatches a scheduled operation. The keeper calls it with the
// market's own address as caller.
func (e *Engine) Execute(ctx context.Context, caller domain.Address, op domain.Operation) error {
	switch op {
	case domain.OpGenesisLock:
		return e.GenesisLock(ctx, caller)
	case domain.OpAdvance:
		return e.Advance(ctx, caller)
	default:
		return fmt.Errorf("market.Execute: unknown operation %q", op)
	}
}

// txn is the state of one call in flight.
type txn struct {
	e   *Engine
	ctx context.Context
	op  string
	now time.Time

	ov *ledger.Overlay
	l  *ledger.Ledger

	cfg    domain.MarketConfig
	st     domain.MarketState
	orig   domain.MarketState // st as loaded, zero for a new market
	loaded bool
	fresh  bool // st has no stored copy yet

	price    uint64
	hasPrice bool

	events     []domain.Event
	registered []string // scheduler handles booked by this call
	retired    []string // handles to cancel once the call commits
	undo       []func() // compensations for fund movements, run in reverse
}

func (e *Engine) begin(ctx context.Context, op string) *txn {
	ov := ledger.NewOverlay(e.store)
	return &txn{
		e:   e,
		ctx: ctx,
		op:  op,
		now: e.clock.Now(),
		ov:  ov,
		l:   ledger.New(ov),
	}
}

func (t *txn) load() error {
	cfg, err := t.l.Config(t.ctx)
	if err != nil {
		return err
	}
	st, err := t.l.State(t.ctx)
	if err != nil {
		return err
	}
	t.cfg, t.st, t.orig, t.loaded = cfg, st, st, true
	return nil
}

// observePrice reads the pool price once per call.
func (t *txn) observePrice() (uint64, error) {
	if t.hasPrice {
		return t.price, nil
	}
	px, err := t.e.prices.Price(t.ctx, t.cfg.PoolID)
	if err != nil {
		return 0, fmt.Errorf("market: price %s: %w", t.cfg.PoolID, err)
	}
	if px == 0 {
		return 0, domain.ErrInvalidPrice.With("pool %s reported zero", t.cfg.PoolID)
	}
	t.price, t.hasPrice = px, true
	return px, nil
}

func (t *txn) emit(name domain.EventName, epoch uint64, kv ...any) {
	t.events = append(t.events, domain.NewEvent(name, epoch, t.now, kv...))
}

func (t *txn) round(epoch uint64) (domain.Round, bool, error) {
	return t.l.Round(t.ctx, epoch)
}

func (t *txn) commit() error {
	if t.loaded && (t.fresh || t.st != t.orig) {
		if err := t.l.PutState(t.ctx, t.st); err != nil {
			return err
		}
	}
	if err := t.ov.Commit(t.ctx); err != nil {
		return fmt.Errorf("market: %s: %w", t.op, err)
	}
	return nil
}

// rollback undoes the side effects a rejected call made outside the ledger.
func (t *txn) rollback() {
	t.ov.Discard()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	for _, id := range t.registered {
		if err := t.e.sched.Cancel(t.ctx, id); err != nil {
			slog.Warn("market: cancel after rollback failed", "call_id", id, "err", err)
		}
	}
	t.events = nil
}

// finish runs the post-commit effects: retiring superseded scheduled calls
// and publishing events.
func (t *txn) finish() {
	for _, id := range t.retired {
		if err := t.e.sched.Cancel(t.ctx, id); err != nil {
			slog.Warn("market: cancel superseded call failed", "call_id", id, "err", err)
		}
	}
	if len(t.events) == 0 || t.e.events == nil {
		return
	}
	if err := t.e.events.Emit(t.ctx, t.events); err != nil {
		slog.Warn("market: emit events failed", "op", t.op, "count", len(t.events), "err", err)
	}
}

// collect takes a payment from the caller; it is returned if the call fails.
func (t *txn) collect(from domain.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := t.e.funds.Collect(t.ctx, from, amount); err != nil {
		return err
	}
	t.undo = append(t.undo, func() {
		if err := t.e.funds.Transfer(t.ctx, from, amount); err != nil {
			slog.Error("market: refund failed", "user", from, "amount", amount, "err", err)
		}
	})
	return nil
}

// pay sends amount to the recipient after checking the market can cover it.
// It is taken back if the call fails.
func (t *txn) pay(to domain.Address, amount uint64) error {
	bal, err := t.e.funds.Balance(t.ctx)
	if err != nil {
		return fmt.Errorf("market: balance: %w", err)
	}
	if bal < amount {
		return domain.ErrInsufficientBalance.With("balance %d < %d", bal, amount)
	}
	if err := t.e.funds.Transfer(t.ctx, to, amount); err != nil {
		return err
	}
	t.undo = append(t.undo, func() {
		if err := t.e.funds.Collect(t.ctx, to, amount); err != nil {
			slog.Error("market: reclaim failed", "user", to, "amount", amount, "err", err)
		}
	})
	return nil
}
