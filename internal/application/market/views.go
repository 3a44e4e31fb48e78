package market

import (
	"context"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ledger"
)

// UserRoundsPage is one page of a user's betting history.
type UserRoundsPage struct {
	Epochs []uint64
	Wagers []domain.Wager
	Next   int // cursor for the following page
	Total  int
}

// Config returns the market configuration.
func (e *Engine) Config(ctx context.Context) (domain.MarketConfig, error) {
	var cfg domain.MarketConfig
	err := e.view(ctx, func(l *ledger.Ledger) (err error) {
		cfg, err = l.Config(ctx)
		return err
	})
	return cfg, err
}

// State returns the market state.
func (e *Engine) State(ctx context.Context) (domain.MarketState, error) {
	var st domain.MarketState
	err := e.view(ctx, func(l *ledger.Ledger) (err error) {
		st, err = l.State(ctx)
		return err
	})
	return st, err
}

// Round returns the round of epoch; ok is false if it was never opened.
func (e *Engine) Round(ctx context.Context, epoch uint64) (r domain.Round, ok bool, err error) {
	err = e.view(ctx, func(l *ledger.Ledger) (err error) {
		r, ok, err = l.Round(ctx, epoch)
		return err
	})
	return r, ok, err
}

// Wager returns user's wager in epoch; ok is false if there is none.
func (e *Engine) Wager(ctx context.Context, epoch uint64, user domain.Address) (w domain.Wager, ok bool, err error) {
	err = e.view(ctx, func(l *ledger.Ledger) (err error) {
		w, ok, err = l.Wager(ctx, epoch, normalize(user))
		return err
	})
	return w, ok, err
}

// UserRounds pages through the epochs user bet on, oldest first,
// starting at cursor.
func (e *Engine) UserRounds(ctx context.Context, user domain.Address, cursor, size int) (UserRoundsPage, error) {
	var page UserRoundsPage
	user = normalize(user)
	err := e.view(ctx, func(l *ledger.Ledger) error {
		epochs, err := l.UserRounds(ctx, user)
		if err != nil {
			return err
		}
		page.Total = len(epochs)
		if cursor < 0 {
			cursor = 0
		}
		if cursor >= len(epochs) || size <= 0 {
			page.Next = min(max(cursor, 0), len(epochs))
			return nil
		}
		end := min(cursor+size, len(epochs))
		page.Epochs = epochs[cursor:end]
		page.Wagers = make([]domain.Wager, 0, len(page.Epochs))
		for _, epoch := range page.Epochs {
			w, _, err := l.Wager(ctx, epoch, user)
			if err != nil {
				return err
			}
			page.Wagers = append(page.Wagers, w)
		}
		page.Next = end
		return nil
	})
	return page, err
}

// Snapshot gathers configuration, state, the n most recent rounds and the
// market balance.
func (e *Engine) Snapshot(ctx context.Context, n int) (domain.MarketSnapshot, error) {
	var snap domain.MarketSnapshot
	err := e.view(ctx, func(l *ledger.Ledger) error {
		cfg, err := l.Config(ctx)
		if err != nil {
			return err
		}
		st, err := l.State(ctx)
		if err != nil {
			return err
		}
		rounds, err := l.RecentRounds(ctx, st.CurrentEpoch, n)
		if err != nil {
			return err
		}
		var bal uint64
		if e.funds != nil {
			if bal, err = e.funds.Balance(ctx); err != nil {
				return err
			}
		}
		snap = domain.MarketSnapshot{
			Config:  cfg,
			State:   st,
			Rounds:  rounds,
			Balance: bal,
			TakenAt: e.clock.Now(),
		}
		return nil
	})
	return snap, err
}

// Now is the engine's clock reading.
func (e *Engine) Now() time.Time { return e.clock.Now() }

func normalize(a domain.Address) domain.Address {
	if n, err := domain.ParseAddress(string(a)); err == nil {
		return n
	}
	return a
}
