package market

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/predictbot/internal/domain"
)

// GenesisStart opens the first round and books the genesis lock.
func (e *Engine) GenesisStart(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "genesis_start", func(t *txn) error {
		if err := t.onlyOwner(caller); err != nil {
			return err
		}
		if err := t.notPaused(); err != nil {
			return err
		}
		if t.st.GenesisStarted {
			return domain.ErrGenesisAlreadyStarted
		}

		t.st.CurrentEpoch++
		if err := t.startRound(t.st.CurrentEpoch); err != nil {
			return err
		}
		t.st.GenesisStarted = true
		t.scheduleNext(domain.OpGenesisLock)

		slog.Info("market: genesis started", "epoch", t.st.CurrentEpoch)
		return nil
	})
}

// GenesisLock locks the genesis round and opens the next one.
func (e *Engine) GenesisLock(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "genesis_lock", func(t *txn) error {
		if err := t.ownerOrSelf(caller); err != nil {
			return err
		}
		if err := t.notPaused(); err != nil {
			return err
		}
		if !t.st.GenesisStarted {
			return domain.ErrGenesisNotStarted
		}
		if t.st.GenesisLocked {
			return domain.ErrGenesisAlreadyLocked
		}

		price, err := t.observePrice()
		if err != nil {
			return err
		}
		if err := t.lockRound(t.st.CurrentEpoch, price); err != nil {
			return err
		}
		t.st.CurrentEpoch++
		if err := t.startRound(t.st.CurrentEpoch); err != nil {
			return err
		}
		t.st.GenesisLocked = true
		t.scheduleNext(domain.OpAdvance)

		slog.Info("market: genesis locked", "epoch", t.st.CurrentEpoch, "price", price)
		return nil
	})
}

// Advance locks the current round, closes and settles the previous one, and
// opens the next. It moves the epoch by exactly one.
func (e *Engine) Advance(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "advance", func(t *txn) error {
		if err := t.ownerOrSelf(caller); err != nil {
			return err
		}
		if err := t.notPaused(); err != nil {
			return err
		}
		if !t.st.GenesisDone() {
			return domain.ErrGenesisNotReady
		}

		price, err := t.observePrice()
		if err != nil {
			return err
		}
		n := t.st.CurrentEpoch
		if err := t.lockRound(n, price); err != nil {
			return err
		}
		if err := t.closeRound(n-1, price); err != nil {
			return err
		}
		if err := t.settleRound(n - 1); err != nil {
			return err
		}
		t.st.CurrentEpoch = n + 1
		if err := t.safeStartRound(n + 1); err != nil {
			return err
		}
		t.scheduleNext(domain.OpAdvance)

		slog.Info("market: advanced round", "epoch", n+1, "price", price)
		return nil
	})
}

func (t *txn) startRound(epoch uint64) error {
	r := domain.NewRound(epoch, t.now, t.cfg.Interval)
	if err := t.l.PutRound(t.ctx, r); err != nil {
		return err
	}
	t.emit(domain.EventStartRound, epoch,
		"start", r.StartTime, "lock", r.LockTime, "close", r.CloseTime)
	return nil
}

// safeStartRound opens epoch only once the round two before it has closed.
func (t *txn) safeStartRound(epoch uint64) error {
	prev, ok, err := t.round(epoch - 2)
	if err != nil {
		return err
	}
	if !ok || !prev.Closed() {
		return domain.ErrPreviousRoundNotClosed.With("epoch %d", epoch-2)
	}
	if t.now.Before(prev.CloseTime) {
		return domain.ErrPreviousRoundNotClosed.With("epoch %d closes at %s", epoch-2, prev.CloseTime)
	}
	return t.startRound(epoch)
}

func (t *txn) lockRound(epoch, price uint64) error {
	r, ok, err := t.round(epoch)
	if err != nil {
		return err
	}
	if !ok || !r.Started() {
		return domain.ErrLockBeforeStart.With("epoch %d", epoch)
	}
	if r.Locked() {
		return domain.ErrRoundAlreadyLocked.With("epoch %d", epoch)
	}
	if t.now.Before(r.LockTime) {
		return domain.ErrLockTooEarly.With("epoch %d locks at %s", epoch, r.LockTime)
	}
	if t.now.After(r.LockTime.Add(t.cfg.Buffer)) {
		return domain.ErrLockOutsideBuffer.With("epoch %d lock window ended at %s", epoch, r.LockTime.Add(t.cfg.Buffer))
	}

	r.LockPrice = price
	r.CloseTime = t.now.Add(t.cfg.Interval)
	if err := t.l.PutRound(t.ctx, r); err != nil {
		return err
	}
	t.emit(domain.EventLockRound, epoch, "price", price, "close", r.CloseTime)
	return nil
}

func (t *txn) closeRound(epoch, price uint64) error {
	r, ok, err := t.round(epoch)
	if err != nil {
		return err
	}
	if !ok || !r.Locked() {
		return domain.ErrCloseBeforeLock.With("epoch %d", epoch)
	}
	if r.Closed() {
		return domain.ErrRoundAlreadyClosed.With("epoch %d", epoch)
	}
	if t.now.Before(r.CloseTime) {
		return domain.ErrCloseTooEarly.With("epoch %d closes at %s", epoch, r.CloseTime)
	}
	if t.now.After(r.CloseTime.Add(t.cfg.Buffer)) {
		return domain.ErrCloseOutsideBuffer.With("epoch %d close window ended at %s", epoch, r.CloseTime.Add(t.cfg.Buffer))
	}

	r.ClosePrice = price
	if err := t.l.PutRound(t.ctx, r); err != nil {
		return err
	}
	t.emit(domain.EventEndRound, epoch, "price", price, "outcome", r.Outcome())
	return nil
}

// settleRound computes the payout split of a closed round and credits the
// treasury with its cut.
func (t *txn) settleRound(epoch uint64) error {
	r, _, err := t.round(epoch)
	if err != nil {
		return err
	}
	out, err := domain.CalculateRewards(r, t.cfg.FeeBps)
	if err != nil {
		return err
	}
	treasury, err := domain.AddAmount(t.st.Treasury, out.TreasuryCut)
	if err != nil {
		return err
	}
	if err := t.l.PutRound(t.ctx, out.Apply(r)); err != nil {
		return err
	}
	t.st.Treasury = treasury
	t.emit(domain.EventRewardsCalculated, epoch,
		"payout_base", out.PayoutBase,
		"payout_pool", out.PayoutPool,
		"treasury_cut", out.TreasuryCut,
		"outcome", out.Outcome,
	)
	return nil
}
