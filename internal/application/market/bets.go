package market

import (
	"context"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ledger"
)

// PlaceBet records the caller's single wager on epoch. paid is the payment
// attached to the bet and must cover stake; it is collected in full.
func (e *Engine) PlaceBet(
	ctx context.Context,
	caller domain.Address,
	epoch uint64,
	dir domain.Direction,
	stake, paid uint64,
) error {
	return e.mutate(ctx, "place_bet", func(t *txn) error {
		user, err := domain.ParseAddress(string(caller))
		if err != nil {
			return err
		}
		if !dir.Valid() {
			return domain.ErrInvalidDirection.With("%d", dir)
		}
		if err := t.notPaused(); err != nil {
			return err
		}
		if epoch != t.st.CurrentEpoch {
			return domain.ErrBetTooEarlyOrLate.With("epoch %d, current %d", epoch, t.st.CurrentEpoch)
		}
		r, _, err := t.round(epoch)
		if err != nil {
			return err
		}
		if !r.Biddable(t.now) {
			return domain.ErrRoundNotBiddable.With("epoch %d", epoch)
		}
		if stake < t.cfg.MinStake {
			return domain.ErrStakeBelowMinimum.With("%d < %d", stake, t.cfg.MinStake)
		}
		if paid < stake {
			return domain.ErrPaymentBelowStake.With("%d < %d", paid, stake)
		}
		exists, err := t.l.HasWager(t.ctx, epoch, user)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyBet.With("epoch %d", epoch)
		}

		if r.TotalStake, err = domain.AddAmount(r.TotalStake, stake); err != nil {
			return err
		}
		name := domain.EventBetDown
		if dir == domain.DirectionUp {
			name = domain.EventBetUp
			r.UpStake, err = domain.AddAmount(r.UpStake, stake)
		} else {
			r.DownStake, err = domain.AddAmount(r.DownStake, stake)
		}
		if err != nil {
			return err
		}

		if err := t.l.PutRound(t.ctx, r); err != nil {
			return err
		}
		w := domain.Wager{Epoch: epoch, User: user, Direction: dir, Stake: stake}
		if err := t.l.PutWager(t.ctx, w); err != nil {
			return err
		}
		if err := t.l.AppendUserRound(t.ctx, user, epoch); err != nil {
			return err
		}
		if err := t.collect(user, paid); err != nil {
			return err
		}
		t.emit(name, epoch, "user", user, "amount", stake)
		return nil
	})
}

// IsBiddable reports whether epoch is accepting bets now.
func (e *Engine) IsBiddable(ctx context.Context, epoch uint64) (bool, error) {
	var ok bool
	err := e.view(ctx, func(l *ledger.Ledger) error {
		r, _, err := l.Round(ctx, epoch)
		if err != nil {
			return err
		}
		ok = r.Biddable(e.clock.Now())
		return nil
	})
	return ok, err
}
