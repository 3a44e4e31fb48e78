package market

import (
	"context"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ledger"
)

// Claim pays the caller's winnings for epochs in a single transfer and
// returns the amount paid. Either every epoch is claimed or none is.
func (e *Engine) Claim(ctx context.Context, caller domain.Address, epochs []uint64) (uint64, error) {
	if len(epochs) == 0 {
		return 0, domain.ErrEmptyEpochList
	}
	var total uint64
	err := e.mutate(ctx, "claim", func(t *txn) error {
		user, err := domain.ParseAddress(string(caller))
		if err != nil {
			return err
		}
		total = 0
		for _, epoch := range epochs {
			r, ok, err := t.round(epoch)
			if err != nil {
				return err
			}
			if !ok || !r.Started() {
				return domain.ErrRoundNotStarted.With("epoch %d", epoch)
			}
			if !t.now.After(r.CloseTime) || !r.Settled {
				return domain.ErrRoundNotEnded.With("epoch %d", epoch)
			}
			w, ok, err := t.l.Wager(t.ctx, epoch, user)
			if err != nil {
				return err
			}
			if !claimable(r, w, ok) {
				return domain.ErrNotEligibleForClaim.With("epoch %d", epoch)
			}

			reward, err := domain.Payout(w.Stake, r.PayoutPool, r.PayoutBase)
			if err != nil {
				return err
			}
			w.Claimed = true
			if err := t.l.PutWager(t.ctx, w); err != nil {
				return err
			}
			if total, err = domain.AddAmount(total, reward); err != nil {
				return err
			}
			t.emit(domain.EventClaim, epoch, "user", user, "amount", reward)
		}
		if total > 0 {
			return t.pay(user, total)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// IsClaimable reports whether user has an unclaimed winning wager in epoch.
func (e *Engine) IsClaimable(ctx context.Context, epoch uint64, user domain.Address) (bool, error) {
	var ok bool
	err := e.view(ctx, func(l *ledger.Ledger) error {
		r, found, err := l.Round(ctx, epoch)
		if err != nil || !found {
			return err
		}
		w, has, err := l.Wager(ctx, epoch, normalize(user))
		if err != nil {
			return err
		}
		ok = claimable(r, w, has)
		return nil
	})
	return ok, err
}

// ClaimTreasury sends the accumulated treasury to the owner.
func (e *Engine) ClaimTreasury(ctx context.Context, caller domain.Address) (uint64, error) {
	var amount uint64
	err := e.mutate(ctx, "claim_treasury", func(t *txn) error {
		if err := t.onlyOwner(caller); err != nil {
			return err
		}
		amount = t.st.Treasury
		if amount == 0 {
			return domain.ErrNothingToClaim
		}
		if err := t.pay(t.st.Owner, amount); err != nil {
			return err
		}
		t.st.Treasury = 0
		t.emit(domain.EventTreasuryClaimed, t.st.CurrentEpoch, "to", t.st.Owner, "amount", amount)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// claimable is the eligibility rule shared by Claim and IsClaimable. A push
// has no winning side, so nobody is eligible.
func claimable(r domain.Round, w domain.Wager, exists bool) bool {
	return exists &&
		!w.Claimed &&
		w.Stake > 0 &&
		r.Settled &&
		r.Wins(w.Direction)
}
