package market

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/predictbot/internal/domain"
)

// Initialize creates the market. The caller becomes its owner.
func (e *Engine) Initialize(ctx context.Context, caller domain.Address, cfg domain.MarketConfig) error {
	return e.run(ctx, "initialize", false, func(t *txn) error {
		done, err := t.l.Initialized(t.ctx)
		if err != nil {
			return err
		}
		if done {
			return domain.ErrAlreadyInitialized
		}
		owner, err := domain.ParseAddress(string(caller))
		if err != nil || owner.IsZero() {
			return domain.ErrInvalidOwnerAddress.With("%q", caller)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		cfg.Self = domain.MustAddress(string(cfg.Self))

		if err := t.l.PutConfig(t.ctx, cfg); err != nil {
			return err
		}
		t.cfg = cfg
		t.st = domain.MarketState{Owner: owner, AutomationEnabled: true}
		t.loaded, t.fresh = true, true

		slog.Info("market: initialized",
			"owner", owner,
			"pool", cfg.PoolID,
			"fee_bps", cfg.FeeBps,
			"interval", cfg.Interval,
			"buffer", cfg.Buffer,
		)
		return nil
	})
}

// TransferOwnership nominates a new owner, who must accept.
func (e *Engine) TransferOwnership(ctx context.Context, caller, newOwner domain.Address) error {
	return e.mutate(ctx, "transfer_ownership", func(t *txn) error {
		if err := t.onlyOwner(caller); err != nil {
			return err
		}
		next, err := domain.ParseAddress(string(newOwner))
		if err != nil || next.IsZero() {
			return domain.ErrInvalidOwnerAddress.With("%q", newOwner)
		}
		t.st.PendingOwner = next
		t.emit(domain.EventOwnershipTransferStarted, t.st.CurrentEpoch,
			"previous_owner", t.st.Owner, "new_owner", next)
		return nil
	})
}

// AcceptOwnership completes a transfer started by the owner.
func (e *Engine) AcceptOwnership(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "accept_ownership", func(t *txn) error {
		if t.st.PendingOwner == "" || !caller.Equal(t.st.PendingOwner) {
			return domain.ErrNotPendingOwner
		}
		prev := t.st.Owner
		t.st.Owner = t.st.PendingOwner
		t.st.PendingOwner = ""
		t.emit(domain.EventOwnershipTransferAccepted, t.st.CurrentEpoch,
			"previous_owner", prev, "new_owner", t.st.Owner)
		return nil
	})
}

// Pause stops betting and round progression and drops the pending
// scheduled call. Claims stay open.
func (e *Engine) Pause(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "pause", func(t *txn) error {
		if err := t.onlyOwner(caller); err != nil {
			return err
		}
		if t.st.Paused {
			return domain.ErrMarketPaused
		}
		t.st.Paused = true
		if err := t.retireCall(); err != nil {
			return err
		}
		t.emit(domain.EventMarketPaused, t.st.CurrentEpoch)
		return nil
	})
}

// Unpause reopens the market. The genesis flags are cleared, so rounds are
// bootstrapped again with GenesisStart and GenesisLock.
func (e *Engine) Unpause(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "unpause", func(t *txn) error {
		if err := t.onlyOwner(caller); err != nil {
			return err
		}
		if !t.st.Paused {
			return domain.ErrMarketNotPaused
		}
		t.st.Paused = false
		t.st.GenesisStarted = false
		t.st.GenesisLocked = false
		t.emit(domain.EventMarketUnpaused, t.st.CurrentEpoch)
		return nil
	})
}

func (t *txn) onlyOwner(caller domain.Address) error {
	if !caller.Equal(t.st.Owner) {
		return domain.ErrNotOwner
	}
	return nil
}

func (t *txn) ownerOrSelf(caller domain.Address) error {
	if caller.Equal(t.st.Owner) || caller.Equal(t.cfg.Self) {
		return nil
	}
	return domain.ErrNotOwner.With("caller is neither owner nor market")
}

func (t *txn) notPaused() error {
	if t.st.Paused {
		return domain.ErrMarketPaused
	}
	return nil
}
