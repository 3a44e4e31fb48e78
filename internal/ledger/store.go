// Package ledger gives typed access to market records held in a KVStore.
package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
)

const (
	configKey        = "cfg"
	stateKey         = "st"
	roundPrefix      = "tr_"
	wagerPrefix      = "bet_"
	userRoundsPrefix = "ur_"
)

// RoundKey is the store key of a round.
func RoundKey(epoch uint64) string {
	return roundPrefix + strconv.FormatUint(epoch, 10)
}

// WagerKey is the store key of a user's wager in an epoch.
func WagerKey(epoch uint64, user domain.Address) string {
	return wagerPrefix + strconv.FormatUint(epoch, 10) + "_" + string(user)
}

// UserRoundsKey is the store key of a user's round history.
func UserRoundsKey(user domain.Address) string {
	return userRoundsPrefix + string(user)
}

// Ledger reads and writes typed market records.
type Ledger struct {
	kv ports.KVStore
}

// New wraps kv. Pass an *Overlay to stage the writes of one call.
func New(kv ports.KVStore) *Ledger {
	return &Ledger{kv: kv}
}

// Config returns the market configuration, or ErrNotInitialized.
func (l *Ledger) Config(ctx context.Context) (domain.MarketConfig, error) {
	data, ok, err := l.kv.Get(ctx, configKey)
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("ledger.Config: %w", err)
	}
	if !ok {
		return domain.MarketConfig{}, domain.ErrNotInitialized
	}
	return DecodeConfig(data)
}

// Initialized reports whether a configuration has been written.
func (l *Ledger) Initialized(ctx context.Context) (bool, error) {
	ok, err := l.kv.Has(ctx, configKey)
	if err != nil {
		return false, fmt.Errorf("ledger.Initialized: %w", err)
	}
	return ok, nil
}

func (l *Ledger) PutConfig(ctx context.Context, c domain.MarketConfig) error {
	if err := l.kv.Set(ctx, configKey, EncodeConfig(c)); err != nil {
		return fmt.Errorf("ledger.PutConfig: %w", err)
	}
	return nil
}

// State returns the market state, or ErrNotInitialized.
func (l *Ledger) State(ctx context.Context) (domain.MarketState, error) {
	data, ok, err := l.kv.Get(ctx, stateKey)
	if err != nil {
		return domain.MarketState{}, fmt.Errorf("ledger.State: %w", err)
	}
	if !ok {
		return domain.MarketState{}, domain.ErrNotInitialized
	}
	return DecodeState(data)
}

func (l *Ledger) PutState(ctx context.Context, s domain.MarketState) error {
	if err := l.kv.Set(ctx, stateKey, EncodeState(s)); err != nil {
		return fmt.Errorf("ledger.PutState: %w", err)
	}
	return nil
}

// Round returns the round of epoch; ok is false if it was never created.
func (l *Ledger) Round(ctx context.Context, epoch uint64) (domain.Round, bool, error) {
	data, ok, err := l.kv.Get(ctx, RoundKey(epoch))
	if err != nil {
		return domain.Round{}, false, fmt.Errorf("ledger.Round %d: %w", epoch, err)
	}
	if !ok {
		return domain.Round{}, false, nil
	}
	r, err := DecodeRound(data)
	if err != nil {
		return domain.Round{}, false, fmt.Errorf("ledger.Round %d: %w", epoch, err)
	}
	return r, true, nil
}

func (l *Ledger) PutRound(ctx context.Context, r domain.Round) error {
	if err := l.kv.Set(ctx, RoundKey(r.Epoch), EncodeRound(r)); err != nil {
		return fmt.Errorf("ledger.PutRound %d: %w", r.Epoch, err)
	}
	return nil
}

// Wager returns a user's wager in epoch; ok is false if none was placed.
func (l *Ledger) Wager(ctx context.Context, epoch uint64, user domain.Address) (domain.Wager, bool, error) {
	data, ok, err := l.kv.Get(ctx, WagerKey(epoch, user))
	if err != nil {
		return domain.Wager{}, false, fmt.Errorf("ledger.Wager: %w", err)
	}
	if !ok {
		return domain.Wager{}, false, nil
	}
	w, err := DecodeWager(data)
	if err != nil {
		return domain.Wager{}, false, fmt.Errorf("ledger.Wager: %w", err)
	}
	return w, true, nil
}

func (l *Ledger) HasWager(ctx context.Context, epoch uint64, user domain.Address) (bool, error) {
	ok, err := l.kv.Has(ctx, WagerKey(epoch, user))
	if err != nil {
		return false, fmt.Errorf("ledger.HasWager: %w", err)
	}
	return ok, nil
}

func (l *Ledger) PutWager(ctx context.Context, w domain.Wager) error {
	if err := l.kv.Set(ctx, WagerKey(w.Epoch, w.User), EncodeWager(w)); err != nil {
		return fmt.Errorf("ledger.PutWager: %w", err)
	}
	return nil
}

// UserRounds returns every epoch the user bet on, oldest first.
func (l *Ledger) UserRounds(ctx context.Context, user domain.Address) ([]uint64, error) {
	data, ok, err := l.kv.Get(ctx, UserRoundsKey(user))
	if err != nil {
		return nil, fmt.Errorf("ledger.UserRounds: %w", err)
	}
	if !ok {
		return nil, nil
	}
	epochs, err := DecodeEpochs(data)
	if err != nil {
		return nil, fmt.Errorf("ledger.UserRounds: %w", err)
	}
	return epochs, nil
}

// AppendUserRound adds epoch to the user's history.
func (l *Ledger) AppendUserRound(ctx context.Context, user domain.Address, epoch uint64) error {
	epochs, err := l.UserRounds(ctx, user)
	if err != nil {
		return err
	}
	epochs = append(epochs, epoch)
	if err := l.kv.Set(ctx, UserRoundsKey(user), EncodeEpochs(epochs)); err != nil {
		return fmt.Errorf("ledger.AppendUserRound: %w", err)
	}
	return nil
}

// RecentRounds returns up to n rounds ending at epoch, newest first.
func (l *Ledger) RecentRounds(ctx context.Context, epoch uint64, n int) ([]domain.Round, error) {
	out := make([]domain.Round, 0, n)
	for e := epoch; e > 0 && len(out) < n; e-- {
		r, ok, err := l.Round(ctx, e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
