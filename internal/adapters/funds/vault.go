// Package funds holds the market's native-currency balance and the wallets
// that pay into it.
package funds

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/predictbot/internal/adapters/storage"
	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	marketKey    = "fund_market"
	walletPrefix = "fund_w_"
)

// Vault tracks wallet balances and the market's own balance in a KVStore,
// next to the ledger. It implements ports.Funds.
//
// Moves between a wallet and the market are written as one batch when the
// store supports it. The mutex serializes moves within one process only.
type Vault struct {
	mu sync.Mutex
	kv ports.KVStore
}

var _ ports.Funds = (*Vault)(nil)

// NewVault returns a vault over kv. Balances already in kv are kept.
func NewVault(kv ports.KVStore) *Vault {
	return &Vault{kv: kv}
}

// NewMemoryVault returns an empty vault that lives only in process.
func NewMemoryVault() *Vault {
	return NewVault(storage.NewMemoryStorage())
}

func walletKey(addr domain.Address) string { return walletPrefix + string(addr) }

// Deposit credits a wallet from outside the market.
func (v *Vault) Deposit(ctx context.Context, addr domain.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	bal, err := v.read(ctx, walletKey(addr))
	if err != nil {
		return fmt.Errorf("funds.Deposit: %w", err)
	}
	if bal, err = domain.AddAmount(bal, amount); err != nil {
		return fmt.Errorf("funds.Deposit: %w", err)
	}
	return v.write(ctx, balance{walletKey(addr), bal})
}

// Fund credits the market balance directly, e.g. a seeded reserve.
func (v *Vault) Fund(ctx context.Context, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	bal, err := v.read(ctx, marketKey)
	if err != nil {
		return fmt.Errorf("funds.Fund: %w", err)
	}
	if bal, err = domain.AddAmount(bal, amount); err != nil {
		return fmt.Errorf("funds.Fund: %w", err)
	}
	return v.write(ctx, balance{marketKey, bal})
}

// WalletBalance returns a wallet's balance.
func (v *Vault) WalletBalance(ctx context.Context, addr domain.Address) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.read(ctx, walletKey(addr))
}

func (v *Vault) Balance(ctx context.Context) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.read(ctx, marketKey)
}

func (v *Vault) Collect(ctx context.Context, from domain.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	have, market, err := v.pair(ctx, from)
	if err != nil {
		return fmt.Errorf("funds.Collect: %w", err)
	}
	if have < amount {
		return domain.ErrInsufficientFunds.With("%s has %d, needs %d", from, have, amount)
	}
	if market, err = domain.AddAmount(market, amount); err != nil {
		return fmt.Errorf("funds.Collect: %w", err)
	}
	return v.write(ctx, balance{walletKey(from), have - amount}, balance{marketKey, market})
}

func (v *Vault) Transfer(ctx context.Context, to domain.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	have, market, err := v.pair(ctx, to)
	if err != nil {
		return fmt.Errorf("funds.Transfer: %w", err)
	}
	if market < amount {
		return domain.ErrInsufficientBalance.With("market has %d, needs %d", market, amount)
	}
	if have, err = domain.AddAmount(have, amount); err != nil {
		return fmt.Errorf("funds.Transfer: %w", err)
	}
	return v.write(ctx, balance{walletKey(to), have}, balance{marketKey, market - amount})
}

type balance struct {
	key    string
	amount uint64
}

func (v *Vault) pair(ctx context.Context, addr domain.Address) (wallet, market uint64, err error) {
	if wallet, err = v.read(ctx, walletKey(addr)); err != nil {
		return 0, 0, err
	}
	if market, err = v.read(ctx, marketKey); err != nil {
		return 0, 0, err
	}
	return wallet, market, nil
}

func (v *Vault) read(ctx context.Context, key string) (uint64, error) {
	data, ok, err := v.kv.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	amount, n := protowire.ConsumeVarint(data)
	if n < 0 || n != len(data) {
		return 0, domain.ErrCorruptRecord.With("balance %s", key)
	}
	return amount, nil
}

func (v *Vault) write(ctx context.Context, bals ...balance) error {
	muts := make([]ports.Mutation, 0, len(bals))
	for _, b := range bals {
		muts = append(muts, ports.Mutation{Key: b.key, Value: protowire.AppendVarint(nil, b.amount)})
	}
	if bw, ok := v.kv.(ports.BatchWriter); ok {
		if err := bw.WriteBatch(ctx, muts); err != nil {
			return fmt.Errorf("funds: write batch: %w", err)
		}
		return nil
	}
	for _, m := range muts {
		if err := v.kv.Set(ctx, m.Key, m.Value); err != nil {
			return fmt.Errorf("funds: write %s: %w", m.Key, err)
		}
	}
	return nil
}
