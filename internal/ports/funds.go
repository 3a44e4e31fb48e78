package ports

import (
	"context"

	"github.com/alejandrodnm/predictbot/internal/domain"
)

// Funds moves native currency in and out of the market's balance.
type Funds interface {
	// Balance returns the market's liquid balance.
	Balance(ctx context.Context) (uint64, error)

	// Collect debits amount from the caller and credits the market. It is the
	// payment attached to a bet.
	Collect(ctx context.Context, from domain.Address, amount uint64) error

	// Transfer debits the market and credits to.
	Transfer(ctx context.Context, to domain.Address, amount uint64) error
}
