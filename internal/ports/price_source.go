package ports

import "context"

// PriceSource returns the current spot price of a pool as a positive integer.
type PriceSource interface {
	Price(ctx context.Context, poolID string) (uint64, error)
}
