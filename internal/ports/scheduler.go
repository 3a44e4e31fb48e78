package ports

import (
	"context"

	"github.com/alejandrodnm/predictbot/internal/domain"
)

// Scheduler is the deferred call facility used for automation.
// Slots are the host's native time granularity.
type Scheduler interface {
	// CurrentSlot returns the slot containing the current instant.
	CurrentSlot(ctx context.Context) (uint64, error)

	// FindSlot returns the cheapest slot in [from, to] that can fit maxGas.
	FindSlot(ctx context.Context, from, to, maxGas uint64, paramsSize int) (uint64, error)

	// Quote returns the fee for booking maxGas at slot.
	Quote(ctx context.Context, slot, maxGas uint64, paramsSize int) (uint64, error)

	// Register books call and returns its handle.
	Register(ctx context.Context, call domain.ScheduledCall) (string, error)

	// Exists reports whether id still resolves to a pending registration.
	Exists(ctx context.Context, id string) (bool, error)

	// Cancel removes a pending registration. Unknown ids are a no-op.
	Cancel(ctx context.Context, id string) error
}
