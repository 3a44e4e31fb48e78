package ports

import (
	"context"

	"github.com/alejandrodnm/predictbot/internal/domain"
)

// EventSink receives the events of a committed market call, in order.
type EventSink interface {
	Emit(ctx context.Context, events []domain.Event) error
}
