package ports

import (
	"context"

	"github.com/alejandrodnm/predictbot/internal/domain"
)

// Notifier presenta el estado del mercado al operador.
type Notifier interface {
	// NotifyRounds muestra los rounds recientes del snapshot.
	// En la implementación de consola, imprime una tabla formateada.
	NotifyRounds(ctx context.Context, snap domain.MarketSnapshot) error
}
