package ports

import (
	"context"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Notifier presenta el snapshot del dashboard al usuario.
type Notifier interface {
	// Notify dibuja el dashboard. En la implementación de consola imprime tablas.
	Notify(ctx context.Context, dashboard domain.Dashboard) error
}

// Publisher empuja cada señal recién persistida a los suscriptores (websocket, alertas).
type Publisher interface {
	Publish(ctx context.Context, signal domain.VerifiedSignal)
}
