package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// ErrSourceExhausted indica que una source finita (replay) ya no tiene mensajes.
var ErrSourceExhausted = errors.New("message source exhausted")

// MessageSource entrega mensajes crudos de chat en orden de llegada.
type MessageSource interface {
	// Name identifica la source en logs y métricas.
	Name() string

	// Poll bloquea hasta que haya mensajes nuevos, expire el long-poll o se cancele ctx.
	// Una lista vacía sin error es válida.
	Poll(ctx context.Context) ([]domain.Message, error)
}
