package ingest

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/signalbot/internal/ports"
)

// PeriodAllocator asigna period_id = max(ledger) + 1.
// No es atómico por sí solo: el llamador debe tener el lock de ingesta.
type PeriodAllocator struct {
	periods ports.PeriodReader
}

// NewPeriodAllocator crea el allocator sobre el ledger de periodos.
func NewPeriodAllocator(periods ports.PeriodReader) *PeriodAllocator {
	return &PeriodAllocator{periods: periods}
}

// NextID devuelve el siguiente period_id; 1 si el ledger está vacío.
func (a *PeriodAllocator) NextID(ctx context.Context) (int64, error) {
	maxID, err := a.periods.MaxPeriodID(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest.NextID: %w", err)
	}
	return maxID + 1, nil
}
