package storage

// cache.go: History Store.
//
// Decorador de un ports.Ledger que mantiene en memoria las tablas verified e
// historical. Se carga al abrir y se actualiza tras cada commit con éxito.
// Los lectores reciben snapshots con cap == len: un append del writer nunca
// pisa el slice que tiene un lector.
//
// Si un commit falla, la caché se recarga del ledger: el blob ledger puede haber
// escrito parte de las tablas y su MaxPeriodID ya cuenta ese id.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Cache implementa ports.Ledger sirviendo las lecturas desde memoria.
type Cache struct {
	ledger ports.Ledger

	mu       sync.RWMutex
	verified []domain.VerifiedSignal
	history  []domain.HistoricalRecord
	seen     map[int64]bool // period_id en verified
	histSeen map[int64]bool // period_id en history
	maxID    int64
}

// NewCache envuelve ledger y carga su contenido actual.
func NewCache(ctx context.Context, ledger ports.Ledger) (*Cache, error) {
	c := &Cache{ledger: ledger}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload vuelve a leer las tablas completas del ledger subyacente.
func (c *Cache) Reload(ctx context.Context) error {
	verified, err := c.ledger.VerifiedSignals(ctx)
	if err != nil {
		return fmt.Errorf("storage.Reload: verified: %w", err)
	}
	history, err := c.ledger.History(ctx)
	if err != nil {
		return fmt.Errorf("storage.Reload: history: %w", err)
	}
	maxID, err := c.ledger.MaxPeriodID(ctx)
	if err != nil {
		return fmt.Errorf("storage.Reload: max period: %w", err)
	}

	seen := make(map[int64]bool, len(verified))
	for _, v := range verified {
		seen[v.PeriodID] = true
		maxID = max(maxID, v.PeriodID)
	}
	histSeen := make(map[int64]bool, len(history))
	for _, h := range history {
		if h.PeriodID != 0 {
			histSeen[h.PeriodID] = true
		}
	}

	c.mu.Lock()
	c.verified = verified
	c.history = history
	c.seen = seen
	c.histSeen = histSeen
	c.maxID = maxID
	c.mu.Unlock()
	return nil
}

// Commit persiste en el ledger y, si tuvo éxito, añade la señal a la caché.
// Si falla, vuelve a leer el ledger para no repartir un id escrito a medias.
func (c *Cache) Commit(ctx context.Context, v domain.VerifiedSignal) error {
	if err := c.ledger.Commit(ctx, v); err != nil {
		c.resync(ctx, v.PeriodID)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seen[v.PeriodID] {
		c.seen[v.PeriodID] = true
		c.verified = append(c.verified, v)
	}
	if !c.histSeen[v.PeriodID] {
		c.histSeen[v.PeriodID] = true
		c.history = append(c.history, v.HistoricalRecord())
	}
	c.maxID = max(c.maxID, v.PeriodID)
	return nil
}

// resync recarga tras un commit fallido. Si tampoco se puede leer el ledger,
// reserva el id: un hueco en la secuencia es preferible a un id repetido.
func (c *Cache) resync(ctx context.Context, periodID int64) {
	err := c.Reload(context.WithoutCancel(ctx))
	if err == nil {
		return
	}
	slog.Warn("cache resync failed, reserving period id", "period_id", periodID, "err", err)
	c.mu.Lock()
	c.maxID = max(c.maxID, periodID)
	c.mu.Unlock()
}

// VerifiedSignals devuelve un snapshot de la tabla verified_signals.
func (c *Cache) VerifiedSignals(_ context.Context) ([]domain.VerifiedSignal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.verified)
	return c.verified[:n:n], nil
}

// History devuelve un snapshot del ledger de resultados.
func (c *Cache) History(_ context.Context) ([]domain.HistoricalRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.history)
	return c.history[:n:n], nil
}

// MaxPeriodID devuelve el mayor period_id conocido.
func (c *Cache) MaxPeriodID(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxID, nil
}

// Periods no se cachea: sólo lo usan report y los tests.
func (c *Cache) Periods(ctx context.Context) ([]domain.PeriodRecord, error) {
	return c.ledger.Periods(ctx)
}

// Len devuelve cuántas señales verificadas hay en memoria.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.verified)
}

// Close cierra el ledger subyacente.
func (c *Cache) Close() error {
	return c.ledger.Close()
}
