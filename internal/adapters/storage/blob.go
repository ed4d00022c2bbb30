package storage

// blob.go: ledger sobre object storage (R2/S3-like, Redis, disco).
//
// Mantiene el contrato de tablas completas: read_table(name) → filas,
// write_table(name, filas) con sobreescritura total. Tres blobs CSV independientes,
// sin transacción entre ellos. Para tolerar fallos parciales:
//   - Orden de escritura fijo: verified → historical → periods.
//   - Cada append es idempotente por period_id (si ya está, no se reescribe).
//   - MaxPeriodID toma el máximo de periods Y verified: si la escritura de periods
//     falló, el siguiente id no se repite.
//   - Repair reconstruye desde verified las filas que falten en las otras dos tablas.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// BlobLedger implementa ports.Ledger con una tabla CSV por blob.
type BlobLedger struct {
	store  ports.BlobStore
	prefix string

	mu sync.Mutex // serializa read-modify-write dentro del proceso
}

// NewBlobLedger crea un ledger que guarda las tablas como "<prefix><tabla>.csv".
func NewBlobLedger(store ports.BlobStore, prefix string) *BlobLedger {
	return &BlobLedger{store: store, prefix: prefix}
}

// Key devuelve la key del blob de la tabla name.
func (l *BlobLedger) Key(name string) string {
	return l.prefix + name + ".csv"
}

// ReadTable lee la tabla completa, normalizada a las columnas canónicas.
// Un blob inexistente es una tabla vacía, no un error.
func (l *BlobLedger) ReadTable(ctx context.Context, name string) (Table, error) {
	if _, ok := tableColumns[name]; !ok {
		return Table{}, fmt.Errorf("storage.ReadTable: unknown table %q", name)
	}
	data, err := l.store.Get(ctx, l.Key(name))
	if errors.Is(err, ports.ErrBlobNotFound) {
		return NewTable(name), nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("storage.ReadTable: get %s: %w", name, err)
	}
	t, err := decodeCSV(data)
	if err != nil {
		return Table{}, fmt.Errorf("storage.ReadTable: %s: %w", name, err)
	}
	return t.canonical(name), nil
}

// WriteTable sobreescribe la tabla completa.
func (l *BlobLedger) WriteTable(ctx context.Context, name string, t Table) error {
	data, err := encodeCSV(t)
	if err != nil {
		return fmt.Errorf("storage.WriteTable: encode %s: %w", name, err)
	}
	if err := l.store.Put(ctx, l.Key(name), data); err != nil {
		return fmt.Errorf("storage.WriteTable: put %s: %w", name, err)
	}
	return nil
}

// Commit añade la señal a las tres tablas, en orden verified → historical → periods.
func (l *BlobLedger) Commit(ctx context.Context, v domain.VerifiedSignal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.appendRow(ctx, ports.TableVerified, v.PeriodID, verifiedRow(v)); err != nil {
		return fmt.Errorf("storage.Commit: %w", err)
	}
	if err := l.appendRow(ctx, ports.TableHistorical, v.PeriodID, historicalRow(v.HistoricalRecord())); err != nil {
		return fmt.Errorf("storage.Commit: %w", err)
	}
	if err := l.appendRow(ctx, ports.TablePeriods, v.PeriodID, periodRow(v.PeriodID)); err != nil {
		return fmt.Errorf("storage.Commit: %w", err)
	}
	return nil
}

// appendRow hace read → concat → rewrite. Si el period_id ya existe con la misma
// fila es un reintento y no se escribe nada; con otra fila es ErrPeriodConflict.
func (l *BlobLedger) appendRow(ctx context.Context, name string, periodID int64, row []string) error {
	t, err := l.ReadTable(ctx, name)
	if err != nil {
		return err
	}
	stored, found, err := t.RowByPeriod(periodID)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if found {
		if slices.Equal(stored, row) {
			return nil
		}
		return fmt.Errorf("%s: period %d: %w", name, periodID, ports.ErrPeriodConflict)
	}
	t.Rows = append(t.Rows, row)
	return l.WriteTable(ctx, name, t)
}

// VerifiedSignals lee la tabla verified_signals.
func (l *BlobLedger) VerifiedSignals(ctx context.Context) ([]domain.VerifiedSignal, error) {
	t, err := l.ReadTable(ctx, ports.TableVerified)
	if err != nil {
		return nil, err
	}
	out, err := verifiedFromTable(t)
	if err != nil {
		return nil, fmt.Errorf("storage.VerifiedSignals: %w", err)
	}
	return out, nil
}

// History lee la tabla historical_signals.
func (l *BlobLedger) History(ctx context.Context) ([]domain.HistoricalRecord, error) {
	t, err := l.ReadTable(ctx, ports.TableHistorical)
	if err != nil {
		return nil, err
	}
	out, err := historicalFromTable(t)
	if err != nil {
		return nil, fmt.Errorf("storage.History: %w", err)
	}
	return out, nil
}

// Periods lee la tabla periods.
func (l *BlobLedger) Periods(ctx context.Context) ([]domain.PeriodRecord, error) {
	t, err := l.ReadTable(ctx, ports.TablePeriods)
	if err != nil {
		return nil, err
	}
	out, err := periodsFromTable(t)
	if err != nil {
		return nil, fmt.Errorf("storage.Periods: %w", err)
	}
	return out, nil
}

// MaxPeriodID devuelve el máximo period_id entre periods y verified_signals.
func (l *BlobLedger) MaxPeriodID(ctx context.Context) (int64, error) {
	var maxID int64
	for _, name := range []string{ports.TablePeriods, ports.TableVerified} {
		t, err := l.ReadTable(ctx, name)
		if err != nil {
			return 0, fmt.Errorf("storage.MaxPeriodID: %w", err)
		}
		_, m, err := t.PeriodIDs()
		if err != nil {
			return 0, fmt.Errorf("storage.MaxPeriodID: %s: %w", name, err)
		}
		maxID = max(maxID, m)
	}
	return maxID, nil
}

// Repair añade a historical_signals y periods las filas de verified_signals que falten.
// Es idempotente; devuelve cuántas filas añadió en total.
func (l *BlobLedger) Repair(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vt, err := l.ReadTable(ctx, ports.TableVerified)
	if err != nil {
		return 0, fmt.Errorf("storage.Repair: %w", err)
	}
	verified, err := verifiedFromTable(vt)
	if err != nil {
		return 0, fmt.Errorf("storage.Repair: %w", err)
	}

	repaired := 0
	for _, name := range []string{ports.TableHistorical, ports.TablePeriods} {
		t, err := l.ReadTable(ctx, name)
		if err != nil {
			return repaired, fmt.Errorf("storage.Repair: %w", err)
		}
		ids, _, err := t.PeriodIDs()
		if err != nil {
			return repaired, fmt.Errorf("storage.Repair: %s: %w", name, err)
		}

		added := 0
		for _, v := range verified {
			if v.PeriodID == 0 || ids[v.PeriodID] {
				continue
			}
			if name == ports.TableHistorical {
				t.Rows = append(t.Rows, historicalRow(v.HistoricalRecord()))
			} else {
				t.Rows = append(t.Rows, periodRow(v.PeriodID))
			}
			ids[v.PeriodID] = true
			added++
		}
		if added == 0 {
			continue
		}
		if err := l.WriteTable(ctx, name, t); err != nil {
			return repaired, fmt.Errorf("storage.Repair: %w", err)
		}
		slog.Warn("ledger repaired", "table", name, "rows", added)
		repaired += added
	}
	return repaired, nil
}

// Close no hace nada: el BlobStore lo gestiona quien lo creó.
func (l *BlobLedger) Close() error { return nil }
