package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Nombres lógicos de las tres tablas.
const (
	TableVerified   = "verified_signals"
	TableHistorical = "historical_signals"
	TablePeriods    = "periods"
)

// ErrPeriodConflict indica que el period_id ya está persistido con otra señal.
// No se arregla reintentando.
var ErrPeriodConflict = errors.New("period_id already holds a different signal")

// SignalReader lee el snapshot actual de la tabla de señales verificadas.
type SignalReader interface {
	VerifiedSignals(ctx context.Context) ([]domain.VerifiedSignal, error)
}

// HistoryReader lee el ledger de resultados históricos.
type HistoryReader interface {
	History(ctx context.Context) ([]domain.HistoricalRecord, error)
}

// PeriodReader devuelve el period_id máximo asignado (0 si el ledger está vacío).
type PeriodReader interface {
	MaxPeriodID(ctx context.Context) (int64, error)
}

// Ledger persiste cada señal verificada en las tres tablas lógicas.
type Ledger interface {
	SignalReader
	HistoryReader
	PeriodReader

	// Commit añade la señal a verified_signals, historical_signals y periods.
	// Es idempotente por period_id: reintentar un commit no duplica filas.
	// Una señal distinta sobre un period_id ya escrito devuelve ErrPeriodConflict.
	Commit(ctx context.Context, signal domain.VerifiedSignal) error

	// Periods devuelve el ledger de periodos en orden de inserción.
	Periods(ctx context.Context) ([]domain.PeriodRecord, error)

	// Close cierra la conexión subyacente.
	Close() error
}
