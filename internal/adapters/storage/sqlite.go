package storage

// sqlite.go: ledger transaccional por defecto.
//
// Estrategia:
//   - Las tres tablas lógicas viven en la misma DB y se escriben en UNA transacción:
//     o entran las tres filas o ninguna. Sin estados parciales.
//   - period_id es la clave de idempotencia: ON CONFLICT DO NOTHING, así un commit
//     reintentado tras un error transitorio no duplica filas.
//   - Append-only: no hay prune ni updates.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/signalbot/internal/domain"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS verified_signals (
    period_id  INTEGER PRIMARY KEY,
    ts         TEXT    NOT NULL,
    source     TEXT    NOT NULL DEFAULT '',
    coin       TEXT    NOT NULL,
    color      TEXT    NOT NULL,
    number     TEXT    NOT NULL,
    direction  TEXT    NOT NULL,
    quantity   REAL    NOT NULL,
    verified   INTEGER NOT NULL,
    confidence REAL    NOT NULL
);

-- Ledger que lee el Verifier
CREATE TABLE IF NOT EXISTS historical_signals (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    period_id INTEGER UNIQUE,
    ts        TEXT    NOT NULL,
    source    TEXT    NOT NULL DEFAULT '',
    coin      TEXT    NOT NULL,
    color     TEXT    NOT NULL,
    number    TEXT    NOT NULL,
    direction TEXT    NOT NULL,
    result    INTEGER NOT NULL,
    quantity  REAL    NOT NULL
);

CREATE TABLE IF NOT EXISTS periods (
    period_id INTEGER PRIMARY KEY
);

CREATE INDEX IF NOT EXISTS idx_hist_coin ON historical_signals(coin);
`

// SQLiteLedger implementa ports.Ledger usando SQLite (pure Go, sin CGo).
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Commit escribe la señal en las tres tablas dentro de una transacción.
func (s *SQLiteLedger) Commit(ctx context.Context, v domain.VerifiedSignal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Commit: begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(v.Timestamp)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO verified_signals
			(period_id, ts, source, coin, color, number, direction, quantity, verified, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_id) DO NOTHING`,
		v.PeriodID, ts, v.Source, v.Coin, v.Color, v.Number, v.Direction,
		v.Quantity, boolToInt(v.Verified), v.Confidence,
	); err != nil {
		return fmt.Errorf("storage.Commit: insert verified %d: %w", v.PeriodID, err)
	}

	h := v.HistoricalRecord()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO historical_signals
			(period_id, ts, source, coin, color, number, direction, result, quantity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_id) DO NOTHING`,
		h.PeriodID, ts, h.Source, h.Coin, h.Color, h.Number, h.Direction,
		boolToInt(h.Result), h.Quantity,
	); err != nil {
		return fmt.Errorf("storage.Commit: insert history %d: %w", v.PeriodID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO periods (period_id) VALUES (?) ON CONFLICT(period_id) DO NOTHING`,
		v.PeriodID,
	); err != nil {
		return fmt.Errorf("storage.Commit: insert period %d: %w", v.PeriodID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Commit: commit: %w", err)
	}
	return nil
}

// VerifiedSignals devuelve la tabla completa en orden de period_id.
func (s *SQLiteLedger) VerifiedSignals(ctx context.Context) ([]domain.VerifiedSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period_id, ts, source, coin, color, number, direction, quantity, verified, confidence
		FROM verified_signals
		ORDER BY period_id`)
	if err != nil {
		return nil, fmt.Errorf("storage.VerifiedSignals: query: %w", err)
	}
	defer rows.Close()

	var out []domain.VerifiedSignal
	for rows.Next() {
		var v domain.VerifiedSignal
		var ts string
		var verified int
		if err := rows.Scan(
			&v.PeriodID, &ts, &v.Source, &v.Coin, &v.Color, &v.Number, &v.Direction,
			&v.Quantity, &verified, &v.Confidence,
		); err != nil {
			return nil, fmt.Errorf("storage.VerifiedSignals: scan row: %w", err)
		}
		if v.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("storage.VerifiedSignals: period %d: %w", v.PeriodID, err)
		}
		v.Verified = verified == 1
		out = append(out, v)
	}
	return out, rows.Err()
}

// History devuelve el ledger de resultados en orden de inserción.
func (s *SQLiteLedger) History(ctx context.Context) ([]domain.HistoricalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(period_id, 0), ts, source, coin, color, number, direction, result, quantity
		FROM historical_signals
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage.History: query: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoricalRecord
	for rows.Next() {
		var h domain.HistoricalRecord
		var ts string
		var result int
		if err := rows.Scan(
			&h.PeriodID, &ts, &h.Source, &h.Coin, &h.Color, &h.Number, &h.Direction,
			&result, &h.Quantity,
		); err != nil {
			return nil, fmt.Errorf("storage.History: scan row: %w", err)
		}
		if h.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("storage.History: period %d: %w", h.PeriodID, err)
		}
		h.Result = result == 1
		out = append(out, h)
	}
	return out, rows.Err()
}

// Periods devuelve el ledger de periodos.
func (s *SQLiteLedger) Periods(ctx context.Context) ([]domain.PeriodRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT period_id FROM periods ORDER BY period_id`)
	if err != nil {
		return nil, fmt.Errorf("storage.Periods: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PeriodRecord
	for rows.Next() {
		var p domain.PeriodRecord
		if err := rows.Scan(&p.PeriodID); err != nil {
			return nil, fmt.Errorf("storage.Periods: scan row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MaxPeriodID devuelve el mayor period_id asignado, 0 si no hay ninguno.
func (s *SQLiteLedger) MaxPeriodID(ctx context.Context) (int64, error) {
	var maxID int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(period_id), 0) FROM periods`,
	).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("storage.MaxPeriodID: %w", err)
	}
	return maxID, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
