package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS verified_signals (
    period_id  BIGINT PRIMARY KEY,
    ts         TIMESTAMPTZ      NOT NULL,
    source     TEXT             NOT NULL DEFAULT '',
    coin       TEXT             NOT NULL,
    color      TEXT             NOT NULL,
    number     TEXT             NOT NULL,
    direction  TEXT             NOT NULL,
    quantity   DOUBLE PRECISION NOT NULL,
    verified   BOOLEAN          NOT NULL,
    confidence DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS historical_signals (
    id        BIGSERIAL PRIMARY KEY,
    period_id BIGINT UNIQUE,
    ts        TIMESTAMPTZ      NOT NULL,
    source    TEXT             NOT NULL DEFAULT '',
    coin      TEXT             NOT NULL,
    color     TEXT             NOT NULL,
    number    TEXT             NOT NULL,
    direction TEXT             NOT NULL,
    result    BOOLEAN          NOT NULL,
    quantity  DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS periods (
    period_id BIGINT PRIMARY KEY
);

CREATE INDEX IF NOT EXISTS idx_hist_coin ON historical_signals(coin);
`

// PostgresConfig controla el pool y los timeouts del ledger Postgres.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DefaultPostgresConfig devuelve valores razonables para un único writer.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

type pgSignalRow struct {
	PeriodID   int64     `db:"period_id"`
	Timestamp  time.Time `db:"ts"`
	Source     string    `db:"source"`
	Coin       string    `db:"coin"`
	Color      string    `db:"color"`
	Number     string    `db:"number"`
	Direction  string    `db:"direction"`
	Quantity   float64   `db:"quantity"`
	Verified   bool      `db:"verified"`
	Confidence float64   `db:"confidence"`
}

type pgHistoryRow struct {
	PeriodID  int64     `db:"period_id"`
	Timestamp time.Time `db:"ts"`
	Source    string    `db:"source"`
	Coin      string    `db:"coin"`
	Color     string    `db:"color"`
	Number    string    `db:"number"`
	Direction string    `db:"direction"`
	Result    bool      `db:"result"`
	Quantity  float64   `db:"quantity"`
}

// PostgresLedger implementa ports.Ledger sobre PostgreSQL con commit transaccional.
type PostgresLedger struct {
	db      *sqlx.DB
	timeout time.Duration
}

// OpenPostgresLedger conecta, comprueba la conexión y aplica el schema.
func OpenPostgresLedger(ctx context.Context, cfg PostgresConfig) (*PostgresLedger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.OpenPostgresLedger: DSN is required")
	}
	def := DefaultPostgresConfig()
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = def.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = def.ConnMaxLifetime
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPostgresLedger: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.OpenPostgresLedger: ping: %w", err)
	}

	l := NewPostgresLedger(db, cfg.QueryTimeout)
	if err := l.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewPostgresLedger envuelve una conexión existente (tests con sqlmock).
func NewPostgresLedger(db *sqlx.DB, timeout time.Duration) *PostgresLedger {
	if timeout <= 0 {
		timeout = DefaultPostgresConfig().QueryTimeout
	}
	return &PostgresLedger{db: db, timeout: timeout}
}

// EnsureSchema crea las tablas si no existen.
func (p *PostgresLedger) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("storage.EnsureSchema: %w", err)
	}
	return nil
}

// Commit escribe la señal en las tres tablas en una transacción.
func (p *PostgresLedger) Commit(ctx context.Context, v domain.VerifiedSignal) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Commit: begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := v.Timestamp.UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO verified_signals
			(period_id, ts, source, coin, color, number, direction, quantity, verified, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (period_id) DO NOTHING`,
		v.PeriodID, ts, v.Source, v.Coin, v.Color, v.Number, v.Direction,
		v.Quantity, v.Verified, v.Confidence,
	); err != nil {
		return fmt.Errorf("storage.Commit: insert verified %d: %w", v.PeriodID, describePQ(err))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO historical_signals
			(period_id, ts, source, coin, color, number, direction, result, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (period_id) DO NOTHING`,
		v.PeriodID, ts, v.Source, v.Coin, v.Color, v.Number, v.Direction,
		v.Verified, v.Quantity,
	); err != nil {
		return fmt.Errorf("storage.Commit: insert history %d: %w", v.PeriodID, describePQ(err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO periods (period_id) VALUES ($1) ON CONFLICT (period_id) DO NOTHING`,
		v.PeriodID,
	); err != nil {
		return fmt.Errorf("storage.Commit: insert period %d: %w", v.PeriodID, describePQ(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Commit: commit: %w", err)
	}
	return nil
}

// VerifiedSignals devuelve la tabla completa en orden de period_id.
func (p *PostgresLedger) VerifiedSignals(ctx context.Context) ([]domain.VerifiedSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var rows []pgSignalRow
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT period_id, ts, source, coin, color, number, direction, quantity, verified, confidence
		FROM verified_signals
		ORDER BY period_id`); err != nil {
		return nil, fmt.Errorf("storage.VerifiedSignals: %w", err)
	}

	out := make([]domain.VerifiedSignal, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.VerifiedSignal{
			Signal: domain.Signal{
				Timestamp: r.Timestamp.UTC(),
				Source:    r.Source,
				Coin:      r.Coin,
				Color:     r.Color,
				Number:    r.Number,
				Direction: r.Direction,
				Quantity:  r.Quantity,
				PeriodID:  r.PeriodID,
			},
			Verified:   r.Verified,
			Confidence: r.Confidence,
		})
	}
	return out, nil
}

// History devuelve el ledger de resultados en orden de inserción.
func (p *PostgresLedger) History(ctx context.Context) ([]domain.HistoricalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var rows []pgHistoryRow
	if err := p.db.SelectContext(ctx, &rows, `
		SELECT COALESCE(period_id, 0) AS period_id, ts, source, coin, color, number, direction, result, quantity
		FROM historical_signals
		ORDER BY id`); err != nil {
		return nil, fmt.Errorf("storage.History: %w", err)
	}

	out := make([]domain.HistoricalRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.HistoricalRecord{
			Timestamp: r.Timestamp.UTC(),
			Source:    r.Source,
			Coin:      r.Coin,
			Color:     r.Color,
			Number:    r.Number,
			Direction: r.Direction,
			Result:    r.Result,
			Quantity:  r.Quantity,
			PeriodID:  r.PeriodID,
		})
	}
	return out, nil
}

// Periods devuelve el ledger de periodos.
func (p *PostgresLedger) Periods(ctx context.Context) ([]domain.PeriodRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var ids []int64
	if err := p.db.SelectContext(ctx, &ids, `SELECT period_id FROM periods ORDER BY period_id`); err != nil {
		return nil, fmt.Errorf("storage.Periods: %w", err)
	}
	out := make([]domain.PeriodRecord, len(ids))
	for i, id := range ids {
		out[i] = domain.PeriodRecord{PeriodID: id}
	}
	return out, nil
}

// MaxPeriodID devuelve el mayor period_id asignado, 0 si no hay ninguno.
func (p *PostgresLedger) MaxPeriodID(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var maxID int64
	if err := p.db.GetContext(ctx, &maxID, `SELECT COALESCE(MAX(period_id), 0) FROM periods`); err != nil {
		return 0, fmt.Errorf("storage.MaxPeriodID: %w", err)
	}
	return maxID, nil
}

// Close cierra el pool.
func (p *PostgresLedger) Close() error {
	return p.db.Close()
}

// describePQ añade el código SQLSTATE a los errores de Postgres.
func describePQ(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		return fmt.Errorf("pq %s (%s): %w", pqErr.Code, pqErr.Code.Name(), err)
	}
	return err
}
