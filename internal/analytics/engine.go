package analytics

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Config controla las ventanas y umbrales del dashboard.
type Config struct {
	TrendWindow    int
	RollingWindow  int
	HighConfidence float64
	RecentLimit    int
}

// DefaultConfig devuelve las ventanas del dashboard original.
func DefaultConfig() Config {
	return Config{
		TrendWindow:    DefaultTrendWindow,
		RollingWindow:  DefaultRollingWindow,
		HighConfidence: DefaultHighConfidence,
		RecentLimit:    DefaultRecentLimit,
	}
}

// Engine lee snapshots de la tabla verified_signals y aplica las funciones del paquete.
// Es seguro llamarlo concurrentemente con la ingesta.
type Engine struct {
	cfg     Config
	signals ports.SignalReader
	now     func() time.Time
}

// NewEngine crea el Engine.
func NewEngine(cfg Config, signals ports.SignalReader) *Engine {
	def := DefaultConfig()
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = def.TrendWindow
	}
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = def.RollingWindow
	}
	if cfg.HighConfidence <= 0 {
		cfg.HighConfidence = def.HighConfidence
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}
	return &Engine{cfg: cfg, signals: signals, now: time.Now}
}

// Config devuelve la configuración efectiva.
func (e *Engine) Config() Config { return e.cfg }

// Snapshot lee la tabla actual.
func (e *Engine) Snapshot(ctx context.Context) ([]domain.VerifiedSignal, error) {
	rows, err := e.signals.VerifiedSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics.Snapshot: %w", err)
	}
	return rows, nil
}

// Summary calcula el resumen de precisión.
func (e *Engine) Summary(ctx context.Context) (domain.Summary, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	return Summarize(rows), nil
}

// AccuracyOverTime devuelve la serie perezosa por minuto del snapshot actual.
func (e *Engine) AccuracyOverTime(ctx context.Context) (iter.Seq2[time.Time, float64], error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return AccuracyOverTime(rows), nil
}

// AccuracyByCoin calcula la precisión por coin.
func (e *Engine) AccuracyByCoin(ctx context.Context) (map[string]float64, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return AccuracyByCoin(rows), nil
}

// Ranking ordena color o number por probabilidad de ganar.
func (e *Engine) Ranking(ctx context.Context, dimension string) ([]domain.RankEntry, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Ranking(rows, dimension)
}

// Heatmap construye la matriz color × number.
func (e *Engine) Heatmap(ctx context.Context) (domain.Heatmap, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return domain.Heatmap{}, err
	}
	return BuildHeatmap(rows, e.cfg.TrendWindow), nil
}

// Leaderboard resume por source.
func (e *Engine) Leaderboard(ctx context.Context) ([]domain.LeaderboardRow, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Leaderboard(rows), nil
}

// RollingWinRate calcula la serie con la ventana configurada.
func (e *Engine) RollingWinRate(ctx context.Context) ([]domain.SeriesPoint, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return RollingWinRate(rows, e.cfg.RollingWindow), nil
}

// CumulativeProfit calcula la serie de P&L acumulado.
func (e *Engine) CumulativeProfit(ctx context.Context) ([]domain.SeriesPoint, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return CumulativeProfit(rows), nil
}

// Recent devuelve las últimas n señales; n <= 0 usa el límite configurado.
func (e *Engine) Recent(ctx context.Context, n int) ([]domain.VerifiedSignal, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = e.cfg.RecentLimit
	}
	return Recent(rows, n), nil
}

// HighConfidence filtra por umbral; threshold <= 0 usa el configurado.
func (e *Engine) HighConfidence(ctx context.Context, threshold float64) ([]domain.VerifiedSignal, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = e.cfg.HighConfidence
	}
	return HighConfidence(rows, threshold), nil
}

// Dashboard calcula todas las vistas sobre un único snapshot.
func (e *Engine) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	rows, err := e.Snapshot(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	colors, _ := Ranking(rows, DimensionColor)
	numbers, _ := Ranking(rows, DimensionNumber)
	return domain.Dashboard{
		GeneratedAt:    e.now().UTC(),
		Summary:        Summarize(rows),
		ByCoin:         AccuracyByCoin(rows),
		ColorRanking:   colors,
		NumberRanking:  numbers,
		Heatmap:        BuildHeatmap(rows, e.cfg.TrendWindow),
		Leaderboard:    Leaderboard(rows),
		Recent:         Recent(rows, e.cfg.RecentLimit),
		HighConfidence: HighConfidence(rows, e.cfg.HighConfidence),
	}, nil
}
