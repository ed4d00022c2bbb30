package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/signalbot/config"
	"github.com/alejandrodnm/signalbot/internal/adapters/blob"
	"github.com/alejandrodnm/signalbot/internal/adapters/httpapi"
	"github.com/alejandrodnm/signalbot/internal/adapters/notify"
	"github.com/alejandrodnm/signalbot/internal/adapters/storage"
	"github.com/alejandrodnm/signalbot/internal/analytics"
	"github.com/alejandrodnm/signalbot/internal/ingest"
	"github.com/alejandrodnm/signalbot/internal/parser"
	"github.com/alejandrodnm/signalbot/internal/ports"
	"github.com/alejandrodnm/signalbot/internal/verifier"
)

// app agrupa los componentes compartidos por run, replay y report.
type app struct {
	cfg      *config.Config
	ledger   *storage.Cache
	engine   *analytics.Engine
	console  *notify.Console
	metrics  *httpapi.Metrics
	hub      *httpapi.Hub
	pipeline *ingest.Pipeline

	closers []func() error
}

// newApp abre el ledger y construye pipeline y analytics sobre la caché.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	ledger, err := a.openLedger(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, ledger.Close)

	cache, err := storage.NewCache(ctx, ledger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("newApp: load history: %w", err)
	}
	a.ledger = cache

	a.engine = analytics.NewEngine(analytics.Config{
		TrendWindow:    cfg.Dashboard.TrendWindow,
		RollingWindow:  cfg.Dashboard.RollingWindow,
		HighConfidence: cfg.Ingest.HighConfidence,
		RecentLimit:    cfg.Dashboard.RecentLimit,
	}, cache)
	a.console = notify.NewConsole(true, cfg.Ingest.HighConfidence)
	a.metrics = httpapi.NewMetrics()
	a.hub = httpapi.NewHub(cfg.Ingest.HighConfidence, a.metrics)

	var v *verifier.Verifier
	if cfg.Verifier.Seed != 0 {
		v = verifier.NewSeeded(cache, cfg.Verifier.Seed)
	} else {
		v = verifier.New(cache, nil)
	}

	publishers := []ports.Publisher{a.hub}
	if cfg.Dashboard.Console {
		publishers = append(publishers, a.console)
	}
	a.pipeline = ingest.New(
		ingest.Config{
			CommitAttempts: cfg.Ingest.CommitAttempts,
			CommitBackoff:  cfg.CommitBackoff(),
			HighConfidence: cfg.Ingest.HighConfidence,
		},
		parser.New(parser.Config{
			DefaultCoin:   cfg.Parser.DefaultCoin,
			DefaultNumber: cfg.Parser.DefaultNumber,
		}),
		v,
		cache,
		a.metrics,
		publishers...,
	)

	slog.Info("ledger loaded",
		"driver", cfg.Storage.Driver,
		"signals", cache.Len(),
	)
	return a, nil
}

// notifier devuelve la consola sólo si está activada (nil interface si no).
func (a *app) notifier() ports.Notifier {
	if !a.cfg.Dashboard.Console {
		return nil
	}
	return a.console
}

// httpServer devuelve la API, o nil si no hay dirección configurada.
func (a *app) httpServer() *httpapi.Server {
	if a.cfg.HTTP.Addr == "" {
		return nil
	}
	cfg := httpapi.DefaultConfig()
	cfg.Addr = a.cfg.HTTP.Addr
	return httpapi.New(cfg, a.engine, a.hub, a.metrics)
}

// Close cierra los recursos en orden inverso de apertura.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}

func (a *app) openLedger(ctx context.Context) (ports.Ledger, error) {
	sc := a.cfg.Storage
	switch sc.Driver {
	case config.DriverSQLite:
		l, err := storage.NewSQLiteLedger(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("openLedger: sqlite %s: %w", sc.Path, err)
		}
		return l, nil

	case config.DriverPostgres:
		pg := storage.DefaultPostgresConfig()
		pg.DSN = sc.DSN
		l, err := storage.OpenPostgresLedger(ctx, pg)
		if err != nil {
			return nil, fmt.Errorf("openLedger: %w", err)
		}
		return l, nil

	case config.DriverBlob:
		store, err := a.openBlobStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("openLedger: %w", err)
		}
		l := storage.NewBlobLedger(blob.NewBreaker(store, blob.BreakerConfig{
			Name:                "blob-" + sc.Blob.Backend,
			ConsecutiveFailures: sc.Breaker.ConsecutiveFailures,
			OpenTimeout:         time.Duration(sc.Breaker.OpenTimeoutSeconds) * time.Second,
			HalfOpenRequests:    1,
		}), "")
		repaired, err := l.Repair(ctx)
		if err != nil {
			return nil, fmt.Errorf("openLedger: %w", err)
		}
		if repaired > 0 {
			slog.Warn("blob ledger had partial commits", "rows_repaired", repaired)
		}
		return l, nil
	}
	return nil, fmt.Errorf("openLedger: unknown driver %q", sc.Driver)
}

func (a *app) openBlobStore(ctx context.Context) (ports.BlobStore, error) {
	bc := a.cfg.Storage.Blob
	switch bc.Backend {
	case config.BlobRedis:
		rs, err := blob.NewRedisStore(ctx, blob.RedisConfig{
			Addr:     bc.RedisAddr,
			Password: bc.RedisPassword,
			DB:       bc.RedisDB,
			Prefix:   bc.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	case config.BlobFS:
		return blob.NewDirStore(bc.Dir)
	case config.BlobMemory:
		slog.Warn("blob backend is in-memory: nothing survives a restart")
		return blob.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", bc.Backend)
}
