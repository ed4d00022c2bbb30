// Package listener orquesta las sources de mensajes, el pipeline de ingesta y el
// refresco periódico del dashboard.
package listener

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Ingestor procesa un mensaje (ingest.Pipeline).
type Ingestor interface {
	OnMessage(ctx context.Context, msg domain.Message) (domain.VerifiedSignal, bool, error)
}

// DashboardBuilder calcula el snapshot del dashboard (analytics.Engine).
type DashboardBuilder interface {
	Dashboard(ctx context.Context) (domain.Dashboard, error)
}

// Config contiene la configuración del runner.
type Config struct {
	RefreshInterval time.Duration // cada cuánto se redibuja el dashboard
	ErrorBackoff    time.Duration // espera tras un error de poll
	// StopWhenDrained hace que Run termine cuando todas las sources están agotadas (replay).
	StopWhenDrained bool
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 10 * time.Second,
		ErrorBackoff:    5 * time.Second,
	}
}

// Stats resume lo que hizo un Run.
type Stats struct {
	Messages  int
	Signals   int
	Failures  int
	PollError int
}

// Runner es el loop principal del servicio.
type Runner struct {
	cfg       Config
	sources   []ports.MessageSource
	ingestor  Ingestor
	dashboard DashboardBuilder
	notifier  ports.Notifier

	mu    sync.Mutex
	stats Stats
}

// New crea un Runner con todas las dependencias inyectadas. notifier puede ser nil.
func New(
	cfg Config,
	sources []ports.MessageSource,
	ingestor Ingestor,
	dashboard DashboardBuilder,
	notifier ports.Notifier,
) *Runner {
	def := DefaultConfig()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	return &Runner{
		cfg:       cfg,
		sources:   sources,
		ingestor:  ingestor,
		dashboard: dashboard,
		notifier:  notifier,
	}
}

// Run hace polling de todas las sources hasta que el contexto se cancele
// (o, con StopWhenDrained, hasta agotarlas). Siempre dibuja un dashboard final.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	slog.Info("listener starting",
		"sources", len(r.sources),
		"refresh", r.cfg.RefreshInterval,
	)

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()

	var wg sync.WaitGroup
	for _, src := range r.sources {
		wg.Add(1)
		go func(src ports.MessageSource) {
			defer wg.Done()
			r.pollLoop(pollCtx, src)
		}(src)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	drained := done

	r.refresh(ctx)

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancelPoll()
			<-done
			r.refresh(context.WithoutCancel(ctx))
			slog.Info("listener stopped")
			return r.Stats(), nil
		case <-drained:
			r.refresh(ctx)
			if r.cfg.StopWhenDrained {
				slog.Info("all sources drained")
				return r.Stats(), nil
			}
			// sin sources activas sólo queda refrescar hasta que se cancele
			drained = nil
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// pollLoop hace polling de una source hasta que se agote o se cancele ctx.
func (r *Runner) pollLoop(ctx context.Context, src ports.MessageSource) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := src.Poll(ctx)
		if errors.Is(err, ports.ErrSourceExhausted) {
			slog.Info("source exhausted", "source", src.Name())
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.count(func(s *Stats) { s.PollError++ })
			slog.Warn("poll failed", "source", src.Name(), "err", err)
			select {
			case <-time.After(r.cfg.ErrorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, m := range msgs {
			_, ok, err := r.ingestor.OnMessage(ctx, m)
			r.count(func(s *Stats) {
				s.Messages++
				switch {
				case err != nil:
					s.Failures++
				case ok:
					s.Signals++
				}
			})
		}
	}
}

// refresh recalcula el dashboard y lo entrega al notifier.
func (r *Runner) refresh(ctx context.Context) {
	if r.notifier == nil || r.dashboard == nil {
		return
	}
	d, err := r.dashboard.Dashboard(ctx)
	if err != nil {
		slog.Warn("dashboard failed", "err", err)
		return
	}
	if err := r.notifier.Notify(ctx, d); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

// Stats devuelve los contadores acumulados.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Runner) count(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
