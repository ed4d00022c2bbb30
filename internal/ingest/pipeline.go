package ingest

// pipeline.go: único writer del sistema.
//
// Cada mensaje pasa por parse → allocate → verify → commit bajo un mutex:
// dos mensajes concurrentes nunca obtienen el mismo period_id y el verifier
// ve siempre el histórico con todos los commits anteriores.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// Parser convierte un mensaje crudo en señal.
type Parser interface {
	Parse(msg domain.Message) (domain.Signal, bool)
}

// Verifier puntúa una señal contra el histórico.
type Verifier interface {
	Verify(ctx context.Context, s domain.Signal) (domain.VerifiedSignal, error)
}

// Config controla los reintentos de commit y el umbral de alerta.
type Config struct {
	CommitAttempts int           // intentos totales de commit
	CommitBackoff  time.Duration // espera fija entre intentos
	HighConfidence float64       // umbral de alerta (confidence >= umbral)
}

// DefaultConfig: 5 intentos con 2s de espera, alerta a partir de 75.
func DefaultConfig() Config {
	return Config{
		CommitAttempts: 5,
		CommitBackoff:  2 * time.Second,
		HighConfidence: 75,
	}
}

// Pipeline procesa mensajes entrantes y persiste las señales verificadas.
type Pipeline struct {
	cfg        Config
	parser     Parser
	verifier   Verifier
	ledger     ports.Ledger
	alloc      *PeriodAllocator
	publishers []ports.Publisher
	observer   ports.IngestObserver

	mu sync.Mutex
}

// New crea un Pipeline con todas las dependencias inyectadas.
// observer puede ser nil.
func New(
	cfg Config,
	parser Parser,
	verifier Verifier,
	ledger ports.Ledger,
	observer ports.IngestObserver,
	publishers ...ports.Publisher,
) *Pipeline {
	def := DefaultConfig()
	if cfg.CommitAttempts <= 0 {
		cfg.CommitAttempts = def.CommitAttempts
	}
	if cfg.CommitBackoff < 0 {
		cfg.CommitBackoff = 0
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Pipeline{
		cfg:        cfg,
		parser:     parser,
		verifier:   verifier,
		ledger:     ledger,
		alloc:      NewPeriodAllocator(ledger),
		publishers: publishers,
		observer:   observer,
	}
}

// OnMessage procesa un mensaje. Devuelve la señal persistida y true si el
// mensaje era una señal; (zero, false, nil) si no lo era.
func (p *Pipeline) OnMessage(ctx context.Context, msg domain.Message) (domain.VerifiedSignal, bool, error) {
	sig, ok := p.parser.Parse(msg)
	if !ok {
		p.observer.MessageDropped(msg.Source, "no_signal")
		slog.Debug("message is not a signal", "source", msg.Source, "id", msg.ID)
		return domain.VerifiedSignal{}, false, nil
	}

	v, err := p.commitLocked(ctx, sig)
	if err != nil {
		p.observer.CommitFailed(sig.Source, err)
		slog.Error("signal lost", "source", sig.Source, "coin", sig.Coin, "color", sig.Color, "err", err)
		return domain.VerifiedSignal{}, true, err
	}

	p.observer.SignalCommitted(v)
	slog.Info("signal committed",
		"period_id", v.PeriodID,
		"source", v.Source,
		"coin", v.Coin,
		"color", v.Color,
		"number", v.Number,
		"verified", v.Verified,
		"confidence", v.Confidence,
	)
	if v.Confidence >= p.cfg.HighConfidence && p.cfg.HighConfidence > 0 {
		slog.Warn("high confidence signal",
			"period_id", v.PeriodID,
			"source", v.Source,
			"color", v.Color,
			"confidence", v.Confidence,
		)
	}
	for _, pub := range p.publishers {
		pub.Publish(ctx, v)
	}
	return v, true, nil
}

// commitLocked asigna id, verifica y persiste bajo el lock de ingesta.
func (p *Pipeline) commitLocked(ctx context.Context, sig domain.Signal) (domain.VerifiedSignal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.alloc.NextID(ctx)
	if err != nil {
		return domain.VerifiedSignal{}, fmt.Errorf("ingest.OnMessage: %w", err)
	}
	sig.PeriodID = id

	v, err := p.verifier.Verify(ctx, sig)
	if err != nil {
		return domain.VerifiedSignal{}, fmt.Errorf("ingest.OnMessage: verify: %w", err)
	}

	if err := p.commitWithRetry(ctx, v); err != nil {
		return domain.VerifiedSignal{}, fmt.Errorf("ingest.OnMessage: %w", err)
	}
	return v, nil
}

// commitWithRetry reintenta con espera fija; el commit es idempotente por period_id.
func (p *Pipeline) commitWithRetry(ctx context.Context, v domain.VerifiedSignal) error {
	var err error
	for attempt := 1; attempt <= p.cfg.CommitAttempts; attempt++ {
		if err = p.ledger.Commit(ctx, v); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, ports.ErrPeriodConflict) {
			return fmt.Errorf("commit: %w", err)
		}
		if attempt == p.cfg.CommitAttempts {
			break
		}
		p.observer.CommitRetried(v.Source)
		slog.Warn("commit failed, retrying",
			"period_id", v.PeriodID,
			"attempt", attempt,
			"max_attempts", p.cfg.CommitAttempts,
			"err", err,
		)
		select {
		case <-time.After(p.cfg.CommitBackoff):
		case <-ctx.Done():
			return fmt.Errorf("commit: %w", ctx.Err())
		}
	}
	return fmt.Errorf("commit failed after %d attempts: %w", p.cfg.CommitAttempts, err)
}

type nopObserver struct{}

func (nopObserver) MessageDropped(string, string)         {}
func (nopObserver) SignalCommitted(domain.VerifiedSignal) {}
func (nopObserver) CommitFailed(string, error)            {}
func (nopObserver) CommitRetried(string)                  {}
