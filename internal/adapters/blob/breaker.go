package blob

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alejandrodnm/signalbot/internal/ports"
)

// BreakerConfig controla cuándo se abre el circuito.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32        // fallos seguidos que abren el circuito
	OpenTimeout         time.Duration // tiempo en open antes de pasar a half-open
	HalfOpenRequests    uint32
}

// DefaultBreakerConfig: 5 fallos seguidos abren 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "blob",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// Breaker envuelve un BlobStore con un circuit breaker.
// ErrBlobNotFound es una respuesta válida y no cuenta como fallo.
type Breaker struct {
	next ports.BlobStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker crea el wrapper.
func NewBreaker(next ports.BlobStore, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}

	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ports.ErrBlobNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Get ejecuta next.Get dentro del breaker.
func (b *Breaker) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// Put ejecuta next.Put dentro del breaker.
func (b *Breaker) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Put(ctx, key, data)
	})
	return err
}

// State devuelve el estado actual del circuito ("closed", "open", "half-open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}
