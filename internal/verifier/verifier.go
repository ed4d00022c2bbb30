// Package verifier estima la probabilidad de acierto de una señal a partir del histórico
// y decide el flag verified.
//
// Ojo: la verificación es autorreferencial. El flag sale de una tirada Bernoulli con la
// probabilidad que el propio histórico produce; nunca se contrasta con un resultado real.
// Es un heurístico de demo, no una verificación.
package verifier

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

// NeutralPrior es la probabilidad cuando no hay histórico que coincida.
const NeutralPrior = 0.5

// Estimate devuelve la media de result sobre las filas del mismo coin cuyo color
// O número coincide. El OR ensancha la muestra para que claves raras tengan prior.
func Estimate(history []domain.HistoricalRecord, coin, color, number string) float64 {
	var wins, n int
	for _, h := range history {
		if h.Coin != coin {
			continue
		}
		if h.Color != color && h.Number != number {
			continue
		}
		n++
		if h.Result {
			wins++
		}
	}
	if n == 0 {
		return NeutralPrior
	}
	return float64(wins) / float64(n)
}

// Verifier combina el History Store con una fuente de aleatoriedad.
type Verifier struct {
	history ports.HistoryReader

	mu  sync.Mutex // *rand.Rand no es thread-safe
	rnd *rand.Rand
}

// New crea un Verifier. Si rnd es nil usa una fuente sembrada con el reloj.
func New(history ports.HistoryReader, rnd *rand.Rand) *Verifier {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return &Verifier{history: history, rnd: rnd}
}

// NewSeeded crea un Verifier determinista, útil para replays reproducibles.
func NewSeeded(history ports.HistoryReader, seed uint64) *Verifier {
	return New(history, rand.New(rand.NewPCG(seed, seed)))
}

// Estimate consulta el History Store para (coin, color, number).
func (v *Verifier) Estimate(ctx context.Context, coin, color, number string) (float64, error) {
	history, err := v.history.History(ctx)
	if err != nil {
		return 0, fmt.Errorf("verifier.Estimate: load history: %w", err)
	}
	return Estimate(history, coin, color, number), nil
}

// Verify decide verified con probabilidad p y devuelve la señal verificada
// con confidence = round(p*100, 2). No persiste nada.
func (v *Verifier) Verify(ctx context.Context, s domain.Signal) (domain.VerifiedSignal, error) {
	p, err := v.Estimate(ctx, s.Coin, s.Color, s.Number)
	if err != nil {
		return domain.VerifiedSignal{}, err
	}

	v.mu.Lock()
	draw := v.rnd.Float64()
	v.mu.Unlock()

	return domain.NewVerifiedSignal(s, draw < p, p*100), nil
}
