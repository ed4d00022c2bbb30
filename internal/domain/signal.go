package domain

import (
	"math"
	"time"
)

// Message es un mensaje de chat tal cual llega del transporte.
type Message struct {
	ID         string // id del mensaje dentro de su source (update/message id)
	Source     string // chat o bot de origen, e.g. "@ETHGPT60s_bot"
	Text       string
	ReceivedAt time.Time
}

// Signal es una recomendación de trade parseada de un mensaje, antes de verificar.
type Signal struct {
	Timestamp time.Time
	Source    string
	Coin      string
	Color     string
	Number    string // string para match exacto; ordenable numéricamente al mostrar
	Direction string // alias de Color
	Quantity  float64
	PeriodID  int64
}

// VerifiedSignal es una Signal con el resultado de la verificación.
// Verified y Confidence se fijan juntos, una sola vez, antes de persistir.
type VerifiedSignal struct {
	Signal
	Verified   bool
	Confidence float64 // [0,100], 2 decimales
}

// Win devuelve 1 si la señal se verificó, 0 si no.
func (v VerifiedSignal) Win() float64 {
	if v.Verified {
		return 1
	}
	return 0
}

// Profit es el P&L nominal de la señal: +quantity si ganó, -quantity si no.
func (v VerifiedSignal) Profit() float64 {
	if v.Verified {
		return v.Quantity
	}
	return -v.Quantity
}

// HistoricalRecord es la fila aplanada del ledger de resultados que lee el Verifier.
type HistoricalRecord struct {
	Timestamp time.Time
	Source    string
	Coin      string
	Color     string
	Number    string
	Direction string
	Result    bool
	Quantity  float64
	PeriodID  int64
}

// PeriodRecord es una fila del ledger de periodos.
type PeriodRecord struct {
	PeriodID int64
}

// NewVerifiedSignal fija el resultado de la verificación sobre la señal.
// La confianza se clampa a [0,100] y se redondea a 2 decimales.
func NewVerifiedSignal(s Signal, verified bool, confidence float64) VerifiedSignal {
	return VerifiedSignal{
		Signal:     s,
		Verified:   verified,
		Confidence: Round2(Clamp(confidence, 0, 100)),
	}
}

// HistoricalRecord deriva la fila de histórico de una señal verificada.
func (v VerifiedSignal) HistoricalRecord() HistoricalRecord {
	return HistoricalRecord{
		Timestamp: v.Timestamp,
		Source:    v.Source,
		Coin:      v.Coin,
		Color:     v.Color,
		Number:    v.Number,
		Direction: v.Direction,
		Result:    v.Verified,
		Quantity:  v.Quantity,
		PeriodID:  v.PeriodID,
	}
}

// Round2 redondea a 2 decimales (half away from zero).
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Round(x*100) / 100
}

// Clamp limita x al rango [lo, hi]. NaN se trata como lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
