package httpapi

import (
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// signalJSON es la representación pública de una señal verificada.
type signalJSON struct {
	PeriodID   int64     `json:"period_id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Coin       string    `json:"coin"`
	Color      string    `json:"color"`
	Number     string    `json:"number"`
	Direction  string    `json:"direction"`
	Quantity   float64   `json:"quantity"`
	Verified   bool      `json:"verified"`
	Confidence float64   `json:"confidence"`
}

func toSignalJSON(v domain.VerifiedSignal) signalJSON {
	return signalJSON{
		PeriodID:   v.PeriodID,
		Timestamp:  v.Timestamp,
		Source:     v.Source,
		Coin:       v.Coin,
		Color:      v.Color,
		Number:     v.Number,
		Direction:  v.Direction,
		Quantity:   v.Quantity,
		Verified:   v.Verified,
		Confidence: v.Confidence,
	}
}

func toSignalsJSON(rows []domain.VerifiedSignal) []signalJSON {
	out := make([]signalJSON, len(rows))
	for i, v := range rows {
		out[i] = toSignalJSON(v)
	}
	return out
}

// event es el sobre de los mensajes del websocket.
type event struct {
	Type   string     `json:"type"` // "signal"
	Signal signalJSON `json:"signal"`
	Alert  bool       `json:"high_confidence"`
}

type errorJSON struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
