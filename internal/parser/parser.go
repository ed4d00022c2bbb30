// Package parser extrae señales estructuradas de mensajes de chat.
//
// Soporta dos formatos:
//
//	Coin: ETH Color: Red Number: 7 Quantity: 2x
//
// y el formato de los bots de señales:
//
//	Trade: 🔴 Red ✔️
//	Recommended quantity: x3
//
// Un mensaje que no encaja en ninguno no es un error: simplemente no es una señal.
package parser

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

const defaultQuantity = 1.0

// Markers del formato explícito, en orden lógico.
var fieldMarkers = []string{"Coin:", "Color:", "Number:", "Quantity:"}

const (
	tradeMarker    = "Trade:"
	quantityMarker = "Recommended quantity:"
	checkMark      = "✔"
)

var emojiColors = map[string]string{
	"🔴": "Red",
	"🟢": "Green",
	"🟣": "Violet",
}

// Config controla los valores por defecto del formato de bot, que no trae coin ni número.
type Config struct {
	DefaultCoin   string
	DefaultNumber string
}

// DefaultConfig replica los bots ETH de 60s.
func DefaultConfig() Config {
	return Config{DefaultCoin: "ETH", DefaultNumber: "1"}
}

// Parser convierte texto crudo en domain.Signal. No tiene side effects.
type Parser struct {
	cfg Config
}

// New crea un Parser. Valores vacíos en cfg usan DefaultConfig.
func New(cfg Config) *Parser {
	def := DefaultConfig()
	if cfg.DefaultCoin == "" {
		cfg.DefaultCoin = def.DefaultCoin
	}
	if cfg.DefaultNumber == "" {
		cfg.DefaultNumber = def.DefaultNumber
	}
	return &Parser{cfg: cfg}
}

// Parse devuelve la señal del mensaje y true, o false si el mensaje no es una señal.
// PeriodID, Verified y Confidence los asignan etapas posteriores.
func (p *Parser) Parse(msg domain.Message) (domain.Signal, bool) {
	text := strings.ReplaceAll(msg.Text, "\u00a0", " ")

	sig, ok := parseFields(text)
	if !ok {
		sig, ok = p.parseTrade(text)
	}
	if !ok {
		return domain.Signal{}, false
	}

	sig.Timestamp = msg.ReceivedAt
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}
	sig.Source = msg.Source
	sig.Direction = sig.Color
	return sig, true
}

// parseFields parsea el formato Coin:/Color:/Number:/Quantity:.
func parseFields(text string) (domain.Signal, bool) {
	positions := make([]int, len(fieldMarkers))
	from := 0
	for i, m := range fieldMarkers {
		idx := strings.Index(text[from:], m)
		if idx < 0 {
			return domain.Signal{}, false
		}
		positions[i] = from + idx
		from = positions[i] + len(m)
	}

	values := make([]string, len(fieldMarkers))
	for i, m := range fieldMarkers {
		start := positions[i] + len(m)
		var raw string
		if i+1 < len(fieldMarkers) {
			raw = text[start:positions[i+1]]
		} else {
			raw = firstLine(text[start:])
		}
		values[i] = strings.TrimSpace(raw)
	}

	coin, color, number := values[0], normalizeColor(values[1]), values[2]
	if coin == "" || color == "" || number == "" {
		return domain.Signal{}, false
	}

	return domain.Signal{
		Coin:     coin,
		Color:    color,
		Number:   number,
		Quantity: ParseQuantity(values[3]),
	}, true
}

// parseTrade parsea el formato de bot Trade:/Recommended quantity:.
func (p *Parser) parseTrade(text string) (domain.Signal, bool) {
	ti := strings.Index(text, tradeMarker)
	if ti < 0 {
		return domain.Signal{}, false
	}
	qi := strings.Index(text[ti:], quantityMarker)
	if qi < 0 {
		return domain.Signal{}, false
	}
	qi += ti

	trade := text[ti+len(tradeMarker) : qi]
	trade = firstLine(trade)
	if cut, _, found := strings.Cut(trade, checkMark); found {
		trade = cut
	}
	color := normalizeColor(trade)
	if fields := strings.Fields(color); len(fields) > 0 {
		color = fields[0]
	}
	if color == "" {
		return domain.Signal{}, false
	}

	qty := ""
	if fields := strings.Fields(text[qi+len(quantityMarker):]); len(fields) > 0 {
		qty = fields[0]
	}

	return domain.Signal{
		Coin:     p.cfg.DefaultCoin,
		Color:    color,
		Number:   p.cfg.DefaultNumber,
		Quantity: ParseQuantity(qty),
	}, true
}

// ParseQuantity parsea la cantidad recomendada quitando la notación "x".
// Cualquier valor no parseable, no finito o <= 0 devuelve exactamente 1.0.
func ParseQuantity(raw string) float64 {
	s := strings.TrimSpace(raw)
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	s = strings.Trim(s, "xX×")
	q, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		return defaultQuantity
	}
	return q
}

// normalizeColor traduce un color que empieza por emoji a su nombre.
// "🔴 Red" → "Red", "🟢" → "Green", "Blue" → "Blue".
func normalizeColor(raw string) string {
	s := strings.TrimSpace(raw)
	for emoji, name := range emojiColors {
		if strings.HasPrefix(s, emoji) {
			return name
		}
	}
	return s
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		// "Coin:\nETH": si la primera línea está vacía, usar la siguiente
		if strings.TrimSpace(s[:i]) == "" {
			return firstLine(strings.TrimLeft(s[i:], "\r\n"))
		}
		return s[:i]
	}
	return s
}
