// Package analytics deriva las estadísticas del dashboard a partir de un snapshot
// de la tabla verified_signals. Todas las funciones son puras: mismo snapshot,
// mismo resultado, sin NaN.
package analytics

import (
	"errors"
	"iter"
	"maps"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Dimensiones válidas para Ranking.
const (
	DimensionColor  = "color"
	DimensionNumber = "number"
)

// ErrUnknownDimension se devuelve si Ranking recibe algo distinto de color o number.
var ErrUnknownDimension = errors.New("unknown ranking dimension")

// Valores por defecto de las ventanas.
const (
	DefaultTrendWindow    = 5
	DefaultRollingWindow  = 20
	DefaultHighConfidence = 75.0
	DefaultRecentLimit    = 10
)

// pct devuelve mean*100 redondeado a 2 decimales; 0 si n == 0.
func pct(wins, n int) float64 {
	if n == 0 {
		return 0
	}
	return domain.Round2(float64(wins) / float64(n) * 100)
}

// Summarize calcula total, aciertos y precisión.
func Summarize(rows []domain.VerifiedSignal) domain.Summary {
	correct := 0
	for _, r := range rows {
		if r.Verified {
			correct++
		}
	}
	return domain.Summary{
		Total:       len(rows),
		Correct:     correct,
		AccuracyPct: pct(correct, len(rows)),
	}
}

// AccuracyOverTime agrupa por minuto y produce (minuto, precisión%) en orden de tiempo.
// La secuencia es perezosa y se puede recorrer varias veces.
func AccuracyOverTime(rows []domain.VerifiedSignal) iter.Seq2[time.Time, float64] {
	return func(yield func(time.Time, float64) bool) {
		type bucket struct{ wins, n int }
		buckets := make(map[time.Time]*bucket)
		for _, r := range rows {
			m := r.Timestamp.UTC().Truncate(time.Minute)
			b, ok := buckets[m]
			if !ok {
				b = &bucket{}
				buckets[m] = b
			}
			b.n++
			if r.Verified {
				b.wins++
			}
		}
		minutes := slices.SortedFunc(maps.Keys(buckets), func(a, b time.Time) int { return a.Compare(b) })
		for _, m := range minutes {
			b := buckets[m]
			if !yield(m, pct(b.wins, b.n)) {
				return
			}
		}
	}
}

// AccuracyPoints materializa AccuracyOverTime (JSON, tablas).
func AccuracyPoints(rows []domain.VerifiedSignal) []domain.AccuracyPoint {
	out := []domain.AccuracyPoint{}
	for m, acc := range AccuracyOverTime(rows) {
		out = append(out, domain.AccuracyPoint{Minute: m, AccuracyPct: acc})
	}
	return out
}

// AccuracyByCoin devuelve la precisión por coin.
func AccuracyByCoin(rows []domain.VerifiedSignal) map[string]float64 {
	wins := make(map[string]int)
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Coin]++
		if r.Verified {
			wins[r.Coin]++
		}
	}
	out := make(map[string]float64, len(counts))
	for coin, n := range counts {
		out[coin] = pct(wins[coin], n)
	}
	return out
}

// Ranking ordena los valores de la dimensión por probabilidad de ganar, descendente.
// Los empates conservan el orden de primera aparición.
func Ranking(rows []domain.VerifiedSignal, dimension string) ([]domain.RankEntry, error) {
	var key func(domain.VerifiedSignal) string
	switch dimension {
	case DimensionColor:
		key = func(v domain.VerifiedSignal) string { return v.Color }
	case DimensionNumber:
		key = func(v domain.VerifiedSignal) string { return v.Number }
	default:
		return nil, ErrUnknownDimension
	}

	var order []string
	wins := make(map[string]int)
	counts := make(map[string]int)
	for _, r := range rows {
		k := key(r)
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
		if r.Verified {
			wins[k]++
		}
	}

	out := make([]domain.RankEntry, 0, len(order))
	for _, k := range order {
		out = append(out, domain.RankEntry{Value: k, WinPct: pct(wins[k], counts[k]), SampleSize: counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WinPct > out[j].WinPct
	})
	return out, nil
}

// BuildHeatmap construye la matriz color × number.
// Colores en orden de aparición; números en orden numérico si todos son enteros,
// si no lexicográfico. trendWindow <= 0 usa DefaultTrendWindow.
func BuildHeatmap(rows []domain.VerifiedSignal, trendWindow int) domain.Heatmap {
	if trendWindow <= 0 {
		trendWindow = DefaultTrendWindow
	}

	type acc struct {
		wins  int
		flags []bool
	}
	var colors, numbers []string
	seenColor := make(map[string]bool)
	seenNumber := make(map[string]bool)
	cells := make(map[string]map[string]*acc)

	for _, r := range rows {
		if !seenColor[r.Color] {
			seenColor[r.Color] = true
			colors = append(colors, r.Color)
		}
		if !seenNumber[r.Number] {
			seenNumber[r.Number] = true
			numbers = append(numbers, r.Number)
		}
		row, ok := cells[r.Color]
		if !ok {
			row = make(map[string]*acc)
			cells[r.Color] = row
		}
		a, ok := row[r.Number]
		if !ok {
			a = &acc{}
			row[r.Number] = a
		}
		a.flags = append(a.flags, r.Verified)
		if r.Verified {
			a.wins++
		}
	}
	sortNumbers(numbers)

	h := domain.Heatmap{
		Colors:  nonNil(colors),
		Numbers: nonNil(numbers),
		Cells:   make(map[string]map[string]domain.HeatCell, len(colors)),
	}
	for _, c := range colors {
		h.Cells[c] = make(map[string]domain.HeatCell, len(numbers))
		for _, n := range numbers {
			a, ok := cells[c][n]
			if !ok {
				h.Cells[c][n] = domain.HeatCell{RecentTrend: []bool{}}
				continue
			}
			start := max(0, len(a.flags)-trendWindow)
			h.Cells[c][n] = domain.HeatCell{
				WinPct:      pct(a.wins, len(a.flags)),
				RecentTrend: slices.Clone(a.flags[start:]),
			}
		}
	}
	return h
}

// sortNumbers ordena in-place: numéricamente si todos parsean como enteros.
func sortNumbers(numbers []string) {
	ints := make(map[string]int, len(numbers))
	for _, n := range numbers {
		v, err := strconv.Atoi(n)
		if err != nil {
			sort.Strings(numbers)
			return
		}
		ints[n] = v
	}
	sort.SliceStable(numbers, func(i, j int) bool { return ints[numbers[i]] < ints[numbers[j]] })
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
