package analytics

import (
	"sort"

	"github.com/alejandrodnm/signalbot/internal/domain"
)

// Leaderboard resume el rendimiento por source (bot).
// Orden: win rate desc, luego profit acumulado desc, luego orden de aparición.
func Leaderboard(rows []domain.VerifiedSignal) []domain.LeaderboardRow {
	type acc struct {
		row     domain.LeaderboardRow
		confSum float64
	}
	var order []string
	bySource := make(map[string]*acc)
	for _, r := range rows {
		a, ok := bySource[r.Source]
		if !ok {
			a = &acc{row: domain.LeaderboardRow{Source: r.Source}}
			bySource[r.Source] = a
			order = append(order, r.Source)
		}
		a.row.Total++
		if r.Verified {
			a.row.Wins++
		} else {
			a.row.Losses++
		}
		a.row.CumProfit += r.Profit()
		a.confSum += r.Confidence
	}

	out := make([]domain.LeaderboardRow, 0, len(order))
	for _, s := range order {
		a := bySource[s]
		a.row.WinRatePct = pct(a.row.Wins, a.row.Total)
		a.row.CumProfit = domain.Round2(a.row.CumProfit)
		a.row.AvgConfidence = domain.Round2(a.confSum / float64(a.row.Total))
		out = append(out, a.row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WinRatePct != out[j].WinRatePct {
			return out[i].WinRatePct > out[j].WinRatePct
		}
		return out[i].CumProfit > out[j].CumProfit
	})
	return out
}

// RollingWinRate devuelve, para cada fila, el % de aciertos de las últimas window filas
// (incluida ella). Las primeras filas usan la ventana parcial disponible.
func RollingWinRate(rows []domain.VerifiedSignal, window int) []domain.SeriesPoint {
	if window <= 0 {
		window = DefaultRollingWindow
	}
	out := make([]domain.SeriesPoint, 0, len(rows))
	wins := 0
	for i, r := range rows {
		if r.Verified {
			wins++
		}
		if i >= window && rows[i-window].Verified {
			wins--
		}
		n := min(i+1, window)
		out = append(out, domain.SeriesPoint{Index: i, Timestamp: r.Timestamp, Value: pct(wins, n)})
	}
	return out
}

// CumulativeProfit es la serie de P&L acumulado: +quantity si ganó, -quantity si no.
func CumulativeProfit(rows []domain.VerifiedSignal) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, 0, len(rows))
	total := 0.0
	for i, r := range rows {
		total += r.Profit()
		out = append(out, domain.SeriesPoint{Index: i, Timestamp: r.Timestamp, Value: domain.Round2(total)})
	}
	return out
}

// Recent devuelve las últimas n señales, la más nueva primero.
func Recent(rows []domain.VerifiedSignal, n int) []domain.VerifiedSignal {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	n = min(n, len(rows))
	out := make([]domain.VerifiedSignal, 0, n)
	for i := len(rows) - 1; i >= len(rows)-n; i-- {
		out = append(out, rows[i])
	}
	return out
}

// HighConfidence devuelve las señales con confidence >= threshold, la más nueva primero.
func HighConfidence(rows []domain.VerifiedSignal, threshold float64) []domain.VerifiedSignal {
	out := []domain.VerifiedSignal{}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Confidence >= threshold {
			out = append(out, rows[i])
		}
	}
	return out
}
