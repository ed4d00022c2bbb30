package domain

import "time"

// Summary es la precisión global sobre la tabla de señales verificadas.
type Summary struct {
	Total       int     `json:"total"`
	Correct     int     `json:"correct"`
	AccuracyPct float64 `json:"accuracy_pct"`
}

// AccuracyPoint es la precisión de un bucket de tiempo (un minuto).
type AccuracyPoint struct {
	Minute      time.Time `json:"minute"`
	AccuracyPct float64   `json:"accuracy_pct"`
}

// RankEntry es un valor de color o número con su probabilidad de ganar.
type RankEntry struct {
	Value      string  `json:"value"`
	WinPct     float64 `json:"win_probability_pct"`
	SampleSize int     `json:"samples"`
}

// HeatCell es una celda (color, number) del heatmap.
type HeatCell struct {
	WinPct      float64 `json:"win_pct"`
	RecentTrend []bool  `json:"recent_trend"` // más antiguo → más reciente
}

// Heatmap es la matriz color × number con los ejes ya ordenados.
type Heatmap struct {
	Colors  []string                       `json:"colors"`
	Numbers []string                       `json:"numbers"`
	Cells   map[string]map[string]HeatCell `json:"cells"` // Cells[color][number]
}

// Cell devuelve la celda para (color, number); vacía si no hay datos.
func (h Heatmap) Cell(color, number string) HeatCell {
	if row, ok := h.Cells[color]; ok {
		if c, ok := row[number]; ok {
			return c
		}
	}
	return HeatCell{RecentTrend: []bool{}}
}

// LeaderboardRow es el resumen por source (bot) del dashboard original.
type LeaderboardRow struct {
	Source        string  `json:"source"`
	Total         int     `json:"total"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRatePct    float64 `json:"win_rate_pct"`
	CumProfit     float64 `json:"cum_profit"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// SeriesPoint es un punto de una serie indexada por posición en la tabla.
type SeriesPoint struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Dashboard es el snapshot completo que consume la capa de presentación.
type Dashboard struct {
	GeneratedAt    time.Time
	Summary        Summary
	ByCoin         map[string]float64
	ColorRanking   []RankEntry
	NumberRanking  []RankEntry
	Heatmap        Heatmap
	Leaderboard    []LeaderboardRow
	Recent         []VerifiedSignal
	HighConfidence []VerifiedSignal
}
