package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier (dashboard) y ports.Publisher (live feed).
type Console struct {
	out            io.Writer
	table          bool
	highConfidence float64

	mu sync.Mutex // las tablas y el feed no se intercalan
}

// NewConsole crea un notificador que escribe a stdout.
// table=false imprime una línea compacta por refresco.
func NewConsole(table bool, highConfidence float64) *Console {
	return &Console{out: os.Stdout, table: table, highConfidence: highConfidence}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, highConfidence: 75}
}

// Notify imprime el dashboard en el modo configurado.
func (c *Console) Notify(_ context.Context, d domain.Dashboard) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.Summary.Total == 0 {
		fmt.Fprintf(c.out, "[%s] no signals yet\n", clock(d.GeneratedAt))
		return nil
	}
	if c.table {
		c.printFull(d)
	} else {
		c.printCompact(d)
	}
	return nil
}

// Publish imprime una línea del live feed por cada señal persistida.
func (c *Console) Publish(_ context.Context, v domain.VerifiedSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mark := "✗"
	if v.Verified {
		mark = "✓"
	}
	line := fmt.Sprintf("[%s] #%d %s %s %s %s x%s %s %.2f%%",
		clock(v.Timestamp), v.PeriodID, sourceLabel(v.Source), v.Coin, v.Color, v.Number,
		trimFloat(v.Quantity), mark, v.Confidence)
	if c.highConfidence > 0 && v.Confidence >= c.highConfidence {
		line += "  !! HIGH CONFIDENCE"
	}
	fmt.Fprintln(c.out, line)
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(d domain.Dashboard) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d signals → %d ok (%.2f%%)",
		clock(d.GeneratedAt), d.Summary.Total, d.Summary.Correct, d.Summary.AccuracyPct)

	for i, r := range d.ColorRanking {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, " | %s %.1f%%", r.Value, r.WinPct)
	}
	if len(d.HighConfidence) > 0 {
		fmt.Fprintf(&sb, " | high:%d", len(d.HighConfidence))
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime todas las tablas del dashboard.
func (c *Console) printFull(d domain.Dashboard) {
	fmt.Fprintf(c.out, "\n[%s] %d signals — %d verified — accuracy %.2f%%\n",
		clock(d.GeneratedAt), d.Summary.Total, d.Summary.Correct, d.Summary.AccuracyPct)

	c.printLeaderboard(d.Leaderboard)
	c.printCoins(d.ByCoin)
	c.printRanking("Color", d.ColorRanking)
	c.printRanking("Number", d.NumberRanking)
	c.printHeatmap(d.Heatmap)
	c.printSignals("LATEST SIGNALS", d.Recent)
	if len(d.HighConfidence) > 0 {
		c.printSignals("HIGH CONFIDENCE", d.HighConfidence)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printLeaderboard(rows []domain.LeaderboardRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(c.out, "\n=== LEADERBOARD ===")
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Source", "Total", "Wins", "Losses", "Win%", "Profit", "AvgConf")
	for i, r := range rows {
		table.Append(
			fmt.Sprintf("%d", i+1),
			sourceLabel(r.Source),
			fmt.Sprintf("%d", r.Total),
			fmt.Sprintf("%d", r.Wins),
			fmt.Sprintf("%d", r.Losses),
			fmt.Sprintf("%.2f", r.WinRatePct),
			fmt.Sprintf("%+.2f", r.CumProfit),
			fmt.Sprintf("%.2f", r.AvgConfidence),
		)
	}
	table.Render()
}

func (c *Console) printCoins(byCoin map[string]float64) {
	if len(byCoin) == 0 {
		return
	}
	coins := make([]string, 0, len(byCoin))
	for coin := range byCoin {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	fmt.Fprintln(c.out, "\n=== ACCURACY BY COIN ===")
	table := tablewriter.NewWriter(c.out)
	table.Header("Coin", "Accuracy%")
	for _, coin := range coins {
		table.Append(coin, fmt.Sprintf("%.2f", byCoin[coin]))
	}
	table.Render()
}

func (c *Console) printRanking(dimension string, rows []domain.RankEntry) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n=== %s WIN PROBABILITY ===\n", strings.ToUpper(dimension))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", dimension, "Win%", "Samples")
	for i, r := range rows {
		table.Append(
			fmt.Sprintf("%d", i+1),
			r.Value,
			fmt.Sprintf("%.2f", r.WinPct),
			fmt.Sprintf("%d", r.SampleSize),
		)
	}
	table.Render()
}

// printHeatmap imprime una fila por color: win% y mini-trend por número.
func (c *Console) printHeatmap(h domain.Heatmap) {
	if len(h.Colors) == 0 {
		return
	}
	fmt.Fprintln(c.out, "\n=== HEATMAP (win% · trend) ===")
	table := tablewriter.NewWriter(c.out)
	header := append([]string{"Color"}, h.Numbers...)
	table.Header(toAny(header)...)
	for _, color := range h.Colors {
		row := []string{color}
		for _, n := range h.Numbers {
			cell := h.Cell(color, n)
			if len(cell.RecentTrend) == 0 {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%.0f %s", cell.WinPct, trendBar(cell.RecentTrend)))
		}
		table.Append(toAny(row)...)
	}
	table.Render()
}

func (c *Console) printSignals(title string, rows []domain.VerifiedSignal) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n=== %s ===\n", title)
	table := tablewriter.NewWriter(c.out)
	table.Header("Period", "Time", "Source", "Coin", "Color", "Number", "Qty", "OK", "Conf%")
	for _, v := range rows {
		ok := "✗"
		if v.Verified {
			ok = "✓"
		}
		table.Append(
			fmt.Sprintf("%d", v.PeriodID),
			clock(v.Timestamp),
			sourceLabel(v.Source),
			v.Coin,
			v.Color,
			v.Number,
			trimFloat(v.Quantity),
			ok,
			fmt.Sprintf("%.2f", v.Confidence),
		)
	}
	table.Render()
}

// PrintAccuracy imprime la serie de precisión por minuto (report).
func (c *Console) PrintAccuracy(points []domain.AccuracyPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(points) == 0 {
		fmt.Fprintln(c.out, "\n  No accuracy data available.")
		return
	}
	fmt.Fprintln(c.out, "\n=== ACCURACY OVER TIME ===")
	table := tablewriter.NewWriter(c.out)
	table.Header("Minute", "Accuracy%", "")
	for _, p := range points {
		table.Append(
			p.Minute.UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.2f", p.AccuracyPct),
			strings.Repeat("█", int(p.AccuracyPct/10)),
		)
	}
	table.Render()
}

// PrintSeries imprime una serie indexada (rolling win rate, profit acumulado).
func (c *Console) PrintSeries(title string, points []domain.SeriesPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(points) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n=== %s ===\n", strings.ToUpper(title))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time", "Value")
	for _, p := range points {
		table.Append(
			fmt.Sprintf("%d", p.Index+1),
			clock(p.Timestamp),
			fmt.Sprintf("%.2f", p.Value),
		)
	}
	table.Render()
}

// --- helpers ---

func clock(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("15:04:05")
}

func sourceLabel(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func trendBar(flags []bool) string {
	var sb strings.Builder
	for _, f := range flags {
		if f {
			sb.WriteString("▲")
		} else {
			sb.WriteString("▼")
		}
	}
	return sb.String()
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", f), "0"), ".")
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
