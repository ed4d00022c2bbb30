package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/signalbot/internal/adapters/notify"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDashboard() domain.Dashboard {
	sig := domain.VerifiedSignal{
		Signal: domain.Signal{
			Timestamp: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
			Source:    "@ETHGPT60s_bot",
			Coin:      "ETH",
			Color:     "Red",
			Number:    "3",
			Quantity:  2,
			PeriodID:  42,
		},
		Verified:   true,
		Confidence: 80,
	}
	return domain.Dashboard{
		GeneratedAt:   time.Date(2025, 3, 1, 12, 31, 0, 0, time.UTC),
		Summary:       domain.Summary{Total: 3, Correct: 2, AccuracyPct: 66.67},
		ByCoin:        map[string]float64{"ETH": 66.67},
		ColorRanking:  []domain.RankEntry{{Value: "Red", WinPct: 80, SampleSize: 2}, {Value: "Green", WinPct: 30, SampleSize: 1}},
		NumberRanking: []domain.RankEntry{{Value: "3", WinPct: 66.67, SampleSize: 3}},
		Heatmap: domain.Heatmap{
			Colors:  []string{"Red", "Green"},
			Numbers: []string{"3"},
			Cells: map[string]map[string]domain.HeatCell{
				"Red":   {"3": {WinPct: 100, RecentTrend: []bool{true, true}}},
				"Green": {"3": {WinPct: 0, RecentTrend: []bool{false}}},
			},
		},
		Leaderboard: []domain.LeaderboardRow{{
			Source: "@ETHGPT60s_bot", Total: 3, Wins: 2, Losses: 1, WinRatePct: 66.67, CumProfit: 1.5, AvgConfidence: 55.5,
		}},
		Recent:         []domain.VerifiedSignal{sig},
		HighConfidence: []domain.VerifiedSignal{sig},
	}
}

func TestConsole_Notify_FullTables(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.Notify(context.Background(), makeDashboard()))

	out := buf.String()
	assert.Contains(t, out, "accuracy 66.67%")
	assert.Contains(t, out, "LEADERBOARD")
	assert.Contains(t, out, "@ETHGPT60s_bot")
	assert.Contains(t, out, "+1.50")
	assert.Contains(t, out, "COLOR WIN PROBABILITY")
	assert.Contains(t, out, "80.00")
	assert.Contains(t, out, "HEATMAP")
	assert.Contains(t, out, "▲▲")
	assert.Contains(t, out, "HIGH CONFIDENCE")
}

func TestConsole_Notify_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.Notify(context.Background(), makeDashboard()))

	out := buf.String()
	assert.Contains(t, out, "[12:31:00] 3 signals → 2 ok (66.67%)")
	assert.Contains(t, out, "Red 80.0%")
	assert.Contains(t, out, "high:1")
	assert.NotContains(t, out, "LEADERBOARD")
}

func TestConsole_Notify_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.Notify(context.Background(), domain.Dashboard{}))
	assert.Contains(t, buf.String(), "no signals yet")
}

func TestConsole_Publish(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	d := makeDashboard()
	n.Publish(context.Background(), d.Recent[0])

	out := buf.String()
	assert.Contains(t, out, "[12:30:00] #42 @ETHGPT60s_bot ETH Red 3 x2 ✓ 80.00%")
	assert.Contains(t, out, "HIGH CONFIDENCE")
}

func TestConsole_PrintAccuracyAndSeries(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintAccuracy([]domain.AccuracyPoint{
		{Minute: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), AccuracyPct: 50},
	})
	n.PrintSeries("rolling win rate", []domain.SeriesPoint{{Index: 0, Value: 100}})

	out := buf.String()
	assert.Contains(t, out, "2025-03-01 12:00")
	assert.Contains(t, out, "ROLLING WIN RATE")
	assert.Contains(t, out, "100.00")

	buf.Reset()
	n.PrintAccuracy(nil)
	assert.Contains(t, buf.String(), "No accuracy data available")
}
