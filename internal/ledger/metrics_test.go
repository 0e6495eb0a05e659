package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbot/internal/domain"
)

func tradesAt(base time.Time, pnls ...float64) []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(pnls))
	for i, pnl := range pnls {
		out[i] = domain.TradeRecord{
			StrategyKey:   "spatial",
			ProfitLoss:    pnl,
			ExecutionTime: 100 * time.Millisecond,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			Success:       pnl > 0,
		}
	}
	return out
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := computeMetrics(nil, MetricsConfig{})
	assert.Equal(t, domain.PerformanceMetrics{}, m)
}

func TestComputeMetricsHandComputed(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trades := tradesAt(base, 10, -4, 6, -2)
	trades[0].Fees = 1
	trades[1].Fees = 1
	trades[3].Fees = 0.5

	m := computeMetrics(trades, MetricsConfig{})

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 0.5, m.WinRate, 1e-12)
	assert.InDelta(t, 16.0, m.GrossProfit, 1e-12)
	assert.InDelta(t, 6.0, m.GrossLoss, 1e-12)
	assert.InDelta(t, 2.5, m.TotalFees, 1e-12)
	assert.InDelta(t, 7.5, m.NetProfit, 1e-12)
	assert.InDelta(t, 1.875, m.AvgProfitPerTrade, 1e-12)
	assert.InDelta(t, 10.0, m.MaxProfit, 1e-12)
	assert.InDelta(t, -4.0, m.MaxLoss, 1e-12)
	assert.InDelta(t, 16.0/6.0, m.ProfitFactor, 1e-12)
	assert.Equal(t, 100*time.Millisecond, m.AvgExecutionTime)

	// Cumulative PnL: 10, 6, 12, 10. Deepest trough below a peak is
	// 10 -> 6.
	assert.InDelta(t, 4.0, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 7.5/4.0, m.RecoveryFactor, 1e-12)
}

func TestComputeMetricsInfiniteRatios(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Only wins, no fees: zero gross loss and zero drawdown.
	m := computeMetrics(tradesAt(base, 5, 3), MetricsConfig{})
	assert.True(t, math.IsInf(m.ProfitFactor, 1))
	assert.True(t, math.IsInf(m.RecoveryFactor, 1))

	// Only losses: zero gross profit keeps the profit factor at 0, while
	// the negative net over a real drawdown turns the recovery factor
	// negative.
	m = computeMetrics(tradesAt(base, -5, -3), MetricsConfig{})
	assert.Zero(t, m.ProfitFactor)
	assert.InDelta(t, -8.0/3.0, m.RecoveryFactor, 1e-12)
}

func TestSharpeRatio(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := MetricsConfig{RiskFreeRate: 0.02, AnnualizationFactor: 252}

	// Fewer than two trades yields 0.
	assert.Zero(t, sharpeRatio(tradesAt(base, 5), cfg))

	// Flat PnL series has zero variance, so 0 again.
	assert.Zero(t, sharpeRatio(tradesAt(base, 2, 2, 2), cfg))

	// Alternating +/-1: excess deviations are exactly +/-1, so the standard
	// deviation is 1 and sharpe = -rf_per_period * sqrt(252) = -rf/sqrt(252).
	got := sharpeRatio(tradesAt(base, 1, -1, 1, -1), cfg)
	assert.InDelta(t, -0.02/math.Sqrt(252), got, 1e-12)
}

func TestMaxDrawdownOrdersByTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same trades given out of order must produce the same drawdown.
	trades := tradesAt(base, 10, -4, -8, 6)
	shuffled := []domain.TradeRecord{trades[2], trades[0], trades[3], trades[1]}

	// Cumulative: 10, 6, -2, 4. Peak 10, trough -2.
	require.InDelta(t, 12.0, maxDrawdown(trades), 1e-12)
	assert.InDelta(t, 12.0, maxDrawdown(shuffled), 1e-12)

	assert.Zero(t, maxDrawdown(nil))
}
