package ledger

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/arbot/internal/domain"
)

// MetricsConfig holds the statistical parameters for metric computation.
type MetricsConfig struct {
	// RiskFreeRate is the annual risk-free rate subtracted from per-trade
	// returns before the Sharpe ratio is computed.
	RiskFreeRate float64

	// AnnualizationFactor scales the per-trade Sharpe ratio to an annual
	// figure (252 for daily-equivalent trading periods).
	AnnualizationFactor float64
}

func (c *MetricsConfig) applyDefaults() {
	if c.RiskFreeRate == 0 {
		c.RiskFreeRate = 0.02
	}
	if c.AnnualizationFactor <= 0 {
		c.AnnualizationFactor = 252
	}
}

// computeMetrics derives PerformanceMetrics from a trade snapshot. It is a
// pure function: an empty input yields the zero metrics object, and the
// degenerate ratios follow the documented +Inf/0 conventions instead of
// panicking on division by zero.
func computeMetrics(trades []domain.TradeRecord, cfg MetricsConfig) domain.PerformanceMetrics {
	cfg.applyDefaults()

	var m domain.PerformanceMetrics
	if len(trades) == 0 {
		return m
	}

	m.TotalTrades = len(trades)

	var totalExecution time.Duration
	for _, t := range trades {
		m.TotalFees += t.Fees
		totalExecution += t.ExecutionTime
		switch {
		case t.ProfitLoss > 0:
			m.WinningTrades++
			m.GrossProfit += t.ProfitLoss
			if t.ProfitLoss > m.MaxProfit {
				m.MaxProfit = t.ProfitLoss
			}
		case t.ProfitLoss < 0:
			m.LosingTrades++
			m.GrossLoss += -t.ProfitLoss
			if t.ProfitLoss < m.MaxLoss {
				m.MaxLoss = t.ProfitLoss
			}
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.NetProfit = m.GrossProfit - m.GrossLoss - m.TotalFees
	m.AvgProfitPerTrade = m.NetProfit / float64(m.TotalTrades)
	m.AvgExecutionTime = totalExecution / time.Duration(len(trades))

	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	m.SharpeRatio = sharpeRatio(trades, cfg)
	m.MaxDrawdown = maxDrawdown(trades)

	switch {
	case m.MaxDrawdown > 0:
		m.RecoveryFactor = m.NetProfit / m.MaxDrawdown
	case m.NetProfit > 0:
		m.RecoveryFactor = math.Inf(1)
	}

	return m
}

// sharpeRatio computes the annualized Sharpe ratio over per-trade PnL.
// Fewer than two trades, or a flat PnL series, yields 0.
func sharpeRatio(trades []domain.TradeRecord, cfg MetricsConfig) float64 {
	if len(trades) < 2 {
		return 0
	}
	perPeriodRf := cfg.RiskFreeRate / cfg.AnnualizationFactor

	excess := make([]float64, len(trades))
	var sum float64
	for i, t := range trades {
		excess[i] = t.ProfitLoss - perPeriodRf
		sum += excess[i]
	}
	avg := sum / float64(len(excess))

	var variance float64
	for _, x := range excess {
		d := x - avg
		variance += d * d
	}
	variance /= float64(len(excess))
	if variance == 0 {
		return 0
	}
	return avg / math.Sqrt(variance) * math.Sqrt(cfg.AnnualizationFactor)
}

// maxDrawdown is the largest peak-to-trough drop in the cumulative PnL
// curve ordered by trade timestamp, ties broken by insertion order.
func maxDrawdown(trades []domain.TradeRecord) float64 {
	if len(trades) == 0 {
		return 0
	}

	ordered := append([]domain.TradeRecord(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var running, peak, maxDD float64
	peak = ordered[0].ProfitLoss
	for _, t := range ordered {
		running += t.ProfitLoss
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
