package domain

import (
	"encoding/json"
	"math"
	"time"
)

// PerformanceMetrics is a pure function of a filtered trade-history snapshot.
// It is recomputed on demand and never persisted as a mutable entity.
//
// ProfitFactor and RecoveryFactor may be +Inf (zero gross loss / zero
// drawdown with positive profit); both are 0 on an empty trade set.
type PerformanceMetrics struct {
	TotalTrades       int           `json:"total_trades"`
	WinningTrades     int           `json:"winning_trades"`
	LosingTrades      int           `json:"losing_trades"`
	WinRate           float64       `json:"win_rate"`
	GrossProfit       float64       `json:"gross_profit"`
	GrossLoss         float64       `json:"gross_loss"`
	TotalFees         float64       `json:"total_fees"`
	NetProfit         float64       `json:"net_profit"`
	AvgProfitPerTrade float64       `json:"avg_profit_per_trade"`
	MaxProfit         float64       `json:"max_profit"`
	MaxLoss           float64       `json:"max_loss"`
	ProfitFactor      float64       `json:"profit_factor"`
	SharpeRatio       float64       `json:"sharpe_ratio"`
	MaxDrawdown       float64       `json:"max_drawdown"`
	RecoveryFactor    float64       `json:"recovery_factor"`
	AvgExecutionTime  time.Duration `json:"avg_execution_time"`
}

// MarshalJSON renders the metrics with infinite ratios as null, since JSON
// has no representation for +Inf. In-memory consumers still see math.Inf.
func (m PerformanceMetrics) MarshalJSON() ([]byte, error) {
	type alias PerformanceMetrics
	out := struct {
		alias
		ProfitFactor   any `json:"profit_factor"`
		RecoveryFactor any `json:"recovery_factor"`
	}{alias: alias(m)}
	if !math.IsInf(m.ProfitFactor, 0) {
		out.ProfitFactor = m.ProfitFactor
	}
	if !math.IsInf(m.RecoveryFactor, 0) {
		out.RecoveryFactor = m.RecoveryFactor
	}
	return json.Marshal(out)
}
