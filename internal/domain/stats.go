package domain

import "time"

// StrategyStats are the rolling trade statistics the Kelly sizer consumes.
// They are recomputed from the trade history whenever the cached value goes
// stale; a cached entry is never trusted indefinitely.
type StrategyStats struct {
	StrategyKey string  `json:"strategy_key"`
	WinRate     float64 `json:"win_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
	SampleCount int     `json:"sample_count"`
}

// StrategyKind is the closed set of strategy families the sizer knows how
// to discount. Unknown kinds fall back to the default conservatism factor.
type StrategyKind string

const (
	KindSpatial     StrategyKind = "spatial"
	KindTriangular  StrategyKind = "triangular"
	KindCrossChain  StrategyKind = "cross_chain"
	KindFundingRate StrategyKind = "funding_rate"
	KindStatistical StrategyKind = "statistical"
)

// defaultConservatism applies to kinds outside the closed set; deliberately
// on the cautious side of the known factors.
const defaultConservatism = 0.7

var conservatismByKind = map[StrategyKind]float64{
	KindSpatial:     0.8, // execution risk only
	KindTriangular:  0.7, // multi-leg complexity
	KindCrossChain:  0.6, // bridge risk
	KindFundingRate: 0.9,
	KindStatistical: 0.5,
}

// ConservatismFactor returns the per-kind sizing multiplier. More novel or
// complex strategy kinds get a lower multiplier.
func (k StrategyKind) ConservatismFactor() float64 {
	if f, ok := conservatismByKind[k]; ok {
		return f
	}
	return defaultConservatism
}

// StatsEntry is a cached StrategyStats value with its computation time;
// staleness is checked at read time against the configured TTL.
type StatsEntry struct {
	Stats      StrategyStats `json:"stats"`
	ComputedAt time.Time     `json:"computed_at"`
}

// Fresh reports whether the entry is still within ttl as of now.
func (e StatsEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.ComputedAt) < ttl
}
