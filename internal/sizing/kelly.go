// Package sizing computes Kelly-criterion capital allocation from rolling
// trade statistics, with conservative degradation for strategies that have
// not yet accrued enough history.
package sizing

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/arbot/internal/domain"
)

// Config holds the sizer's tunable policy values.
type Config struct {
	// MinSampleSize is how many resolved trades a strategy needs before the
	// Kelly formula is trusted; below it the conservative default applies.
	MinSampleSize int

	// HardCap is the absolute ceiling on the final capital fraction,
	// applied after every other limit.
	HardCap float64

	// StatsTTL bounds how long computed StrategyStats are trusted before
	// being recomputed from the trade history.
	StatsTTL time.Duration

	// HistoryCap bounds the in-memory outcome history; the oldest entries
	// are dropped first.
	HistoryCap int

	// VolatilityFactor is the default sizing discount when no external
	// volatility signal is wired.
	VolatilityFactor float64
}

func (c *Config) applyDefaults() {
	if c.MinSampleSize <= 0 {
		c.MinSampleSize = 10
	}
	if c.HardCap <= 0 {
		c.HardCap = 0.25
	}
	if c.StatsTTL <= 0 {
		c.StatsTTL = time.Hour
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 1000
	}
	if c.VolatilityFactor <= 0 {
		c.VolatilityFactor = 0.9
	}
}

// VolatilityFunc supplies an external market-volatility sizing discount in
// (0, 1]. Lower values shrink positions during elevated volatility.
type VolatilityFunc func() float64

// outcome is one resolved trade result in the bounded history.
type outcome struct {
	strategyKey string
	profit      float64
	capitalUsed float64
	recordedAt  time.Time
}

// Sizer computes position sizes from rolling per-strategy statistics. Stats
// are cached locally with a TTL and optionally shared through a StatsCache;
// both copies are invalidated when a new outcome arrives.
type Sizer struct {
	cfg        Config
	cache      domain.StatsCache // optional cross-process cache
	volatility VolatilityFunc

	mu      sync.Mutex
	history []outcome
	stats   map[string]domain.StatsEntry

	now    func() time.Time
	logger *slog.Logger
}

// NewSizer creates a Sizer. cache may be nil (purely in-process stats);
// volatility may be nil (the configured constant factor is used).
func NewSizer(cfg Config, cache domain.StatsCache, volatility VolatilityFunc, logger *slog.Logger) *Sizer {
	cfg.applyDefaults()
	return &Sizer{
		cfg:        cfg,
		cache:      cache,
		volatility: volatility,
		stats:      make(map[string]domain.StatsEntry),
		now:        time.Now,
		logger:     logger.With(slog.String("component", "kelly_sizer")),
	}
}

// Size returns the capital amount to commit for one opportunity of the
// given strategy. A strategy with fewer than MinSampleSize resolved trades
// gets the fixed conservative default of capital x maxPositionFraction/2;
// otherwise the raw Kelly fraction is risk-adjusted and capped.
func (s *Sizer) Size(ctx context.Context, strategyKey string, expectedProfitFraction, estimatedRisk, availableCapital, maxPositionFraction float64) float64 {
	if availableCapital <= 0 || maxPositionFraction <= 0 {
		return 0
	}

	stats, ok := s.strategyStats(ctx, strategyKey)
	if !ok || stats.SampleCount < s.cfg.MinSampleSize {
		sized := availableCapital * maxPositionFraction / 2
		s.logger.Debug("sizing with conservative default",
			slog.String("strategy_key", strategyKey),
			slog.Int("samples", stats.SampleCount),
			slog.Float64("sized_amount", sized),
		)
		return sized
	}

	raw := kellyFraction(stats.WinRate, stats.AvgWin, stats.AvgLoss)
	adjusted := s.adjust(raw, estimatedRisk, strategyKey)
	final := math.Min(adjusted, math.Min(maxPositionFraction, s.cfg.HardCap))

	s.logger.Debug("kelly sizing",
		slog.String("strategy_key", strategyKey),
		slog.Float64("expected_profit_fraction", expectedProfitFraction),
		slog.Float64("raw_fraction", raw),
		slog.Float64("adjusted_fraction", adjusted),
		slog.Float64("final_fraction", final),
	)
	return availableCapital * final
}

// kellyFraction computes f = (b*p - q)/b with b = avgWin/avgLoss, clamped
// to >= 0 so a negative-edge strategy never short-sizes into leverage.
func kellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgLoss <= 0 || avgWin <= 0 {
		return 0
	}
	b := avgWin / avgLoss
	f := (b*winRate - (1 - winRate)) / b
	return math.Max(0, f)
}

// adjust applies the risk discount, per-kind conservatism and the
// volatility factor, keeping the result in [0, HardCap].
func (s *Sizer) adjust(kelly, estimatedRisk float64, strategyKey string) float64 {
	riskAdj := 1 - 0.5*math.Max(0, math.Min(estimatedRisk, 1))
	kindFactor := domain.StrategyKind(strategyKey).ConservatismFactor()

	vol := s.cfg.VolatilityFactor
	if s.volatility != nil {
		if v := s.volatility(); v > 0 && v <= 1 {
			vol = v
		}
	}

	adjusted := kelly * riskAdj * kindFactor * vol
	return math.Max(0, math.Min(adjusted, s.cfg.HardCap))
}

// Candidate is one opportunity competing for capital in AllocatePortfolio.
type Candidate struct {
	OpportunityID  string
	StrategyKey    string
	ExpectedProfit float64
	RiskScore      float64
}

// AllocatePortfolio distributes totalCapital across candidates ranked by
// expected profit over risk, sizing each against the successively
// decremented remainder. The allocation order is deterministic: equal
// ratios are broken by opportunity ID.
func (s *Sizer) AllocatePortfolio(ctx context.Context, candidates []Candidate, totalCapital, maxPositionFraction float64) map[string]float64 {
	if len(candidates) == 0 || totalCapital <= 0 {
		return map[string]float64{}
	}

	ranked := append([]Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri := ranked[i].ExpectedProfit / math.Max(ranked[i].RiskScore, 0.1)
		rj := ranked[j].ExpectedProfit / math.Max(ranked[j].RiskScore, 0.1)
		if ri != rj {
			return ri > rj
		}
		return ranked[i].OpportunityID < ranked[j].OpportunityID
	})

	allocations := make(map[string]float64, len(ranked))
	remaining := totalCapital
	for _, c := range ranked {
		if remaining <= 0 {
			break
		}
		amount := s.Size(ctx, c.StrategyKey, c.ExpectedProfit, c.RiskScore, remaining, maxPositionFraction)
		if amount <= 0 {
			continue
		}
		allocations[c.OpportunityID] = amount
		remaining -= amount
	}
	return allocations
}

// RecordOutcome appends a resolved trade result to the bounded history and
// invalidates the cached statistics for the strategy so the next Size call
// recomputes them fresh.
func (s *Sizer) RecordOutcome(ctx context.Context, strategyKey string, profit, capitalUsed float64) {
	s.mu.Lock()
	s.history = append(s.history, outcome{
		strategyKey: strategyKey,
		profit:      profit,
		capitalUsed: capitalUsed,
		recordedAt:  s.now(),
	})
	if excess := len(s.history) - s.cfg.HistoryCap; excess > 0 {
		s.history = append([]outcome(nil), s.history[excess:]...)
	}
	delete(s.stats, strategyKey)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, strategyKey); err != nil {
			s.logger.Warn("stats cache invalidation failed",
				slog.String("strategy_key", strategyKey),
				slog.String("error", err.Error()),
			)
		}
	}
}

// strategyStats returns fresh statistics for the key, consulting the local
// TTL cache, then the shared cache, then recomputing from history. The
// boolean is false when there is not enough history to compute any stats.
func (s *Sizer) strategyStats(ctx context.Context, strategyKey string) (domain.StrategyStats, bool) {
	now := s.now()

	s.mu.Lock()
	if entry, ok := s.stats[strategyKey]; ok && entry.Fresh(now, s.cfg.StatsTTL) {
		s.mu.Unlock()
		return entry.Stats, true
	}
	s.mu.Unlock()

	if s.cache != nil {
		if entry, err := s.cache.Get(ctx, strategyKey); err == nil && entry.Fresh(now, s.cfg.StatsTTL) {
			s.mu.Lock()
			s.stats[strategyKey] = entry
			s.mu.Unlock()
			return entry.Stats, true
		}
	}

	stats, ok := s.computeStats(strategyKey)
	if !ok {
		return stats, false
	}
	entry := domain.StatsEntry{Stats: stats, ComputedAt: now}

	s.mu.Lock()
	s.stats[strategyKey] = entry
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Set(ctx, entry, s.cfg.StatsTTL); err != nil {
			s.logger.Warn("stats cache write failed",
				slog.String("strategy_key", strategyKey),
				slog.String("error", err.Error()),
			)
		}
	}
	return stats, true
}

// computeStats derives win rate and average win/loss from the bounded
// history. It needs at least one win and one loss; the Kelly payoff ratio
// is undefined otherwise.
func (s *Sizer) computeStats(strategyKey string) (domain.StrategyStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wins, losses []float64
	var count int
	for _, o := range s.history {
		if o.strategyKey != strategyKey {
			continue
		}
		count++
		switch {
		case o.profit > 0:
			wins = append(wins, o.profit)
		case o.profit < 0:
			losses = append(losses, -o.profit)
		}
	}

	stats := domain.StrategyStats{StrategyKey: strategyKey, SampleCount: count}
	if count < s.cfg.MinSampleSize || len(wins) == 0 || len(losses) == 0 {
		return stats, false
	}

	stats.WinRate = float64(len(wins)) / float64(count)
	stats.AvgWin = mean(wins)
	stats.AvgLoss = mean(losses)
	return stats, true
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
