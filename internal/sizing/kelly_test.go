package sizing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedOutcomes records wins of +avgWin and losses of -avgLoss so the
// computed stats land exactly on the requested win rate.
func seedOutcomes(s *Sizer, key string, wins, losses int, avgWin, avgLoss float64) {
	ctx := context.Background()
	for i := 0; i < wins; i++ {
		s.RecordOutcome(ctx, key, avgWin, 1000)
	}
	for i := 0; i < losses; i++ {
		s.RecordOutcome(ctx, key, -avgLoss, 1000)
	}
}

func TestKellyFraction(t *testing.T) {
	// b = 100/50 = 2, f = (2*0.6 - 0.4) / 2 = 0.4.
	assert.InDelta(t, 0.4, kellyFraction(0.6, 100, 50), 1e-12)

	// Negative edge clamps to zero, never short-sizes.
	assert.Equal(t, 0.0, kellyFraction(0.2, 50, 100))

	// Degenerate payoff inputs.
	assert.Equal(t, 0.0, kellyFraction(0.6, 0, 50))
	assert.Equal(t, 0.0, kellyFraction(0.6, 100, 0))
}

func TestSizeConservativeDefaultBelowMinSamples(t *testing.T) {
	s := NewSizer(Config{MinSampleSize: 10}, nil, nil, testLogger())

	// No history at all: capital * maxPositionFraction / 2.
	got := s.Size(context.Background(), "spatial:BTC-USDT", 0.02, 0.3, 10000, 0.1)
	assert.InDelta(t, 500.0, got, 1e-9)

	// Still conservative with some, but not enough, history.
	seedOutcomes(s, "spatial:BTC-USDT", 4, 2, 100, 50)
	got = s.Size(context.Background(), "spatial:BTC-USDT", 0.02, 0.3, 10000, 0.1)
	assert.InDelta(t, 500.0, got, 1e-9)
}

func TestSizeKellyWithRiskAdjustment(t *testing.T) {
	s := NewSizer(Config{MinSampleSize: 10}, nil, nil, testLogger())

	// 6 wins of 100, 4 losses of 50: winRate 0.6, kelly 0.4.
	seedOutcomes(s, "spatial", 6, 4, 100, 50)

	// adjusted = 0.4 * (1 - 0.5*0.5) * 0.8 (spatial) * 0.9 (default vol)
	//          = 0.4 * 0.75 * 0.72 = 0.216
	// final = min(0.216, min(maxPositionFraction=0.25, hardCap=0.25)) = 0.216
	got := s.Size(context.Background(), "spatial", 0.02, 0.5, 10000, 0.25)
	assert.InDelta(t, 2160.0, got, 1e-6)
}

func TestSizeHardCap(t *testing.T) {
	s := NewSizer(Config{MinSampleSize: 10, HardCap: 0.25}, nil, func() float64 { return 1 }, testLogger())

	// Huge edge: 9 wins of 500, 1 loss of 10. Kelly well above the cap.
	seedOutcomes(s, "funding_rate", 9, 1, 500, 10)

	// Zero risk, volatility 1, funding_rate conservatism 0.9: adjusted kelly
	// still exceeds 0.25 and must clamp there.
	got := s.Size(context.Background(), "funding_rate", 0.05, 0, 10000, 0.9)
	assert.InDelta(t, 2500.0, got, 1e-6)
}

func TestSizeGuardsDegenerateInputs(t *testing.T) {
	s := NewSizer(Config{}, nil, nil, testLogger())
	assert.Zero(t, s.Size(context.Background(), "spatial:X", 0.02, 0.3, 0, 0.1))
	assert.Zero(t, s.Size(context.Background(), "spatial:X", 0.02, 0.3, 10000, 0))
}

func TestStrategyKindConservatism(t *testing.T) {
	assert.Equal(t, 0.8, domain.KindSpatial.ConservatismFactor())
	assert.Equal(t, 0.5, domain.KindStatistical.ConservatismFactor())
	assert.Equal(t, 0.7, domain.StrategyKind("made_up").ConservatismFactor())
}

func TestRecordOutcomeBoundsHistory(t *testing.T) {
	s := NewSizer(Config{HistoryCap: 5}, nil, nil, testLogger())

	for i := 0; i < 12; i++ {
		s.RecordOutcome(context.Background(), "spatial:X", float64(i), 100)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.history, 5)
	// Oldest entries dropped first.
	assert.Equal(t, 7.0, s.history[0].profit)
	assert.Equal(t, 11.0, s.history[4].profit)
}

func TestRecordOutcomeInvalidatesLocalStats(t *testing.T) {
	s := NewSizer(Config{MinSampleSize: 4}, nil, nil, testLogger())

	seedOutcomes(s, "spatial:X", 3, 1, 100, 50)
	_ = s.Size(context.Background(), "spatial:X", 0.02, 0, 10000, 0.25)

	s.mu.Lock()
	_, cached := s.stats["spatial:X"]
	s.mu.Unlock()
	require.True(t, cached)

	s.RecordOutcome(context.Background(), "spatial:X", -20, 100)

	s.mu.Lock()
	_, cached = s.stats["spatial:X"]
	s.mu.Unlock()
	assert.False(t, cached, "a new outcome must invalidate the cached stats")
}

func TestComputeStatsNeedsWinsAndLosses(t *testing.T) {
	s := NewSizer(Config{MinSampleSize: 3}, nil, nil, testLogger())

	// All wins: payoff ratio undefined, Kelly not trusted.
	seedOutcomes(s, "spatial:X", 5, 0, 100, 0)
	_, ok := s.computeStats("spatial:X")
	assert.False(t, ok)

	s.RecordOutcome(context.Background(), "spatial:X", -50, 100)
	stats, ok := s.computeStats("spatial:X")
	require.True(t, ok)
	assert.Equal(t, 6, stats.SampleCount)
	assert.InDelta(t, 5.0/6.0, stats.WinRate, 1e-12)
	assert.InDelta(t, 100.0, stats.AvgWin, 1e-12)
	assert.InDelta(t, 50.0, stats.AvgLoss, 1e-12)
}

// memStatsCache is an in-memory domain.StatsCache for exercising the shared
// cache path without a live redis.
type memStatsCache struct {
	mu          sync.Mutex
	entries     map[string]domain.StatsEntry
	invalidated []string
}

func newMemStatsCache() *memStatsCache {
	return &memStatsCache{entries: make(map[string]domain.StatsEntry)}
}

func (c *memStatsCache) Get(_ context.Context, strategyKey string) (domain.StatsEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[strategyKey]
	if !ok {
		return domain.StatsEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

func (c *memStatsCache) Set(_ context.Context, entry domain.StatsEntry, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Stats.StrategyKey] = entry
	return nil
}

func (c *memStatsCache) Invalidate(_ context.Context, strategyKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, strategyKey)
	c.invalidated = append(c.invalidated, strategyKey)
	return nil
}

func TestSharedCacheRoundTrip(t *testing.T) {
	cache := newMemStatsCache()
	s := NewSizer(Config{MinSampleSize: 4}, cache, nil, testLogger())

	seedOutcomes(s, "spatial:X", 3, 1, 100, 50)
	_ = s.Size(context.Background(), "spatial:X", 0.02, 0, 10000, 0.25)

	// Computed stats were written through to the shared cache.
	entry, err := cache.Get(context.Background(), "spatial:X")
	require.NoError(t, err)
	assert.Equal(t, 4, entry.Stats.SampleCount)

	// New outcomes invalidate both copies.
	s.RecordOutcome(context.Background(), "spatial:X", 10, 100)
	assert.Contains(t, cache.invalidated, "spatial:X")
	_, err = cache.Get(context.Background(), "spatial:X")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSharedCacheHitSkipsRecompute(t *testing.T) {
	cache := newMemStatsCache()
	s := NewSizer(Config{MinSampleSize: 10, StatsTTL: time.Hour}, cache, func() float64 { return 1 }, testLogger())

	now := time.Now()
	s.now = func() time.Time { return now }

	// Another process already computed stats; this sizer has no history.
	require.NoError(t, cache.Set(context.Background(), domain.StatsEntry{
		Stats: domain.StrategyStats{
			StrategyKey: "spatial",
			WinRate:     0.6,
			AvgWin:      100,
			AvgLoss:     50,
			SampleCount: 40,
		},
		ComputedAt: now.Add(-time.Minute),
	}, time.Hour))

	// kelly 0.4 * riskAdj 1 * spatial 0.8 * vol 1 = 0.32, capped at 0.25.
	got := s.Size(context.Background(), "spatial", 0.02, 0, 10000, 0.5)
	assert.InDelta(t, 2500.0, got, 1e-6)
}

func TestAllocatePortfolioDeterministic(t *testing.T) {
	s := NewSizer(Config{MinSampleSize: 10}, nil, nil, testLogger())

	candidates := []Candidate{
		{OpportunityID: "b", StrategyKey: "spatial:X", ExpectedProfit: 0.02, RiskScore: 0.4},
		{OpportunityID: "a", StrategyKey: "spatial:X", ExpectedProfit: 0.02, RiskScore: 0.4},
		{OpportunityID: "c", StrategyKey: "spatial:X", ExpectedProfit: 0.05, RiskScore: 0.4},
	}

	// All strategies size conservatively: remaining * 0.1 / 2 at each step.
	// c ranks first (highest profit/risk), then a before b on ID.
	got := s.AllocatePortfolio(context.Background(), candidates, 10000, 0.1)
	require.Len(t, got, 3)
	assert.InDelta(t, 500.0, got["c"], 1e-9)
	assert.InDelta(t, 475.0, got["a"], 1e-9)
	assert.InDelta(t, 451.25, got["b"], 1e-9)

	assert.Empty(t, s.AllocatePortfolio(context.Background(), nil, 10000, 0.1))
	assert.Empty(t, s.AllocatePortfolio(context.Background(), candidates, 0, 0.1))
}
