package route

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbot/internal/book"
	"github.com/alanyoungcy/arbot/internal/domain"
	"github.com/alanyoungcy/arbot/internal/obs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feedAsks(t *testing.T, agg *book.Aggregator, venue, instrument string, asks ...domain.PriceLevel) {
	t.Helper()
	err := agg.Update(domain.OrderBook{
		Venue:      venue,
		Instrument: instrument,
		Bids:       []domain.PriceLevel{{Price: asks[0].Price - 1, Quantity: 1}},
		Asks:       asks,
		ObservedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestPlanSideRejectsNonPositiveAmount(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, nil, testLogger())

	_, err := r.PlanSide("BTC-USDT", domain.SideBuy, 0, 0)
	require.Error(t, err)
	_, err = r.PlanSide("BTC-USDT", domain.SideBuy, -5, 0)
	require.Error(t, err)
}

func TestPlanSideNoLiquidity(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, nil, testLogger())

	_, err := r.PlanSide("BTC-USDT", domain.SideBuy, 10, 0)
	require.ErrorIs(t, err, domain.ErrNoLiquidity)
}

func TestPlanSideRespectsVenueAndDepthCaps(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, map[string]domain.VenueTier{
		"binance": domain.Tier1,
		"kraken":  domain.Tier2,
		"bybit":   domain.Tier3,
	}, testLogger())

	// Deep books everywhere: each venue is capped by the 40% venue share,
	// not by depth.
	feedAsks(t, agg, "binance", "BTC-USDT", domain.PriceLevel{Price: 100, Quantity: 50})
	feedAsks(t, agg, "kraken", "BTC-USDT", domain.PriceLevel{Price: 100.5, Quantity: 50})
	feedAsks(t, agg, "bybit", "BTC-USDT", domain.PriceLevel{Price: 101, Quantity: 50})

	plan, err := r.PlanSide("BTC-USDT", domain.SideBuy, 10, 0)
	require.NoError(t, err)
	require.Len(t, plan.Slices, 3)

	// Score order: tier bonuses dominate with equal depth and latency.
	assert.Equal(t, "binance", plan.Slices[0].Venue)
	assert.Equal(t, "kraken", plan.Slices[1].Venue)
	assert.Equal(t, "bybit", plan.Slices[2].Venue)

	// 40% of 10 on the first two venues, the remaining 20% on the third.
	assert.InDelta(t, 4.0, plan.Slices[0].Amount, 1e-9)
	assert.InDelta(t, 4.0, plan.Slices[1].Amount, 1e-9)
	assert.InDelta(t, 2.0, plan.Slices[2].Amount, 1e-9)

	assert.InDelta(t, 10.0, plan.TotalAmount, 1e-9)
	assert.InDelta(t, 0.0, plan.Shortfall, 1e-9)

	wantCost := 4*100.0 + 4*100.5 + 2*101.0
	assert.InDelta(t, wantCost, plan.TotalCost, 1e-9)
}

func TestPlanSideDepthCapAndShortfall(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, nil, testLogger())

	// One thin venue: slice capped at 80% of visible depth.
	feedAsks(t, agg, "binance", "BTC-USDT", domain.PriceLevel{Price: 100, Quantity: 2})

	plan, err := r.PlanSide("BTC-USDT", domain.SideBuy, 100, 0)
	require.NoError(t, err)
	require.Len(t, plan.Slices, 1)

	assert.InDelta(t, 1.6, plan.Slices[0].Amount, 1e-9) // 2 * 0.8
	assert.InDelta(t, 1.6, plan.TotalAmount, 1e-9)
	assert.InDelta(t, 98.4, plan.Shortfall, 1e-9)
}

func TestPlanSideSubMinimumResidualStaysPartial(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, nil, testLogger())

	feedAsks(t, agg, "binance", "BTC-USDT", domain.PriceLevel{Price: 100, Quantity: 50})
	feedAsks(t, agg, "kraken", "BTC-USDT", domain.PriceLevel{Price: 100, Quantity: 50})
	// Depth-capped third venue leaves a residual below the minimum slice:
	// 0.8 * 2.49375 = 1.995 of the remaining 2.0.
	feedAsks(t, agg, "bybit", "BTC-USDT", domain.PriceLevel{Price: 100, Quantity: 2.49375})

	partialBefore := testutil.ToFloat64(obs.PlansBuilt.WithLabelValues("partial"))

	plan, err := r.PlanSide("BTC-USDT", domain.SideBuy, 10, 0)
	require.NoError(t, err)
	require.Len(t, plan.Slices, 3)

	// The unroutable 0.005 residual is still a shortfall, and the coverage
	// metric agrees with the plan.
	assert.InDelta(t, 9.995, plan.TotalAmount, 1e-9)
	assert.InDelta(t, 0.005, plan.Shortfall, 1e-9)
	assert.Equal(t, partialBefore+1, testutil.ToFloat64(obs.PlansBuilt.WithLabelValues("partial")))
}

func TestPlanSideSlippageFilter(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, nil, testLogger())

	// Wide spread: mid 110, best ask 120, displacement ~9.1%.
	require.NoError(t, agg.Update(domain.OrderBook{
		Venue:      "wide",
		Instrument: "BTC-USDT",
		Bids:       []domain.PriceLevel{{Price: 100, Quantity: 5}},
		Asks:       []domain.PriceLevel{{Price: 120, Quantity: 5}},
		ObservedAt: time.Now(),
	}))
	// Tight spread: mid 100.05, best ask 100.1.
	require.NoError(t, agg.Update(domain.OrderBook{
		Venue:      "tight",
		Instrument: "BTC-USDT",
		Bids:       []domain.PriceLevel{{Price: 100, Quantity: 5}},
		Asks:       []domain.PriceLevel{{Price: 100.1, Quantity: 5}},
		ObservedAt: time.Now(),
	}))

	plan, err := r.PlanSide("BTC-USDT", domain.SideBuy, 2, 0.01)
	require.NoError(t, err)
	require.Len(t, plan.Slices, 1)
	assert.Equal(t, "tight", plan.Slices[0].Venue)

	// Without the cap both venues participate.
	plan, err = r.PlanSide("BTC-USDT", domain.SideBuy, 2, 0)
	require.NoError(t, err)
	assert.Len(t, plan.Slices, 2)
}

func TestPlanRejectsExpiredOpportunity(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, nil, testLogger())

	now := time.Now()
	r.now = func() time.Time { return now }

	opp := domain.Opportunity{
		ID:         "opp-1",
		Instrument: "BTC-USDT",
		ExpiresAt:  now, // deadline reached
	}
	_, err := r.Plan(opp, 10, 0)
	require.ErrorIs(t, err, domain.ErrOpportunityExpired)
}

func TestPlanCarriesOpportunityID(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, nil, testLogger())

	feedAsks(t, agg, "binance", "BTC-USDT", domain.PriceLevel{Price: 100, Quantity: 10})

	opp := domain.Opportunity{
		ID:         "opp-42",
		Instrument: "BTC-USDT",
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	plan, err := r.Plan(opp, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "opp-42", plan.OpportunityID)
	assert.Equal(t, domain.SideBuy, plan.Slices[0].Side)
}

func TestExecutionScore(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, map[string]domain.VenueTier{
		"tier1": domain.Tier1,
		"tier2": domain.Tier2,
		"tier3": domain.Tier3,
	}, testLogger())

	// base 0.5 + tier bonus + volume bonus (depth/100 * 0.2) - latency 0.
	assert.InDelta(t, 0.5+0.3+0.02, r.executionScore("tier1", 10, 0), 1e-12)
	assert.InDelta(t, 0.5+0.2+0.02, r.executionScore("tier2", 10, 0), 1e-12)
	assert.InDelta(t, 0.5+0.1+0.02, r.executionScore("tier3", 10, 0), 1e-12)
	assert.InDelta(t, 0.5+0.02, r.executionScore("unknown", 10, 0), 1e-12)

	// Volume bonus saturates at its cap.
	assert.InDelta(t, 1.0, r.executionScore("tier1", 1e6, 0), 1e-12)

	// Latency penalty saturates too: 0.5 + 0.3 + 0.2 - 0.2.
	assert.InDelta(t, 0.8, r.executionScore("tier1", 1e6, 10*time.Second), 1e-12)
}

func TestRiskScoreComposition(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, map[string]domain.VenueTier{"t1": domain.Tier1}, testLogger())

	assert.Equal(t, 1.0, r.riskScore(nil))

	// Single tier-1 slice, 1s expected latency:
	//   concentration = 1 - 1/10 = 0.9
	//   duration      = 1s / 5s  = 0.2
	//   tier          = 0 (all capital on tier 1)
	// risk = 0.3*0.9 + 0.4*0.2 + 0.3*0 = 0.35
	slices := []domain.ExecutionSlice{
		{Venue: "t1", Amount: 5, ExpectedFillLatency: time.Second},
	}
	assert.InDelta(t, 0.35, r.riskScore(slices), 1e-12)

	// Shift half the capital to an unknown-tier venue with no latency:
	//   concentration = 1 - 2/10 = 0.8
	//   duration      = 0.5s/5s  = 0.1
	//   tier          = 1 - 0.5  = 0.5
	// risk = 0.3*0.8 + 0.4*0.1 + 0.3*0.5 = 0.43
	slices = append(slices, domain.ExecutionSlice{Venue: "x", Amount: 5})
	assert.InDelta(t, 0.43, r.riskScore(slices), 1e-12)
}

func TestEstimateSlippageWeighting(t *testing.T) {
	agg := book.NewAggregator(book.Config{}, testLogger())
	r := NewRouter(Config{}, agg, nil, testLogger())

	liquidity := []venueLiquidity{
		{venue: "a", mid: 100},
		{venue: "b", mid: 200},
	}
	slices := []domain.ExecutionSlice{
		{Venue: "a", Amount: 3, LimitPrice: 101}, // 1% displacement
		{Venue: "b", Amount: 1, LimitPrice: 204}, // 2% displacement
	}
	// 0.01*(3/4) + 0.02*(1/4) = 0.0125
	assert.InDelta(t, 0.0125, r.estimateSlippage(slices, liquidity), 1e-12)
}

func TestScaledPlan(t *testing.T) {
	plan := domain.ExecutionPlan{
		OpportunityID: "opp-7",
		TotalAmount:   10,
		TotalCost:     1000,
		Shortfall:     2,
		RiskScore:     0.4,
		Slices: []domain.ExecutionSlice{
			{Venue: "a", Amount: 6, EstimatedCost: 600},
			{Venue: "b", Amount: 4, EstimatedCost: 400},
		},
	}

	scaled := plan.Scaled(0.5)
	assert.InDelta(t, 5.0, scaled.TotalAmount, 1e-12)
	assert.InDelta(t, 500.0, scaled.TotalCost, 1e-12)
	assert.InDelta(t, 3.0, scaled.Slices[0].Amount, 1e-12)
	assert.InDelta(t, 200.0, scaled.Slices[1].EstimatedCost, 1e-12)
	assert.Equal(t, 0.4, scaled.RiskScore)

	// Factors outside (0,1) leave the plan unchanged.
	assert.Equal(t, plan, plan.Scaled(0))
	assert.Equal(t, plan, plan.Scaled(1))
	assert.Equal(t, plan, plan.Scaled(1.5))

	// The original is untouched.
	assert.InDelta(t, 6.0, plan.Slices[0].Amount, 1e-12)
}
