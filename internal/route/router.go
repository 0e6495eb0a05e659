// Package route builds liquidity-aware execution plans. The router only
// reads aggregator state; it never places orders.
package route

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/arbot/internal/book"
	"github.com/alanyoungcy/arbot/internal/domain"
	"github.com/alanyoungcy/arbot/internal/obs"
)

// Config holds the router's tunable policy values. The score weights keep
// the additive-clamped-to-[0,1] shape; the exact numbers are policy, not law.
type Config struct {
	// DepthLevels is how many levels per side the router considers (K).
	DepthLevels int

	// MaxVenueShare caps any single venue at this fraction of the total
	// order. MaxDepthShare caps the slice at this fraction of the venue's
	// visible depth, reserving headroom against adverse selection.
	MaxVenueShare float64
	MaxDepthShare float64

	// MinSliceAmount skips venues whose eligible slice would be too small
	// to be worth routing.
	MinSliceAmount float64

	// Execution score terms.
	BaseScore         float64
	Tier1Bonus        float64
	Tier2Bonus        float64
	Tier3Bonus        float64
	VolumeBonusCap    float64
	VolumeNorm        float64
	LatencyPenaltyCap float64
	LatencyNorm       time.Duration

	// Risk score terms: weighted composite of venue concentration,
	// estimated duration and non-tier-1 capital share.
	ConcentrationWeight float64
	DurationWeight      float64
	TierWeight          float64
	VenueSpreadNorm     int
	DurationNorm        time.Duration
}

func (c *Config) applyDefaults() {
	if c.DepthLevels <= 0 {
		c.DepthLevels = 10
	}
	if c.MaxVenueShare <= 0 {
		c.MaxVenueShare = 0.4
	}
	if c.MaxDepthShare <= 0 {
		c.MaxDepthShare = 0.8
	}
	if c.MinSliceAmount <= 0 {
		c.MinSliceAmount = 0.01
	}
	if c.BaseScore <= 0 {
		c.BaseScore = 0.5
	}
	if c.Tier1Bonus <= 0 {
		c.Tier1Bonus = 0.3
	}
	if c.Tier2Bonus <= 0 {
		c.Tier2Bonus = 0.2
	}
	if c.Tier3Bonus <= 0 {
		c.Tier3Bonus = 0.1
	}
	if c.VolumeBonusCap <= 0 {
		c.VolumeBonusCap = 0.2
	}
	if c.VolumeNorm <= 0 {
		c.VolumeNorm = 100
	}
	if c.LatencyPenaltyCap <= 0 {
		c.LatencyPenaltyCap = 0.2
	}
	if c.LatencyNorm <= 0 {
		c.LatencyNorm = time.Second
	}
	if c.ConcentrationWeight == 0 && c.DurationWeight == 0 && c.TierWeight == 0 {
		c.ConcentrationWeight = 0.3
		c.DurationWeight = 0.4
		c.TierWeight = 0.3
	}
	if c.VenueSpreadNorm <= 0 {
		c.VenueSpreadNorm = 10
	}
	if c.DurationNorm <= 0 {
		c.DurationNorm = 5 * time.Second
	}
}

// Router allocates an order across venues in descending execution-score
// order, respecting per-venue caps.
type Router struct {
	cfg    Config
	agg    *book.Aggregator
	tiers  map[string]domain.VenueTier
	now    func() time.Time
	logger *slog.Logger
}

// NewRouter creates a Router. tiers is the externally supplied venue
// classification; unlisted venues are treated as below tier 3.
func NewRouter(cfg Config, agg *book.Aggregator, tiers map[string]domain.VenueTier, logger *slog.Logger) *Router {
	cfg.applyDefaults()
	if tiers == nil {
		tiers = map[string]domain.VenueTier{}
	}
	return &Router{
		cfg:    cfg,
		agg:    agg,
		tiers:  tiers,
		now:    time.Now,
		logger: logger.With(slog.String("component", "router")),
	}
}

// venueLiquidity is one venue's depth analysis for a single side.
type venueLiquidity struct {
	venue     string
	levels    []domain.PriceLevel
	depth     float64
	bestPrice float64
	mid       float64
	latency   time.Duration
	score     float64
}

// Plan builds the buy-leg execution plan for an opportunity, drawing on
// every non-stale venue holding the instrument, not only the opportunity's
// own venues. It fails closed with ErrOpportunityExpired for a dead
// opportunity and ErrNoLiquidity when no usable slice exists.
func (r *Router) Plan(opp domain.Opportunity, maxTotalAmount, maxSlippageFraction float64) (domain.ExecutionPlan, error) {
	if opp.Expired(r.now()) {
		return domain.ExecutionPlan{}, fmt.Errorf("route: opportunity %s: %w", opp.ID, domain.ErrOpportunityExpired)
	}
	plan, err := r.PlanSide(opp.Instrument, domain.SideBuy, maxTotalAmount, maxSlippageFraction)
	if err != nil {
		return domain.ExecutionPlan{}, fmt.Errorf("route: opportunity %s: %w", opp.ID, err)
	}
	plan.OpportunityID = opp.ID
	return plan, nil
}

// PlanSide is the general allocation engine behind Plan: it slices
// totalAmount of one side of an instrument across venues. Partially covered
// plans are returned as-is with the shortfall recorded; deciding whether a
// partial plan is worth executing belongs to the caller.
func (r *Router) PlanSide(instrument string, side domain.Side, totalAmount, maxSlippageFraction float64) (domain.ExecutionPlan, error) {
	if totalAmount <= 0 {
		return domain.ExecutionPlan{}, fmt.Errorf("total amount must be positive, got %v", totalAmount)
	}

	liquidity := r.analyzeLiquidity(instrument, side)
	if len(liquidity) == 0 {
		return domain.ExecutionPlan{}, domain.ErrNoLiquidity
	}

	sort.SliceStable(liquidity, func(i, j int) bool {
		if liquidity[i].score != liquidity[j].score {
			return liquidity[i].score > liquidity[j].score
		}
		return liquidity[i].venue < liquidity[j].venue
	})

	var (
		slices    []domain.ExecutionSlice
		remaining = totalAmount
	)
	for _, vl := range liquidity {
		if remaining <= 0 {
			break
		}
		amount := math.Min(remaining, math.Min(vl.depth*r.cfg.MaxDepthShare, totalAmount*r.cfg.MaxVenueShare))
		if amount < r.cfg.MinSliceAmount {
			continue
		}
		if maxSlippageFraction > 0 && vl.mid > 0 {
			if math.Abs(vl.bestPrice-vl.mid)/vl.mid > maxSlippageFraction {
				continue
			}
		}
		slices = append(slices, domain.ExecutionSlice{
			Venue:               vl.venue,
			Instrument:          instrument,
			Side:                side,
			Amount:              amount,
			LimitPrice:          vl.bestPrice,
			ExpectedFillLatency: vl.latency,
			EstimatedCost:       amount * vl.bestPrice,
		})
		remaining -= amount
	}
	if len(slices) == 0 {
		return domain.ExecutionPlan{}, domain.ErrNoLiquidity
	}

	plan := domain.ExecutionPlan{
		TotalAmount:       totalAmount - remaining,
		Slices:            slices,
		EstimatedSlippage: r.estimateSlippage(slices, liquidity),
		RiskScore:         r.riskScore(slices),
		Shortfall:         remaining,
	}
	for _, s := range slices {
		plan.TotalCost += s.EstimatedCost
		if s.ExpectedFillLatency > plan.EstimatedDuration {
			plan.EstimatedDuration = s.ExpectedFillLatency
		}
	}

	coverage := "full"
	if remaining > 0 {
		coverage = "partial"
		r.logger.Warn("plan covers less than requested amount",
			slog.String("instrument", instrument),
			slog.String("side", string(side)),
			slog.Float64("requested", totalAmount),
			slog.Float64("shortfall", remaining),
		)
	}
	obs.PlansBuilt.WithLabelValues(coverage).Inc()
	return plan, nil
}

// analyzeLiquidity pulls the top-K depth for the side from every non-stale
// venue and scores each venue's execution quality.
func (r *Router) analyzeLiquidity(instrument string, side domain.Side) []venueLiquidity {
	books := r.agg.Snapshot(instrument)
	out := make([]venueLiquidity, 0, len(books))
	for venue, bk := range books {
		levels := bk.Levels(side)
		if len(levels) == 0 {
			continue
		}
		if len(levels) > r.cfg.DepthLevels {
			levels = levels[:r.cfg.DepthLevels]
		}
		var depth float64
		for _, lvl := range levels {
			depth += lvl.Quantity
		}
		if depth <= 0 {
			continue
		}
		lat := r.agg.Latency(venue)
		out = append(out, venueLiquidity{
			venue:     venue,
			levels:    levels,
			depth:     depth,
			bestPrice: levels[0].Price,
			mid:       bk.MidPrice(),
			latency:   lat,
			score:     r.executionScore(venue, depth, lat),
		})
	}
	return out
}

// executionScore = base + tier_bonus + volume_bonus - latency_penalty,
// clamped to [0,1].
func (r *Router) executionScore(venue string, depth float64, latency time.Duration) float64 {
	var tierBonus float64
	switch r.tiers[venue] {
	case domain.Tier1:
		tierBonus = r.cfg.Tier1Bonus
	case domain.Tier2:
		tierBonus = r.cfg.Tier2Bonus
	case domain.Tier3:
		tierBonus = r.cfg.Tier3Bonus
	}
	volumeBonus := math.Min(depth/r.cfg.VolumeNorm*r.cfg.VolumeBonusCap, r.cfg.VolumeBonusCap)
	latencyPenalty := math.Min(float64(latency)/float64(r.cfg.LatencyNorm)*r.cfg.LatencyPenaltyCap, r.cfg.LatencyPenaltyCap)

	score := r.cfg.BaseScore + tierBonus + volumeBonus - latencyPenalty
	return math.Max(0, math.Min(score, 1))
}

// estimateSlippage is the liquidity-weighted average of
// |slice_price - mid| / mid across slices.
func (r *Router) estimateSlippage(slices []domain.ExecutionSlice, liquidity []venueLiquidity) float64 {
	mids := make(map[string]float64, len(liquidity))
	for _, vl := range liquidity {
		mids[vl.venue] = vl.mid
	}
	var totalAmount float64
	for _, s := range slices {
		totalAmount += s.Amount
	}
	if totalAmount <= 0 {
		return 0
	}
	var slippage float64
	for _, s := range slices {
		mid := mids[s.Venue]
		if mid <= 0 {
			continue
		}
		slippage += math.Abs(s.LimitPrice-mid) / mid * (s.Amount / totalAmount)
	}
	return slippage
}

// riskScore is a weighted composite: fewer venues used raises concentration
// risk, longer expected duration raises timing risk, and a smaller tier-1
// capital share raises counterparty risk. Clamped to [0,1].
func (r *Router) riskScore(slices []domain.ExecutionSlice) float64 {
	if len(slices) == 0 {
		return 1
	}

	concentration := 1 - math.Min(float64(len(slices))/float64(r.cfg.VenueSpreadNorm), 1)

	var totalLatency time.Duration
	for _, s := range slices {
		totalLatency += s.ExpectedFillLatency
	}
	avgLatency := totalLatency / time.Duration(len(slices))
	durationRisk := math.Min(float64(avgLatency)/float64(r.cfg.DurationNorm), 1)

	var total, tier1 float64
	for _, s := range slices {
		total += s.Amount
		if r.tiers[s.Venue] == domain.Tier1 {
			tier1 += s.Amount
		}
	}
	tierRisk := 1.0
	if total > 0 {
		tierRisk = 1 - tier1/total
	}

	score := r.cfg.ConcentrationWeight*concentration +
		r.cfg.DurationWeight*durationRisk +
		r.cfg.TierWeight*tierRisk
	return math.Max(0, math.Min(score, 1))
}
