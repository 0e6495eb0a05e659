// Package detect scans aggregated order-book state for spatial price
// dislocations between venues and turns qualifying spreads into
// Opportunities with a hard expiry.
package detect

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbot/internal/book"
	"github.com/alanyoungcy/arbot/internal/domain"
	"github.com/alanyoungcy/arbot/internal/obs"
)

// Config holds the detector's tunable policy values.
type Config struct {
	// MinProfitFraction is the minimum (sell_bid - buy_ask) / buy_ask a
	// venue pair must clear before an Opportunity is emitted.
	MinProfitFraction float64

	// OpportunityTTL bounds how long an emitted Opportunity stays valid.
	// Book-derived spreads decay fast, so this is typically seconds.
	OpportunityTTL time.Duration

	// Confidence weights. They shape a monotone score in top-of-book
	// liquidity, profit fraction and inverse feed latency; tunable policy,
	// not a law.
	LiquidityWeight float64
	ProfitWeight    float64
	LatencyWeight   float64

	// LiquidityNorm is the combined top-of-book quantity at which the
	// liquidity term saturates.
	LiquidityNorm float64
}

func (c *Config) applyDefaults() {
	if c.MinProfitFraction <= 0 {
		c.MinProfitFraction = 0.005
	}
	if c.OpportunityTTL <= 0 {
		c.OpportunityTTL = 3 * time.Second
	}
	if c.LiquidityWeight == 0 && c.ProfitWeight == 0 && c.LatencyWeight == 0 {
		c.LiquidityWeight = 0.4
		c.ProfitWeight = 0.35
		c.LatencyWeight = 0.25
	}
	if c.LiquidityNorm <= 0 {
		c.LiquidityNorm = 10
	}
}

// Detector scans the aggregator's consistent snapshots for profitable
// spreads. It holds no mutable state of its own.
type Detector struct {
	cfg    Config
	agg    *book.Aggregator
	now    func() time.Time
	logger *slog.Logger
}

// NewDetector creates a Detector reading from the given aggregator.
func NewDetector(cfg Config, agg *book.Aggregator, logger *slog.Logger) *Detector {
	cfg.applyDefaults()
	return &Detector{
		cfg:    cfg,
		agg:    agg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Scan examines every ordered venue pair in the instrument's non-stale
// snapshot and returns all qualifying opportunities, ranked by profit
// fraction descending with ties broken by combined top-of-book liquidity
// descending. Downstream consumers choose how many to act on.
func (d *Detector) Scan(instrument string) []domain.Opportunity {
	books := d.agg.Snapshot(instrument)

	venues := make([]string, 0, len(books))
	for v, bk := range books {
		// A venue whose own book is crossed is glitching; spreads priced
		// against it are not actionable.
		if bk.Crossed() {
			d.logger.Debug("skipping crossed book",
				slog.String("venue", v), slog.String("instrument", instrument))
			continue
		}
		venues = append(venues, v)
	}
	if len(venues) < 2 {
		return nil
	}
	// Deterministic pair iteration keeps equal-ranked output stable.
	sort.Strings(venues)

	now := d.now()
	type ranked struct {
		opp       domain.Opportunity
		liquidity float64
	}
	var found []ranked

	for _, buyVenue := range venues {
		for _, sellVenue := range venues {
			if buyVenue == sellVenue {
				continue
			}
			ask, hasAsk := books[buyVenue].BestAsk()
			bid, hasBid := books[sellVenue].BestBid()
			if !hasAsk || !hasBid {
				continue
			}

			profit := (bid.Price - ask.Price) / ask.Price
			if profit <= d.cfg.MinProfitFraction {
				continue
			}

			liquidity := ask.Quantity + bid.Quantity
			executable := ask.Quantity
			if bid.Quantity < executable {
				executable = bid.Quantity
			}

			found = append(found, ranked{
				opp: domain.Opportunity{
					ID:             uuid.NewString(),
					Instrument:     instrument,
					BuyVenue:       buyVenue,
					SellVenue:      sellVenue,
					BuyPrice:       ask.Price,
					SellPrice:      bid.Price,
					ProfitFraction: profit,
					ProfitNotional: executable * (bid.Price - ask.Price),
					Confidence:     d.confidence(profit, liquidity, buyVenue, sellVenue),
					DetectedAt:     now,
					ExpiresAt:      now.Add(d.cfg.OpportunityTTL),
				},
				liquidity: liquidity,
			})
		}
	}
	if len(found) == 0 {
		return nil
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].opp.ProfitFraction != found[j].opp.ProfitFraction {
			return found[i].opp.ProfitFraction > found[j].opp.ProfitFraction
		}
		return found[i].liquidity > found[j].liquidity
	})

	opps := make([]domain.Opportunity, len(found))
	for i, r := range found {
		opps[i] = r.opp
	}

	obs.OpportunitiesDetected.WithLabelValues(instrument).Add(float64(len(opps)))
	d.logger.Debug("scan found opportunities",
		slog.String("instrument", instrument),
		slog.Int("count", len(opps)),
		slog.Float64("best_profit_fraction", opps[0].ProfitFraction),
	)
	return opps
}

// confidence is a monotonically increasing function of liquidity depth,
// profit fraction and inverse venue round-trip latency, clamped to [0,1].
func (d *Detector) confidence(profit, liquidity float64, buyVenue, sellVenue string) float64 {
	liqScore := liquidity / d.cfg.LiquidityNorm
	if liqScore > 1 {
		liqScore = 1
	}

	// Saturate the profit term at 10x the entry threshold.
	profScore := profit / (10 * d.cfg.MinProfitFraction)
	if profScore > 1 {
		profScore = 1
	}

	lat := d.agg.Latency(buyVenue)
	if l := d.agg.Latency(sellVenue); l > lat {
		lat = l
	}
	latScore := 1.0 / (1.0 + lat.Seconds())

	score := d.cfg.LiquidityWeight*liqScore +
		d.cfg.ProfitWeight*profScore +
		d.cfg.LatencyWeight*latScore
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
