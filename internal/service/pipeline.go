// Package service runs the periodic scan pipeline: detect opportunities,
// route them across venues, size the resulting plans and publish the
// outcome for downstream execution collaborators.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbot/internal/detect"
	"github.com/alanyoungcy/arbot/internal/domain"
	"github.com/alanyoungcy/arbot/internal/route"
	"github.com/alanyoungcy/arbot/internal/sizing"
)

// spatialStrategyKey is the strategy key under which pipeline-built plans
// are sized and their outcomes recorded.
const spatialStrategyKey = string(domain.KindSpatial)

// PipelineConfig holds scan-loop parameters.
type PipelineConfig struct {
	Instruments         []string
	ScanInterval        time.Duration
	MaxTotalAmount      float64 // router per-plan base-amount ceiling
	MaxSlippageFraction float64
	AvailableCapital    float64 // quote units available to the sizer
	MaxPositionFraction float64
}

// Pipeline ties the detector, router and sizer into a single periodic scan.
// Storage, cache and bus dependencies are optional; the pipeline degrades to
// pure detection when they are absent.
type Pipeline struct {
	cfg      PipelineConfig
	detector *detect.Detector
	router   *route.Router
	sizer    *sizing.Sizer

	bus      domain.SignalBus        // optional event publishing
	oppStore domain.OpportunityStore // optional history
	oppCache domain.OpportunityCache // optional live lookup

	logger *slog.Logger
}

// NewPipeline creates a Pipeline. bus, oppStore and oppCache may be nil.
func NewPipeline(
	cfg PipelineConfig,
	detector *detect.Detector,
	router *route.Router,
	sizer *sizing.Sizer,
	bus domain.SignalBus,
	oppStore domain.OpportunityStore,
	oppCache domain.OpportunityCache,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		detector: detector,
		router:   router,
		sizer:    sizer,
		bus:      bus,
		oppStore: oppStore,
		oppCache: oppCache,
		logger:   logger.With(slog.String("component", "pipeline")),
	}
}

// Run executes the scan loop until the context is cancelled. Each tick scans
// every configured instrument independently; a failure on one instrument
// never blocks the others.
func (p *Pipeline) Run(ctx context.Context) error {
	interval := p.cfg.ScanInterval
	if interval <= 0 {
		interval = time.Second
	}

	p.logger.Info("pipeline: starting",
		slog.Int("instruments", len(p.cfg.Instruments)),
		slog.Duration("scan_interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline: stopping")
			return ctx.Err()
		case <-ticker.C:
			for _, instrument := range p.cfg.Instruments {
				p.scanInstrument(ctx, instrument)
			}
		}
	}
}

// scanInstrument runs one detection pass for an instrument and routes and
// sizes the best-ranked opportunity.
func (p *Pipeline) scanInstrument(ctx context.Context, instrument string) {
	opps := p.detector.Scan(instrument)
	if len(opps) == 0 {
		return
	}

	p.logger.Debug("pipeline: opportunities detected",
		slog.String("instrument", instrument),
		slog.Int("count", len(opps)),
	)

	for _, opp := range opps {
		p.recordOpportunity(ctx, opp)
	}

	// Route only the best-ranked opportunity; the rest expire on their TTL.
	best := opps[0]
	plan, err := p.router.Plan(best, p.cfg.MaxTotalAmount, p.cfg.MaxSlippageFraction)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoLiquidity), errors.Is(err, domain.ErrOpportunityExpired):
			p.logger.Debug("pipeline: plan skipped",
				slog.String("opportunity_id", best.ID),
				slog.String("reason", err.Error()),
			)
		default:
			p.logger.Error("pipeline: plan failed",
				slog.String("opportunity_id", best.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if p.oppStore != nil {
		if err := p.oppStore.MarkRouted(ctx, best.ID); err != nil {
			p.logger.Warn("pipeline: mark routed failed",
				slog.String("opportunity_id", best.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	// Size against the Kelly fraction and shrink the plan if the sized
	// notional is below what the router allocated.
	size := p.sizer.Size(ctx, spatialStrategyKey,
		best.ProfitFraction, plan.RiskScore,
		p.cfg.AvailableCapital, p.cfg.MaxPositionFraction)

	if plan.TotalCost > 0 && size < plan.TotalCost {
		plan = plan.Scaled(size / plan.TotalCost)
	}

	p.logger.Info("pipeline: plan built",
		slog.String("opportunity_id", best.ID),
		slog.String("instrument", instrument),
		slog.Float64("profit_fraction", best.ProfitFraction),
		slog.Float64("total_amount", plan.TotalAmount),
		slog.Float64("total_cost", plan.TotalCost),
		slog.Int("slices", len(plan.Slices)),
		slog.Float64("risk_score", plan.RiskScore),
	)

	p.publish(ctx, "plans", plan)
}

// recordOpportunity persists an opportunity to the history store and the
// live cache, and publishes it on the bus. All three are best-effort.
func (p *Pipeline) recordOpportunity(ctx context.Context, opp domain.Opportunity) {
	if p.oppStore != nil {
		if err := p.oppStore.Insert(ctx, opp); err != nil {
			p.logger.Warn("pipeline: opportunity persist failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.oppCache != nil {
		if err := p.oppCache.Put(ctx, opp); err != nil {
			p.logger.Warn("pipeline: opportunity cache failed",
				slog.String("opportunity_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	p.publish(ctx, "opportunities", opp)
}

// publish sends v as JSON on the signal bus. Publishing is best-effort; a
// failing bus never interrupts the scan.
func (p *Pipeline) publish(ctx context.Context, channel string, v any) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("pipeline: event encode failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.bus.Publish(ctx, channel, payload); err != nil {
		p.logger.Warn("pipeline: event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
