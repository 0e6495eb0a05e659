package domain

import "time"

// ExecutionSlice is the portion of a larger order routed to one venue.
type ExecutionSlice struct {
	Venue               string        `json:"venue"`
	Instrument          string        `json:"instrument"`
	Side                Side          `json:"side"`
	Amount              float64       `json:"amount"`
	LimitPrice          float64       `json:"limit_price"`
	ExpectedFillLatency time.Duration `json:"expected_fill_latency"`
	EstimatedCost       float64       `json:"estimated_cost"`
}

// ExecutionPlan is a liquidity-aware allocation of an order across venues,
// produced by the router for one opportunity. A plan may cover less than the
// requested amount; Shortfall records the uncovered remainder and it is the
// caller's call whether a partially covered plan is still worth executing.
type ExecutionPlan struct {
	OpportunityID     string           `json:"opportunity_id"`
	TotalAmount       float64          `json:"total_amount"`
	Slices            []ExecutionSlice `json:"slices"`
	TotalCost         float64          `json:"total_cost"`
	EstimatedSlippage float64          `json:"estimated_slippage_fraction"`
	EstimatedDuration time.Duration    `json:"estimated_duration"`
	RiskScore         float64          `json:"risk_score"`
	Shortfall         float64          `json:"shortfall"`
}

// Scaled returns a copy of the plan with every slice amount and cost
// multiplied by factor in (0, 1]. Scaling down preserves the per-venue caps
// the router enforced, so the sizer can shrink a plan to the Kelly-sized
// notional without re-routing. Slippage, duration and risk are unchanged.
func (p ExecutionPlan) Scaled(factor float64) ExecutionPlan {
	if factor <= 0 || factor >= 1 {
		return p
	}
	out := p
	out.TotalAmount = p.TotalAmount * factor
	out.TotalCost = p.TotalCost * factor
	out.Shortfall = p.Shortfall * factor
	out.Slices = make([]ExecutionSlice, len(p.Slices))
	for i, s := range p.Slices {
		s.Amount *= factor
		s.EstimatedCost *= factor
		out.Slices[i] = s
	}
	return out
}
