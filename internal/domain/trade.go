package domain

import "time"

// TradeRecord is one resolved trade outcome reported by the execution
// collaborator. Records are append-only: never mutated after creation, only
// superseded by newer records.
type TradeRecord struct {
	ID            string        `json:"id"`
	StrategyKey   string        `json:"strategy_key"`
	Instrument    string        `json:"instrument"`
	Venue         string        `json:"venue"`
	Side          Side          `json:"side"`
	Amount        float64       `json:"amount"`
	EntryPrice    float64       `json:"entry_price"`
	ExitPrice     float64       `json:"exit_price"`
	ProfitLoss    float64       `json:"profit_loss"`
	Fees          float64       `json:"fees"`
	ExecutionTime time.Duration `json:"execution_time"`
	Slippage      float64       `json:"slippage"`
	Timestamp     time.Time     `json:"timestamp"`
	Success       bool          `json:"success"`
}

// VenueTier classifies a venue's reliability and fill-rate priors. The
// classification is supplied externally through configuration.
type VenueTier int

const (
	TierUnknown VenueTier = 0
	Tier1       VenueTier = 1
	Tier2       VenueTier = 2
	Tier3       VenueTier = 3
)
