package domain

import (
	"context"
	"time"
)

// StatsCache shares computed StrategyStats across processes. Entries expire
// server-side after the configured TTL; Invalidate drops an entry eagerly
// when a new outcome arrives.
type StatsCache interface {
	Get(ctx context.Context, strategyKey string) (StatsEntry, error)
	Set(ctx context.Context, entry StatsEntry, ttl time.Duration) error
	Invalidate(ctx context.Context, strategyKey string) error
}

// OpportunityCache holds live opportunities under TTL keys so that external
// consumers observe the same hard expiry the core enforces.
type OpportunityCache interface {
	Put(ctx context.Context, opp Opportunity) error
	Get(ctx context.Context, id string) (Opportunity, error)
}

// SignalBus is the pub/sub fabric connecting the core to its collaborators:
// detected opportunities, built plans and recorded trades are published as
// JSON events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
