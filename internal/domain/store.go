package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists resolved trade records. The ledger writes through to
// it and can rehydrate its in-memory window from it on startup.
type TradeStore interface {
	Insert(ctx context.Context, trade TradeRecord) error
	InsertBatch(ctx context.Context, trades []TradeRecord) error
	ListByStrategy(ctx context.Context, strategyKey string, opts ListOpts) ([]TradeRecord, error)
	ListRecent(ctx context.Context, limit int) ([]TradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// OpportunityStore persists detected opportunity history.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	MarkRouted(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
}

// TradeArchiver moves expired trade records to cold storage before the
// ledger drops them from its in-memory window.
type TradeArchiver interface {
	ArchiveTrades(ctx context.Context, trades []TradeRecord) error
}
