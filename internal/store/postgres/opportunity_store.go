package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Insert persists a detected opportunity. Re-inserting an existing ID is a
// no-op.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, instrument, buy_venue, sell_venue,
			buy_price, sell_price, profit_fraction, profit_notional,
			confidence, detected_at, expires_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		) ON CONFLICT (id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query,
		opp.ID, opp.Instrument, opp.BuyVenue, opp.SellVenue,
		opp.BuyPrice, opp.SellPrice, opp.ProfitFraction, opp.ProfitNotional,
		opp.Confidence, opp.DetectedAt, opp.ExpiresAt,
	); err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// MarkRouted flags an opportunity as having produced an execution plan. It
// returns domain.ErrNotFound when the ID is unknown.
func (s *OpportunityStore) MarkRouted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET routed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark opportunity %s routed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns the most recently detected opportunities.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instrument, buy_venue, sell_venue,
			buy_price, sell_price, profit_fraction, profit_notional,
			confidence, detected_at, expires_at
		FROM opportunities
		ORDER BY detected_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(
			&o.ID, &o.Instrument, &o.BuyVenue, &o.SellVenue,
			&o.BuyPrice, &o.SellPrice, &o.ProfitFraction, &o.ProfitNotional,
			&o.Confidence, &o.DetectedAt, &o.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
