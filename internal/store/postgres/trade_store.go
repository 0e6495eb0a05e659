package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, strategy_key, instrument, venue, side, amount,
	entry_price, exit_price, profit_loss, fees, execution_time_ms, slippage,
	ts, success`

const tradeInsertQuery = `
	INSERT INTO trades (
		id, strategy_key, instrument, venue, side, amount,
		entry_price, exit_price, profit_loss, fees,
		execution_time_ms, slippage, ts, success
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, $13, $14
	) ON CONFLICT (id) DO NOTHING`

func tradeInsertArgs(t domain.TradeRecord) []any {
	return []any{
		t.ID, t.StrategyKey, t.Instrument, t.Venue, string(t.Side), t.Amount,
		t.EntryPrice, t.ExitPrice, t.ProfitLoss, t.Fees,
		t.ExecutionTime.Milliseconds(), t.Slippage, t.Timestamp, t.Success,
	}
}

// selectTrades runs a trade query and scans all rows, converting the stored
// side string and millisecond duration back to domain types.
func (s *TradeStore) selectTrades(ctx context.Context, label, query string, args ...any) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", label, err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t      domain.TradeRecord
			side   string
			execMs int64
		)
		if err := rows.Scan(
			&t.ID, &t.StrategyKey, &t.Instrument, &t.Venue, &side, &t.Amount,
			&t.EntryPrice, &t.ExitPrice, &t.ProfitLoss, &t.Fees,
			&execMs, &t.Slippage, &t.Timestamp, &t.Success,
		); err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", label, err)
		}
		t.Side = domain.Side(side)
		t.ExecutionTime = time.Duration(execMs) * time.Millisecond
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", label, err)
	}
	return trades, nil
}

// Insert persists a single trade record. Re-inserting an existing ID is a
// no-op, matching the append-only record semantics.
func (s *TradeStore) Insert(ctx context.Context, trade domain.TradeRecord) error {
	if _, err := s.pool.Exec(ctx, tradeInsertQuery, tradeInsertArgs(trade)...); err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// InsertBatch inserts multiple trades in one round trip using pgx Batch.
// Duplicate IDs are silently skipped via ON CONFLICT DO NOTHING.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(tradeInsertQuery, tradeInsertArgs(t)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range trades {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByStrategy returns trades for a strategy key with pagination and
// optional time filtering, newest first.
func (s *TradeStore) ListByStrategy(ctx context.Context, strategyKey string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	var q strings.Builder
	q.WriteString(`SELECT ` + tradeSelectCols + ` FROM trades WHERE strategy_key = $1`)
	args := []any{strategyKey}
	clause := func(format string, v any) {
		args = append(args, v)
		fmt.Fprintf(&q, format, len(args))
	}

	if opts.Since != nil {
		clause(" AND ts >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		clause(" AND ts <= $%d", *opts.Until)
	}
	q.WriteString(" ORDER BY ts DESC")
	if opts.Limit > 0 {
		clause(" LIMIT $%d", opts.Limit)
	}
	if opts.Offset > 0 {
		clause(" OFFSET $%d", opts.Offset)
	}

	return s.selectTrades(ctx, "list trades by strategy "+strategyKey, q.String(), args...)
}

// ListRecent returns the most recent trades across all strategies.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	return s.selectTrades(ctx, "list recent trades",
		`SELECT `+tradeSelectCols+` FROM trades ORDER BY ts DESC LIMIT $1`, limit)
}

// ListBefore returns all trades with a timestamp strictly before the cutoff,
// oldest first. Used to stage records for archiving.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	return s.selectTrades(ctx, fmt.Sprintf("list trades before %s", before),
		`SELECT `+tradeSelectCols+` FROM trades WHERE ts < $1 ORDER BY ts ASC`, before)
}

// DeleteBefore removes trades older than the cutoff and returns the number
// of rows deleted. Callers archive first, then delete.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}
