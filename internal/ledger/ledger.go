// Package ledger records resolved trade outcomes, derives performance
// metrics on demand, and closes the feedback loop into the position sizer.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbot/internal/domain"
	"github.com/alanyoungcy/arbot/internal/obs"
)

// dailyKeyLayout keys the per-day PnL rollup in a fixed reference timezone.
const dailyKeyLayout = "2006-01-02"

// Config holds the ledger's tunable values.
type Config struct {
	Metrics MetricsConfig

	// RetentionCount bounds the in-memory trade window. When exceeded, the
	// oldest records are archived (if an archiver is wired) and dropped.
	RetentionCount int

	// Location is the fixed reference timezone for the daily rollup.
	Location *time.Location

	// DailyRetentionDays bounds the daily PnL rollup; keys older than this
	// horizon are dropped. Windows requested beyond it read as zero.
	DailyRetentionDays int
}

func (c *Config) applyDefaults() {
	if c.RetentionCount <= 0 {
		c.RetentionCount = 10000
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.DailyRetentionDays <= 0 {
		c.DailyRetentionDays = 365
	}
}

// OutcomeSink receives every recorded outcome; the Kelly sizer implements
// it to keep its rolling statistics in step with the ledger.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, strategyKey string, profit, capitalUsed float64)
}

// Ledger is the append-only performance and risk ledger. Trade records are
// never mutated after creation; metrics are recomputed from the history on
// every request rather than held as a mutable aggregate.
type Ledger struct {
	cfg Config

	mu         sync.RWMutex
	trades     []domain.TradeRecord
	byStrategy map[string][]domain.TradeRecord
	dailyPnL   map[string]float64
	realized   float64

	store    domain.TradeStore    // optional write-through
	archiver domain.TradeArchiver // optional cold storage
	bus      domain.SignalBus     // optional event publication
	sink     OutcomeSink          // optional sizer feedback

	now    func() time.Time
	logger *slog.Logger
}

// Option configures optional ledger collaborators.
type Option func(*Ledger)

// WithStore write-throughs every record to the trade store.
func WithStore(store domain.TradeStore) Option {
	return func(l *Ledger) { l.store = store }
}

// WithArchiver archives records that fall out of the retention window.
func WithArchiver(archiver domain.TradeArchiver) Option {
	return func(l *Ledger) { l.archiver = archiver }
}

// WithBus publishes a trade event for every record.
func WithBus(bus domain.SignalBus) Option {
	return func(l *Ledger) { l.bus = bus }
}

// WithOutcomeSink forwards each outcome into the sizer's statistics.
func WithOutcomeSink(sink OutcomeSink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// New creates a Ledger.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Ledger {
	cfg.applyDefaults()
	l := &Ledger{
		cfg:        cfg,
		byStrategy: make(map[string][]domain.TradeRecord),
		dailyPnL:   make(map[string]float64),
		now:        time.Now,
		logger:     logger.With(slog.String("component", "ledger")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends a resolved trade, updates the daily rollup and strategy
// index, writes through to the store, publishes the event, and feeds the
// outcome sink. Store failures are surfaced to the caller; the in-memory
// record is kept either way so metrics never regress behind persistence.
func (l *Ledger) Record(ctx context.Context, trade domain.TradeRecord) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = l.now()
	}

	l.mu.Lock()
	l.trades = append(l.trades, trade)
	l.byStrategy[trade.StrategyKey] = append(l.byStrategy[trade.StrategyKey], trade)
	l.dailyPnL[trade.Timestamp.In(l.cfg.Location).Format(dailyKeyLayout)] += trade.ProfitLoss
	l.trimDailyLocked()
	l.realized += trade.ProfitLoss
	realized := l.realized
	evicted := l.evictLocked()
	l.mu.Unlock()

	obs.TradesRecorded.WithLabelValues(pnlResult(trade.ProfitLoss)).Inc()
	obs.RealizedPnL.Set(realized)

	l.logger.Info("trade recorded",
		slog.String("trade_id", trade.ID),
		slog.String("strategy_key", trade.StrategyKey),
		slog.String("instrument", trade.Instrument),
		slog.Float64("profit_loss", trade.ProfitLoss),
		slog.Bool("success", trade.Success),
	)

	if l.sink != nil {
		l.sink.RecordOutcome(ctx, trade.StrategyKey, trade.ProfitLoss, trade.Amount*trade.EntryPrice)
	}

	if l.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":        "trade_recorded",
			"trade_id":     trade.ID,
			"strategy_key": trade.StrategyKey,
			"instrument":   trade.Instrument,
			"profit_loss":  trade.ProfitLoss,
			"success":      trade.Success,
			"timestamp":    trade.Timestamp.Format(time.RFC3339Nano),
		})
		if err := l.bus.Publish(ctx, "trades", evt); err != nil {
			l.logger.Warn("trade event publish failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(evicted) > 0 {
		l.archive(ctx, evicted)
	}

	if l.store != nil {
		if err := l.store.Insert(ctx, trade); err != nil {
			return fmt.Errorf("ledger: persist trade %s: %w", trade.ID, err)
		}
	}
	return nil
}

// Metrics computes performance metrics over the filtered trade set.
// strategyKey filters by strategy when non-empty; lookbackDays > 0 limits
// the window. An empty filtered set yields the all-zero metrics object.
func (l *Ledger) Metrics(strategyKey string, lookbackDays int) domain.PerformanceMetrics {
	return computeMetrics(l.filtered(strategyKey, lookbackDays), l.cfg.Metrics)
}

// StrategyComparison computes metrics per strategy key over the full
// retained window.
func (l *Ledger) StrategyComparison() map[string]domain.PerformanceMetrics {
	l.mu.RLock()
	keys := make([]string, 0, len(l.byStrategy))
	for k := range l.byStrategy {
		keys = append(keys, k)
	}
	l.mu.RUnlock()

	out := make(map[string]domain.PerformanceMetrics, len(keys))
	for _, k := range keys {
		out[k] = l.Metrics(k, 0)
	}
	return out
}

// DailyPnL returns the per-day realized PnL for the trailing window, zero
// filled so every calendar day in the window is present.
func (l *Ledger) DailyPnL(days int) map[string]float64 {
	if days <= 0 {
		days = 30
	}
	now := l.now().In(l.cfg.Location)

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]float64, days)
	for i := days - 1; i >= 0; i-- {
		key := now.AddDate(0, 0, -i).Format(dailyKeyLayout)
		out[key] = l.dailyPnL[key]
	}
	return out
}

// GenerateReport assembles the full performance report as a nested mapping
// of scalars suitable for JSON serialization.
func (l *Ledger) GenerateReport(strategyKey string) map[string]any {
	return map[string]any{
		"overall_metrics":     l.Metrics(strategyKey, 0),
		"strategy_comparison": l.StrategyComparison(),
		"daily_pnl":           l.DailyPnL(30),
		"generated_at":        l.now().In(l.cfg.Location).Format(time.RFC3339),
	}
}

// Trades returns a copy of the retained trade window, oldest first.
func (l *Ledger) Trades() []domain.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.TradeRecord(nil), l.trades...)
}

func (l *Ledger) filtered(strategyKey string, lookbackDays int) []domain.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.trades
	if strategyKey != "" {
		src = l.byStrategy[strategyKey]
	}
	if lookbackDays <= 0 {
		return append([]domain.TradeRecord(nil), src...)
	}

	cutoff := l.now().AddDate(0, 0, -lookbackDays)
	out := make([]domain.TradeRecord, 0, len(src))
	for _, t := range src {
		if !t.Timestamp.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// evictLocked trims the retained window to RetentionCount and returns the
// evicted records, oldest first. Caller holds l.mu. The per-strategy index
// and rollups keep their aggregates; only the raw window shrinks.
func (l *Ledger) evictLocked() []domain.TradeRecord {
	excess := len(l.trades) - l.cfg.RetentionCount
	if excess <= 0 {
		return nil
	}
	evicted := append([]domain.TradeRecord(nil), l.trades[:excess]...)
	l.trades = append([]domain.TradeRecord(nil), l.trades[excess:]...)

	for _, t := range evicted {
		byKey := l.byStrategy[t.StrategyKey]
		if len(byKey) > 0 && byKey[0].ID == t.ID {
			l.byStrategy[t.StrategyKey] = byKey[1:]
		}
	}
	return evicted
}

// trimDailyLocked drops rollup keys older than the daily retention horizon.
// Caller holds l.mu. The day-key layout sorts lexicographically, so string
// comparison against the cutoff suffices.
func (l *Ledger) trimDailyLocked() {
	if len(l.dailyPnL) <= l.cfg.DailyRetentionDays {
		return
	}
	cutoff := l.now().In(l.cfg.Location).
		AddDate(0, 0, -(l.cfg.DailyRetentionDays - 1)).
		Format(dailyKeyLayout)
	for key := range l.dailyPnL {
		if key < cutoff {
			delete(l.dailyPnL, key)
		}
	}
}

func (l *Ledger) archive(ctx context.Context, trades []domain.TradeRecord) {
	if l.archiver == nil {
		return
	}
	if err := l.archiver.ArchiveTrades(ctx, trades); err != nil {
		l.logger.Warn("trade archive failed",
			slog.Int("count", len(trades)),
			slog.String("error", err.Error()),
		)
	}
}

func pnlResult(pnl float64) string {
	switch {
	case pnl > 0:
		return "win"
	case pnl < 0:
		return "loss"
	default:
		return "flat"
	}
}
