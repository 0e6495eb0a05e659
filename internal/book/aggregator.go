// Package book holds the latest order-book snapshot per (venue, instrument)
// and is the single piece of shared mutable state in the core. All mutation
// goes through Update, all reads through Snapshot.
package book

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbot/internal/domain"
	"github.com/alanyoungcy/arbot/internal/obs"
)

// Config holds the aggregator's tunable policy values.
type Config struct {
	// StalenessWindow excludes a venue from Snapshot when its book has not
	// been refreshed within this duration. The detector must never act on
	// stale liquidity.
	StalenessWindow time.Duration

	// LatencyAlpha is the EWMA smoothing factor for observed feed latency.
	LatencyAlpha float64
}

// instrumentBooks guards the per-venue snapshots of one instrument. Keeping
// the lock per instrument means concurrent updates to unrelated instruments
// never serialize against each other.
type instrumentBooks struct {
	mu      sync.RWMutex
	byVenue map[string]domain.OrderBook
}

// Aggregator normalizes and holds the latest book per (venue, instrument).
// Snapshot replacement is atomic: readers always see a fully formed book,
// never a partially applied update.
type Aggregator struct {
	cfg         Config
	instruments sync.Map // instrument -> *instrumentBooks

	latMu     sync.RWMutex
	latencies map[string]time.Duration // venue -> EWMA feed latency

	now    func() time.Time
	logger *slog.Logger
}

// NewAggregator creates an Aggregator with the given policy values.
func NewAggregator(cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 5 * time.Second
	}
	if cfg.LatencyAlpha <= 0 || cfg.LatencyAlpha > 1 {
		cfg.LatencyAlpha = 0.2
	}
	return &Aggregator{
		cfg:       cfg,
		latencies: make(map[string]time.Duration),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "book_aggregator")),
	}
}

// Update validates and applies a wholesale snapshot replacement for
// (book.Venue, book.Instrument). Malformed books fail with ErrInvalidBook;
// updates older than the held snapshot are dropped with ErrStaleBook. In
// both cases the previously held state is retained untouched.
func (a *Aggregator) Update(book domain.OrderBook) error {
	if book.Venue == "" || book.Instrument == "" {
		return fmt.Errorf("%w: missing venue or instrument", domain.ErrInvalidBook)
	}
	if book.ObservedAt.IsZero() {
		return fmt.Errorf("%w: missing observed_at timestamp", domain.ErrInvalidBook)
	}
	if err := book.Validate(); err != nil {
		obs.BookUpdates.WithLabelValues(book.Venue, "invalid").Inc()
		return err
	}

	// Take ownership of the level slices so later caller mutation cannot
	// leak into held state.
	book.Bids = append([]domain.PriceLevel(nil), book.Bids...)
	book.Asks = append([]domain.PriceLevel(nil), book.Asks...)

	entry := a.booksFor(book.Instrument)

	entry.mu.Lock()
	if held, ok := entry.byVenue[book.Venue]; ok && !book.ObservedAt.After(held.ObservedAt) {
		entry.mu.Unlock()
		obs.BookUpdates.WithLabelValues(book.Venue, "stale").Inc()
		return fmt.Errorf("%w: %s/%s observed_at %s <= held %s", domain.ErrStaleBook,
			book.Venue, book.Instrument, book.ObservedAt.Format(time.RFC3339Nano),
			held.ObservedAt.Format(time.RFC3339Nano))
	}
	entry.byVenue[book.Venue] = book
	entry.mu.Unlock()

	a.observeLatency(book.Venue, a.now().Sub(book.ObservedAt))
	obs.BookUpdates.WithLabelValues(book.Venue, "applied").Inc()
	return nil
}

// Snapshot returns the latest known book per venue for the instrument.
// Venues with no update inside the staleness window are excluded rather
// than returned with stale data.
func (a *Aggregator) Snapshot(instrument string) map[string]domain.OrderBook {
	v, ok := a.instruments.Load(instrument)
	if !ok {
		return nil
	}
	entry := v.(*instrumentBooks)
	cutoff := a.now().Add(-a.cfg.StalenessWindow)

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	out := make(map[string]domain.OrderBook, len(entry.byVenue))
	for venue, book := range entry.byVenue {
		if book.ObservedAt.Before(cutoff) {
			continue
		}
		out[venue] = book
	}
	return out
}

// Book returns the held snapshot for one (venue, instrument), regardless of
// staleness. It returns domain.ErrNotFound when none is held.
func (a *Aggregator) Book(venue, instrument string) (domain.OrderBook, error) {
	v, ok := a.instruments.Load(instrument)
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	entry := v.(*instrumentBooks)
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	book, ok := entry.byVenue[venue]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return book, nil
}

// Latency returns the EWMA of the venue's observed feed latency (receive
// time minus book timestamp). Zero means no observation yet.
func (a *Aggregator) Latency(venue string) time.Duration {
	a.latMu.RLock()
	defer a.latMu.RUnlock()
	return a.latencies[venue]
}

func (a *Aggregator) booksFor(instrument string) *instrumentBooks {
	if v, ok := a.instruments.Load(instrument); ok {
		return v.(*instrumentBooks)
	}
	v, _ := a.instruments.LoadOrStore(instrument, &instrumentBooks{
		byVenue: make(map[string]domain.OrderBook),
	})
	return v.(*instrumentBooks)
}

func (a *Aggregator) observeLatency(venue string, sample time.Duration) {
	if sample < 0 {
		// Venue clock ahead of ours; skip rather than poison the EWMA.
		return
	}
	a.latMu.Lock()
	defer a.latMu.Unlock()
	prev, ok := a.latencies[venue]
	if !ok {
		a.latencies[venue] = sample
		return
	}
	alpha := a.cfg.LatencyAlpha
	a.latencies[venue] = time.Duration(alpha*float64(sample) + (1-alpha)*float64(prev))
}
