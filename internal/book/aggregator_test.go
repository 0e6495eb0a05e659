package book

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validBook(venue, instrument string, observedAt time.Time) domain.OrderBook {
	return domain.OrderBook{
		Venue:      venue,
		Instrument: instrument,
		Bids: []domain.PriceLevel{
			{Price: 99.5, Quantity: 2},
			{Price: 99.0, Quantity: 4},
		},
		Asks: []domain.PriceLevel{
			{Price: 100.5, Quantity: 3},
			{Price: 101.0, Quantity: 5},
		},
		ObservedAt: observedAt,
	}
}

func TestUpdateRejectsMissingIdentity(t *testing.T) {
	agg := NewAggregator(Config{}, testLogger())

	b := validBook("", "BTC-USDT", time.Now())
	err := agg.Update(b)
	require.ErrorIs(t, err, domain.ErrInvalidBook)

	b = validBook("binance", "", time.Now())
	err = agg.Update(b)
	require.ErrorIs(t, err, domain.ErrInvalidBook)

	b = validBook("binance", "BTC-USDT", time.Time{})
	err = agg.Update(b)
	require.ErrorIs(t, err, domain.ErrInvalidBook)
}

func TestUpdateRejectsMalformedBookAndKeepsPriorState(t *testing.T) {
	agg := NewAggregator(Config{}, testLogger())
	base := time.Now()

	good := validBook("binance", "BTC-USDT", base)
	require.NoError(t, agg.Update(good))

	malformed := validBook("binance", "BTC-USDT", base.Add(time.Second))
	malformed.Asks[1].Price = malformed.Asks[0].Price // asks not strictly ascending
	err := agg.Update(malformed)
	require.ErrorIs(t, err, domain.ErrInvalidBook)

	held, err := agg.Book("binance", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, base, held.ObservedAt, "held snapshot must be untouched by a rejected update")
	assert.Equal(t, 99.5, held.Bids[0].Price)
}

func TestUpdateRejectsStaleTimestamp(t *testing.T) {
	agg := NewAggregator(Config{}, testLogger())
	base := time.Now()

	require.NoError(t, agg.Update(validBook("binance", "BTC-USDT", base)))

	// Equal timestamp is stale too: only strictly newer snapshots apply.
	err := agg.Update(validBook("binance", "BTC-USDT", base))
	require.ErrorIs(t, err, domain.ErrStaleBook)

	older := validBook("binance", "BTC-USDT", base.Add(-time.Second))
	older.Bids[0].Price = 42
	err = agg.Update(older)
	require.ErrorIs(t, err, domain.ErrStaleBook)

	held, err := agg.Book("binance", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, base, held.ObservedAt)
	assert.Equal(t, 99.5, held.Bids[0].Price)
}

func TestSnapshotExcludesStaleVenues(t *testing.T) {
	agg := NewAggregator(Config{StalenessWindow: 5 * time.Second}, testLogger())
	base := time.Now()
	agg.now = func() time.Time { return base }

	require.NoError(t, agg.Update(validBook("binance", "BTC-USDT", base.Add(-time.Second))))
	require.NoError(t, agg.Update(validBook("kraken", "BTC-USDT", base.Add(-10*time.Second))))

	snap := agg.Snapshot("BTC-USDT")
	require.Len(t, snap, 1)
	_, ok := snap["binance"]
	assert.True(t, ok)

	// Book ignores the staleness window.
	held, err := agg.Book("kraken", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "kraken", held.Venue)
}

func TestSnapshotUnknownInstrument(t *testing.T) {
	agg := NewAggregator(Config{}, testLogger())
	assert.Nil(t, agg.Snapshot("NOPE-USDT"))

	_, err := agg.Book("binance", "NOPE-USDT")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateCopiesLevelSlices(t *testing.T) {
	agg := NewAggregator(Config{}, testLogger())

	b := validBook("binance", "BTC-USDT", time.Now())
	require.NoError(t, agg.Update(b))

	b.Bids[0].Price = 1 // caller keeps mutating its slice

	held, err := agg.Book("binance", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 99.5, held.Bids[0].Price)
}

func TestLatencyEWMA(t *testing.T) {
	agg := NewAggregator(Config{LatencyAlpha: 0.2}, testLogger())
	now := time.Now()
	agg.now = func() time.Time { return now }

	assert.Zero(t, agg.Latency("binance"))

	// First sample seeds the EWMA directly.
	require.NoError(t, agg.Update(validBook("binance", "BTC-USDT", now.Add(-100*time.Millisecond))))
	assert.Equal(t, 100*time.Millisecond, agg.Latency("binance"))

	// Clock and book timestamps both advance; the second sample arrives
	// 200ms behind the clock: 0.2*200ms + 0.8*100ms = 120ms.
	now = now.Add(300 * time.Millisecond)
	require.NoError(t, agg.Update(validBook("binance", "BTC-USDT", now.Add(-200*time.Millisecond))))
	assert.InDelta(t, float64(120*time.Millisecond), float64(agg.Latency("binance")), float64(time.Millisecond))

	// A future-stamped book (negative sample) must not poison the EWMA,
	// though the snapshot itself still applies.
	now = now.Add(time.Millisecond)
	require.NoError(t, agg.Update(validBook("binance", "BTC-USDT", now.Add(time.Second))))
	assert.InDelta(t, float64(120*time.Millisecond), float64(agg.Latency("binance")), float64(time.Millisecond))
}

func TestConcurrentUpdatesAcrossInstruments(t *testing.T) {
	agg := NewAggregator(Config{}, testLogger())
	base := time.Now()

	const writers = 8
	const updates = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			instrument := fmt.Sprintf("PAIR%d-USDT", w)
			for i := 0; i < updates; i++ {
				b := validBook("binance", instrument, base.Add(time.Duration(i)*time.Millisecond))
				if err := agg.Update(b); err != nil {
					t.Errorf("update %s/%d: %v", instrument, i, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		instrument := fmt.Sprintf("PAIR%d-USDT", w)
		held, err := agg.Book("binance", instrument)
		require.NoError(t, err)
		assert.Equal(t, base.Add((updates-1)*time.Millisecond), held.ObservedAt)
	}
}
