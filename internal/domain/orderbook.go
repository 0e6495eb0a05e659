package domain

import "time"

// PriceLevel is a single price+quantity entry in an order book. Levels are
// immutable once constructed.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is a full snapshot of bids and asks for one instrument on one
// venue. Bids are ordered by price descending, asks ascending. Books are
// replaced wholesale on every update; the core never patches them in place.
type OrderBook struct {
	Venue      string       `json:"venue"`
	Instrument string       `json:"instrument"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	ObservedAt time.Time    `json:"observed_at"`
}

// Validate checks the structural invariants: bids strictly descending, asks
// strictly ascending, and no zero or negative prices or quantities. It
// returns an error wrapping ErrInvalidBook on the first violation.
func (b OrderBook) Validate() error {
	prev := 0.0
	for i, lvl := range b.Bids {
		if lvl.Price <= 0 || lvl.Quantity <= 0 {
			return wrapInvalidBook("bid level %d has non-positive price or quantity", i)
		}
		if i > 0 && lvl.Price >= prev {
			return wrapInvalidBook("bids not strictly descending at level %d", i)
		}
		prev = lvl.Price
	}
	prev = 0.0
	for i, lvl := range b.Asks {
		if lvl.Price <= 0 || lvl.Quantity <= 0 {
			return wrapInvalidBook("ask level %d has non-positive price or quantity", i)
		}
		if i > 0 && lvl.Price <= prev {
			return wrapInvalidBook("asks not strictly ascending at level %d", i)
		}
		prev = lvl.Price
	}
	return nil
}

// Crossed reports whether the book's own best bid meets or exceeds its best
// ask. A single-venue crossing is a feed glitch, not an arbitrage; the book
// is still structurally valid, but consumers pricing against it skip the
// venue.
func (b OrderBook) Crossed() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0 && b.Bids[0].Price >= b.Asks[0].Price
}

// BestBid returns the highest bid level, or false when the bid side is empty.
func (b OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level, or false when the ask side is empty.
func (b OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// MidPrice returns the top-of-book mid price. When one side is empty it
// falls back to the other side's best price; zero when both are empty.
func (b OrderBook) MidPrice() float64 {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	switch {
	case hasBid && hasAsk:
		return (bid.Price + ask.Price) / 2
	case hasBid:
		return bid.Price
	case hasAsk:
		return ask.Price
	default:
		return 0
	}
}

// Levels returns the levels for the side that an order of the given
// direction would consume: asks for buys, bids for sells.
func (b OrderBook) Levels(side Side) []PriceLevel {
	if side == SideSell {
		return b.Bids
	}
	return b.Asks
}

// Depth sums the quantity of the top n levels consumed by the given side.
func (b OrderBook) Depth(side Side, n int) float64 {
	levels := b.Levels(side)
	if n > len(levels) {
		n = len(levels)
	}
	var total float64
	for _, lvl := range levels[:n] {
		total += lvl.Quantity
	}
	return total
}

// Side identifies the direction of an order or slice.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)
