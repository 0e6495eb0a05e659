package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBook rejects a malformed order-book snapshot: misordered
	// levels or non-positive prices or quantities. The update is dropped
	// and the previously held snapshot is retained.
	ErrInvalidBook = errors.New("invalid order book")

	// ErrStaleBook rejects an update whose timestamp is not newer than the
	// currently held snapshot for the same (venue, instrument). State is
	// unchanged; callers may safely ignore it.
	ErrStaleBook = errors.New("stale order book update")

	// ErrNoLiquidity means the router could not build a single usable slice
	// for the requested side across all non-stale venues.
	ErrNoLiquidity = errors.New("no usable liquidity")

	// ErrOpportunityExpired means an Opportunity was presented past its
	// ExpiresAt deadline. Expired opportunities are never retried.
	ErrOpportunityExpired = errors.New("opportunity expired")

	// ErrNotFound is returned by stores and caches for missing entries.
	ErrNotFound = errors.New("not found")
)

func wrapInvalidBook(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBook, fmt.Sprintf(format, args...))
}
