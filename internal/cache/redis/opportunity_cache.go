package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbot/internal/domain"
)

const opportunityKeyPrefix = "arbot:opportunity:"

// OpportunityCache keeps recently detected opportunities in Redis so that
// API consumers can fetch them without hitting the detector. Entries expire
// on their own TTL, implementing domain.OpportunityCache.
type OpportunityCache struct {
	client *Client
}

// NewOpportunityCache creates an OpportunityCache.
func NewOpportunityCache(client *Client) *OpportunityCache {
	return &OpportunityCache{client: client}
}

func opportunityKey(id string) string {
	return opportunityKeyPrefix + id
}

// Put stores an opportunity until it expires. Opportunities already past
// their expiry are skipped.
func (o *OpportunityCache) Put(ctx context.Context, opp domain.Opportunity) error {
	ttl := time.Until(opp.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("opportunity cache: encode %s: %w", opp.ID, err)
	}
	if err := o.client.rdb.Set(ctx, opportunityKey(opp.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("opportunity cache: put %s: %w", opp.ID, err)
	}
	return nil
}

// Get fetches an opportunity by ID. It returns domain.ErrNotFound when the
// entry is missing or has expired.
func (o *OpportunityCache) Get(ctx context.Context, id string) (domain.Opportunity, error) {
	raw, err := o.client.rdb.Get(ctx, opportunityKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Opportunity{}, fmt.Errorf("opportunity cache: %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("opportunity cache: get %s: %w", id, err)
	}

	var opp domain.Opportunity
	if err := json.Unmarshal(raw, &opp); err != nil {
		return domain.Opportunity{}, fmt.Errorf("opportunity cache: decode %s: %w", id, err)
	}
	return opp, nil
}

// Compile-time interface check.
var _ domain.OpportunityCache = (*OpportunityCache)(nil)
