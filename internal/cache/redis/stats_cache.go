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

const statsKeyPrefix = "arbot:stats:"

// StatsCache shares per-strategy trade statistics across processes through
// Redis, implementing domain.StatsCache. Entries carry a server-side TTL in
// addition to the ComputedAt freshness check done by readers.
type StatsCache struct {
	client *Client
}

// NewStatsCache creates a StatsCache.
func NewStatsCache(client *Client) *StatsCache {
	return &StatsCache{client: client}
}

func statsKey(strategyKey string) string {
	return statsKeyPrefix + strategyKey
}

// Get fetches the cached stats entry for a strategy. It returns
// domain.ErrNotFound on a cache miss.
func (s *StatsCache) Get(ctx context.Context, strategyKey string) (domain.StatsEntry, error) {
	raw, err := s.client.rdb.Get(ctx, statsKey(strategyKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.StatsEntry{}, fmt.Errorf("stats cache: %s: %w", strategyKey, domain.ErrNotFound)
	}
	if err != nil {
		return domain.StatsEntry{}, fmt.Errorf("stats cache: get %s: %w", strategyKey, err)
	}

	var entry domain.StatsEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.StatsEntry{}, fmt.Errorf("stats cache: decode %s: %w", strategyKey, err)
	}
	return entry, nil
}

// Set stores a stats entry, replacing any previous value and resetting the
// server-side expiry to ttl.
func (s *StatsCache) Set(ctx context.Context, entry domain.StatsEntry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("stats cache: encode %s: %w", entry.Stats.StrategyKey, err)
	}
	if err := s.client.rdb.Set(ctx, statsKey(entry.Stats.StrategyKey), raw, ttl).Err(); err != nil {
		return fmt.Errorf("stats cache: set %s: %w", entry.Stats.StrategyKey, err)
	}
	return nil
}

// Invalidate removes the cached entry for a strategy. Missing keys are not
// an error.
func (s *StatsCache) Invalidate(ctx context.Context, strategyKey string) error {
	if err := s.client.rdb.Del(ctx, statsKey(strategyKey)).Err(); err != nil {
		return fmt.Errorf("stats cache: invalidate %s: %w", strategyKey, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StatsCache = (*StatsCache)(nil)
