package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/gift-exchange/internal/domain"
)

const refreshKeyPrefix = "refresh:"

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RefreshOutcomeCache stores successful refreshes in Redis so that every
// instance applies the same new access token for one expired token.
type RefreshOutcomeCache struct {
	client redisKV
}

// NewRefreshOutcomeCache returns nil when client is nil.
func NewRefreshOutcomeCache(client *redis.Client) *RefreshOutcomeCache {
	if client == nil {
		return nil
	}
	return &RefreshOutcomeCache{client: client}
}

// Get returns the stored outcome for key, if any.
func (c *RefreshOutcomeCache) Get(ctx context.Context, key string) (domain.RefreshOutcome, bool, error) {
	var out domain.RefreshOutcome
	raw, err := c.client.Get(ctx, refreshKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode refresh outcome: %w", err)
	}
	if out.AccessToken == "" {
		return out, false, nil
	}
	return out, true, nil
}

// Set stores an outcome for ttl.
func (c *RefreshOutcomeCache) Set(ctx context.Context, key string, outcome domain.RefreshOutcome, ttl time.Duration) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode refresh outcome: %w", err)
	}
	return c.client.Set(ctx, refreshKeyPrefix+key, raw, ttl).Err()
}
