// Package cache provides the Redis-backed sentiment snapshot cache.
// It lets signal fusion survive a restart inside the staleness window
// instead of trading blind until the next aggregation cycle.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/sentiment"
)

const (
	// opTimeout caps individual cache operations so a slow Redis
	// never blocks the aggregation or fusion loops.
	opTimeout = 500 * time.Millisecond

	defaultTTL = 60 * time.Second
)

// SentimentCache stores the latest aggregated sentiment per symbol
// with a TTL matching the fusion staleness window. It implements
// sentiment.Cache. A nil *SentimentCache is a valid no-op cache.
type SentimentCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewSentimentCache wraps the given Redis client. Returns nil when
// client is nil so callers can wire the cache unconditionally.
func NewSentimentCache(client *redis.Client, ttl time.Duration) *SentimentCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &SentimentCache{
		client: client,
		ttl:    ttl,
		logger: config.NewLogger("sentiment_cache"),
	}
}

// SetSentiment stores the aggregation snapshot for its symbol.
func (c *SentimentCache) SetSentiment(ctx context.Context, agg sentiment.Aggregated) error {
	if c == nil || c.client == nil {
		return nil
	}

	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to marshal sentiment snapshot: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, c.key(agg.Symbol), data, c.ttl).Err(); err != nil {
		c.logger.Warn().
			Err(err).
			Str("symbol", agg.Symbol).
			Msg("Failed to cache sentiment snapshot")
		return err
	}
	return nil
}

// GetSentiment returns the cached snapshot for a symbol. A missing
// key, an expired key and a Redis error all read as a cache miss;
// only the error case reports it.
func (c *SentimentCache) GetSentiment(ctx context.Context, symbol string) (sentiment.Aggregated, bool, error) {
	if c == nil || c.client == nil {
		return sentiment.Aggregated{}, false, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := c.client.Get(opCtx, c.key(symbol)).Result()
	if err == redis.Nil {
		return sentiment.Aggregated{}, false, nil
	}
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("symbol", symbol).
			Msg("Redis get failed, treating as cache miss")
		return sentiment.Aggregated{}, false, err
	}

	var agg sentiment.Aggregated
	if err := json.Unmarshal([]byte(raw), &agg); err != nil {
		c.logger.Warn().
			Err(err).
			Str("symbol", symbol).
			Msg("Failed to unmarshal cached sentiment")
		return sentiment.Aggregated{}, false, err
	}
	return agg, true, nil
}

// Health pings Redis.
func (c *SentimentCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (c *SentimentCache) key(symbol string) string {
	return "fluxtrader:sentiment:" + symbol
}
