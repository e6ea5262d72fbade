package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/metrics"
)

// RetryConfig tunes order-placement retries: a fixed attempt count
// with doubling backoff between attempts.
type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryConfig returns the standard 3-attempt schedule
// (200ms, 400ms, 800ms between attempts).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Backoff: 200 * time.Millisecond}
}

// PlaceWithRetry places an order, retrying transient failures.
// RetriesUsed counts the extra attempts beyond the first.
func PlaceWithRetry(ctx context.Context, b Broker, req OrderRequest, cfg RetryConfig, logger zerolog.Logger) (ack OrderAck, retriesUsed int, err error) {
	if cfg.Attempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	backoff := cfg.Backoff
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if ctx.Err() != nil {
			return OrderAck{}, retriesUsed, fmt.Errorf("order placement cancelled: %w", ctx.Err())
		}

		ack, err = b.PlaceOrder(ctx, req)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Str("symbol", req.Symbol).
					Msg("Order placed after retry")
			}
			return ack, retriesUsed, nil
		}

		if attempt == cfg.Attempts {
			break
		}

		retriesUsed++
		metrics.BrokerRetries.Inc()
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Str("symbol", req.Symbol).
			Msg("Order placement failed, retrying")

		select {
		case <-ctx.Done():
			return OrderAck{}, retriesUsed, fmt.Errorf("order placement cancelled during backoff: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return OrderAck{}, retriesUsed, fmt.Errorf("order placement failed after %d attempts: %w", cfg.Attempts, err)
}
