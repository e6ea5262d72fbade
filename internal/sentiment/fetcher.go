package sentiment

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
)

// Fetcher is the uniform contract every sentiment source implements.
// A fetch failure never aborts an aggregation cycle; the aggregator
// substitutes a zero reading.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (Reading, error)
}

// breaker tuning: open for 60s after 5 consecutive failures, with a
// single half-open probe.
const (
	breakerFailures = 5
	breakerOpenFor  = 60 * time.Second
)

// guardedFetcher wraps a Fetcher with a per-source deadline, request
// rate limiting and a circuit breaker.
type guardedFetcher struct {
	inner   Fetcher
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// Guard wraps a fetcher with the standard protections. requestsPerMin
// of 0 disables rate limiting.
func Guard(inner Fetcher, timeout time.Duration, requestsPerMin int) Fetcher {
	name := inner.Name()
	logger := config.NewSourceLogger(name)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.BreakerState.WithLabelValues(name).Set(open)
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}

	var limiter *rate.Limiter
	if requestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMin)), requestsPerMin)
	}

	return &guardedFetcher{
		inner:   inner,
		timeout: timeout,
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (g *guardedFetcher) Name() string { return g.inner.Name() }

func (g *guardedFetcher) Fetch(ctx context.Context, symbol string) (Reading, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Reading{}, err
		}
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.inner.Fetch(callCtx, symbol)
	})
	if err != nil {
		metrics.SourceFetches.WithLabelValues(g.Name(), "error").Inc()
		metrics.RecoveredErrors.WithLabelValues("sentiment_source").Inc()
		g.logger.Warn().Err(err).Str("symbol", symbol).Msg("Source fetch failed")
		return Reading{}, err
	}

	metrics.SourceFetches.WithLabelValues(g.Name(), "ok").Inc()
	return result.(Reading), nil
}
