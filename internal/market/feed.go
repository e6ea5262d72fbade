package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
)

// maxBackoff caps the per-symbol retry delay after upstream failures.
const maxBackoff = 60 * time.Second

// Feed pulls quotes per symbol at a fixed cadence and broadcasts ticks.
// Every subscriber sees every tick exactly once in arrival order. The
// feed never synthesizes prices: a failed pull produces no tick.
type Feed struct {
	provider QuoteProvider
	symbols  []string
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu          sync.Mutex
	subscribers []chan Tick
	failures    map[string]int
	nextAttempt map[string]time.Time
	lastPrice   map[string]float64

	rng *rand.Rand
}

// NewFeed creates a feed over the given provider and symbols.
func NewFeed(provider QuoteProvider, symbols []string, interval, timeout time.Duration) *Feed {
	return &Feed{
		provider:    provider,
		symbols:     append([]string(nil), symbols...),
		interval:    interval,
		timeout:     timeout,
		logger:      config.NewLogger("market_feed"),
		failures:    make(map[string]int),
		nextAttempt: make(map[string]time.Time),
		lastPrice:   make(map[string]float64),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Subscribe registers a new tick consumer. Must be called before Run.
func (f *Feed) Subscribe(buffer int) <-chan Tick {
	ch := make(chan Tick, buffer)
	f.mu.Lock()
	f.subscribers = append(f.subscribers, ch)
	f.mu.Unlock()
	return ch
}

// Run pulls quotes until the context is cancelled, then closes every
// subscriber channel.
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info().
		Strs("symbols", f.symbols).
		Dur("interval", f.interval).
		Msg("Market feed started")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.pullAll(ctx)
	for {
		select {
		case <-ctx.Done():
			f.closeSubscribers()
			f.logger.Info().Msg("Market feed stopped")
			return
		case <-ticker.C:
			f.pullAll(ctx)
		}
	}
}

func (f *Feed) pullAll(ctx context.Context) {
	now := time.Now()
	for _, symbol := range f.symbols {
		if ctx.Err() != nil {
			return
		}
		f.mu.Lock()
		wait := f.nextAttempt[symbol].After(now)
		f.mu.Unlock()
		if wait {
			continue
		}
		f.pull(ctx, symbol)
	}
}

func (f *Feed) pull(ctx context.Context, symbol string) {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	quote, err := f.provider.GetQuote(callCtx, symbol)
	if err != nil {
		f.recordFailure(symbol, err)
		return
	}

	f.mu.Lock()
	f.failures[symbol] = 0
	delete(f.nextAttempt, symbol)
	f.lastPrice[symbol] = quote.Price
	f.mu.Unlock()

	tick := Tick{
		Symbol:    symbol,
		Timestamp: quote.Timestamp,
		Price:     quote.Price,
		Volume:    quote.Volume,
	}
	metrics.TicksProduced.WithLabelValues(symbol).Inc()
	f.broadcast(ctx, tick)
}

func (f *Feed) recordFailure(symbol string, err error) {
	f.mu.Lock()
	f.failures[symbol]++
	count := f.failures[symbol]
	delay := f.backoff(count)
	f.nextAttempt[symbol] = time.Now().Add(delay)
	f.mu.Unlock()

	metrics.FeedFailures.WithLabelValues(symbol).Inc()
	metrics.RecoveredErrors.WithLabelValues("market_feed").Inc()
	f.logger.Warn().
		Err(err).
		Str("symbol", symbol).
		Int("consecutive_failures", count).
		Dur("backoff", delay).
		Msg("Quote pull failed")
}

// backoff doubles per consecutive failure with up to 25% jitter,
// bounded at maxBackoff.
func (f *Feed) backoff(failures int) time.Duration {
	base := f.interval
	for i := 1; i < failures; i++ {
		base *= 2
		if base >= maxBackoff {
			base = maxBackoff
			break
		}
	}
	jitter := time.Duration(f.rng.Int63n(int64(base)/4 + 1))
	if base+jitter > maxBackoff {
		return maxBackoff
	}
	return base + jitter
}

// broadcast delivers the tick to every subscriber, blocking on slow
// consumers so no subscriber ever misses a tick.
func (f *Feed) broadcast(ctx context.Context, tick Tick) {
	f.mu.Lock()
	subs := append([]chan Tick(nil), f.subscribers...)
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- tick:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Feed) closeSubscribers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = nil
}

// ConsecutiveFailures reports the current failure streak for a symbol.
func (f *Feed) ConsecutiveFailures(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[symbol]
}

// LastPrice returns the most recent successfully pulled price. The
// second return is false when no pull has succeeded yet.
func (f *Feed) LastPrice(symbol string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.lastPrice[symbol]
	return p, ok
}
