package sentiment

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
)

// WeightsProvider supplies the current per-source weight snapshot.
// Implementations publish immutable maps; the aggregator reads one
// snapshot per cycle.
type WeightsProvider interface {
	Weights() map[string]float64
}

// StaticWeights is the equal-weight fallback provider.
type StaticWeights map[string]float64

func (w StaticWeights) Weights() map[string]float64 { return w }

// EqualWeights distributes weight uniformly across all sources.
func EqualWeights() StaticWeights {
	w := make(StaticWeights, len(AllSources))
	for _, s := range AllSources {
		w[s] = 1.0 / float64(len(AllSources))
	}
	return w
}

// Cache persists the latest aggregated sentiment per symbol so fusion
// can survive restarts inside the staleness window.
type Cache interface {
	SetSentiment(ctx context.Context, agg Aggregated) error
	GetSentiment(ctx context.Context, symbol string) (Aggregated, bool, error)
}

// Aggregator fans out across all source fetchers, combines readings
// under adaptive weights and derives the trading signal.
type Aggregator struct {
	fetchers    []Fetcher
	weights     WeightsProvider
	maxParallel int64
	logger      zerolog.Logger
	cache       Cache

	mu        sync.Mutex
	events    map[string][]CriticalEvent // live critical events per symbol
	latest    map[string]Aggregated
	eventHook func(CriticalEvent)

	now func() time.Time
}

// NewAggregator creates an aggregator over the given fetchers.
// maxParallel bounds concurrent fetches (default 8).
func NewAggregator(fetchers []Fetcher, weights WeightsProvider, maxParallel int) *Aggregator {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	if weights == nil {
		weights = EqualWeights()
	}
	return &Aggregator{
		fetchers:    fetchers,
		weights:     weights,
		maxParallel: int64(maxParallel),
		logger:      config.NewLogger("sentiment_aggregator"),
		events:      make(map[string][]CriticalEvent),
		latest:      make(map[string]Aggregated),
		now:         time.Now,
	}
}

// SetCache installs the snapshot cache. Optional.
func (a *Aggregator) SetCache(cache Cache) { a.cache = cache }

// SetEventHook installs a callback invoked for each newly detected
// critical event. Optional.
func (a *Aggregator) SetEventHook(hook func(CriticalEvent)) { a.eventHook = hook }

// Run aggregates every symbol at the given cadence until cancelled.
func (a *Aggregator) Run(ctx context.Context, symbols []string, interval time.Duration, mctx func(string) MarketContext) {
	a.logger.Info().
		Strs("symbols", symbols).
		Dur("interval", interval).
		Msg("Sentiment aggregator started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cycle := func() {
		for _, symbol := range symbols {
			if ctx.Err() != nil {
				return
			}
			a.Aggregate(ctx, symbol, mctx(symbol))
		}
	}

	cycle()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Sentiment aggregator stopped")
			return
		case <-ticker.C:
			cycle()
		}
	}
}

// Latest returns the most recent aggregation for a symbol.
func (a *Aggregator) Latest(symbol string) (Aggregated, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	agg, ok := a.latest[symbol]
	return agg, ok
}

// Aggregate runs one full cycle for a symbol: parallel fan-out across
// every fetcher, weighted fan-in, event extraction and trading-signal
// derivation.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string, mctx MarketContext) Aggregated {
	readings := a.fanOut(ctx, symbol)
	weights := a.weights.Weights()
	now := a.now().UTC()

	agg := Aggregated{
		Symbol:    symbol,
		Timestamp: now,
		PerSource: readings,
	}

	var scoreSum, confSum, weightSum float64
	for source, reading := range readings {
		if reading.Confidence == 0 {
			continue
		}
		w := weights[source]
		scoreSum += reading.Score * w
		confSum += reading.Confidence * w
		weightSum += w
	}
	if weightSum > 0 {
		agg.OverallScore = scoreSum / weightSum
		agg.OverallConfidence = confSum / weightSum
	}
	agg.Category = CategoryFor(agg.OverallScore)

	agg.CriticalEvents = a.collectEvents(symbol, readings, now)
	agg.TradingSignal = a.deriveSignal(&agg, readings, mctx, weightSum)

	a.mu.Lock()
	a.latest[symbol] = agg
	a.mu.Unlock()

	if a.cache != nil {
		if err := a.cache.SetSentiment(ctx, agg); err != nil {
			metrics.RecoveredErrors.WithLabelValues("sentiment_cache").Inc()
			a.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache sentiment")
		}
	}

	a.logger.Debug().
		Str("symbol", symbol).
		Float64("score", agg.OverallScore).
		Float64("confidence", agg.OverallConfidence).
		Str("category", string(agg.Category)).
		Str("action", string(agg.TradingSignal.Action)).
		Msg("Aggregation cycle complete")
	return agg
}

// fanOut fetches every source concurrently with bounded parallelism.
// A failed source contributes a zero reading for the cycle.
func (a *Aggregator) fanOut(ctx context.Context, symbol string) map[string]Reading {
	sem := semaphore.NewWeighted(a.maxParallel)
	readings := make(map[string]Reading, len(a.fetchers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, fetcher := range a.fetchers {
		wg.Add(1)
		go func(f Fetcher) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			reading, err := f.Fetch(ctx, symbol)
			if err != nil {
				reading = Reading{
					Source:     f.Name(),
					Symbol:     symbol,
					ProducedAt: a.now().UTC(),
				}
			}
			mu.Lock()
			readings[f.Name()] = reading
			mu.Unlock()
		}(fetcher)
	}
	wg.Wait()
	return readings
}

// collectEvents extracts new critical events, merges them into the
// live set and prunes expired ones.
func (a *Aggregator) collectEvents(symbol string, readings map[string]Reading, now time.Time) []CriticalEvent {
	var fresh []CriticalEvent
	for _, reading := range readings {
		fresh = append(fresh, ExtractEvents(reading)...)
	}

	a.mu.Lock()
	live := append(a.events[symbol], fresh...)
	live = pruneExpired(live, now)
	a.events[symbol] = live
	hook := a.eventHook
	a.mu.Unlock()

	for _, e := range fresh {
		metrics.CriticalEvents.WithLabelValues(string(e.Kind)).Inc()
		a.logger.Warn().
			Str("symbol", symbol).
			Str("kind", string(e.Kind)).
			Str("severity", string(e.Severity)).
			Str("description", e.Description).
			Msg("Critical event detected")
		if hook != nil {
			hook(e)
		}
	}

	return append([]CriticalEvent(nil), live...)
}

// LiveEvents returns the unexpired critical events for a symbol.
func (a *Aggregator) LiveEvents(symbol string) []CriticalEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	live := pruneExpired(a.events[symbol], a.now().UTC())
	a.events[symbol] = live
	return append([]CriticalEvent(nil), live...)
}

// deriveSignal maps the aggregation onto an actionable trading signal.
func (a *Aggregator) deriveSignal(agg *Aggregated, readings map[string]Reading, mctx MarketContext, weightSum float64) TradingSignal {
	// Critical events pre-empt everything.
	for _, e := range agg.CriticalEvents {
		if forcesStrongSell(e) {
			return TradingSignal{
				Action:     TradingStrongSell,
				Confidence: 0.9,
				Reason:     fmt.Sprintf("%s event: %s", e.Kind, e.Description),
				RiskLevel:  RiskExtreme,
			}
		}
	}

	// No usable source at all.
	if weightSum == 0 {
		return TradingSignal{
			Action:    TradingWait,
			Reason:    "no usable sentiment sources this cycle",
			RiskLevel: RiskHigh,
		}
	}

	book, hasBook := readings[SourceOrderBook]

	// Low overall confidence defers to a high-confidence book override
	// or waits.
	if agg.OverallConfidence < 0.5 {
		if hasBook && book.Confidence > 0.8 && book.Score != 0 {
			action := TradingBuy
			if book.Score < 0 {
				action = TradingSell
			}
			return TradingSignal{
				Action:     action,
				Confidence: book.Confidence,
				Reason:     fmt.Sprintf("order-book override at %.0f%% confidence", book.Confidence*100),
				RiskLevel:  RiskMedium,
			}
		}
		return TradingSignal{
			Action:     TradingWait,
			Confidence: agg.OverallConfidence,
			Reason:     "overall confidence below actionable threshold",
			RiskLevel:  RiskMedium,
		}
	}

	signal := categorySignal(agg.Category, mctx)
	signal.Confidence = agg.OverallConfidence

	// Book disagreement dampens, alignment reinforces.
	if hasBook && book.Confidence > 0 {
		gap := math.Abs(book.Score - agg.OverallScore)
		switch {
		case gap >= 0.5:
			signal.Confidence *= 0.8
			signal.RiskLevel = escalate(signal.RiskLevel)
			signal.Reason += "; order book disagrees"
		case gap <= 0.2:
			signal.Confidence = math.Min(0.95, signal.Confidence*1.1)
			signal.RiskLevel = deescalate(signal.RiskLevel)
			signal.Reason += "; order book aligned"
		}
	}

	return signal
}

// categorySignal is the fixed category x market-context action table.
func categorySignal(category Category, mctx MarketContext) TradingSignal {
	switch category {
	case CategoryExtremeBullish:
		if mctx.Volatility == LevelExtreme {
			return TradingSignal{Action: TradingBuy, Reason: "extreme bullish sentiment under extreme volatility", RiskLevel: RiskHigh}
		}
		return TradingSignal{Action: TradingStrongBuy, Reason: "extreme bullish sentiment", RiskLevel: RiskMedium}
	case CategoryBullish:
		if mctx.Volume == LevelHigh || mctx.Volume == LevelExtreme {
			return TradingSignal{Action: TradingBuy, Reason: "bullish sentiment with strong volume", RiskLevel: RiskMedium}
		}
		return TradingSignal{Action: TradingHold, Reason: "bullish sentiment lacking volume confirmation", RiskLevel: RiskLow}
	case CategoryBearish:
		if mctx.Downtrend {
			return TradingSignal{Action: TradingSell, Reason: "bearish sentiment in a downtrend", RiskLevel: RiskMedium}
		}
		return TradingSignal{Action: TradingHold, Reason: "bearish sentiment without trend confirmation", RiskLevel: RiskMedium}
	case CategoryExtremeBearish:
		if mctx.Volatility == LevelExtreme {
			return TradingSignal{Action: TradingStrongSell, Reason: "extreme bearish sentiment under extreme volatility", RiskLevel: RiskExtreme}
		}
		return TradingSignal{Action: TradingSell, Reason: "extreme bearish sentiment", RiskLevel: RiskHigh}
	default:
		return TradingSignal{Action: TradingHold, Reason: "neutral sentiment", RiskLevel: RiskLow}
	}
}

func escalate(r RiskLevel) RiskLevel {
	switch r {
	case RiskLow:
		return RiskMedium
	case RiskMedium:
		return RiskHigh
	default:
		return RiskExtreme
	}
}

func deescalate(r RiskLevel) RiskLevel {
	switch r {
	case RiskExtreme:
		return RiskHigh
	case RiskHigh:
		return RiskMedium
	default:
		return RiskLow
	}
}
