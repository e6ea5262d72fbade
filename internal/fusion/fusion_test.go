package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxtrade/fluxtrader/internal/sentiment"
	"github.com/fluxtrade/fluxtrader/internal/strategy"
)

// fakeSentiment serves a fixed aggregation and event list.
type fakeSentiment struct {
	agg    sentiment.Aggregated
	has    bool
	events []sentiment.CriticalEvent
}

func (f *fakeSentiment) Latest(symbol string) (sentiment.Aggregated, bool) { return f.agg, f.has }

func (f *fakeSentiment) LiveEvents(symbol string) []sentiment.CriticalEvent { return f.events }

func sentimentWith(score, confidence float64) *fakeSentiment {
	return &fakeSentiment{
		agg: sentiment.Aggregated{
			Symbol:            "BTC",
			Timestamp:         time.Now().UTC(),
			OverallScore:      score,
			OverallConfidence: confidence,
		},
		has: true,
	}
}

func buySignal(confidence float64) strategy.Signal {
	return strategy.Signal{
		StrategyID: "rsi-1",
		Symbol:     "BTC",
		Action:     strategy.ActionBuy,
		Confidence: confidence,
		Reason:     "RSI oversold at 25.00",
		Timestamp:  time.Now().UTC(),
	}
}

func TestFuse_AlignedSentimentBoosts(t *testing.T) {
	f := New(DefaultConfig(), sentimentWith(0.4, 0.7), nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Equal(t, FinalBuy, enhanced.FinalAction)
	assert.False(t, enhanced.Conflict)
	// boost = min(0.2, 0.4*0.7) = 0.2 -> 0.75 * 1.2 = 0.9
	assert.InDelta(t, 0.2, enhanced.ConfidenceBoost, 1e-9)
	assert.InDelta(t, 0.9, enhanced.FinalConfidence, 1e-9)
	assert.GreaterOrEqual(t, enhanced.FinalConfidence, 0.80)
	assert.LessOrEqual(t, enhanced.FinalConfidence, 0.95)
}

func TestFuse_ConflictSkips(t *testing.T) {
	f := New(DefaultConfig(), sentimentWith(-0.6, 0.7), nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Equal(t, FinalSkip, enhanced.FinalAction)
	assert.True(t, enhanced.Conflict)
	assert.Zero(t, enhanced.FinalConfidence)
	assert.Contains(t, enhanced.Rationale, "conflicts")
}

func TestFuse_WeakConflictDoesNotSkip(t *testing.T) {
	// Opposing sign but below the conflict threshold.
	f := New(DefaultConfig(), sentimentWith(-0.2, 0.7), nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Equal(t, FinalBuy, enhanced.FinalAction)
	assert.False(t, enhanced.Conflict)
}

func TestFuse_LowConfidenceSentimentIgnored(t *testing.T) {
	f := New(DefaultConfig(), sentimentWith(-0.9, 0.3), nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Equal(t, FinalBuy, enhanced.FinalAction)
	assert.InDelta(t, 0.75, enhanced.FinalConfidence, 1e-9)
	assert.Contains(t, enhanced.Rationale, "sentiment ignored")
}

func TestFuse_NoSentimentPassesThrough(t *testing.T) {
	f := New(DefaultConfig(), &fakeSentiment{}, nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Equal(t, FinalBuy, enhanced.FinalAction)
	assert.InDelta(t, 0.75, enhanced.FinalConfidence, 1e-9)
	assert.Contains(t, enhanced.Rationale, "no fresh sentiment")
}

func TestFuse_StaleSentimentIgnored(t *testing.T) {
	provider := sentimentWith(0.8, 0.9)
	provider.agg.Timestamp = time.Now().Add(-time.Minute)
	f := New(DefaultConfig(), provider, nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Zero(t, enhanced.ConfidenceBoost)
	assert.Contains(t, enhanced.Rationale, "no fresh sentiment")
}

func TestFuse_CacheFallbackWhenStale(t *testing.T) {
	provider := sentimentWith(0.8, 0.9)
	provider.agg.Timestamp = time.Now().Add(-time.Minute)

	cache := &fakeCache{agg: sentiment.Aggregated{
		Symbol:            "BTC",
		Timestamp:         time.Now().UTC(),
		OverallScore:      0.4,
		OverallConfidence: 0.7,
	}, has: true}
	f := New(DefaultConfig(), provider, cache)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.InDelta(t, 0.2, enhanced.ConfidenceBoost, 1e-9)
	assert.InDelta(t, 0.4, enhanced.SentimentScore, 1e-9)
}

func TestFuse_HackEventSkipsBuy(t *testing.T) {
	provider := sentimentWith(0.5, 0.8)
	provider.events = []sentiment.CriticalEvent{{
		Kind:        sentiment.EventHack,
		Severity:    sentiment.SeverityCritical,
		Timestamp:   time.Now().UTC(),
		Description: "bridge exploit confirmed",
	}}
	f := New(DefaultConfig(), provider, nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Equal(t, FinalSkip, enhanced.FinalAction)
	assert.Zero(t, enhanced.FinalConfidence)
	assert.Contains(t, enhanced.Rationale, "bridge exploit confirmed")
}

func TestFuse_CriticalRegulatoryEventSkipsBuy(t *testing.T) {
	provider := sentimentWith(0.5, 0.8)
	provider.events = []sentiment.CriticalEvent{{
		Kind:        sentiment.EventRegulatory,
		Severity:    sentiment.SeverityCritical,
		Timestamp:   time.Now().UTC(),
		Description: "exchange trading suspended by regulator",
	}}
	f := New(DefaultConfig(), provider, nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Equal(t, FinalSkip, enhanced.FinalAction)
	assert.Zero(t, enhanced.FinalConfidence)
	assert.Contains(t, enhanced.Rationale, "trading suspended")
}

func TestFuse_NonCriticalRegulatoryEventDoesNotBlock(t *testing.T) {
	provider := sentimentWith(0.5, 0.8)
	provider.events = []sentiment.CriticalEvent{{
		Kind:      sentiment.EventRegulatory,
		Severity:  sentiment.SeverityHigh,
		Timestamp: time.Now().UTC(),
	}}
	f := New(DefaultConfig(), provider, nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.75))

	assert.Equal(t, FinalBuy, enhanced.FinalAction)
	assert.Positive(t, enhanced.FinalConfidence)
}

func TestFuse_HoldPassesThroughEvents(t *testing.T) {
	provider := sentimentWith(0.5, 0.8)
	provider.events = []sentiment.CriticalEvent{{Kind: sentiment.EventHack, Timestamp: time.Now().UTC()}}
	f := New(DefaultConfig(), provider, nil)

	hold := strategy.Signal{Symbol: "BTC", Action: strategy.ActionHold, Confidence: 0.1, Reason: "no setup"}
	enhanced := f.Fuse(context.Background(), hold)

	assert.Equal(t, FinalHold, enhanced.FinalAction)
	assert.InDelta(t, 0.1, enhanced.FinalConfidence, 1e-9)
}

func TestFuse_ConfidenceCapped(t *testing.T) {
	f := New(DefaultConfig(), sentimentWith(1.0, 1.0), nil)

	enhanced := f.Fuse(context.Background(), buySignal(0.9))

	assert.InDelta(t, 0.95, enhanced.FinalConfidence, 1e-9)
}

func TestFuse_SellConflictsWithBullishSentiment(t *testing.T) {
	f := New(DefaultConfig(), sentimentWith(0.6, 0.7), nil)

	sell := buySignal(0.7)
	sell.Action = strategy.ActionSell
	enhanced := f.Fuse(context.Background(), sell)

	assert.Equal(t, FinalSkip, enhanced.FinalAction)
	assert.True(t, enhanced.Conflict)
}

func TestRun_ClosesOutputOnInputClose(t *testing.T) {
	f := New(DefaultConfig(), sentimentWith(0.4, 0.7), nil)

	in := make(chan strategy.Signal, 2)
	out := make(chan Enhanced, 2)
	in <- buySignal(0.75)
	close(in)

	f.Run(context.Background(), in, out)

	enhanced, ok := <-out
	require.True(t, ok)
	assert.Equal(t, FinalBuy, enhanced.FinalAction)

	_, ok = <-out
	assert.False(t, ok, "output channel closes after input drains")
}

// fakeCache implements sentiment.Cache in memory.
type fakeCache struct {
	agg sentiment.Aggregated
	has bool
}

func (c *fakeCache) SetSentiment(ctx context.Context, agg sentiment.Aggregated) error {
	c.agg, c.has = agg, true
	return nil
}

func (c *fakeCache) GetSentiment(ctx context.Context, symbol string) (sentiment.Aggregated, bool, error) {
	return c.agg, c.has, nil
}
