package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher returns a scripted reading or error.
type fakeFetcher struct {
	name    string
	reading Reading
	err     error
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(ctx context.Context, symbol string) (Reading, error) {
	if f.err != nil {
		return Reading{}, f.err
	}
	r := f.reading
	r.Source = f.name
	r.Symbol = symbol
	if r.ProducedAt.IsZero() {
		r.ProducedAt = time.Now().UTC()
	}
	return r, nil
}

func fetcherWith(name string, score, confidence float64) *fakeFetcher {
	return &fakeFetcher{name: name, reading: Reading{Score: score, Confidence: confidence, Volume: 10}}
}

func neutralContext() MarketContext {
	return MarketContext{Volatility: LevelNormal, Volume: LevelNormal}
}

func TestAggregate_WeightedCombine(t *testing.T) {
	fetchers := []Fetcher{
		fetcherWith(SourceMicroblog, 0.8, 0.9),
		fetcherWith(SourceForum, 0.4, 0.5),
	}
	weights := StaticWeights{SourceMicroblog: 0.75, SourceForum: 0.25}
	a := NewAggregator(fetchers, weights, 8)

	agg := a.Aggregate(context.Background(), "BTC", neutralContext())

	// (0.8*0.75 + 0.4*0.25) / 1.0
	assert.InDelta(t, 0.7, agg.OverallScore, 1e-9)
	assert.InDelta(t, 0.9*0.75+0.5*0.25, agg.OverallConfidence, 1e-9)
	assert.Equal(t, CategoryExtremeBullish, agg.Category)
}

func TestAggregate_PerSourceContributionPreserved(t *testing.T) {
	f := fetcherWith(SourceMicroblog, 0.42, 0.66)
	a := NewAggregator([]Fetcher{f}, EqualWeights(), 8)

	agg := a.Aggregate(context.Background(), "BTC", neutralContext())

	reading := agg.PerSource[SourceMicroblog]
	assert.InDelta(t, 0.42, reading.Score, 1e-9)
	assert.InDelta(t, 0.66, reading.Confidence, 1e-9)
}

func TestAggregate_BoundsHoldUnderFailures(t *testing.T) {
	fetchers := []Fetcher{
		fetcherWith(SourceMicroblog, 1.0, 1.0),
		fetcherWith(SourceForum, -1.0, 1.0),
		&fakeFetcher{name: SourceNews, err: errors.New("down")},
		&fakeFetcher{name: SourceOnChain, err: errors.New("down")},
	}
	a := NewAggregator(fetchers, EqualWeights(), 8)

	agg := a.Aggregate(context.Background(), "BTC", neutralContext())

	assert.GreaterOrEqual(t, agg.OverallScore, -1.0)
	assert.LessOrEqual(t, agg.OverallScore, 1.0)
	assert.GreaterOrEqual(t, agg.OverallConfidence, 0.0)
	assert.LessOrEqual(t, agg.OverallConfidence, 1.0)
	assert.Len(t, agg.PerSource, 4, "failed sources still contribute zero readings")
	assert.Zero(t, agg.PerSource[SourceNews].Confidence)
}

func TestAggregate_AllSourcesFailedWaits(t *testing.T) {
	a := NewAggregator([]Fetcher{
		&fakeFetcher{name: SourceMicroblog, err: errors.New("down")},
		&fakeFetcher{name: SourceForum, err: errors.New("down")},
	}, EqualWeights(), 8)

	agg := a.Aggregate(context.Background(), "BTC", neutralContext())

	assert.Zero(t, agg.OverallScore)
	assert.Zero(t, agg.OverallConfidence)
	assert.Equal(t, CategoryNeutral, agg.Category)
	assert.Equal(t, TradingWait, agg.TradingSignal.Action)
}

func TestAggregate_LowConfidenceWaits(t *testing.T) {
	a := NewAggregator([]Fetcher{fetcherWith(SourceMicroblog, 0.2, 0.3)}, EqualWeights(), 8)

	agg := a.Aggregate(context.Background(), "BTC", neutralContext())

	assert.Equal(t, TradingWait, agg.TradingSignal.Action)
}

func TestAggregate_OrderBookOverride(t *testing.T) {
	// Neutral low-confidence sentiment, strong high-confidence book.
	fetchers := []Fetcher{
		fetcherWith(SourceMicroblog, 0, 0.3),
		fetcherWith(SourceOrderBook, 0.8, 0.85),
	}
	a := NewAggregator(fetchers, StaticWeights{SourceMicroblog: 0.8, SourceOrderBook: 0.2}, 8)

	agg := a.Aggregate(context.Background(), "BTC", neutralContext())

	assert.Equal(t, TradingBuy, agg.TradingSignal.Action)
	assert.Contains(t, agg.TradingSignal.Reason, "order-book override")
	assert.InDelta(t, 0.85, agg.TradingSignal.Confidence, 1e-9)
}

func TestAggregate_CriticalEventForcesStrongSell(t *testing.T) {
	f := &fakeFetcher{name: SourceNews, reading: Reading{
		Score:      0.6,
		Confidence: 0.9,
		Raw:        []string{"Major exchange hack drains hot wallets"},
	}}
	a := NewAggregator([]Fetcher{f}, EqualWeights(), 8)

	agg := a.Aggregate(context.Background(), "BTC", neutralContext())

	require.NotEmpty(t, agg.CriticalEvents)
	assert.Equal(t, EventHack, agg.CriticalEvents[0].Kind)
	assert.Equal(t, TradingStrongSell, agg.TradingSignal.Action)
	assert.InDelta(t, 0.9, agg.TradingSignal.Confidence, 1e-9)
	assert.Equal(t, RiskExtreme, agg.TradingSignal.RiskLevel)
}

func TestAggregate_CriticalEventsExpire(t *testing.T) {
	f := &fakeFetcher{name: SourceNews, reading: Reading{
		Score:      0,
		Confidence: 0.9,
		Raw:        []string{"protocol exploit confirmed"},
		ProducedAt: time.Now().UTC(),
	}}
	a := NewAggregator([]Fetcher{f}, EqualWeights(), 8)

	a.Aggregate(context.Background(), "BTC", neutralContext())
	require.NotEmpty(t, a.LiveEvents("BTC"))

	// Jump past the TTL.
	a.now = func() time.Time { return time.Now().Add(time.Hour) }

	assert.Empty(t, a.LiveEvents("BTC"))
}

func TestAggregate_BookAlignmentBoostsConfidence(t *testing.T) {
	fetchers := []Fetcher{
		fetcherWith(SourceMicroblog, 0.5, 0.8),
		fetcherWith(SourceOrderBook, 0.4, 0.6),
	}
	weights := StaticWeights{SourceMicroblog: 0.7, SourceOrderBook: 0.3}
	a := NewAggregator(fetchers, weights, 8)

	agg := a.Aggregate(context.Background(), "BTC", MarketContext{Volume: LevelHigh})

	// score = 0.5*0.7+0.4*0.3 = 0.47 -> BULLISH with HIGH volume -> BUY
	assert.Equal(t, TradingBuy, agg.TradingSignal.Action)
	assert.Contains(t, agg.TradingSignal.Reason, "aligned")
	base := agg.OverallConfidence
	assert.InDelta(t, base*1.1, agg.TradingSignal.Confidence, 1e-9)
}

func TestAggregate_BookDisagreementDampens(t *testing.T) {
	fetchers := []Fetcher{
		fetcherWith(SourceMicroblog, 0.6, 0.9),
		fetcherWith(SourceOrderBook, -0.4, 0.5),
	}
	weights := StaticWeights{SourceMicroblog: 0.8, SourceOrderBook: 0.2}
	a := NewAggregator(fetchers, weights, 8)

	agg := a.Aggregate(context.Background(), "BTC", MarketContext{Volume: LevelHigh})

	assert.Contains(t, agg.TradingSignal.Reason, "disagrees")
	assert.InDelta(t, agg.OverallConfidence*0.8, agg.TradingSignal.Confidence, 1e-9)
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, CategoryExtremeBullish, CategoryFor(0.75))
	assert.Equal(t, CategoryBullish, CategoryFor(0.4))
	assert.Equal(t, CategoryNeutral, CategoryFor(0.1))
	assert.Equal(t, CategoryNeutral, CategoryFor(-0.2))
	assert.Equal(t, CategoryBearish, CategoryFor(-0.35))
	assert.Equal(t, CategoryExtremeBearish, CategoryFor(-0.8))
}

func TestCategorySignalTable(t *testing.T) {
	cases := []struct {
		name     string
		category Category
		mctx     MarketContext
		want     TradingAction
	}{
		{"extreme bullish calm", CategoryExtremeBullish, MarketContext{Volatility: LevelNormal}, TradingStrongBuy},
		{"extreme bullish volatile", CategoryExtremeBullish, MarketContext{Volatility: LevelExtreme}, TradingBuy},
		{"bullish high volume", CategoryBullish, MarketContext{Volume: LevelHigh}, TradingBuy},
		{"bullish quiet", CategoryBullish, MarketContext{Volume: LevelNormal}, TradingHold},
		{"bearish downtrend", CategoryBearish, MarketContext{Downtrend: true}, TradingSell},
		{"bearish no trend", CategoryBearish, MarketContext{}, TradingHold},
		{"extreme bearish volatile", CategoryExtremeBearish, MarketContext{Volatility: LevelExtreme}, TradingStrongSell},
		{"extreme bearish calm", CategoryExtremeBearish, MarketContext{Volatility: LevelNormal}, TradingSell},
		{"neutral", CategoryNeutral, MarketContext{}, TradingHold},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := categorySignal(tc.category, tc.mctx)
			assert.Equal(t, tc.want, sig.Action)
		})
	}
}

func TestLatest(t *testing.T) {
	a := NewAggregator([]Fetcher{fetcherWith(SourceMicroblog, 0.5, 0.8)}, EqualWeights(), 8)

	_, ok := a.Latest("BTC")
	assert.False(t, ok)

	a.Aggregate(context.Background(), "BTC", neutralContext())

	agg, ok := a.Latest("BTC")
	require.True(t, ok)
	assert.Equal(t, "BTC", agg.Symbol)
}
