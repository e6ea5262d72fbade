package weights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxtrade/fluxtrader/internal/sentiment"
	"github.com/fluxtrade/fluxtrader/internal/trading"
)

// fixedSource serves a scripted closed-position list.
type fixedSource struct {
	positions []trading.Position
}

func (s *fixedSource) ClosedSince(cutoff time.Time) []trading.Position { return s.positions }

func closedPosition(pnl float64, entrySentiment map[string]float64) trading.Position {
	now := time.Now().UTC()
	return trading.Position{
		Symbol:         "BTC",
		Status:         trading.PositionClosed,
		RealizedPnL:    pnl,
		EntrySentiment: entrySentiment,
		ClosedAt:       &now,
	}
}

func weightSum(w map[string]float64) float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

func TestController_StartsEqual(t *testing.T) {
	c := NewController(&fixedSource{})

	w := c.Weights()
	assert.Len(t, w, len(sentiment.AllSources))
	assert.InDelta(t, 1.0, weightSum(w), 1e-9)
}

func TestRebalance_NoPositionsNoChange(t *testing.T) {
	c := NewController(&fixedSource{})
	before := c.Weights()

	c.Rebalance()

	assert.Equal(t, before, c.Weights())
}

func TestRebalance_HighWinRateRewardsAgreeingSource(t *testing.T) {
	// All winners; microblog agreed strongly, news disagreed.
	src := &fixedSource{}
	for i := 0; i < 5; i++ {
		src.positions = append(src.positions, closedPosition(10, map[string]float64{
			sentiment.SourceMicroblog: 0.8,
			sentiment.SourceNews:      -0.5,
		}))
	}
	c := NewController(src)
	before := c.Weights()

	c.Rebalance()

	after := c.Weights()
	assert.Greater(t, after[sentiment.SourceMicroblog], before[sentiment.SourceMicroblog])
	assert.Less(t, after[sentiment.SourceNews], before[sentiment.SourceNews])
	assert.InDelta(t, 1.0, weightSum(after), 1e-9)
}

func TestRebalance_LowWinRateInverts(t *testing.T) {
	// All losers; microblog was most bullish going in.
	src := &fixedSource{}
	for i := 0; i < 5; i++ {
		src.positions = append(src.positions, closedPosition(-10, map[string]float64{
			sentiment.SourceMicroblog: 0.8,
			sentiment.SourceNews:      -0.5,
		}))
	}
	c := NewController(src)
	before := c.Weights()

	c.Rebalance()

	after := c.Weights()
	// On losers the bullish source disagreed with the outcome, so it
	// gets the nudge down; the bearish source was right.
	assert.Less(t, after[sentiment.SourceMicroblog], before[sentiment.SourceMicroblog])
	assert.Greater(t, after[sentiment.SourceNews], before[sentiment.SourceNews])
	assert.InDelta(t, 1.0, weightSum(after), 1e-9)
}

func TestRebalance_NeutralBandNoChange(t *testing.T) {
	// Win rate exactly 0.5 sits in the neutral band.
	src := &fixedSource{positions: []trading.Position{
		closedPosition(10, map[string]float64{sentiment.SourceMicroblog: 0.5}),
		closedPosition(-10, map[string]float64{sentiment.SourceMicroblog: 0.5}),
	}}
	c := NewController(src)
	before := c.Weights()

	c.Rebalance()

	assert.Equal(t, before, c.Weights())
}

func TestRebalance_SumInvariantAcrossManyCycles(t *testing.T) {
	src := &fixedSource{}
	for i := 0; i < 10; i++ {
		src.positions = append(src.positions, closedPosition(10, map[string]float64{
			sentiment.SourceMicroblog: 0.9,
			sentiment.SourceForum:     -0.9,
		}))
	}
	c := NewController(src)

	for i := 0; i < 200; i++ {
		c.Rebalance()
		w := c.Weights()
		require.InDelta(t, 1.0, weightSum(w), 1e-9, "cycle %d", i)
		for source, v := range w {
			// Clamping happens before renormalization, so bounds hold
			// up to the rescale factor.
			assert.Positive(t, v, "source %s", source)
			assert.Less(t, v, 0.55, "source %s", source)
		}
	}
}

func TestRebalance_SnapshotImmutable(t *testing.T) {
	src := &fixedSource{}
	for i := 0; i < 5; i++ {
		src.positions = append(src.positions, closedPosition(10, map[string]float64{
			sentiment.SourceMicroblog: 0.8,
			sentiment.SourceNews:      -0.5,
		}))
	}
	c := NewController(src)

	before := c.Weights()
	copyBefore := make(map[string]float64, len(before))
	for k, v := range before {
		copyBefore[k] = v
	}

	c.Rebalance()

	// The snapshot handed out earlier is untouched by the rebalance.
	assert.Equal(t, copyBefore, before)
}
