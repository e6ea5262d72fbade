// Package weights implements the adaptive source-weight controller:
// hourly attribution of closed-trade outcomes to sentiment sources,
// with bounded nudges and atomic snapshot publication.
package weights

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/sentiment"
	"github.com/fluxtrade/fluxtrader/internal/trading"
)

const (
	minWeight     = 0.05
	maxWeight     = 0.5
	upNudge       = 0.01
	downNudge     = 0.005
	goodWinRate   = 0.6
	badWinRate    = 0.4
	lookbackHours = 24
)

// PositionSource supplies recently closed positions for attribution.
type PositionSource interface {
	ClosedSince(cutoff time.Time) []trading.Position
}

// Controller owns the source-weight map. It is the single writer;
// readers get an immutable snapshot via Weights.
type Controller struct {
	source  PositionSource
	current atomic.Value // map[string]float64, replaced wholesale
	logger  zerolog.Logger
	now     func() time.Time
}

// NewController starts from equal weights across all sources.
func NewController(source PositionSource) *Controller {
	c := &Controller{
		source: source,
		logger: config.NewLogger("weights"),
		now:    time.Now,
	}
	c.current.Store(map[string]float64(sentiment.EqualWeights()))
	return c
}

// Weights returns the current snapshot. Callers must not mutate it.
func (c *Controller) Weights() map[string]float64 {
	return c.current.Load().(map[string]float64)
}

// Run rebalances at the given cadence until cancelled.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Rebalance()
		}
	}
}

// Rebalance recomputes weights from the last day of closed positions.
// A window with no closed positions leaves the weights untouched.
func (c *Controller) Rebalance() {
	cutoff := c.now().Add(-lookbackHours * time.Hour)
	closed := c.source.ClosedSince(cutoff)
	if len(closed) == 0 {
		c.logger.Debug().Msg("No closed positions in window, weights unchanged")
		return
	}

	wins := 0
	agreement := make(map[string]float64)
	for _, p := range closed {
		outcome := -1.0
		if p.RealizedPnL > 0 {
			outcome = 1
			wins++
		}
		for source, score := range p.EntrySentiment {
			// Positive entry sentiment on a winner (or negative on a
			// loser) counts as agreement.
			agreement[source] += score * outcome
		}
	}
	winRate := float64(wins) / float64(len(closed))

	if winRate <= goodWinRate && winRate >= badWinRate {
		c.logger.Debug().Float64("win_rate", winRate).Msg("Win rate in neutral band, weights unchanged")
		return
	}
	if len(agreement) == 0 {
		return
	}

	best, worst := extremes(agreement)

	next := make(map[string]float64, len(c.Weights()))
	for source, w := range c.Weights() {
		next[source] = w
	}

	if winRate > goodWinRate {
		next[best] += upNudge
		next[worst] -= downNudge
	} else {
		next[best] -= downNudge
		next[worst] += upNudge
	}

	normalize(next)
	c.current.Store(next)

	c.logger.Info().
		Float64("win_rate", winRate).
		Str("best_source", best).
		Str("worst_source", worst).
		Int("closed_positions", len(closed)).
		Msg("Source weights rebalanced")
}

// extremes returns the highest- and lowest-agreeing sources.
func extremes(agreement map[string]float64) (best, worst string) {
	bestScore, worstScore := math.Inf(-1), math.Inf(1)
	for source, score := range agreement {
		if score > bestScore {
			bestScore, best = score, source
		}
		if score < worstScore {
			worstScore, worst = score, source
		}
	}
	return best, worst
}

// normalize clamps each weight to [minWeight, maxWeight] and rescales
// so the weights sum to 1.
func normalize(weights map[string]float64) {
	var sum float64
	for source, w := range weights {
		w = math.Max(minWeight, math.Min(maxWeight, w))
		weights[source] = w
		sum += w
	}
	if sum == 0 {
		return
	}
	for source, w := range weights {
		weights[source] = w / sum
	}
}
