// Package fusion combines technical signals with aggregated sentiment
// into enhanced signals carrying a final action and confidence.
package fusion

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
	"github.com/fluxtrade/fluxtrader/internal/sentiment"
	"github.com/fluxtrade/fluxtrader/internal/strategy"
)

// FinalAction extends the technical action set with SKIP, the outcome
// of a sentiment veto.
type FinalAction string

const (
	FinalBuy  FinalAction = "BUY"
	FinalSell FinalAction = "SELL"
	FinalHold FinalAction = "HOLD"
	FinalSkip FinalAction = "SKIP"
)

// Enhanced is one fused signal. Immutable once emitted; the lifecycle
// manager fills the execution fields before persistence.
type Enhanced struct {
	ID                  uuid.UUID       `json:"id"`
	Technical           strategy.Signal `json:"technical"`
	SentimentScore      float64         `json:"sentiment_score"`
	SentimentConfidence float64         `json:"sentiment_confidence"`
	Conflict            bool            `json:"sentiment_conflict"`
	FinalAction         FinalAction     `json:"final_action"`
	FinalConfidence     float64         `json:"final_confidence"`
	ConfidenceBoost     float64         `json:"confidence_boost"`
	Rationale           string          `json:"rationale"`

	WasExecuted   bool       `json:"was_executed"`
	ExecuteReason string     `json:"execute_reason,omitempty"`
	SignalTime    time.Time  `json:"signal_time"`
	ExecutionTime *time.Time `json:"execution_time,omitempty"`
	TradeID       string     `json:"trade_id,omitempty"`
}

// Actionable reports whether the fused action can open or close a
// position.
func (e Enhanced) Actionable() bool {
	return e.FinalAction == FinalBuy || e.FinalAction == FinalSell
}

// SentimentProvider is the aggregator surface fusion consumes.
type SentimentProvider interface {
	Latest(symbol string) (sentiment.Aggregated, bool)
	LiveEvents(symbol string) []sentiment.CriticalEvent
}

// Config tunes the fusion rules.
type Config struct {
	MinSentimentConfidence float64       // below this, sentiment is ignored
	ConflictThreshold      float64       // |score| needed for a conflict veto
	MaxBoost               float64       // cap on the confidence boost
	Staleness              time.Duration // max sentiment age
}

// DefaultConfig returns the standard fusion tuning.
func DefaultConfig() Config {
	return Config{
		MinSentimentConfidence: 0.4,
		ConflictThreshold:      0.3,
		MaxBoost:               0.2,
		Staleness:              30 * time.Second,
	}
}

// Fuser pairs each technical signal with the freshest sentiment for
// its symbol and applies the fusion rules.
type Fuser struct {
	cfg       Config
	sentiment SentimentProvider
	cache     sentiment.Cache
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a fuser. cache is optional and only consulted when the
// in-memory sentiment is stale or missing.
func New(cfg Config, provider SentimentProvider, cache sentiment.Cache) *Fuser {
	if cfg.MinSentimentConfidence == 0 && cfg.ConflictThreshold == 0 && cfg.MaxBoost == 0 {
		cfg = DefaultConfig()
	}
	return &Fuser{
		cfg:       cfg,
		sentiment: provider,
		cache:     cache,
		logger:    config.NewLogger("fusion"),
		now:       time.Now,
	}
}

// Run consumes technical signals until the input channel closes,
// emitting one enhanced signal per input. The output channel is closed
// on return.
func (f *Fuser) Run(ctx context.Context, in <-chan strategy.Signal, out chan<- Enhanced) {
	defer close(out)
	for signal := range in {
		enhanced := f.Fuse(ctx, signal)
		select {
		case out <- enhanced:
		case <-ctx.Done():
			return
		}
	}
}

// Fuse applies the fusion rules to a single technical signal.
func (f *Fuser) Fuse(ctx context.Context, technical strategy.Signal) Enhanced {
	enhanced := Enhanced{
		ID:          uuid.New(),
		Technical:   technical,
		FinalAction: FinalAction(technical.Action),
		SignalTime:  technical.Timestamp,
	}

	agg, ok := f.freshSentiment(ctx, technical.Symbol)
	if ok {
		enhanced.SentimentScore = agg.OverallScore
		enhanced.SentimentConfidence = agg.OverallConfidence
	}

	// A live hack-class event vetoes any entry or exit on the symbol.
	if technical.Action != strategy.ActionHold {
		if event, found := f.blockingEvent(technical.Symbol); found {
			enhanced.FinalAction = FinalSkip
			enhanced.FinalConfidence = 0
			enhanced.Rationale = "blocked by critical event: " + event.Description
			metrics.SkippedSignals.WithLabelValues("critical_event").Inc()
			return enhanced
		}
	}

	// HOLD passes through untouched.
	if technical.Action == strategy.ActionHold {
		enhanced.FinalConfidence = technical.Confidence
		enhanced.Rationale = technical.Reason
		return enhanced
	}

	if !ok {
		enhanced.FinalConfidence = technical.Confidence
		enhanced.Rationale = technical.Reason + "; no fresh sentiment"
		return enhanced
	}

	if agg.OverallConfidence < f.cfg.MinSentimentConfidence {
		enhanced.FinalConfidence = technical.Confidence
		enhanced.Rationale = technical.Reason + "; sentiment ignored (low confidence)"
		return enhanced
	}

	if conflicts(technical.Action, agg.OverallScore) && math.Abs(agg.OverallScore) >= f.cfg.ConflictThreshold {
		enhanced.Conflict = true
		enhanced.FinalAction = FinalSkip
		enhanced.FinalConfidence = 0
		enhanced.Rationale = technical.Reason + "; sentiment conflicts with technical direction"
		metrics.SkippedSignals.WithLabelValues("sentiment_conflict").Inc()
		return enhanced
	}

	boost := math.Min(f.cfg.MaxBoost, math.Abs(agg.OverallScore)*agg.OverallConfidence)
	enhanced.ConfidenceBoost = boost
	enhanced.FinalConfidence = math.Min(0.95, technical.Confidence*(1+boost))
	enhanced.Rationale = technical.Reason + "; sentiment aligned"

	f.logger.Debug().
		Str("symbol", technical.Symbol).
		Str("action", string(enhanced.FinalAction)).
		Float64("technical_confidence", technical.Confidence).
		Float64("boost", boost).
		Float64("final_confidence", enhanced.FinalConfidence).
		Msg("Signal fused")
	return enhanced
}

// freshSentiment returns the latest aggregation no older than the
// staleness window, falling back to the cache when the in-memory copy
// is missing or stale.
func (f *Fuser) freshSentiment(ctx context.Context, symbol string) (sentiment.Aggregated, bool) {
	cutoff := f.now().Add(-f.cfg.Staleness)

	if agg, ok := f.sentiment.Latest(symbol); ok && agg.Timestamp.After(cutoff) {
		return agg, true
	}

	if f.cache != nil {
		agg, ok, err := f.cache.GetSentiment(ctx, symbol)
		if err != nil {
			metrics.RecoveredErrors.WithLabelValues("fusion_cache").Inc()
			f.logger.Warn().Err(err).Str("symbol", symbol).Msg("Sentiment cache read failed")
			return sentiment.Aggregated{}, false
		}
		if ok && agg.Timestamp.After(cutoff) {
			return agg, true
		}
	}
	return sentiment.Aggregated{}, false
}

// blockingEvent returns a live event that forces SKIP, if any. Hacks
// always block; regulatory events block only at critical severity.
func (f *Fuser) blockingEvent(symbol string) (sentiment.CriticalEvent, bool) {
	for _, event := range f.sentiment.LiveEvents(symbol) {
		switch {
		case event.Kind == sentiment.EventHack:
			return event, true
		case event.Kind == sentiment.EventRegulatory && event.Severity == sentiment.SeverityCritical:
			return event, true
		}
	}
	return sentiment.CriticalEvent{}, false
}

// conflicts reports whether the sentiment score opposes the technical
// direction.
func conflicts(action strategy.Action, score float64) bool {
	switch action {
	case strategy.ActionBuy:
		return score < 0
	case strategy.ActionSell:
		return score > 0
	default:
		return false
	}
}
