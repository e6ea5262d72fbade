// Package sentiment implements the multi-source sentiment layer: one
// fetcher per source behind a circuit breaker, and the aggregator that
// fans out across them and combines readings under adaptive weights.
package sentiment

import "time"

// Source names. The weight map and all metrics key on these.
const (
	SourceMicroblog = "microblog"
	SourceForum     = "forum"
	SourceNews      = "news"
	SourceOnChain   = "onchain"
	SourceOrderBook = "orderbook"
)

// AllSources lists every source in a stable order.
var AllSources = []string{SourceMicroblog, SourceForum, SourceNews, SourceOnChain, SourceOrderBook}

// Reading is one normalized source observation.
type Reading struct {
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol"`
	Score      float64   `json:"score"`      // [-1,1]
	Confidence float64   `json:"confidence"` // [0,1]
	Volume     int       `json:"volume"`     // items behind the reading
	ProducedAt time.Time `json:"produced_at"`
	Raw        []string  `json:"raw,omitempty"` // titles/texts for event extraction
}

// Category buckets the overall score.
type Category string

const (
	CategoryExtremeBullish Category = "EXTREME_BULLISH"
	CategoryBullish        Category = "BULLISH"
	CategoryNeutral        Category = "NEUTRAL"
	CategoryBearish        Category = "BEARISH"
	CategoryExtremeBearish Category = "EXTREME_BEARISH"
)

// TradingAction is the aggregator's derived recommendation.
type TradingAction string

const (
	TradingStrongBuy  TradingAction = "STRONG_BUY"
	TradingBuy        TradingAction = "BUY"
	TradingHold       TradingAction = "HOLD"
	TradingSell       TradingAction = "SELL"
	TradingStrongSell TradingAction = "STRONG_SELL"
	TradingWait       TradingAction = "WAIT"
)

// RiskLevel grades a trading signal.
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// EventKind classifies a critical event.
type EventKind string

const (
	EventPartnership EventKind = "PARTNERSHIP"
	EventHack        EventKind = "HACK"
	EventRegulatory  EventKind = "REGULATORY"
	EventListing     EventKind = "LISTING"
	EventWhaleMove   EventKind = "WHALE_MOVE"
)

// EventSeverity grades a critical event.
type EventSeverity string

const (
	SeverityLow      EventSeverity = "LOW"
	SeverityMedium   EventSeverity = "MEDIUM"
	SeverityHigh     EventSeverity = "HIGH"
	SeverityCritical EventSeverity = "CRITICAL"
)

// CriticalEvent is a high-impact discrete occurrence detected in
// source data. Events expire after a fixed window.
type CriticalEvent struct {
	Kind        EventKind     `json:"kind"`
	Severity    EventSeverity `json:"severity"`
	Impact      float64       `json:"impact"` // [-10,10]
	Source      string        `json:"source"`
	Timestamp   time.Time     `json:"timestamp"`
	Description string        `json:"description"`
}

// TradingSignal is the aggregator's actionable output.
type TradingSignal struct {
	Action     TradingAction `json:"action"`
	Confidence float64       `json:"confidence"`
	Reason     string        `json:"reason"`
	RiskLevel  RiskLevel     `json:"risk_level"`
}

// Aggregated is the combined across-sources result for one symbol.
type Aggregated struct {
	Symbol            string             `json:"symbol"`
	Timestamp         time.Time          `json:"timestamp"`
	OverallScore      float64            `json:"overall_score"`      // [-1,1]
	OverallConfidence float64            `json:"overall_confidence"` // [0,1]
	Category          Category           `json:"category"`
	PerSource         map[string]Reading `json:"per_source"`
	CriticalEvents    []CriticalEvent    `json:"critical_events,omitempty"`
	TradingSignal     TradingSignal      `json:"trading_signal"`
}

// CategoryFor buckets a score: past 0.7 either way is extreme, past
// 0.3 directional, otherwise neutral.
func CategoryFor(score float64) Category {
	switch {
	case score >= 0.7:
		return CategoryExtremeBullish
	case score >= 0.3:
		return CategoryBullish
	case score <= -0.7:
		return CategoryExtremeBearish
	case score <= -0.3:
		return CategoryBearish
	default:
		return CategoryNeutral
	}
}

// MarketLevel grades trend, volatility or volume context.
type MarketLevel string

const (
	LevelLow     MarketLevel = "LOW"
	LevelNormal  MarketLevel = "NORMAL"
	LevelHigh    MarketLevel = "HIGH"
	LevelExtreme MarketLevel = "EXTREME"
)

// MarketContext frames the trading-signal derivation.
type MarketContext struct {
	Downtrend  bool
	Volatility MarketLevel
	Volume     MarketLevel
}
