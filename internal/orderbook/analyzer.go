package orderbook

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
)

// EntrySignal is the discrete book-derived recommendation.
type EntrySignal string

const (
	EntryStrongBuy  EntrySignal = "STRONG_BUY"
	EntryBuy        EntrySignal = "BUY"
	EntryNeutral    EntrySignal = "NEUTRAL"
	EntrySell       EntrySignal = "SELL"
	EntryStrongSell EntrySignal = "STRONG_SELL"
)

// Timeframe classifies how long a book-derived edge should persist.
type Timeframe string

const (
	TimeframeScalp  Timeframe = "SCALP"
	TimeframeShort  Timeframe = "SHORT"
	TimeframeMedium Timeframe = "MEDIUM"
)

// Intelligence is the per-snapshot derived view the sentiment layer
// consumes.
type Intelligence struct {
	Symbol            string      `json:"symbol"`
	Timestamp         time.Time   `json:"timestamp"`
	LiquidityScore    float64     `json:"liquidity_score"`    // [0,100]
	MarketPressure    float64     `json:"market_pressure"`    // [-100,100]
	InstitutionalFlow float64     `json:"institutional_flow"` // [-100,100]
	WhaleActivity     float64     `json:"whale_activity"`     // [0,100]
	EntrySignal       EntrySignal `json:"entry_signal"`
	ConfidenceScore   float64     `json:"confidence_score"` // [0,100]
	Timeframe         Timeframe   `json:"timeframe"`
	StopLossPct       float64     `json:"stop_loss_pct"`
	TakeProfitPct     float64     `json:"take_profit_pct"`
	PositionSizePct   float64     `json:"position_size_pct"`
}

// Config tunes the analyzer.
type Config struct {
	LargeOrderThreshold float64
	// DepthTarget is the per-side size considered fully liquid.
	DepthTarget float64
	// Staleness marks snapshots unreliable after this gap.
	Staleness time.Duration
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		LargeOrderThreshold: 10,
		DepthTarget:         100,
		Staleness:           5 * time.Second,
	}
}

// Analyzer owns one snapshot per symbol. Updates replace the snapshot
// atomically; readers always see a complete book.
type Analyzer struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.RWMutex
	books map[string]*Snapshot

	now func() time.Time
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultConfig().Staleness
	}
	if cfg.DepthTarget <= 0 {
		cfg.DepthTarget = DefaultConfig().DepthTarget
	}
	if cfg.LargeOrderThreshold <= 0 {
		cfg.LargeOrderThreshold = DefaultConfig().LargeOrderThreshold
	}
	return &Analyzer{
		cfg:    cfg,
		logger: config.NewLogger("orderbook"),
		books:  make(map[string]*Snapshot),
		now:    time.Now,
	}
}

// HandleMessage parses and applies one transport message.
func (a *Analyzer) HandleMessage(data []byte) error {
	msg, err := parseDepthMessage(data)
	if err != nil {
		metrics.RecoveredErrors.WithLabelValues("orderbook").Inc()
		return err
	}

	now := a.now().UTC()
	a.mu.Lock()
	var snap *Snapshot
	if msg.Type == "delta" {
		snap = applyDelta(a.books[msg.Symbol], msg, a.cfg.LargeOrderThreshold, now)
	} else {
		snap = applySnapshot(msg.Symbol, msg, a.cfg.LargeOrderThreshold, now)
	}
	a.books[msg.Symbol] = snap
	a.mu.Unlock()

	metrics.OrderBookUpdates.WithLabelValues(msg.Symbol).Inc()
	return nil
}

// Snapshot returns the current book for a symbol with the staleness
// flag set when the last update is too old. The returned value is a
// copy safe for the caller to hold.
func (a *Analyzer) Snapshot(symbol string) (Snapshot, bool) {
	a.mu.RLock()
	snap, ok := a.books[symbol]
	a.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	out := *snap
	out.Stale = a.now().Sub(snap.Timestamp) > a.cfg.Staleness
	return out, true
}

// Intelligence derives the microstructure view for a symbol. A stale
// or missing book reports confidence 0.
func (a *Analyzer) Intelligence(symbol string) (Intelligence, bool) {
	snap, ok := a.Snapshot(symbol)
	if !ok {
		return Intelligence{}, false
	}
	return a.derive(&snap), true
}

func (a *Analyzer) derive(snap *Snapshot) Intelligence {
	intel := Intelligence{
		Symbol:    snap.Symbol,
		Timestamp: snap.Timestamp,
	}

	var bidSize, askSize, largeBidSize, largeAskSize float64
	for _, lvl := range snap.Bids {
		bidSize += lvl.Size
		if lvl.Size >= a.cfg.LargeOrderThreshold {
			largeBidSize += lvl.Size
		}
	}
	for _, lvl := range snap.Asks {
		askSize += lvl.Size
		if lvl.Size >= a.cfg.LargeOrderThreshold {
			largeAskSize += lvl.Size
		}
	}
	totalSize := bidSize + askSize

	// Liquidity: depth against the target, tight spreads rewarded,
	// concentration in a single level penalized.
	depthBonus := math.Min(1, totalSize/(2*a.cfg.DepthTarget))
	spreadBps := 0.0
	if mid := snap.mid(); mid > 0 {
		spreadBps = snap.Spread / mid * 10000
	}
	spreadBonus := clampF(10-spreadBps, -10, 10)
	impactPenalty := 0.0
	if totalSize > 0 {
		topShare := largestLevel(snap) / totalSize
		impactPenalty = 20 * topShare
	}
	intel.LiquidityScore = clampF(50+30*depthBonus+spreadBonus-impactPenalty, 0, 100)

	// Pressure: imbalance, walls and large-order skew.
	wallBias := 0.0
	switch snap.WallPressure {
	case WallBuy:
		wallBias = 1
	case WallSell:
		wallBias = -1
	}
	intel.MarketPressure = clampF(
		50*snap.DepthImbalance+25*wallBias+5*float64(snap.LargeBidCount-snap.LargeAskCount),
		-100, 100)

	// Institutional flow: directional skew of large orders, boosted
	// when overall urgency (imbalance magnitude) is high.
	if largeTotal := largeBidSize + largeAskSize; largeTotal > 0 {
		intel.InstitutionalFlow = 100 * (largeBidSize - largeAskSize) / largeTotal
		intel.WhaleActivity = clampF(100*largeTotal/math.Max(totalSize, 1e-9), 0, 100)
	}
	if math.Abs(snap.DepthImbalance) >= 0.5 {
		intel.InstitutionalFlow = clampF(intel.InstitutionalFlow*1.3, -100, 100)
	}

	combined := (intel.MarketPressure + intel.InstitutionalFlow) / 2
	intel.EntrySignal = entrySignalFor(combined)

	if snap.Stale {
		intel.ConfidenceScore = 0
	} else {
		intel.ConfidenceScore = clampF(intel.LiquidityScore/2+math.Abs(combined)/2, 0, 100)
	}

	switch {
	case spreadBps < 2 && intel.LiquidityScore >= 70:
		intel.Timeframe = TimeframeScalp
		intel.StopLossPct = 0.005
		intel.TakeProfitPct = 0.01
	case math.Abs(combined) >= 60:
		intel.Timeframe = TimeframeShort
		intel.StopLossPct = 0.01
		intel.TakeProfitPct = 0.025
	default:
		intel.Timeframe = TimeframeMedium
		intel.StopLossPct = 0.02
		intel.TakeProfitPct = 0.05
	}
	intel.PositionSizePct = clampF(intel.ConfidenceScore/100*0.1, 0.01, 0.1)

	return intel
}

func entrySignalFor(combined float64) EntrySignal {
	switch {
	case combined >= 60:
		return EntryStrongBuy
	case combined >= 25:
		return EntryBuy
	case combined <= -60:
		return EntryStrongSell
	case combined <= -25:
		return EntrySell
	default:
		return EntryNeutral
	}
}

func largestLevel(snap *Snapshot) float64 {
	max := 0.0
	for _, lvl := range snap.Bids {
		if lvl.Size > max {
			max = lvl.Size
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Size > max {
			max = lvl.Size
		}
	}
	return max
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
