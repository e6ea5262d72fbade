package strategy

import (
	"fmt"

	"github.com/fluxtrade/fluxtrader/internal/indicators"
)

// quantumOscillator trades MACD histogram zero crossings confirmed by
// the fast EMA's position within the window range and a volume surge.
type quantumOscillator struct {
	id     string
	params QuantumOscillatorParams
}

func newQuantumOscillator(id string, p QuantumOscillatorParams) *quantumOscillator {
	return &quantumOscillator{id: id, params: p}
}

func (s *quantumOscillator) ID() string    { return s.id }
func (s *quantumOscillator) Kind() Kind    { return KindQuantumOscillator }
func (s *quantumOscillator) Lookback() int { return s.params.MinWindow() }

func (s *quantumOscillator) Evaluate(w Window) Signal {
	p := s.params
	if w.Len() < p.MinWindow() {
		return hold(s.id, w, "insufficient history")
	}

	cur, ok := indicators.MACD(w.Closes, p.FastPeriod, p.SlowPeriod, p.SignalPeriod)
	if !ok {
		return hold(s.id, w, "insufficient history")
	}
	prev, ok := indicators.MACD(w.Closes[:w.Len()-1], p.FastPeriod, p.SlowPeriod, p.SignalPeriod)
	if !ok {
		return hold(s.id, w, "insufficient history")
	}

	fastEMA, _ := indicators.EMA(w.Closes, p.FastPeriod)
	level := rangePosition(w.Closes, fastEMA)
	snapshot := map[string]float64{
		"macd":      cur.MACD,
		"signal":    cur.Signal,
		"histogram": cur.Histogram,
		"fast_ema":  fastEMA,
		"level":     level,
	}

	confidence := clamp(absf(cur.Histogram)/p.MomentumThreshold, 0, 0.95)

	if prev.Histogram <= 0 && cur.Histogram > 0 && level < p.OversoldLevel && volumeSurge(w, p.VolumeMultiplier) {
		return Signal{
			StrategyID: s.id,
			Symbol:     w.Symbol,
			Action:     ActionBuy,
			Confidence: confidence,
			Indicators: snapshot,
			Reason:     fmt.Sprintf("MACD histogram crossed up at %.4f with level %.1f", cur.Histogram, level),
			Timestamp:  w.LastTime(),
		}
	}

	if prev.Histogram >= 0 && cur.Histogram < 0 && level > p.OverboughtLevel && volumeSurge(w, p.VolumeMultiplier) {
		return Signal{
			StrategyID: s.id,
			Symbol:     w.Symbol,
			Action:     ActionSell,
			Confidence: confidence,
			Indicators: snapshot,
			Reason:     fmt.Sprintf("MACD histogram crossed down at %.4f with level %.1f", cur.Histogram, level),
			Timestamp:  w.LastTime(),
		}
	}

	return hold(s.id, w, fmt.Sprintf("no momentum cross, histogram %.4f", cur.Histogram))
}

// rangePosition maps a value onto [0,100] within the window's price
// range. A flat window reads as the midpoint.
func rangePosition(closes []float64, v float64) float64 {
	lo, hi := closes[0], closes[0]
	for _, c := range closes {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if hi == lo {
		return 50
	}
	return clamp(100*(v-lo)/(hi-lo), 0, 100)
}

// volumeSurge reports whether the latest volume exceeds the window's
// rolling mean by the multiplier. Windows without volume data pass.
func volumeSurge(w Window, mult float64) bool {
	if len(w.Volumes) == 0 {
		return true
	}
	var sum float64
	for _, v := range w.Volumes {
		sum += v
	}
	mean := sum / float64(len(w.Volumes))
	if mean == 0 {
		return true
	}
	return w.LastVolume() > mean*mult
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
