// Package strategy implements the typed trading strategies and the
// registry that owns their instances. Each strategy evaluates a rolling
// price window and emits a directional signal with a confidence score.
package strategy

import (
	"fmt"
	"time"
)

// Action is the directional recommendation of a technical signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Kind identifies a strategy implementation.
type Kind string

const (
	KindRSIPullback       Kind = "rsi_pullback"
	KindQuantumOscillator Kind = "quantum_oscillator"
	KindNeuralConfidence  Kind = "neural_confidence"
	KindBollingerBreakout Kind = "bollinger_breakout"
)

// Kinds lists every supported strategy kind.
var Kinds = []Kind{KindRSIPullback, KindQuantumOscillator, KindNeuralConfidence, KindBollingerBreakout}

// Window is the point-in-time view of a symbol's rolling price history
// a strategy evaluates. Slices are ordered oldest to newest and share
// one length. The engine builds a fresh Window per evaluation; strategies
// must not retain or mutate it.
type Window struct {
	Symbol     string
	Closes     []float64
	Highs      []float64
	Lows       []float64
	Volumes    []float64
	Timestamps []time.Time
}

// Len returns the number of observations in the window.
func (w Window) Len() int { return len(w.Closes) }

// Last returns the most recent close, or 0 for an empty window.
func (w Window) Last() float64 {
	if len(w.Closes) == 0 {
		return 0
	}
	return w.Closes[len(w.Closes)-1]
}

// LastVolume returns the most recent volume, or 0 for an empty window.
func (w Window) LastVolume() float64 {
	if len(w.Volumes) == 0 {
		return 0
	}
	return w.Volumes[len(w.Volumes)-1]
}

// LastTime returns the most recent observation timestamp.
func (w Window) LastTime() time.Time {
	if len(w.Timestamps) == 0 {
		return time.Time{}
	}
	return w.Timestamps[len(w.Timestamps)-1]
}

// Signal is a technical signal produced by one strategy for one tick.
// Signals are immutable once emitted.
type Signal struct {
	StrategyID string             `json:"strategy_id"`
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Confidence float64            `json:"confidence"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Reason     string             `json:"reason"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Strategy evaluates a price window into a signal. Implementations must
// be deterministic: identical input streams produce identical signals.
type Strategy interface {
	ID() string
	Kind() Kind
	// Lookback is the minimum window length the strategy needs to
	// produce a non-HOLD signal.
	Lookback() int
	Evaluate(w Window) Signal
}

// New constructs a strategy of the given kind. Params must already be
// validated and clamped; see the per-kind param types.
func New(id string, kind Kind, params Params) (Strategy, error) {
	switch kind {
	case KindRSIPullback:
		p, ok := params.(RSIPullbackParams)
		if !ok {
			return nil, fmt.Errorf("strategy %s: expected RSIPullbackParams, got %T", id, params)
		}
		return newRSIPullback(id, p), nil
	case KindQuantumOscillator:
		p, ok := params.(QuantumOscillatorParams)
		if !ok {
			return nil, fmt.Errorf("strategy %s: expected QuantumOscillatorParams, got %T", id, params)
		}
		return newQuantumOscillator(id, p), nil
	case KindNeuralConfidence:
		p, ok := params.(NeuralConfidenceParams)
		if !ok {
			return nil, fmt.Errorf("strategy %s: expected NeuralConfidenceParams, got %T", id, params)
		}
		return newNeuralConfidence(id, p), nil
	case KindBollingerBreakout:
		p, ok := params.(BollingerBreakoutParams)
		if !ok {
			return nil, fmt.Errorf("strategy %s: expected BollingerBreakoutParams, got %T", id, params)
		}
		return newBollingerBreakout(id, p), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", kind)
	}
}

// hold builds the low-confidence HOLD signal strategies fall through to.
func hold(id string, w Window, reason string) Signal {
	return Signal{
		StrategyID: id,
		Symbol:     w.Symbol,
		Action:     ActionHold,
		Confidence: 0.1,
		Reason:     reason,
		Timestamp:  w.LastTime(),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
