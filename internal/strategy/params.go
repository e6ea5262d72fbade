package strategy

import (
	"fmt"
	"strings"
)

// ValidationError contains details about a single parameter problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Params is implemented by every per-kind parameter struct. Normalize
// fills defaults for zero-valued fields and clamps out-of-range values,
// returning one warning per clamped field.
type Params interface {
	Normalize() (Params, []string)
	// MinWindow is the longest indicator window the params imply.
	MinWindow() int
}

// clampField clamps v into [lo, hi] and appends a warning when it moves.
func clampField(v, lo, hi float64, field string, warnings *[]string) float64 {
	if v < lo {
		*warnings = append(*warnings, fmt.Sprintf("%s %.4g below minimum, clamped to %.4g", field, v, lo))
		return lo
	}
	if v > hi {
		*warnings = append(*warnings, fmt.Sprintf("%s %.4g above maximum, clamped to %.4g", field, v, hi))
		return hi
	}
	return v
}

func clampIntField(v, lo, hi int, field string, warnings *[]string) int {
	if v < lo {
		*warnings = append(*warnings, fmt.Sprintf("%s %d below minimum, clamped to %d", field, v, lo))
		return lo
	}
	if v > hi {
		*warnings = append(*warnings, fmt.Sprintf("%s %d above maximum, clamped to %d", field, v, hi))
		return hi
	}
	return v
}

// RSIPullbackParams configures the RSI pullback strategy.
type RSIPullbackParams struct {
	Lookback       int     `yaml:"lookback" json:"lookback"`
	LowerBarrier   float64 `yaml:"lower_barrier" json:"lower_barrier"`
	LowerThreshold float64 `yaml:"lower_threshold" json:"lower_threshold"`
	UpperBarrier   float64 `yaml:"upper_barrier" json:"upper_barrier"`
	UpperThreshold float64 `yaml:"upper_threshold" json:"upper_threshold"`
	MALength       int     `yaml:"ma_length" json:"ma_length"`
	ATRMultSL      float64 `yaml:"atr_mult_sl" json:"atr_mult_sl"`
	ATRMultTP      float64 `yaml:"atr_mult_tp" json:"atr_mult_tp"`
}

// DefaultRSIPullbackParams returns the schema defaults.
func DefaultRSIPullbackParams() RSIPullbackParams {
	return RSIPullbackParams{
		Lookback:       2,
		LowerBarrier:   30,
		LowerThreshold: 20,
		UpperBarrier:   70,
		UpperThreshold: 80,
		MALength:       20,
		ATRMultSL:      1.5,
		ATRMultTP:      3.0,
	}
}

func (p RSIPullbackParams) Normalize() (Params, []string) {
	var warnings []string
	d := DefaultRSIPullbackParams()
	if p.Lookback == 0 {
		p.Lookback = d.Lookback
	}
	if p.LowerBarrier == 0 {
		p.LowerBarrier = d.LowerBarrier
	}
	if p.LowerThreshold == 0 {
		p.LowerThreshold = d.LowerThreshold
	}
	if p.UpperBarrier == 0 {
		p.UpperBarrier = d.UpperBarrier
	}
	if p.UpperThreshold == 0 {
		p.UpperThreshold = d.UpperThreshold
	}
	if p.MALength == 0 {
		p.MALength = d.MALength
	}
	if p.ATRMultSL == 0 {
		p.ATRMultSL = d.ATRMultSL
	}
	if p.ATRMultTP == 0 {
		p.ATRMultTP = d.ATRMultTP
	}

	p.Lookback = clampIntField(p.Lookback, 2, 100, "lookback", &warnings)
	p.LowerBarrier = clampField(p.LowerBarrier, 5, 50, "lower_barrier", &warnings)
	p.LowerThreshold = clampField(p.LowerThreshold, 1, p.LowerBarrier-1, "lower_threshold", &warnings)
	p.UpperBarrier = clampField(p.UpperBarrier, 50, 95, "upper_barrier", &warnings)
	p.UpperThreshold = clampField(p.UpperThreshold, p.UpperBarrier+1, 99, "upper_threshold", &warnings)
	p.MALength = clampIntField(p.MALength, 2, 200, "ma_length", &warnings)
	p.ATRMultSL = clampField(p.ATRMultSL, 0.1, 10, "atr_mult_sl", &warnings)
	p.ATRMultTP = clampField(p.ATRMultTP, 0.1, 20, "atr_mult_tp", &warnings)
	return p, warnings
}

func (p RSIPullbackParams) MinWindow() int {
	n := p.Lookback + 1
	if p.MALength > n {
		n = p.MALength
	}
	return n
}

// QuantumOscillatorParams configures the quantum oscillator strategy.
type QuantumOscillatorParams struct {
	FastPeriod        int     `yaml:"fast_period" json:"fast_period"`
	SlowPeriod        int     `yaml:"slow_period" json:"slow_period"`
	SignalPeriod      int     `yaml:"signal_period" json:"signal_period"`
	OverboughtLevel   float64 `yaml:"overbought_level" json:"overbought_level"`
	OversoldLevel     float64 `yaml:"oversold_level" json:"oversold_level"`
	MomentumThreshold float64 `yaml:"momentum_threshold" json:"momentum_threshold"`
	VolumeMultiplier  float64 `yaml:"volume_multiplier" json:"volume_multiplier"`
}

// DefaultQuantumOscillatorParams returns the schema defaults.
func DefaultQuantumOscillatorParams() QuantumOscillatorParams {
	return QuantumOscillatorParams{
		FastPeriod:        12,
		SlowPeriod:        26,
		SignalPeriod:      9,
		OverboughtLevel:   70,
		OversoldLevel:     30,
		MomentumThreshold: 0.5,
		VolumeMultiplier:  1.5,
	}
}

func (p QuantumOscillatorParams) Normalize() (Params, []string) {
	var warnings []string
	d := DefaultQuantumOscillatorParams()
	if p.FastPeriod == 0 {
		p.FastPeriod = d.FastPeriod
	}
	if p.SlowPeriod == 0 {
		p.SlowPeriod = d.SlowPeriod
	}
	if p.SignalPeriod == 0 {
		p.SignalPeriod = d.SignalPeriod
	}
	if p.OverboughtLevel == 0 {
		p.OverboughtLevel = d.OverboughtLevel
	}
	if p.OversoldLevel == 0 {
		p.OversoldLevel = d.OversoldLevel
	}
	if p.MomentumThreshold == 0 {
		p.MomentumThreshold = d.MomentumThreshold
	}
	if p.VolumeMultiplier == 0 {
		p.VolumeMultiplier = d.VolumeMultiplier
	}

	p.FastPeriod = clampIntField(p.FastPeriod, 2, 50, "fast_period", &warnings)
	p.SlowPeriod = clampIntField(p.SlowPeriod, p.FastPeriod+1, 100, "slow_period", &warnings)
	p.SignalPeriod = clampIntField(p.SignalPeriod, 1, 50, "signal_period", &warnings)
	p.OverboughtLevel = clampField(p.OverboughtLevel, 50, 100, "overbought_level", &warnings)
	p.OversoldLevel = clampField(p.OversoldLevel, 0, 50, "oversold_level", &warnings)
	p.MomentumThreshold = clampField(p.MomentumThreshold, 0.01, 100, "momentum_threshold", &warnings)
	p.VolumeMultiplier = clampField(p.VolumeMultiplier, 0.1, 10, "volume_multiplier", &warnings)
	return p, warnings
}

func (p QuantumOscillatorParams) MinWindow() int {
	return p.SlowPeriod + p.SignalPeriod + 1
}

// NeuralConfidenceParams configures the neural confidence strategy.
type NeuralConfidenceParams struct {
	NeuralLayers        int     `yaml:"neural_layers" json:"neural_layers"`
	LearningRate        float64 `yaml:"learning_rate" json:"learning_rate"`
	LookbackWindow      int     `yaml:"lookback_window" json:"lookback_window"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
	AdaptationPeriod    int     `yaml:"adaptation_period" json:"adaptation_period"`
	RiskMultiplier      float64 `yaml:"risk_multiplier" json:"risk_multiplier"`
}

// DefaultNeuralConfidenceParams returns the schema defaults.
func DefaultNeuralConfidenceParams() NeuralConfidenceParams {
	return NeuralConfidenceParams{
		NeuralLayers:        3,
		LearningRate:        0.01,
		LookbackWindow:      20,
		ConfidenceThreshold: 0.6,
		AdaptationPeriod:    50,
		RiskMultiplier:      1.0,
	}
}

func (p NeuralConfidenceParams) Normalize() (Params, []string) {
	var warnings []string
	d := DefaultNeuralConfidenceParams()
	if p.NeuralLayers == 0 {
		p.NeuralLayers = d.NeuralLayers
	}
	if p.LearningRate == 0 {
		p.LearningRate = d.LearningRate
	}
	if p.LookbackWindow == 0 {
		p.LookbackWindow = d.LookbackWindow
	}
	if p.ConfidenceThreshold == 0 {
		p.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if p.AdaptationPeriod == 0 {
		p.AdaptationPeriod = d.AdaptationPeriod
	}
	if p.RiskMultiplier == 0 {
		p.RiskMultiplier = d.RiskMultiplier
	}

	p.NeuralLayers = clampIntField(p.NeuralLayers, 1, 8, "neural_layers", &warnings)
	p.LearningRate = clampField(p.LearningRate, 0.0001, 0.5, "learning_rate", &warnings)
	p.LookbackWindow = clampIntField(p.LookbackWindow, 5, 200, "lookback_window", &warnings)
	p.ConfidenceThreshold = clampField(p.ConfidenceThreshold, 0.1, 0.95, "confidence_threshold", &warnings)
	p.AdaptationPeriod = clampIntField(p.AdaptationPeriod, 1, 10000, "adaptation_period", &warnings)
	p.RiskMultiplier = clampField(p.RiskMultiplier, 0.1, 5, "risk_multiplier", &warnings)
	return p, warnings
}

func (p NeuralConfidenceParams) MinWindow() int {
	return p.LookbackWindow + 1
}

// BollingerBreakoutParams configures the Bollinger breakout strategy.
type BollingerBreakoutParams struct {
	SMALength       int     `yaml:"sma_length" json:"sma_length"`
	UBOffset        float64 `yaml:"ub_offset" json:"ub_offset"`
	LBOffset        float64 `yaml:"lb_offset" json:"lb_offset"`
	UseRSIFilter    bool    `yaml:"use_rsi_filter" json:"use_rsi_filter"`
	UseVolumeFilter bool    `yaml:"use_volume_filter" json:"use_volume_filter"`
}

// DefaultBollingerBreakoutParams returns the schema defaults.
func DefaultBollingerBreakoutParams() BollingerBreakoutParams {
	return BollingerBreakoutParams{
		SMALength: 20,
		UBOffset:  2.0,
		LBOffset:  2.0,
	}
}

func (p BollingerBreakoutParams) Normalize() (Params, []string) {
	var warnings []string
	d := DefaultBollingerBreakoutParams()
	if p.SMALength == 0 {
		p.SMALength = d.SMALength
	}
	if p.UBOffset == 0 {
		p.UBOffset = d.UBOffset
	}
	if p.LBOffset == 0 {
		p.LBOffset = d.LBOffset
	}

	p.SMALength = clampIntField(p.SMALength, 2, 200, "sma_length", &warnings)
	p.UBOffset = clampField(p.UBOffset, 0.5, 5, "ub_offset", &warnings)
	p.LBOffset = clampField(p.LBOffset, 0.5, 5, "lb_offset", &warnings)
	return p, warnings
}

func (p BollingerBreakoutParams) MinWindow() int {
	n := p.SMALength
	if p.UseRSIFilter && 15 > n {
		n = 15
	}
	return n
}

// defaultParams returns the default parameter value for a kind.
func defaultParams(kind Kind) (Params, error) {
	switch kind {
	case KindRSIPullback:
		return DefaultRSIPullbackParams(), nil
	case KindQuantumOscillator:
		return DefaultQuantumOscillatorParams(), nil
	case KindNeuralConfidence:
		return DefaultNeuralConfidenceParams(), nil
	case KindBollingerBreakout:
		return DefaultBollingerBreakoutParams(), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", kind)
	}
}
