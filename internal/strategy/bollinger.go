package strategy

import (
	"fmt"

	"github.com/fluxtrade/fluxtrader/internal/indicators"
)

// bollingerBreakout buys closes above the upper band and sells closes
// below the lower band, optionally confirmed by RSI and volume filters.
type bollingerBreakout struct {
	id     string
	params BollingerBreakoutParams
}

func newBollingerBreakout(id string, p BollingerBreakoutParams) *bollingerBreakout {
	return &bollingerBreakout{id: id, params: p}
}

func (s *bollingerBreakout) ID() string    { return s.id }
func (s *bollingerBreakout) Kind() Kind    { return KindBollingerBreakout }
func (s *bollingerBreakout) Lookback() int { return s.params.MinWindow() }

const breakoutRSIPeriod = 14

func (s *bollingerBreakout) Evaluate(w Window) Signal {
	p := s.params
	if w.Len() < p.SMALength {
		return hold(s.id, w, "insufficient history")
	}

	close := w.Last()

	upper, okU := indicators.Bollinger(w.Closes, p.SMALength, p.UBOffset)
	lower, okL := indicators.Bollinger(w.Closes, p.SMALength, p.LBOffset)
	if !okU || !okL {
		return hold(s.id, w, "insufficient history")
	}
	mid := upper.Middle

	snapshot := map[string]float64{
		"close": close,
		"upper": upper.Upper,
		"mid":   mid,
		"lower": lower.Lower,
	}

	if close > upper.Upper {
		if reason, ok := s.filtersPass(w, ActionBuy); !ok {
			return hold(s.id, w, reason)
		}
		band := upper.Upper - mid
		return Signal{
			StrategyID: s.id,
			Symbol:     w.Symbol,
			Action:     ActionBuy,
			Confidence: breakoutConfidence(close-mid, band),
			Indicators: snapshot,
			Reason:     fmt.Sprintf("close %.2f broke above upper band %.2f", close, upper.Upper),
			Timestamp:  w.LastTime(),
		}
	}

	if close < lower.Lower {
		if reason, ok := s.filtersPass(w, ActionSell); !ok {
			return hold(s.id, w, reason)
		}
		band := mid - lower.Lower
		return Signal{
			StrategyID: s.id,
			Symbol:     w.Symbol,
			Action:     ActionSell,
			Confidence: breakoutConfidence(mid-close, band),
			Indicators: snapshot,
			Reason:     fmt.Sprintf("close %.2f broke below lower band %.2f", close, lower.Lower),
			Timestamp:  w.LastTime(),
		}
	}

	return hold(s.id, w, "close inside bands")
}

// filtersPass applies the optional RSI and volume confirmations.
func (s *bollingerBreakout) filtersPass(w Window, action Action) (string, bool) {
	if s.params.UseRSIFilter {
		rsi := indicators.RSI(w.Closes, breakoutRSIPeriod)
		if action == ActionBuy && rsi <= 50 {
			return fmt.Sprintf("breakout rejected, RSI %.2f not bullish", rsi), false
		}
		if action == ActionSell && rsi >= 50 {
			return fmt.Sprintf("breakout rejected, RSI %.2f not bearish", rsi), false
		}
	}
	if s.params.UseVolumeFilter && !volumeSurge(w, 1.0) {
		return "breakout rejected, volume below rolling mean", false
	}
	return "", true
}

// breakoutConfidence scores how far past the band the close travelled,
// in units of the band width.
func breakoutConfidence(excursion, band float64) float64 {
	if band <= 0 {
		return 0.5
	}
	return clamp((excursion-band)/band, 0, 0.95)
}
