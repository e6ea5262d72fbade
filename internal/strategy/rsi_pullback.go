package strategy

import (
	"fmt"

	"github.com/fluxtrade/fluxtrader/internal/indicators"
)

// rsiPullback buys oversold dips above the moving average and sells
// overbought spikes. Confidence grows linearly with how deep the RSI
// sits inside the threshold band past the barrier.
type rsiPullback struct {
	id     string
	params RSIPullbackParams
}

func newRSIPullback(id string, p RSIPullbackParams) *rsiPullback {
	return &rsiPullback{id: id, params: p}
}

func (s *rsiPullback) ID() string    { return s.id }
func (s *rsiPullback) Kind() Kind    { return KindRSIPullback }
func (s *rsiPullback) Lookback() int { return s.params.MinWindow() }

func (s *rsiPullback) Evaluate(w Window) Signal {
	p := s.params
	if w.Len() < p.Lookback+1 {
		return hold(s.id, w, "insufficient history")
	}

	rsi := indicators.RSI(w.Closes, p.Lookback)
	price := w.Last()
	snapshot := map[string]float64{"rsi": rsi, "price": price}

	sma, haveSMA := indicators.SMA(w.Closes, p.MALength)
	if haveSMA {
		snapshot["sma"] = sma
	}

	if rsi <= p.LowerBarrier {
		// Trend filter: only buy dips while price holds above the MA.
		// Without enough history for the MA the filter is waived.
		if haveSMA && price <= sma {
			return hold(s.id, w, fmt.Sprintf("RSI oversold at %.2f but price below MA", rsi))
		}
		sig := Signal{
			StrategyID: s.id,
			Symbol:     w.Symbol,
			Action:     ActionBuy,
			Confidence: barrierConfidence(p.LowerBarrier-rsi, p.LowerBarrier-p.LowerThreshold),
			Indicators: snapshot,
			Reason:     fmt.Sprintf("RSI oversold at %.2f", rsi),
			Timestamp:  w.LastTime(),
		}
		return sig
	}

	if rsi >= p.UpperBarrier {
		return Signal{
			StrategyID: s.id,
			Symbol:     w.Symbol,
			Action:     ActionSell,
			Confidence: barrierConfidence(rsi-p.UpperBarrier, p.UpperThreshold-p.UpperBarrier),
			Indicators: snapshot,
			Reason:     fmt.Sprintf("RSI overbought at %.2f", rsi),
			Timestamp:  w.LastTime(),
		}
	}

	return hold(s.id, w, fmt.Sprintf("RSI neutral at %.2f", rsi))
}

// barrierConfidence maps the distance past the barrier into [0.5, 0.95]:
// touching the barrier scores 0.5, reaching the threshold scores 1.0
// before the cap.
func barrierConfidence(distance, band float64) float64 {
	if band <= 0 {
		return 0.5
	}
	return clamp(0.5+0.5*distance/band, 0.5, 0.95)
}
