package strategy

import (
	"fmt"
	"hash/fnv"
	"math"
)

// neuralConfidence is a shallow adaptive pattern scorer, not a training
// framework. A vector of normalized returns flows through a fixed stack
// of tanh transforms whose weights are seeded deterministically from the
// strategy id and nudged by a single gradient step every adaptation
// period against the sign of the latest realized return.
type neuralConfidence struct {
	id     string
	params NeuralConfidenceParams

	inputWeights []float64 // first layer, one weight per return
	layerWeights []float64 // scalar chain for the remaining layers
	layerBiases  []float64

	ticksSeen int
	lastTS    int64 // unix nanos of the last adapted tick, for replay safety
}

func newNeuralConfidence(id string, p NeuralConfidenceParams) *neuralConfidence {
	s := &neuralConfidence{id: id, params: p}
	s.seedWeights()
	return s
}

func (s *neuralConfidence) ID() string    { return s.id }
func (s *neuralConfidence) Kind() Kind    { return KindNeuralConfidence }
func (s *neuralConfidence) Lookback() int { return s.params.MinWindow() }

// seedWeights derives the initial weights from an FNV-1a hash of the
// strategy id, so identical ids always start from identical weights.
func (s *neuralConfidence) seedWeights() {
	h := fnv.New64a()
	h.Write([]byte(s.id))
	state := h.Sum64()

	next := func() float64 {
		// xorshift over the hash state; uniform in [-0.5, 0.5)
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return float64(state%10000)/10000.0 - 0.5
	}

	n := s.params.LookbackWindow
	s.inputWeights = make([]float64, n)
	for i := range s.inputWeights {
		s.inputWeights[i] = next()
	}

	layers := s.params.NeuralLayers - 1
	if layers < 0 {
		layers = 0
	}
	s.layerWeights = make([]float64, layers)
	s.layerBiases = make([]float64, layers)
	for i := range s.layerWeights {
		s.layerWeights[i] = 1 + 0.5*next()
		s.layerBiases[i] = 0.2 * next()
	}
}

func (s *neuralConfidence) Evaluate(w Window) Signal {
	p := s.params
	if w.Len() < p.LookbackWindow+1 {
		return hold(s.id, w, "insufficient history")
	}

	returns := normalizedReturns(w.Closes, p.LookbackWindow)
	s.maybeAdapt(w, returns)

	out := s.forward(returns)
	snapshot := map[string]float64{"output": out}

	if out >= p.ConfidenceThreshold {
		return Signal{
			StrategyID: s.id,
			Symbol:     w.Symbol,
			Action:     ActionBuy,
			Confidence: math.Min(0.95, math.Abs(out)),
			Indicators: snapshot,
			Reason:     fmt.Sprintf("pattern score %.3f above threshold", out),
			Timestamp:  w.LastTime(),
		}
	}
	if out <= -p.ConfidenceThreshold {
		return Signal{
			StrategyID: s.id,
			Symbol:     w.Symbol,
			Action:     ActionSell,
			Confidence: math.Min(0.95, math.Abs(out)),
			Indicators: snapshot,
			Reason:     fmt.Sprintf("pattern score %.3f below threshold", out),
			Timestamp:  w.LastTime(),
		}
	}
	return hold(s.id, w, fmt.Sprintf("pattern score %.3f inside threshold", out))
}

// forward runs the transform stack: tanh of the weighted input sum,
// then a scalar tanh chain. Output lies in (-1, 1).
func (s *neuralConfidence) forward(returns []float64) float64 {
	var sum float64
	for i, r := range returns {
		sum += s.inputWeights[i] * r
	}
	out := math.Tanh(sum)
	for i := range s.layerWeights {
		out = math.Tanh(s.layerWeights[i]*out + s.layerBiases[i])
	}
	return out
}

// maybeAdapt applies one gradient step every adaptation period. The tick
// counter only advances when the window timestamp advances, so replaying
// a tick against the same window state never mutates the weights.
func (s *neuralConfidence) maybeAdapt(w Window, returns []float64) {
	ts := w.LastTime().UnixNano()
	if ts <= s.lastTS {
		return
	}
	s.lastTS = ts
	s.ticksSeen++
	if s.ticksSeen%s.params.AdaptationPeriod != 0 {
		return
	}

	// Nudge the input weights toward the sign of the latest return.
	direction := 1.0
	if returns[len(returns)-1] < 0 {
		direction = -1.0
	}
	for i, r := range returns {
		s.inputWeights[i] += s.params.LearningRate * direction * r
	}
}

// normalizedReturns computes the last n period returns scaled by tanh
// so outliers cannot saturate the input vector.
func normalizedReturns(closes []float64, n int) []float64 {
	out := make([]float64, n)
	start := len(closes) - n
	for i := 0; i < n; i++ {
		prev := closes[start+i-1]
		if prev == 0 {
			continue
		}
		out[i] = math.Tanh(100 * (closes[start+i] - prev) / prev)
	}
	return out
}
