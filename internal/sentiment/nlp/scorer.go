// Package nlp scores short texts for market sentiment with a weighted
// keyword dictionary. Scoring is pure and batch results preserve input
// order.
package nlp

import (
	"math"
	"strings"
	"sync"
)

// Result is the score for one text.
type Result struct {
	Score           float64 // [-1,1]
	Confidence      float64 // [0,1]
	TokensProcessed int
}

// Context carries the market framing for context-adjusted scoring.
type Context struct {
	PreviousScore   float64
	MarketCondition string // "BULL", "BEAR" or ""
	TimeOfDay       int    // hour in UTC
}

// keywordWeights maps sentiment-bearing tokens to weights in [-1,1].
var keywordWeights = map[string]float64{
	// bullish
	"moon":          0.9,
	"bullish":       0.8,
	"pump":          0.6,
	"rally":         0.7,
	"breakout":      0.7,
	"surge":         0.7,
	"adoption":      0.6,
	"partnership":   0.6,
	"upgrade":       0.5,
	"listing":       0.5,
	"ath":           0.8,
	"buy":           0.4,
	"long":          0.3,
	"accumulate":    0.5,
	"institutional": 0.5,
	"halving":       0.4,
	"green":         0.3,

	// bearish
	"crash":      -0.9,
	"dump":       -0.7,
	"bearish":    -0.8,
	"rekt":       -0.8,
	"scam":       -0.9,
	"hack":       -0.9,
	"exploit":    -0.9,
	"rug":        -0.9,
	"rugpull":    -0.9,
	"sell":       -0.4,
	"short":      -0.3,
	"fud":        -0.5,
	"ban":        -0.7,
	"lawsuit":    -0.6,
	"regulation": -0.4,
	"sec":        -0.3,
	"delisting":  -0.7,
	"liquidated": -0.6,
	"bankruptcy": -0.9,
	"red":        -0.3,
	"fear":       -0.5,
	"panic":      -0.7,
}

// Score evaluates a single text. The score is the mean of matched
// keyword weights; confidence blends text length with score strength.
func Score(text string) Result {
	tokens := tokenize(text)

	var sum float64
	matched := 0
	for _, tok := range tokens {
		if w, ok := keywordWeights[tok]; ok {
			sum += w
			matched++
		}
	}

	score := 0.0
	if matched > 0 {
		score = clamp(sum/float64(matched), -1, 1)
	}

	confidence := math.Min(1, float64(len(tokens))/100)*0.5 + math.Abs(score)*0.5

	return Result{
		Score:           score,
		Confidence:      confidence,
		TokensProcessed: len(tokens),
	}
}

// ScoreBatch scores texts concurrently, preserving input order.
func ScoreBatch(texts []string) []Result {
	results := make([]Result, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			results[i] = Score(text)
		}(i, text)
	}
	wg.Wait()
	return results
}

// ScoreWithContext applies additive momentum from the previous score
// and a multiplicative session weighting on top of the base score.
func ScoreWithContext(text string, ctx Context) Result {
	base := Score(text)

	// Momentum: a quarter of the previous score carries forward.
	score := base.Score + 0.25*ctx.PreviousScore

	// Session weighting: market hours amplify, off-hours dampen.
	if ctx.TimeOfDay >= 13 && ctx.TimeOfDay < 21 {
		score *= 1.1
	} else {
		score *= 0.9
	}

	switch ctx.MarketCondition {
	case "BULL":
		score += 0.05
	case "BEAR":
		score -= 0.05
	}

	base.Score = clamp(score, -1, 1)
	return base
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
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
