package sentiment

import "math"

// DeriveMarketContext frames a sentiment cycle with the symbol's price
// window: trend from the window's drift, volatility from the stddev of
// simple returns, volume from the latest tick relative to the window
// average. Windows too short to judge yield a normal context.
func DeriveMarketContext(closes, volumes []float64) MarketContext {
	mctx := MarketContext{Volatility: LevelNormal, Volume: LevelNormal}
	if len(closes) < 3 {
		return mctx
	}

	mctx.Downtrend = closes[len(closes)-1] < closes[0]
	mctx.Volatility = volatilityLevel(closes)
	mctx.Volume = volumeLevel(volumes)
	return mctx
}

func volatilityLevel(closes []float64) MarketLevel {
	var sum, sumSq float64
	n := 0
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		r := closes[i]/closes[i-1] - 1
		sum += r
		sumSq += r * r
		n++
	}
	if n == 0 {
		return LevelNormal
	}
	mean := sum / float64(n)
	stddev := math.Sqrt(sumSq/float64(n) - mean*mean)
	switch {
	case stddev > 0.05:
		return LevelExtreme
	case stddev > 0.02:
		return LevelHigh
	case stddev < 0.005:
		return LevelLow
	default:
		return LevelNormal
	}
}

func volumeLevel(volumes []float64) MarketLevel {
	if len(volumes) < 3 {
		return LevelNormal
	}
	var total float64
	for _, v := range volumes {
		total += v
	}
	avg := total / float64(len(volumes))
	if avg <= 0 {
		return LevelNormal
	}
	switch ratio := volumes[len(volumes)-1] / avg; {
	case ratio >= 3:
		return LevelExtreme
	case ratio >= 1.5:
		return LevelHigh
	case ratio <= 0.5:
		return LevelLow
	default:
		return LevelNormal
	}
}
