// Package indicators provides pure window functions over ordered price
// series. Functions retain no history; callers pass exactly the window
// they want evaluated and receive the latest value of the series.
package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

// NeutralRSI is returned when the window is too short to compute RSI.
const NeutralRSI = 50.0

// Bands holds a Bollinger Bands result.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// MACDValue holds a MACD result.
type MACDValue struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// RSI computes the Wilder-smoothed Relative Strength Index over the
// given closes. Returns NeutralRSI when the window is shorter than
// period+1 observations.
func RSI(closes []float64, period int) float64 {
	if period < 1 || len(closes) < period+1 {
		return NeutralRSI
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	values := collect(rsi.Compute(seriesChan(closes)))
	if len(values) == 0 {
		return NeutralRSI
	}
	return values[len(values)-1]
}

// EMA computes the exponential moving average and returns the last
// series value. ok is false when the input is shorter than period.
func EMA(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period {
		return 0, false
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := collect(ema.Compute(seriesChan(values)))
	if len(out) == 0 {
		return 0, false
	}
	return out[len(out)-1], true
}

// SMA computes the simple moving average over the last period values.
// ok is false when the input is shorter than period.
func SMA(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period {
		return 0, false
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	out := collect(sma.Compute(seriesChan(values)))
	if len(out) == 0 {
		return 0, false
	}
	return out[len(out)-1], true
}

// Bollinger computes Bollinger Bands with a configurable multiplier.
// cinar/indicator fixes the band at 2 standard deviations, so the bands
// are computed directly: middle is the SMA over the window, the offset
// is k population standard deviations.
func Bollinger(closes []float64, period int, k float64) (Bands, bool) {
	if period < 2 || len(closes) < period {
		return Bands{}, false
	}

	window := closes[len(closes)-period:]
	var sum float64
	for _, c := range window {
		sum += c
	}
	mid := sum / float64(period)

	var variance float64
	for _, c := range window {
		d := c - mid
		variance += d * d
	}
	sigma := math.Sqrt(variance / float64(period))

	return Bands{
		Upper:  mid + k*sigma,
		Middle: mid,
		Lower:  mid - k*sigma,
	}, true
}

// ATR computes the Wilder-smoothed Average True Range. The three input
// slices must have equal length. cinar's ATR does not expose the raw
// smoothing seed this contract needs, so the smoothing is done here.
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period < 1 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}

	trueRanges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		trueRanges = append(trueRanges, tr)
	}

	// Seed with the simple mean of the first period true ranges,
	// then apply Wilder smoothing.
	var atr float64
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}

	return atr, true
}

// MACD computes MACD with the given fast/slow/signal periods and
// returns the latest macd, signal and histogram values. ok is false
// when the window cannot cover the slow and signal warmups.
func MACD(closes []float64, fast, slow, signal int) (MACDValue, bool) {
	if fast < 1 || slow <= fast || signal < 1 || len(closes) < slow+signal {
		return MACDValue{}, false
	}

	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macd.Compute(seriesChan(closes))

	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, s)
	}

	if len(macdValues) == 0 {
		return MACDValue{}, false
	}

	last := len(macdValues) - 1
	return MACDValue{
		MACD:      macdValues[last],
		Signal:    signalValues[last],
		Histogram: macdValues[last] - signalValues[last],
	}, true
}

// seriesChan converts a slice into the closed channel form cinar consumes.
func seriesChan(values []float64) <-chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}
