// Package engine runs the tick loop: it fans live ticks out to every
// strategy registered for the symbol and publishes the resulting
// technical signals on a bounded channel.
package engine

import (
	"sync"
	"time"

	"github.com/fluxtrade/fluxtrader/internal/market"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
	"github.com/fluxtrade/fluxtrader/internal/strategy"
)

// PriceWindow is the bounded rolling tick history for one symbol. The
// engine is the only writer; everyone else reads point-in-time
// snapshots. Timestamps are strictly non-decreasing: out-of-order
// ticks are rejected.
type PriceWindow struct {
	mu       sync.RWMutex
	symbol   string
	capacity int
	ticks    []market.Tick
}

// NewPriceWindow creates a window holding at most capacity ticks.
func NewPriceWindow(symbol string, capacity int) *PriceWindow {
	return &PriceWindow{symbol: symbol, capacity: capacity}
}

// Append adds a tick, evicting the oldest while over capacity. Returns
// false for ticks older than the newest one already held.
func (w *PriceWindow) Append(t market.Tick) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := len(w.ticks); n > 0 && t.Timestamp.Before(w.ticks[n-1].Timestamp) {
		return false
	}

	w.ticks = append(w.ticks, t)
	for len(w.ticks) > w.capacity {
		w.ticks = w.ticks[1:]
	}
	metrics.WindowSize.WithLabelValues(w.symbol).Set(float64(len(w.ticks)))
	return true
}

// Resize adjusts the capacity, evicting oldest ticks if shrinking.
func (w *PriceWindow) Resize(capacity int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.capacity = capacity
	for len(w.ticks) > w.capacity {
		w.ticks = w.ticks[1:]
	}
}

// Len returns the current number of ticks held.
func (w *PriceWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.ticks)
}

// Snapshot copies the window into the strategy evaluation form.
func (w *PriceWindow) Snapshot() strategy.Window {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := len(w.ticks)
	out := strategy.Window{
		Symbol:     w.symbol,
		Closes:     make([]float64, n),
		Highs:      make([]float64, n),
		Lows:       make([]float64, n),
		Volumes:    make([]float64, n),
		Timestamps: make([]time.Time, n),
	}
	for i, t := range w.ticks {
		out.Closes[i] = t.Price
		out.Highs[i] = t.Price
		out.Lows[i] = t.Price
		out.Volumes[i] = t.Volume
		out.Timestamps[i] = t.Timestamp
	}
	return out
}
