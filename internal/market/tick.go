// Package market produces the live tick stream the execution engine
// consumes. One feed pulls quotes per symbol at a fixed cadence and
// broadcasts them to every subscriber in arrival order.
package market

import "time"

// Tick is a single market observation. Ticks are immutable.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
}
