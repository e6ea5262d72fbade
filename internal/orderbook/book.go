// Package orderbook maintains per-symbol depth snapshots from a
// streaming transport and derives microstructure intelligence from
// them: liquidity, pressure, institutional flow and entry signals.
package orderbook

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DepthLevels is how many levels per side a snapshot retains.
const DepthLevels = 20

// WallPressure marks which side of the book carries dominant walls.
type WallPressure string

const (
	WallBuy  WallPressure = "BUY"
	WallSell WallPressure = "SELL"
	WallNone WallPressure = "NONE"
)

// Level is one depth level.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Snapshot is a consistent point-in-time view of one symbol's book.
// Bids are ordered by price descending, asks ascending. Snapshots are
// immutable once published; updates swap in a fresh copy.
type Snapshot struct {
	Symbol         string       `json:"symbol"`
	Timestamp      time.Time    `json:"timestamp"`
	Bids           []Level      `json:"bids"`
	Asks           []Level      `json:"asks"`
	Spread         float64      `json:"spread"`
	DepthImbalance float64      `json:"depth_imbalance"`
	LargeBidCount  int          `json:"large_bid_count"`
	LargeAskCount  int          `json:"large_ask_count"`
	WallPressure   WallPressure `json:"wall_pressure"`
	Stale          bool         `json:"stale"`
}

// depthMessage is the transport wire format. Updates are full
// snapshots unless type says delta; delta levels with size 0 remove
// the price level.
type depthMessage struct {
	Symbol string       `json:"symbol"`
	Type   string       `json:"type,omitempty"`
	Bids   [][2]float64 `json:"bids"`
	Asks   [][2]float64 `json:"asks"`
}

func parseDepthMessage(data []byte) (depthMessage, error) {
	var msg depthMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return depthMessage{}, fmt.Errorf("malformed depth message: %w", err)
	}
	return msg, nil
}

// applySnapshot builds a fresh book from a full update.
func applySnapshot(symbol string, msg depthMessage, largeOrderThreshold float64, now time.Time) *Snapshot {
	bids := toLevels(msg.Bids)
	asks := toLevels(msg.Asks)
	sortSides(bids, asks)
	return finalize(symbol, bids, asks, largeOrderThreshold, now)
}

// applyDelta merges a delta update into the previous book. A nil
// previous book treats the delta as a snapshot.
func applyDelta(prev *Snapshot, msg depthMessage, largeOrderThreshold float64, now time.Time) *Snapshot {
	if prev == nil {
		return applySnapshot(msg.Symbol, msg, largeOrderThreshold, now)
	}
	bids := mergeLevels(prev.Bids, msg.Bids)
	asks := mergeLevels(prev.Asks, msg.Asks)
	sortSides(bids, asks)
	return finalize(prev.Symbol, bids, asks, largeOrderThreshold, now)
}

func toLevels(raw [][2]float64) []Level {
	out := make([]Level, 0, len(raw))
	for _, pair := range raw {
		if pair[1] <= 0 {
			continue
		}
		out = append(out, Level{Price: pair[0], Size: pair[1]})
	}
	return out
}

func mergeLevels(prev []Level, updates [][2]float64) []Level {
	byPrice := make(map[float64]float64, len(prev)+len(updates))
	for _, lvl := range prev {
		byPrice[lvl.Price] = lvl.Size
	}
	for _, pair := range updates {
		if pair[1] <= 0 {
			delete(byPrice, pair[0])
			continue
		}
		byPrice[pair[0]] = pair[1]
	}
	out := make([]Level, 0, len(byPrice))
	for price, size := range byPrice {
		out = append(out, Level{Price: price, Size: size})
	}
	return out
}

func sortSides(bids, asks []Level) {
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
}

// finalize truncates to depth and computes the snapshot-level metrics.
func finalize(symbol string, bids, asks []Level, largeOrderThreshold float64, now time.Time) *Snapshot {
	if len(bids) > DepthLevels {
		bids = bids[:DepthLevels]
	}
	if len(asks) > DepthLevels {
		asks = asks[:DepthLevels]
	}

	snap := &Snapshot{
		Symbol:    symbol,
		Timestamp: now,
		Bids:      bids,
		Asks:      asks,
	}

	if len(bids) > 0 && len(asks) > 0 {
		snap.Spread = asks[0].Price - bids[0].Price
	}

	var bidSize, askSize float64
	for _, lvl := range bids {
		bidSize += lvl.Size
		if lvl.Size >= largeOrderThreshold {
			snap.LargeBidCount++
		}
	}
	for _, lvl := range asks {
		askSize += lvl.Size
		if lvl.Size >= largeOrderThreshold {
			snap.LargeAskCount++
		}
	}
	if total := bidSize + askSize; total > 0 {
		snap.DepthImbalance = (bidSize - askSize) / total
	}

	snap.WallPressure = WallNone
	if snap.LargeBidCount > 0 && snap.LargeBidCount >= 3*snap.LargeAskCount {
		snap.WallPressure = WallBuy
	} else if snap.LargeAskCount > 0 && snap.LargeAskCount >= 3*snap.LargeBidCount {
		snap.WallPressure = WallSell
	}

	return snap
}

// bestBid returns the top bid price, or 0 for an empty side.
func (s *Snapshot) bestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// mid returns the midpoint price, or 0 when either side is empty.
func (s *Snapshot) mid() float64 {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0
	}
	return (s.Bids[0].Price + s.Asks[0].Price) / 2
}
