// Package trading implements the trade lifecycle: opening positions
// from enhanced signals, tick-driven exit evaluation and session
// accounting.
package trading

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// PositionSide is the direction of a position.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// ExitReason records which exit rule fired.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStrategy   ExitReason = "STRATEGY"
	ExitMaxHold    ExitReason = "MAX_HOLD"
	ExitShutdown   ExitReason = "SHUTDOWN"
)

// Position is one open or closed trade. Plain data: the manager wraps
// it in a managed handle that serializes transitions.
type Position struct {
	ID            uuid.UUID      `json:"id"`
	SessionID     uuid.UUID      `json:"session_id"`
	Symbol        string         `json:"symbol"`
	StrategyID    string         `json:"strategy_id"`
	Side          PositionSide   `json:"side"`
	Status        PositionStatus `json:"status"`
	EntryPrice    float64        `json:"entry_price"`
	Quantity      float64        `json:"quantity"`
	StopLossPct   float64        `json:"stop_loss_pct"`
	TakeProfitPct float64        `json:"take_profit_pct"`
	Fees          float64        `json:"fees"`
	OpenedAt      time.Time      `json:"opened_at"`

	// Per-source sentiment scores captured at entry, for weight
	// attribution. Never mutated after open.
	EntrySentiment map[string]float64 `json:"entry_sentiment,omitempty"`

	ExitPrice     float64    `json:"exit_price,omitempty"`
	ExitReason    ExitReason `json:"exit_reason,omitempty"`
	RealizedPnL   float64    `json:"realized_pnl,omitempty"`
	UnrealizedPnL float64    `json:"unrealized_pnl,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// direction is +1 for long, -1 for short.
func (p Position) direction() float64 {
	if p.Side == SideShort {
		return -1
	}
	return 1
}

// pnlAt computes the PnL of the position at the given price, fees not
// included.
func (p Position) pnlAt(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * p.direction()
}

// managed is the manager's mutable handle for one position. Status
// transitions are serialized on its lock: concurrent closers race on
// the claim and only the first wins.
type managed struct {
	mu      sync.Mutex
	closing bool
	p       Position
}

// beginClose claims the position for closing. Exactly one caller wins;
// losers are no-ops. The winner must call finishClose or abortClose.
func (m *managed) beginClose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.p.Status != PositionOpen || m.closing {
		return false
	}
	m.closing = true
	return true
}

// abortClose releases a claim after a failed exit execution; the
// position stays OPEN.
func (m *managed) abortClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closing = false
}

// finishClose completes a claimed close with the executed exit.
func (m *managed) finishClose(exitPrice float64, reason ExitReason, exitFee float64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closing = false
	m.p.Status = PositionClosed
	m.p.ExitPrice = exitPrice
	m.p.ExitReason = reason
	m.p.Fees += exitFee
	m.p.RealizedPnL = m.p.pnlAt(exitPrice) - m.p.Fees
	m.p.UnrealizedPnL = 0
	m.p.ClosedAt = &at
}

// markPrice refreshes the unrealized PnL for an open position.
func (m *managed) markPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.p.Status == PositionOpen {
		m.p.UnrealizedPnL = m.p.pnlAt(price) - m.p.Fees
	}
}

// snapshot returns a copy safe to hand out.
func (m *managed) snapshot() Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p
}

// Trade is one execution leg (entry or exit) of a position.
type Trade struct {
	ID         uuid.UUID  `json:"id"`
	PositionID uuid.UUID  `json:"position_id"`
	SessionID  uuid.UUID  `json:"session_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"` // broker-side BUY/SELL
	Price      float64    `json:"price"`
	Quantity   float64    `json:"quantity"`
	Fee        float64    `json:"fee"`
	Leg        string     `json:"leg"` // "entry" or "exit"
	ExitReason ExitReason `json:"exit_reason,omitempty"`
	ExecutedAt time.Time  `json:"executed_at"`
}
