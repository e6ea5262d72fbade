// Package broker defines the order-execution contract and the paper
// broker that simulates fills with slippage, fees and partial fills.
package broker

import "time"

// Side represents buy or sell.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType represents market or limit execution.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// TimeInForce bounds how long an order rests.
type TimeInForce string

const (
	TIFGoodTillCancel TimeInForce = "GTC"
	TIFDay            TimeInForce = "DAY"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOpen      Status = "OPEN"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// OrderRequest is a request to place an order.
type OrderRequest struct {
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	Quantity    float64     `json:"quantity"`
	Price       float64     `json:"price,omitempty"` // limit orders only
	TimeInForce TimeInForce `json:"time_in_force,omitempty"`
}

// OrderAck acknowledges a placed order.
type OrderAck struct {
	OrderID      string     `json:"order_id"`
	Status       Status     `json:"status"`
	FilledQty    float64    `json:"filled_qty"`
	AvgFillPrice float64    `json:"avg_fill_price,omitempty"`
	Commission   float64    `json:"commission,omitempty"`
	FilledAt     *time.Time `json:"filled_at,omitempty"`
	Message      string     `json:"message,omitempty"`
}

// Fill is a partial or complete execution of an order.
type Fill struct {
	OrderID   string    `json:"order_id"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Order is the broker-side record of a placed order.
type Order struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	Side         Side        `json:"side"`
	Type         OrderType   `json:"type"`
	Quantity     float64     `json:"quantity"`
	Price        float64     `json:"price,omitempty"`
	TimeInForce  TimeInForce `json:"time_in_force,omitempty"`
	FilledQty    float64     `json:"filled_qty"`
	AvgFillPrice float64     `json:"avg_fill_price,omitempty"`
	Commission   float64     `json:"commission"`
	Status       Status      `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	FilledAt     *time.Time  `json:"filled_at,omitempty"`
}

// Holding is a broker-side net position in one symbol.
type Holding struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

// Account is the broker-side account snapshot.
type Account struct {
	Cash     float64 `json:"cash"`
	FeesPaid float64 `json:"fees_paid"`
}
