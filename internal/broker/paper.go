package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
)

// FeeConfig tunes the fill simulation. Defaults mirror a typical spot
// exchange fee schedule.
type FeeConfig struct {
	Maker        float64 // maker fee fraction
	Taker        float64 // taker fee fraction
	BaseSlippage float64 // slippage floor
	MarketImpact float64 // extra slippage per $1M notional
	MaxSlippage  float64 // slippage cap
}

// DefaultFees returns the standard paper-trading fee schedule.
func DefaultFees() FeeConfig {
	return FeeConfig{
		Maker:        0.001,  // 0.1%
		Taker:        0.001,  // 0.1%
		BaseSlippage: 0.0005, // 0.05%
		MarketImpact: 0.0001, // 0.01% per $1M
		MaxSlippage:  0.003,  // 0.3%
	}
}

// Paper is an in-memory broker that fills market orders against the
// last mark price with simulated slippage and partial fills.
type Paper struct {
	mu     sync.RWMutex
	orders map[string]*Order
	fills  map[string][]Fill
	marks  map[string]float64
	held   map[string]*Holding
	cash   float64
	fees   FeeConfig
	paid   float64
	logger zerolog.Logger
}

// NewPaper creates a paper broker with the given starting cash.
func NewPaper(startingCash float64, fees FeeConfig) *Paper {
	logger := config.NewLogger("paper_broker")
	logger.Info().
		Float64("starting_cash", startingCash).
		Float64("taker_fee", fees.Taker).
		Float64("base_slippage", fees.BaseSlippage).
		Msg("Paper broker initialized")

	return &Paper{
		orders: make(map[string]*Order),
		fills:  make(map[string][]Fill),
		marks:  make(map[string]float64),
		held:   make(map[string]*Holding),
		cash:   startingCash,
		fees:   fees,
		logger: logger,
	}
}

// SetMarkPrice updates the reference price used to fill market orders.
func (p *Paper) SetMarkPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

// PlaceOrder validates and fills (market) or rests (limit) an order.
func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if err := validate(req); err != nil {
		return OrderAck{Status: StatusRejected, Message: err.Error()}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	order := &Order{
		ID:          uuid.New().String(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TimeInForce: req.TimeInForce,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.orders[order.ID] = order

	if req.Type == TypeMarket {
		mark, ok := p.marks[req.Symbol]
		if !ok {
			order.Status = StatusRejected
			return OrderAck{OrderID: order.ID, Status: StatusRejected, Message: "no mark price for " + req.Symbol}, nil
		}
		p.fillMarket(order, mark, now)
	} else {
		order.Status = StatusOpen
	}

	ack := OrderAck{
		OrderID:      order.ID,
		Status:       order.Status,
		FilledQty:    order.FilledQty,
		AvgFillPrice: order.AvgFillPrice,
		Commission:   order.Commission,
		FilledAt:     order.FilledAt,
	}

	p.logger.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("status", string(order.Status)).
		Float64("quantity", order.Quantity).
		Float64("avg_price", order.AvgFillPrice).
		Msg("Order placed")
	return ack, nil
}

// Cancel cancels a resting order.
func (p *Paper) Cancel(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %s", orderID)
	}
	if order.Status != StatusOpen && order.Status != StatusPending {
		return fmt.Errorf("cannot cancel order in status %s", order.Status)
	}
	order.Status = StatusCancelled
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// GetOrder returns a copy of the order record.
func (p *Paper) GetOrder(ctx context.Context, orderID string) (Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order, ok := p.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("order not found: %s", orderID)
	}
	return *order, nil
}

// GetFills returns all fills recorded for an order.
func (p *Paper) GetFills(ctx context.Context, orderID string) ([]Fill, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Fill(nil), p.fills[orderID]...), nil
}

// GetPositions returns the current net holdings.
func (p *Paper) GetPositions(ctx context.Context) ([]Holding, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Holding, 0, len(p.held))
	for _, h := range p.held {
		if h.Quantity != 0 {
			out = append(out, *h)
		}
	}
	return out, nil
}

// GetAccount returns the cash and fee totals.
func (p *Paper) GetAccount(ctx context.Context) (Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Account{Cash: p.cash, FeesPaid: p.paid}, nil
}

func validate(req OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return fmt.Errorf("invalid order side: %s", req.Side)
	}
	if req.Type != TypeMarket && req.Type != TypeLimit {
		return fmt.Errorf("invalid order type: %s", req.Type)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if req.Type == TypeLimit && req.Price <= 0 {
		return fmt.Errorf("limit orders must have a positive price")
	}
	return nil
}

// fillMarket fills a market order at the mark plus side-directional
// slippage, possibly across several partial fills.
func (p *Paper) fillMarket(order *Order, mark float64, now time.Time) {
	slip := p.slippage(order.Quantity, mark)
	base := mark * (1 + slip)
	if order.Side == SideSell {
		base = mark * (1 - slip)
	}

	fills := partialFills(order, base, now)

	var value, qty float64
	for _, f := range fills {
		value += f.Price * f.Quantity
		qty += f.Quantity
	}
	avg := value / qty
	commission := value * p.fees.Taker

	order.FilledQty = order.Quantity
	order.AvgFillPrice = avg
	order.Commission = commission
	order.Status = StatusFilled
	order.UpdatedAt = now
	order.FilledAt = &now
	p.fills[order.ID] = fills
	p.paid += commission

	p.applyFill(order.Symbol, order.Side, order.Quantity, avg, commission)

	p.logger.Debug().
		Str("order_id", order.ID).
		Float64("slippage_pct", slip*100).
		Int("num_fills", len(fills)).
		Float64("commission", commission).
		Msg("Market order filled")
}

// slippage grows with notional order size, capped at the configured
// maximum.
func (p *Paper) slippage(quantity, price float64) float64 {
	notionalMillions := quantity * price / 1e6
	total := p.fees.BaseSlippage + p.fees.MarketImpact*notionalMillions
	if total > p.fees.MaxSlippage {
		total = p.fees.MaxSlippage
	}
	return total
}

// partialFills splits large orders across up to five fills with a
// small price drift per slice, mimicking walking the book.
func partialFills(order *Order, basePrice float64, start time.Time) []Fill {
	if order.Quantity < 1.0 {
		return []Fill{{OrderID: order.ID, Quantity: order.Quantity, Price: basePrice, Timestamp: start}}
	}

	const maxFills = 5
	var fills []Fill
	remaining := order.Quantity
	at := start

	for i := 0; remaining > 0 && i < maxFills; i++ {
		qty := remaining
		if i < maxFills-1 {
			portion := 0.2 + 0.2*float64(i)/float64(maxFills)
			qty = remaining * portion
			if qty < 0.01 {
				qty = remaining
			}
		}

		drift := 0.0001 * float64(i)
		price := basePrice * (1 + drift)
		if order.Side == SideSell {
			price = basePrice * (1 - drift)
		}

		fills = append(fills, Fill{OrderID: order.ID, Quantity: qty, Price: price, Timestamp: at})
		remaining -= qty
		at = at.Add(time.Duration(100+i*50) * time.Microsecond)
	}
	return fills
}

// applyFill updates cash and net holdings for a filled order.
func (p *Paper) applyFill(symbol string, side Side, qty, price, commission float64) {
	h, ok := p.held[symbol]
	if !ok {
		h = &Holding{Symbol: symbol}
		p.held[symbol] = h
	}

	if side == SideBuy {
		cost := qty * price
		newQty := h.Quantity + qty
		if newQty > 0 {
			h.AvgPrice = (h.AvgPrice*h.Quantity + cost) / newQty
		}
		h.Quantity = newQty
		p.cash -= cost + commission
	} else {
		h.Quantity -= qty
		if h.Quantity == 0 {
			h.AvgPrice = 0
		}
		p.cash += qty*price - commission
	}
}
