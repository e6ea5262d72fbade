package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/broker"
	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/fusion"
	"github.com/fluxtrade/fluxtrader/internal/market"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
)

// Store receives every signal, position and trade for persistence.
// Write failures never block trading; the in-memory state stays
// authoritative while the store retries.
type Store interface {
	SaveSignal(ctx context.Context, e fusion.Enhanced) error
	SavePosition(ctx context.Context, p Position) error
	SaveTrade(ctx context.Context, t Trade) error
	SaveSession(ctx context.Context, s Summary) error
}

// Alerter receives operational alerts. Delivery failures are the
// alerter's problem, never the manager's.
type Alerter interface {
	Alert(ctx context.Context, severity, title, message string)
}

// Config tunes the lifecycle manager.
type Config struct {
	MinExecConfidence float64       // entry gate
	MinExitConfidence float64       // strategy-exit gate
	StopLossPct       float64       // default per-position stop
	TakeProfitPct     float64       // default per-position target
	MaxHold           time.Duration // 0 disables the time-based exit
	QuoteSize         float64       // notional per position
	InitialBalance    float64       // session seed when the broker reports no cash
	Retry             broker.RetryConfig
}

// DefaultConfig returns the standard lifecycle tuning.
func DefaultConfig() Config {
	return Config{
		MinExecConfidence: 0.6,
		MinExitConfidence: 0.5,
		StopLossPct:       0.02,
		TakeProfitPct:     0.04,
		QuoteSize:         1000,
		InitialBalance:    10000,
		Retry:             broker.DefaultRetryConfig(),
	}
}

// SentimentLookup supplies per-source sentiment scores at entry time
// for later weight attribution. Optional.
type SentimentLookup func(symbol string) map[string]float64

// Manager owns the position lifecycle for one session.
type Manager struct {
	cfg     Config
	broker  broker.Broker
	store   Store
	alerter Alerter
	session *Session
	logger  zerolog.Logger

	mu         sync.RWMutex
	open       map[string]*managed // symbol|strategy -> position handle
	closed     []Position          // snapshots, append-only
	lastPrice  map[string]float64
	tradedOnce bool

	storeFailed chan error

	sentimentAt SentimentLookup
	now         func() time.Time
}

// NewManager creates a lifecycle manager over the given broker.
// store and alerter are optional.
func NewManager(cfg Config, b broker.Broker, store Store, alerter Alerter) *Manager {
	if cfg.MinExecConfidence == 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		cfg:         cfg,
		broker:      b,
		store:       store,
		alerter:     alerter,
		session:     NewSession(),
		logger:      config.NewLogger("trading"),
		open:        make(map[string]*managed),
		lastPrice:   make(map[string]float64),
		storeFailed: make(chan error, 1),
		now:         time.Now,
	}
}

// SetSentimentLookup installs the entry-time sentiment capture hook.
func (m *Manager) SetSentimentLookup(lookup SentimentLookup) { m.sentimentAt = lookup }

// SeedBalance initializes the session balances from the broker
// account, falling back to the configured initial balance when the
// broker reports no cash.
func (m *Manager) SeedBalance(ctx context.Context) {
	balance := m.cfg.InitialBalance
	if acct, err := m.broker.GetAccount(ctx); err == nil && acct.Cash > 0 {
		balance = acct.Cash
	} else if err != nil {
		m.logger.Warn().Err(err).Msg("Broker account unavailable, using configured balance")
	}
	m.session.seedBalance(balance)
	m.persistSession(ctx)
}

// EndSession marks the session inactive and persists the final
// aggregates. Called once during shutdown, after CloseAll.
func (m *Manager) EndSession(ctx context.Context) {
	m.session.end()
	m.persistSession(ctx)
}

// StoreFailures signals persistence errors that survived the store's
// own retry budget. By then the record has been journaled; the process
// treats the database as gone and shuts down.
func (m *Manager) StoreFailures() <-chan error { return m.storeFailed }

// Run consumes enhanced signals until the channel closes.
func (m *Manager) Run(ctx context.Context, signals <-chan fusion.Enhanced) {
	for e := range signals {
		if ctx.Err() != nil {
			return
		}
		m.HandleSignal(ctx, e)
	}
}

// Session returns the current session summary including open-position
// unrealized PnL.
func (m *Manager) Session() Summary {
	summary := m.session.snapshot()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.open {
		snap := p.snapshot()
		summary.OpenPositions++
		summary.UnrealizedPnL += snap.UnrealizedPnL
	}
	return summary
}

// OpenPositions returns snapshots of all open positions.
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, p.snapshot())
	}
	return out
}

// ClosedSince returns closed-position snapshots with a close time at
// or after the cutoff.
func (m *Manager) ClosedSince(cutoff time.Time) []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Position
	for _, p := range m.closed {
		if p.ClosedAt != nil && !p.ClosedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

func positionKey(symbol, strategyID string) string { return symbol + "|" + strategyID }

// HandleSignal routes one enhanced signal through the lifecycle and
// returns it with the execution fields filled in. The signal is always
// persisted, executed or not.
func (m *Manager) HandleSignal(ctx context.Context, e fusion.Enhanced) fusion.Enhanced {
	switch e.FinalAction {
	case fusion.FinalBuy:
		e = m.handleEntry(ctx, e)
	case fusion.FinalSell:
		e = m.handleStrategyExit(ctx, e)
	case fusion.FinalSkip:
		e.WasExecuted = false
		if e.ExecuteReason == "" {
			e.ExecuteReason = "skipped: " + e.Rationale
		}
	default:
		e.WasExecuted = false
		e.ExecuteReason = "hold"
	}

	m.persistSignal(ctx, e)
	return e
}

func (m *Manager) handleEntry(ctx context.Context, e fusion.Enhanced) fusion.Enhanced {
	if e.FinalConfidence < m.cfg.MinExecConfidence {
		e.WasExecuted = false
		e.ExecuteReason = fmt.Sprintf("confidence %.2f below execution threshold %.2f", e.FinalConfidence, m.cfg.MinExecConfidence)
		return e
	}

	symbol := e.Technical.Symbol
	key := positionKey(symbol, e.Technical.StrategyID)

	m.mu.Lock()
	if _, exists := m.open[key]; exists {
		m.mu.Unlock()
		e.WasExecuted = false
		e.ExecuteReason = "position already open"
		return e
	}
	price, havePrice := m.lastPrice[symbol]
	m.mu.Unlock()

	if !havePrice || price <= 0 {
		e.WasExecuted = false
		e.ExecuteReason = "no reference price for sizing"
		return e
	}
	qty := m.cfg.QuoteSize / price

	ack, retries, err := broker.PlaceWithRetry(ctx, m.broker, broker.OrderRequest{
		Symbol:      symbol,
		Side:        broker.SideBuy,
		Type:        broker.TypeMarket,
		Quantity:    qty,
		TimeInForce: broker.TIFGoodTillCancel,
	}, m.cfg.Retry, m.logger)
	if err != nil {
		e.WasExecuted = false
		e.ExecuteReason = "broker execution failed: " + err.Error()
		m.alert(ctx, "critical", "Order execution failed",
			fmt.Sprintf("BUY %s qty %.6f failed after retries: %v", symbol, qty, err))
		return e
	}
	if ack.Status == broker.StatusRejected {
		e.WasExecuted = false
		e.ExecuteReason = "broker rejected order: " + ack.Message
		return e
	}

	now := m.now().UTC()
	position := &managed{p: Position{
		ID:            uuid.New(),
		SessionID:     m.session.ID,
		Symbol:        symbol,
		StrategyID:    e.Technical.StrategyID,
		Side:          SideLong,
		Status:        PositionOpen,
		EntryPrice:    ack.AvgFillPrice,
		Quantity:      ack.FilledQty,
		StopLossPct:   m.cfg.StopLossPct,
		TakeProfitPct: m.cfg.TakeProfitPct,
		Fees:          ack.Commission,
		OpenedAt:      now,
	}}
	if m.sentimentAt != nil {
		position.p.EntrySentiment = m.sentimentAt(symbol)
	}

	m.mu.Lock()
	m.open[key] = position
	openCount := len(m.open)
	firstTrade := !m.tradedOnce
	m.tradedOnce = true
	m.mu.Unlock()
	metrics.OpenPositions.Set(float64(openCount))

	if firstTrade {
		m.alert(ctx, "info", "First trade of session",
			fmt.Sprintf("BUY %s qty %.6f @ %.2f (%s)", symbol, ack.FilledQty, ack.AvgFillPrice, e.Technical.StrategyID))
	}
	if retries > 0 {
		m.logger.Info().Int("retries", retries).Str("symbol", symbol).Msg("Entry succeeded after retries")
	}

	e.WasExecuted = true
	e.ExecuteReason = "position opened"
	e.ExecutionTime = &now
	e.TradeID = position.p.ID.String()

	m.persistPosition(ctx, position.snapshot())
	m.persistTrade(ctx, Trade{
		ID:         uuid.New(),
		PositionID: position.p.ID,
		SessionID:  m.session.ID,
		Symbol:     symbol,
		Side:       string(broker.SideBuy),
		Price:      ack.AvgFillPrice,
		Quantity:   ack.FilledQty,
		Fee:        ack.Commission,
		Leg:        "entry",
		ExecutedAt: now,
	})

	m.logger.Info().
		Str("position_id", position.p.ID.String()).
		Str("symbol", symbol).
		Str("strategy", e.Technical.StrategyID).
		Float64("entry_price", ack.AvgFillPrice).
		Float64("quantity", ack.FilledQty).
		Msg("Position opened")
	return e
}

func (m *Manager) handleStrategyExit(ctx context.Context, e fusion.Enhanced) fusion.Enhanced {
	if e.FinalConfidence < m.cfg.MinExitConfidence {
		e.WasExecuted = false
		e.ExecuteReason = fmt.Sprintf("confidence %.2f below exit threshold %.2f", e.FinalConfidence, m.cfg.MinExitConfidence)
		return e
	}

	key := positionKey(e.Technical.Symbol, e.Technical.StrategyID)
	m.mu.RLock()
	position, exists := m.open[key]
	price := m.lastPrice[e.Technical.Symbol]
	m.mu.RUnlock()

	if !exists {
		e.WasExecuted = false
		e.ExecuteReason = "no open position to exit"
		return e
	}

	if err := m.closePosition(ctx, position, price, ExitStrategy); err != nil {
		e.WasExecuted = false
		e.ExecuteReason = "exit execution failed: " + err.Error()
		return e
	}

	now := m.now().UTC()
	e.WasExecuted = true
	e.ExecuteReason = "position closed by strategy signal"
	e.ExecutionTime = &now
	e.TradeID = position.p.ID.String()
	return e
}

// OnTick refreshes unrealized PnL and evaluates the tick-driven exit
// rules, in precedence order: stop-loss, take-profit, max-hold.
func (m *Manager) OnTick(ctx context.Context, tick market.Tick) {
	m.mu.Lock()
	m.lastPrice[tick.Symbol] = tick.Price
	var candidates []*managed
	for _, p := range m.open {
		if p.p.Symbol == tick.Symbol {
			candidates = append(candidates, p)
		}
	}
	m.mu.Unlock()

	for _, position := range candidates {
		position.markPrice(tick.Price)

		if reason, due := m.exitDue(position, tick.Price); due {
			if err := m.closePosition(ctx, position, tick.Price, reason); err != nil {
				m.logger.Error().
					Err(err).
					Str("position_id", position.p.ID.String()).
					Str("reason", string(reason)).
					Msg("Tick-driven exit failed")
			}
		}
	}

	m.updatePnLMetrics()
}

// exitDue applies the tick-driven exit rules against a position.
func (m *Manager) exitDue(p *managed, price float64) (ExitReason, bool) {
	snap := p.snapshot()
	if snap.Status != PositionOpen {
		return "", false
	}

	if snap.Side == SideLong {
		if snap.StopLossPct > 0 && price <= snap.EntryPrice*(1-snap.StopLossPct) {
			return ExitStopLoss, true
		}
		if snap.TakeProfitPct > 0 && price >= snap.EntryPrice*(1+snap.TakeProfitPct) {
			return ExitTakeProfit, true
		}
	} else {
		if snap.StopLossPct > 0 && price >= snap.EntryPrice*(1+snap.StopLossPct) {
			return ExitStopLoss, true
		}
		if snap.TakeProfitPct > 0 && price <= snap.EntryPrice*(1-snap.TakeProfitPct) {
			return ExitTakeProfit, true
		}
	}

	if m.cfg.MaxHold > 0 && m.now().Sub(snap.OpenedAt) >= m.cfg.MaxHold {
		return ExitMaxHold, true
	}
	return "", false
}

// closePosition executes and records an exit. The begin/finish claim
// protocol guarantees exactly one exit per position; a failed broker
// call releases the claim and leaves the position OPEN.
func (m *Manager) closePosition(ctx context.Context, position *managed, price float64, reason ExitReason) error {
	if !position.beginClose() {
		return nil // another closer already claimed it
	}
	claimed := position.snapshot()

	side := broker.SideSell
	if claimed.Side == SideShort {
		side = broker.SideBuy
	}

	ack, _, err := broker.PlaceWithRetry(ctx, m.broker, broker.OrderRequest{
		Symbol:      claimed.Symbol,
		Side:        side,
		Type:        broker.TypeMarket,
		Quantity:    claimed.Quantity,
		TimeInForce: broker.TIFGoodTillCancel,
	}, m.cfg.Retry, m.logger)
	if err != nil {
		position.abortClose()
		m.alert(ctx, "critical", "Exit execution failed",
			fmt.Sprintf("%s %s qty %.6f failed after retries: %v", side, claimed.Symbol, claimed.Quantity, err))
		return err
	}

	exitPrice := ack.AvgFillPrice
	if exitPrice == 0 {
		exitPrice = price
	}
	now := m.now().UTC()
	position.finishClose(exitPrice, reason, ack.Commission, now)

	snap := position.snapshot()
	m.session.recordClose(snap)

	m.mu.Lock()
	delete(m.open, positionKey(snap.Symbol, snap.StrategyID))
	m.closed = append(m.closed, snap)
	openCount := len(m.open)
	m.mu.Unlock()
	metrics.OpenPositions.Set(float64(openCount))

	summary := m.session.snapshot()
	metrics.TotalTrades.Set(float64(summary.TotalTrades))
	metrics.WinRate.Set(summary.WinRate)

	m.persistPosition(ctx, snap)
	m.persistTrade(ctx, Trade{
		ID:         uuid.New(),
		PositionID: snap.ID,
		SessionID:  m.session.ID,
		Symbol:     snap.Symbol,
		Side:       string(side),
		Price:      exitPrice,
		Quantity:   snap.Quantity,
		Fee:        ack.Commission,
		Leg:        "exit",
		ExitReason: reason,
		ExecutedAt: now,
	})
	m.persistSession(ctx)

	m.logger.Info().
		Str("position_id", snap.ID.String()).
		Str("symbol", snap.Symbol).
		Str("reason", string(reason)).
		Float64("entry_price", snap.EntryPrice).
		Float64("exit_price", exitPrice).
		Float64("realized_pnl", snap.RealizedPnL).
		Msg("Position closed")
	return nil
}

// CloseAll closes every open position at the last seen price, used on
// shutdown.
func (m *Manager) CloseAll(ctx context.Context, reason ExitReason) {
	for _, snap := range m.OpenPositions() {
		m.mu.RLock()
		position := m.open[positionKey(snap.Symbol, snap.StrategyID)]
		price := m.lastPrice[snap.Symbol]
		m.mu.RUnlock()
		if position == nil {
			continue
		}
		if err := m.closePosition(ctx, position, price, reason); err != nil {
			m.logger.Error().Err(err).Str("symbol", snap.Symbol).Msg("Shutdown close failed")
		}
	}
}

// RunSummaries emits a session summary alert at the given cadence
// until the context is cancelled.
func (m *Manager) RunSummaries(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Session()
			m.alert(ctx, "info", "Session summary",
				fmt.Sprintf("trades=%d winRate=%.0f%% realizedPnL=%.2f unrealizedPnL=%.2f open=%d",
					s.TotalTrades, s.WinRate*100, s.RealizedPnL, s.UnrealizedPnL, s.OpenPositions))
		}
	}
}

func (m *Manager) updatePnLMetrics() {
	s := m.Session()
	metrics.TotalPnL.Set(s.RealizedPnL + s.UnrealizedPnL)
}

func (m *Manager) alert(ctx context.Context, severity, title, message string) {
	if m.alerter != nil {
		m.alerter.Alert(ctx, severity, title, message)
	}
}

func (m *Manager) persistSignal(ctx context.Context, e fusion.Enhanced) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSignal(ctx, e); err != nil {
		metrics.RecoveredErrors.WithLabelValues("trading_store").Inc()
		m.logger.Error().Err(err).Str("signal_id", e.ID.String()).Msg("Failed to persist signal")
		m.reportStoreFailure(err)
	}
}

func (m *Manager) persistPosition(ctx context.Context, p Position) {
	if m.store == nil {
		return
	}
	if err := m.store.SavePosition(ctx, p); err != nil {
		metrics.RecoveredErrors.WithLabelValues("trading_store").Inc()
		m.logger.Error().Err(err).Str("position_id", p.ID.String()).Msg("Failed to persist position")
		m.reportStoreFailure(err)
	}
}

func (m *Manager) persistTrade(ctx context.Context, t Trade) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveTrade(ctx, t); err != nil {
		metrics.RecoveredErrors.WithLabelValues("trading_store").Inc()
		m.logger.Error().Err(err).Str("trade_id", t.ID.String()).Msg("Failed to persist trade")
		m.reportStoreFailure(err)
	}
}

func (m *Manager) persistSession(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(ctx, m.Session()); err != nil {
		metrics.RecoveredErrors.WithLabelValues("trading_store").Inc()
		m.logger.Error().Err(err).Msg("Failed to persist session")
		m.reportStoreFailure(err)
	}
}

// reportStoreFailure publishes an exhausted-retry store error without
// blocking; one pending failure is enough to trigger shutdown.
func (m *Manager) reportStoreFailure(err error) {
	select {
	case m.storeFailed <- err:
	default:
	}
}
