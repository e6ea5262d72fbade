package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/market"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
	"github.com/fluxtrade/fluxtrader/internal/strategy"
)

// Engine is the long-running strategy execution loop. It owns one
// PriceWindow per symbol, evaluates every registered strategy on each
// tick in parallel, and publishes all resulting signals, HOLDs
// included, to the outbound channel.
type Engine struct {
	registry *strategy.Registry
	ticks    <-chan market.Tick
	queue    *signalQueue
	out      chan strategy.Signal

	windowsMu sync.RWMutex
	windows   map[string]*PriceWindow

	logger zerolog.Logger
}

// New creates an engine consuming the given tick subscription.
func New(registry *strategy.Registry, ticks <-chan market.Tick, signalCapacity int) *Engine {
	return &Engine{
		registry: registry,
		ticks:    ticks,
		queue:    newSignalQueue(signalCapacity),
		out:      make(chan strategy.Signal),
		windows:  make(map[string]*PriceWindow),
		logger:   config.NewLogger("engine"),
	}
}

// Signals returns the outbound signal channel. It closes after the
// tick stream ends and the queue has drained.
func (e *Engine) Signals() <-chan strategy.Signal { return e.out }

// DroppedSignals reports how many HOLD signals overflow discarded.
func (e *Engine) DroppedSignals() uint64 { return e.queue.droppedCount() }

// Run processes ticks until the tick channel closes or the context is
// cancelled, then drains remaining signals and closes the output.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().Msg("Execution engine started")

	var pumpWG sync.WaitGroup
	pumpDone := make(chan struct{})
	pumpWG.Add(1)
	go func() {
		defer pumpWG.Done()
		e.pump(ctx, pumpDone)
	}()

	for {
		select {
		case <-ctx.Done():
			close(pumpDone)
			pumpWG.Wait()
			close(e.out)
			e.logger.Info().Msg("Execution engine stopped")
			return
		case tick, ok := <-e.ticks:
			if !ok {
				close(pumpDone)
				pumpWG.Wait()
				e.drainRemaining(ctx)
				close(e.out)
				e.logger.Info().
					Uint64("dropped_signals", e.queue.droppedCount()).
					Msg("Execution engine drained")
				return
			}
			e.handleTick(tick)
		}
	}
}

// handleTick appends the tick to the symbol's window and evaluates
// every active strategy for the symbol in parallel. All signals from
// one tick carry the tick's timestamp.
func (e *Engine) handleTick(tick market.Tick) {
	instances := e.registry.ForSymbol(tick.Symbol)
	if len(instances) == 0 {
		return
	}

	window := e.windowFor(tick.Symbol)
	if !window.Append(tick) {
		metrics.RecoveredErrors.WithLabelValues("engine").Inc()
		e.logger.Warn().
			Str("symbol", tick.Symbol).
			Time("timestamp", tick.Timestamp).
			Msg("Dropping out-of-order tick")
		return
	}
	snapshot := window.Snapshot()

	signals := make([]strategy.Signal, len(instances))
	var wg sync.WaitGroup
	for i, inst := range instances {
		wg.Add(1)
		go func(i int, inst *strategy.Instance) {
			defer wg.Done()
			signals[i] = inst.Evaluate(snapshot)
		}(i, inst)
	}
	wg.Wait()

	for _, sig := range signals {
		metrics.SignalsProduced.WithLabelValues(string(sig.Action)).Inc()
		e.queue.push(sig)
	}
}

// windowFor returns the symbol's window, creating or resizing it to
// the registry's current max lookback (floor 2, so crossings that need
// a prior value always have one).
func (e *Engine) windowFor(symbol string) *PriceWindow {
	capacity := e.registry.MaxLookback(symbol) + 1
	if capacity < 2 {
		capacity = 2
	}
	e.windowsMu.Lock()
	w, ok := e.windows[symbol]
	if !ok {
		w = NewPriceWindow(symbol, capacity)
		e.windows[symbol] = w
		e.windowsMu.Unlock()
		return w
	}
	e.windowsMu.Unlock()
	w.Resize(capacity)
	return w
}

// pump moves signals from the queue to the outbound channel.
func (e *Engine) pump(ctx context.Context, done <-chan struct{}) {
	for {
		sig, ok := e.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-e.queue.notify:
				continue
			}
		}
		select {
		case e.out <- sig:
		case <-ctx.Done():
			return
		case <-done:
			return
		}
	}
}

// drainRemaining flushes queued signals after the tick stream ends.
func (e *Engine) drainRemaining(ctx context.Context) {
	for {
		sig, ok := e.queue.pop()
		if !ok {
			return
		}
		select {
		case e.out <- sig:
		case <-ctx.Done():
			return
		}
	}
}

// Window returns the symbol's window, or nil if no tick for the symbol
// has been seen yet. Safe to call from other goroutines while Run is
// processing ticks.
func (e *Engine) Window(symbol string) *PriceWindow {
	e.windowsMu.RLock()
	defer e.windowsMu.RUnlock()
	return e.windows[symbol]
}
