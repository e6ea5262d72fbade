// Package metrics defines the Prometheus instrumentation surface.
// Every recovered error somewhere in the system increments a counter
// here; nothing is silently swallowed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Market data and engine metrics
var (
	TicksProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxtrader_ticks_total",
		Help: "Ticks produced by the market data feed",
	}, []string{"symbol"})

	FeedFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxtrader_feed_failures_total",
		Help: "Upstream quote failures in the market data feed",
	}, []string{"symbol"})

	SignalsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxtrader_technical_signals_total",
		Help: "Technical signals produced by the execution engine",
	}, []string{"action"})

	SignalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluxtrader_signals_dropped_total",
		Help: "HOLD signals dropped due to signal channel overflow",
	})

	WindowSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fluxtrader_price_window_size",
		Help: "Current price window length per symbol",
	}, []string{"symbol"})
)

// Sentiment pipeline metrics
var (
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxtrader_source_fetches_total",
		Help: "Sentiment source fetches by outcome",
	}, []string{"source", "outcome"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fluxtrader_source_breaker_open",
		Help: "Circuit breaker state per source (1 = open)",
	}, []string{"source"})

	CriticalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxtrader_critical_events_total",
		Help: "Critical events detected by the sentiment aggregator",
	}, []string{"kind"})

	OrderBookUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxtrader_orderbook_updates_total",
		Help: "Depth updates applied per symbol",
	}, []string{"symbol"})
)

// Trading metrics
var (
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fluxtrader_open_positions",
		Help: "Number of currently open positions",
	})

	TotalTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fluxtrader_trades_total",
		Help: "Total number of trades executed",
	})

	TotalPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fluxtrader_realized_pnl",
		Help: "Realized profit and loss for the active session",
	})

	WinRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fluxtrader_win_rate",
		Help: "Win rate over closed positions (0.0 to 1.0)",
	})

	BrokerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluxtrader_broker_retries_total",
		Help: "Broker order placements retried after transient errors",
	})

	SkippedSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxtrader_skipped_signals_total",
		Help: "Enhanced signals not executed, by reason",
	}, []string{"reason"})
)

// Ambient error accounting
var (
	RecoveredErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxtrader_recovered_errors_total",
		Help: "Errors recovered locally, by component",
	}, []string{"component"})

	PersistenceRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluxtrader_persistence_retries_total",
		Help: "Store writes retried after failure",
	})
)
