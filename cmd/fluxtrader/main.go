// fluxtrader runs the full paper-trading pipeline in one process:
// market feed -> strategy engine -> signal fusion -> trade lifecycle,
// with the sentiment aggregator, order-book analyzer and adaptive
// weights controller feeding in from the side.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/alerts"
	"github.com/fluxtrade/fluxtrader/internal/broker"
	"github.com/fluxtrade/fluxtrader/internal/bus"
	"github.com/fluxtrade/fluxtrader/internal/cache"
	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/engine"
	"github.com/fluxtrade/fluxtrader/internal/fusion"
	"github.com/fluxtrade/fluxtrader/internal/market"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
	"github.com/fluxtrade/fluxtrader/internal/orderbook"
	"github.com/fluxtrade/fluxtrader/internal/sentiment"
	"github.com/fluxtrade/fluxtrader/internal/store"
	"github.com/fluxtrade/fluxtrader/internal/strategy"
	"github.com/fluxtrade/fluxtrader/internal/trading"
	"github.com/fluxtrade/fluxtrader/internal/weights"
)

// Exit codes: 0 clean, 1 startup or runtime failure, 2 clean shutdown
// but with journaled writes the database never accepted.
const (
	exitOK      = 0
	exitFailure = 1
	exitJournal = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitFailure
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := config.NewLogger("main")
	logger.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Strs("symbols", cfg.Feed.Symbols).
		Msg("Starting fluxtrader")

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	if err := config.LoadSecretsFromVault(rootCtx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		logger.Error().Err(err).Msg("Vault secrets unavailable")
		return exitFailure
	}

	// Metrics endpoint.
	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start metrics server")
			return exitFailure
		}
	}

	// Persistence. The journal catches writes that exhaust their
	// retries; a non-empty journal at shutdown flips the exit code.
	var (
		st      *store.Store
		journal *store.Journal
	)
	if cfg.Database.URL != "" {
		journal, err = store.NewJournal(filepath.Join(cfg.Database.JournalPath, "writes.jsonl"))
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create write journal")
			return exitFailure
		}
		st, err = store.New(rootCtx, cfg.Database.URL, journal)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to database")
			return exitFailure
		}
		defer st.Close()
		st.SetRetry(store.RetryConfig{
			Attempts: cfg.Database.WriteRetries,
			Delay:    time.Duration(cfg.Database.RetryBackoffS) * time.Second,
		})
	} else {
		logger.Warn().Msg("No database configured, running without persistence")
	}

	// Sentiment snapshot cache.
	var snapCache *cache.SentimentCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		snapCache = cache.NewSentimentCache(client, cfg.Sentiment.Staleness())
		if err := snapCache.Health(rootCtx); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, cache degraded to miss-only")
		}
	}

	// Event bus.
	var eventBus *bus.Bus
	if cfg.NATS.Enabled {
		eventBus, err = bus.Connect(bus.Config{URL: cfg.NATS.URL, Name: cfg.App.Name})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to NATS")
			return exitFailure
		}
		defer eventBus.Close()
	}

	// Alert channels.
	channels := []alerts.Channel{alerts.NewLogChannel()}
	if cfg.Alerts.TelegramToken != "" {
		tg, err := alerts.NewTelegramChannel(cfg.Alerts.TelegramToken, []int64{cfg.Alerts.TelegramChatID})
		if err != nil {
			logger.Warn().Err(err).Msg("Telegram channel unavailable")
		} else {
			channels = append(channels, tg)
		}
	}
	alerter := alerts.NewManager(channels...)

	// Strategies.
	registry := strategy.NewRegistry()
	if n, err := registry.LoadFile(cfg.Engine.StrategiesFile); err != nil {
		logger.Warn().Err(err).Str("file", cfg.Engine.StrategiesFile).Msg("Strategy file not loaded")
	} else {
		logger.Info().Int("strategies", n).Msg("Strategies loaded")
	}
	if len(registry.All()) == 0 {
		logger.Error().Msg("No strategies registered, nothing to trade")
		return exitFailure
	}

	// Market data feed with two subscribers: the engine and the trade
	// lifecycle's exit-rule evaluation.
	provider := market.NewBinanceQuoteProvider("", "", "USDT")
	feed := market.NewFeed(provider, cfg.Feed.Symbols, cfg.Feed.FeedInterval(), 10*time.Second)
	engineTicks := feed.Subscribe(64)
	tradingTicks := feed.Subscribe(64)

	eng := engine.New(registry, engineTicks, cfg.Engine.SignalChannelCapacity)

	// Order-book intelligence.
	analyzer := orderbook.NewAnalyzer(orderbook.Config{
		LargeOrderThreshold: cfg.OrderBook.LargeOrderThreshold,
		Staleness:           time.Duration(cfg.OrderBook.StalenessMS) * time.Millisecond,
	})
	var bookClient *orderbook.Client
	if cfg.OrderBook.Enabled && cfg.OrderBook.WSEndpoint != "" {
		bookClient = orderbook.NewClient(cfg.OrderBook.WSEndpoint, analyzer)
	}

	// Paper broker and trade lifecycle.
	paper := broker.NewPaper(cfg.Trading.InitialCapital, broker.FeeConfig{
		Maker:        cfg.Trading.Fees.Maker,
		Taker:        cfg.Trading.Fees.Taker,
		BaseSlippage: cfg.Trading.Fees.BaseSlippage,
		MarketImpact: cfg.Trading.Fees.MarketImpact,
		MaxSlippage:  cfg.Trading.Fees.MaxSlippage,
	})

	var tradingStore trading.Store
	if st != nil {
		tradingStore = st
	}
	manager := trading.NewManager(trading.Config{
		MinExecConfidence: cfg.Trading.MinExecConfidence,
		MinExitConfidence: cfg.Trading.MinExitConfidence,
		StopLossPct:       cfg.Trading.StopLossPct,
		TakeProfitPct:     cfg.Trading.TakeProfitPct,
		MaxHold:           time.Duration(cfg.Trading.MaxHoldS) * time.Second,
		QuoteSize:         cfg.Trading.InitialCapital * cfg.Trading.DefaultQuantity,
		InitialBalance:    cfg.Trading.InitialCapital,
		Retry: broker.RetryConfig{
			Attempts: cfg.Trading.BrokerRetries,
			Backoff:  time.Duration(cfg.Trading.BrokerRetryBaseMS) * time.Millisecond,
		},
	}, paper, tradingStore, alerter)
	manager.SeedBalance(rootCtx)

	// Adaptive weights close the loop: closed positions grade the
	// sources whose sentiment backed them.
	controller := weights.NewController(manager)

	// Sentiment sources behind per-source breakers and rate limits.
	timeout := cfg.Sentiment.SourceTimeout()
	fetchers := []sentiment.Fetcher{
		sentiment.Guard(sentiment.NewMicroblogSource(cfg.Sentiment.MicroblogURL, cfg.Sentiment.MicroblogKey, cfg.Sentiment.MaxItems), timeout, 60),
		sentiment.Guard(sentiment.NewForumSource(cfg.Sentiment.ForumBaseURL, cfg.Sentiment.Forums), timeout, 60),
		sentiment.Guard(sentiment.NewNewsSource(cfg.Sentiment.NewsFeeds, nil), timeout, 60),
		sentiment.Guard(sentiment.NewOnChainSource(cfg.Sentiment.OnChainURL), timeout, 30),
	}
	if cfg.OrderBook.Enabled {
		fetchers = append(fetchers, sentiment.NewOrderBookSource(analyzer))
	}

	aggregator := sentiment.NewAggregator(fetchers, controller, cfg.Sentiment.MaxParallel)
	aggregator.SetCache(snapCache)
	aggregator.SetEventHook(func(ev sentiment.CriticalEvent) {
		// Every event goes on the bus; only high-impact ones page.
		if ev.Severity == sentiment.SeverityHigh || ev.Severity == sentiment.SeverityCritical {
			alerter.Critical(rootCtx, "Critical market event", ev.Description)
		}
		if err := eventBus.PublishCriticalEvent(rootCtx, ev); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish critical event")
		}
	})

	// Entry-time sentiment capture for weight attribution.
	manager.SetSentimentLookup(func(symbol string) map[string]float64 {
		agg, ok := aggregator.Latest(symbol)
		if !ok {
			return nil
		}
		scores := make(map[string]float64, len(agg.PerSource))
		for source, reading := range agg.PerSource {
			scores[source] = reading.Score
		}
		return scores
	})

	fuser := fusion.New(fusion.Config{
		MinSentimentConfidence: cfg.Fusion.MinSentimentConfidence,
		ConflictThreshold:      cfg.Fusion.SentimentConflictThreshold,
		MaxBoost:               cfg.Fusion.MaxSentimentBoost,
		Staleness:              cfg.Sentiment.Staleness(),
	}, aggregator, snapCache)

	// Side loops stop on rootCtx; the core pipeline drains on feed
	// shutdown instead, so in-flight signals are never abandoned.
	pipelineCtx := context.Background()

	var side sync.WaitGroup
	if bookClient != nil {
		side.Add(1)
		go func() { defer side.Done(); bookClient.Run(rootCtx) }()
	}
	side.Add(1)
	go func() {
		defer side.Done()
		aggregator.Run(rootCtx, cfg.Feed.Symbols,
			time.Duration(cfg.Sentiment.CycleIntervalMS)*time.Millisecond,
			func(symbol string) sentiment.MarketContext { return marketContextFor(eng, symbol) })
	}()
	side.Add(1)
	go func() { defer side.Done(); controller.Run(rootCtx, cfg.Weights.UpdateInterval()) }()
	side.Add(1)
	go func() { defer side.Done(); manager.RunSummaries(rootCtx, 24*time.Hour) }()
	side.Add(1)
	go func() {
		defer side.Done()
		for tick := range tradingTicks {
			paper.SetMarkPrice(tick.Symbol, tick.Price)
			manager.OnTick(rootCtx, tick)
		}
	}()

	var pipeline sync.WaitGroup
	feedCtx, stopFeed := context.WithCancel(rootCtx)
	defer stopFeed()

	pipeline.Add(1)
	go func() { defer pipeline.Done(); feed.Run(feedCtx) }()
	pipeline.Add(1)
	go func() { defer pipeline.Done(); eng.Run(pipelineCtx) }()

	fused := make(chan fusion.Enhanced, cfg.Engine.SignalChannelCapacity)
	pipeline.Add(1)
	go func() { defer pipeline.Done(); fuser.Run(pipelineCtx, teeSignals(pipelineCtx, eng.Signals(), eventBus, logger), fused) }()

	executed := make(chan fusion.Enhanced, cfg.Engine.SignalChannelCapacity)
	pipeline.Add(1)
	go func() {
		defer pipeline.Done()
		defer close(executed)
		for e := range fused {
			if err := eventBus.PublishEnhancedSignal(pipelineCtx, e); err != nil {
				logger.Warn().Err(err).Msg("Failed to publish enhanced signal")
			}
			executed <- e
		}
	}()
	pipeline.Add(1)
	go func() { defer pipeline.Done(); manager.Run(pipelineCtx, executed) }()

	// Block until a shutdown signal, or until persistence gives up. A
	// store failure means the record only survives in the journal, so
	// the process drains and exits with the journal code.
	exitCode := exitOK
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-manager.StoreFailures():
		exitCode = exitJournal
		logger.Error().Err(err).Msg("Persistence retries exhausted, shutting down")
		alerter.Critical(rootCtx, "Persistence failure",
			"database writes exhausted their retries; records journaled, shutting down")
	}

	// Stop the feed first so the engine, fusion and lifecycle stages
	// drain in order, bounded by the drain timeout.
	stopFeed()
	drained := make(chan struct{})
	go func() { pipeline.Wait(); close(drained) }()
	select {
	case <-drained:
	case <-time.After(cfg.Trading.DrainTimeout()):
		logger.Warn().Dur("timeout", cfg.Trading.DrainTimeout()).Msg("Drain timeout exceeded, abandoning in-flight signals")
	}

	// Close whatever is still open, persist the final session state,
	// then stop the side loops.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	manager.CloseAll(shutdownCtx, trading.ExitShutdown)
	manager.EndSession(shutdownCtx)

	stopRoot()
	side.Wait()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	summary := manager.Session()
	alerter.Info(shutdownCtx, "Session summary",
		fmt.Sprintf("trades=%d winRate=%.0f%% realizedPnL=%.2f feesPaid=%.2f",
			summary.TotalTrades, summary.WinRate*100, summary.RealizedPnL, summary.FeesPaid))
	logger.Info().
		Int("total_trades", summary.TotalTrades).
		Float64("win_rate", summary.WinRate).
		Float64("realized_pnl", summary.RealizedPnL).
		Float64("fees_paid", summary.FeesPaid).
		Msg("Session complete")

	if journal != nil {
		n, err := journal.Len()
		if err != nil {
			logger.Warn().Err(err).Msg("Journal unreadable")
		} else if n > 0 {
			logger.Error().Int("journaled_writes", n).Msg("Database writes were journaled, replay required")
			exitCode = exitJournal
		}
	}
	return exitCode
}

// teeSignals forwards technical signals to fusion while publishing
// each one on the event bus.
func teeSignals(ctx context.Context, in <-chan strategy.Signal, eventBus *bus.Bus, logger zerolog.Logger) <-chan strategy.Signal {
	out := make(chan strategy.Signal, cap(in))
	go func() {
		defer close(out)
		for sig := range in {
			if err := eventBus.PublishTechnicalSignal(ctx, sig); err != nil {
				logger.Warn().Err(err).Msg("Failed to publish technical signal")
			}
			out <- sig
		}
	}()
	return out
}

// marketContextFor frames the sentiment cycle with the engine's price
// window for the symbol.
func marketContextFor(eng *engine.Engine, symbol string) sentiment.MarketContext {
	w := eng.Window(symbol)
	if w == nil {
		return sentiment.MarketContext{
			Volatility: sentiment.LevelNormal,
			Volume:     sentiment.LevelNormal,
		}
	}
	snap := w.Snapshot()
	return sentiment.DeriveMarketContext(snap.Closes, snap.Volumes)
}
