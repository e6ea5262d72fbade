// Package bus publishes pipeline events over NATS so external
// consumers (dashboards, notification bots, research tooling) can
// observe signals and trades without touching the database.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/fusion"
	"github.com/fluxtrade/fluxtrader/internal/sentiment"
	"github.com/fluxtrade/fluxtrader/internal/strategy"
	"github.com/fluxtrade/fluxtrader/internal/trading"
)

// Subjects published by the platform. Consumers subscribe with
// wildcards, e.g. "flux.signals.>".
const (
	SubjectTechnicalSignals = "flux.signals.technical"
	SubjectEnhancedSignals  = "flux.signals.enhanced"
	SubjectTrades           = "flux.trades"
	SubjectCriticalEvents   = "flux.events.critical"
)

// Config configures the NATS connection.
type Config struct {
	URL  string
	Name string
}

// DefaultConfig returns the local development configuration.
func DefaultConfig() Config {
	return Config{
		URL:  nats.DefaultURL,
		Name: "fluxtrader",
	}
}

// Bus is a thin publish-only wrapper over a NATS connection. A nil
// *Bus is valid and drops every publish, so callers wire it
// unconditionally and the platform runs fine without NATS.
type Bus struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// Connect dials NATS with infinite reconnects.
func Connect(cfg Config) (*Bus, error) {
	logger := config.NewLogger("bus")

	if cfg.Name == "" {
		cfg.Name = "fluxtrader"
	}

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info().Str("url", cfg.URL).Msg("Event bus connected")
	return &Bus{nc: nc, logger: logger}, nil
}

// PublishTechnicalSignal publishes a raw strategy signal.
func (b *Bus) PublishTechnicalSignal(ctx context.Context, sig strategy.Signal) error {
	return b.publish(ctx, SubjectTechnicalSignals, sig)
}

// PublishEnhancedSignal publishes a fused signal, executed or not.
func (b *Bus) PublishEnhancedSignal(ctx context.Context, e fusion.Enhanced) error {
	return b.publish(ctx, SubjectEnhancedSignals, e)
}

// PublishTrade publishes one execution leg.
func (b *Bus) PublishTrade(ctx context.Context, trade trading.Trade) error {
	return b.publish(ctx, SubjectTrades, trade)
}

// PublishCriticalEvent publishes a newly detected critical market
// event.
func (b *Bus) PublishCriticalEvent(ctx context.Context, ev sentiment.CriticalEvent) error {
	return b.publish(ctx, SubjectCriticalEvents, ev)
}

func (b *Bus) publish(ctx context.Context, subject string, payload interface{}) error {
	if b == nil || b.nc == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.nc.IsConnected() {
		return fmt.Errorf("event bus not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", subject, err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	b.logger.Debug().Str("subject", subject).Int("bytes", len(data)).Msg("Published event")
	return nil
}

// Close flushes pending publishes and closes the connection.
func (b *Bus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	if err := b.nc.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("NATS drain failed")
		b.nc.Close()
	}
	b.logger.Info().Msg("Event bus closed")
}
