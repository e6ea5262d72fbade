package orderbook

import (
	"context"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 60 * time.Second
	readTimeout   = 30 * time.Second
)

// Client keeps a depth stream connected and feeds every message into
// the analyzer. During a disconnect the last snapshot stays readable;
// staleness handling in the analyzer zeroes its confidence.
type Client struct {
	url      string
	analyzer *Analyzer
	logger   zerolog.Logger
	rng      *rand.Rand
}

// NewClient creates a depth stream client for the given endpoint.
func NewClient(url string, analyzer *Analyzer) *Client {
	return &Client{
		url:      url,
		analyzer: analyzer,
		logger:   config.NewLogger("orderbook_client"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run maintains the connection until the context is cancelled,
// reconnecting with exponential backoff on failure.
func (c *Client) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		attempt++
		delay := c.backoff(attempt)
		metrics.RecoveredErrors.WithLabelValues("orderbook_client").Inc()
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Depth stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.logger.Info().Str("url", c.url).Msg("Depth stream connected")

	// Close the connection when the context ends so ReadMessage
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.analyzer.HandleMessage(data); err != nil {
			// One malformed message is not a reason to drop the
			// connection.
			c.logger.Warn().Err(err).Msg("Skipping malformed depth message")
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := reconnectBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= reconnectMax {
			delay = reconnectMax
			break
		}
	}
	jitter := time.Duration(c.rng.Int63n(int64(delay)/4 + 1))
	if delay+jitter > reconnectMax {
		return reconnectMax
	}
	return delay + jitter
}
