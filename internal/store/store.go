// Package store persists sessions, positions, trades and enhanced
// signals to PostgreSQL. Writes retry with a bounded budget; records
// that still cannot be written land in the on-disk journal so nothing
// realized is ever silently lost.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
	"github.com/fluxtrade/fluxtrader/internal/fusion"
	"github.com/fluxtrade/fluxtrader/internal/metrics"
	"github.com/fluxtrade/fluxtrader/internal/trading"
)

// Pool is the subset of pgxpool.Pool the store uses, so tests can
// substitute a mock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// RetryConfig bounds the per-write retry budget.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryConfig retries each write up to 10 times, 1s apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 10, Delay: time.Second}
}

// Store is the PostgreSQL persistence layer. It implements
// trading.Store.
type Store struct {
	pool    Pool
	journal *Journal
	retry   RetryConfig
	logger  zerolog.Logger
}

// New opens a connection pool against the configured database URL and
// ensures the schema exists.
func New(ctx context.Context, databaseURL string, journal *Journal) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewWithPool(pool, journal)
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.logger.Info().Msg("Database connection pool created")
	return s, nil
}

// NewWithPool builds a store over an existing pool. journal may be
// nil.
func NewWithPool(pool Pool, journal *Journal) *Store {
	return &Store{
		pool:    pool,
		journal: journal,
		retry:   DefaultRetryConfig(),
		logger:  config.NewLogger("store"),
	}
}

// SetRetry overrides the write retry budget.
func (s *Store) SetRetry(cfg RetryConfig) { s.retry = cfg }

// Close closes the underlying pool if it owns one.
func (s *Store) Close() {
	if pool, ok := s.pool.(*pgxpool.Pool); ok {
		pool.Close()
		s.logger.Info().Msg("Database connection pool closed")
	}
}

// SaveSession upserts the session aggregates.
func (s *Store) SaveSession(ctx context.Context, summary trading.Summary) error {
	const query = `
		INSERT INTO trading_sessions (
			id, started_at, starting_balance, current_balance, active,
			total_trades, winning_trades, realized_pnl, fees_paid, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			starting_balance = EXCLUDED.starting_balance,
			current_balance = EXCLUDED.current_balance,
			active = EXCLUDED.active,
			total_trades = EXCLUDED.total_trades,
			winning_trades = EXCLUDED.winning_trades,
			realized_pnl = EXCLUDED.realized_pnl,
			fees_paid = EXCLUDED.fees_paid,
			updated_at = NOW()
	`
	return s.write(ctx, "session", summary, query,
		summary.SessionID, summary.StartedAt, summary.StartingBalance,
		summary.CurrentBalance, summary.Active, summary.TotalTrades,
		summary.WinningTrades, summary.RealizedPnL, summary.FeesPaid)
}

// SavePosition upserts a position row, open or closed.
func (s *Store) SavePosition(ctx context.Context, p trading.Position) error {
	const query = `
		INSERT INTO positions (
			id, session_id, symbol, strategy_id, side, status, entry_price,
			quantity, stop_loss_pct, take_profit_pct, fees, opened_at,
			entry_sentiment, exit_price, exit_reason, realized_pnl, closed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			fees = EXCLUDED.fees,
			exit_price = EXCLUDED.exit_price,
			exit_reason = EXCLUDED.exit_reason,
			realized_pnl = EXCLUDED.realized_pnl,
			closed_at = EXCLUDED.closed_at,
			updated_at = NOW()
	`
	sentimentJSON, err := json.Marshal(p.EntrySentiment)
	if err != nil {
		return fmt.Errorf("failed to marshal entry sentiment: %w", err)
	}
	return s.write(ctx, "position", p, query,
		p.ID, p.SessionID, p.Symbol, p.StrategyID, string(p.Side), string(p.Status),
		p.EntryPrice, p.Quantity, p.StopLossPct, p.TakeProfitPct, p.Fees, p.OpenedAt,
		sentimentJSON, p.ExitPrice, string(p.ExitReason), p.RealizedPnL, p.ClosedAt)
}

// SaveTrade inserts one execution leg.
func (s *Store) SaveTrade(ctx context.Context, t trading.Trade) error {
	const query = `
		INSERT INTO trades (
			id, position_id, session_id, symbol, side, price, quantity,
			fee, leg, exit_reason, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	return s.write(ctx, "trade", t, query,
		t.ID, t.PositionID, t.SessionID, t.Symbol, t.Side, t.Price,
		t.Quantity, t.Fee, t.Leg, string(t.ExitReason), t.ExecutedAt)
}

// SaveSignal inserts one enhanced signal with both the technical and
// sentiment inputs recorded.
func (s *Store) SaveSignal(ctx context.Context, e fusion.Enhanced) error {
	const query = `
		INSERT INTO enhanced_signals (
			id, symbol, strategy_id, technical_action, technical_confidence,
			technical_reason, sentiment_score, sentiment_confidence,
			sentiment_conflict, final_action, final_confidence,
			confidence_boost, rationale, was_executed, execute_reason,
			signal_time, execution_time, trade_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	return s.write(ctx, "signal", e, query,
		e.ID, e.Technical.Symbol, e.Technical.StrategyID, string(e.Technical.Action),
		e.Technical.Confidence, e.Technical.Reason, e.SentimentScore,
		e.SentimentConfidence, e.Conflict, string(e.FinalAction), e.FinalConfidence,
		e.ConfidenceBoost, e.Rationale, e.WasExecuted, e.ExecuteReason,
		e.SignalTime, e.ExecutionTime, nullableString(e.TradeID))
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// write executes an insert with the bounded retry budget; on
// exhaustion the record goes to the journal and the error surfaces.
func (s *Store) write(ctx context.Context, kind string, record interface{}, query string, args ...interface{}) error {
	var lastErr error
retries:
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		_, lastErr = s.pool.Exec(ctx, query, args...)
		if lastErr == nil {
			return nil
		}

		metrics.PersistenceRetries.Inc()
		s.logger.Warn().
			Err(lastErr).
			Str("kind", kind).
			Int("attempt", attempt).
			Int("max_attempts", s.retry.Attempts).
			Msg("Persistence write failed")

		if attempt == s.retry.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retries
		case <-time.After(s.retry.Delay):
		}
	}

	if s.journal != nil {
		if jerr := s.journal.Append(kind, record); jerr != nil {
			s.logger.Error().Err(jerr).Str("kind", kind).Msg("Journal append failed")
		} else {
			s.logger.Info().Str("kind", kind).Msg("Record journaled after exhausted retries")
		}
	}
	return fmt.Errorf("%s write failed after %d attempts: %w", kind, s.retry.Attempts, lastErr)
}
