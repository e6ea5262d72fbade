package store

import (
	"context"
	"fmt"
)

// schema statements run in order at startup. Idempotent by
// construction.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS trading_sessions (
		id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		starting_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		total_trades INTEGER NOT NULL DEFAULT 0,
		winning_trades INTEGER NOT NULL DEFAULT 0,
		realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		fees_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL,
		symbol TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		side TEXT NOT NULL,
		status TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		stop_loss_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		take_profit_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		fees DOUBLE PRECISION NOT NULL DEFAULT 0,
		opened_at TIMESTAMPTZ NOT NULL,
		entry_sentiment JSONB,
		exit_price DOUBLE PRECISION,
		exit_reason TEXT,
		realized_pnl DOUBLE PRECISION,
		closed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_session ON positions (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_closed_at ON positions (closed_at) WHERE closed_at IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS trades (
		id UUID PRIMARY KEY,
		position_id UUID NOT NULL,
		session_id UUID NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		fee DOUBLE PRECISION NOT NULL DEFAULT 0,
		leg TEXT NOT NULL,
		exit_reason TEXT,
		executed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_position ON trades (position_id)`,
	`CREATE TABLE IF NOT EXISTS enhanced_signals (
		id UUID PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		technical_action TEXT NOT NULL,
		technical_confidence DOUBLE PRECISION NOT NULL,
		technical_reason TEXT,
		sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		sentiment_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		sentiment_conflict BOOLEAN NOT NULL DEFAULT FALSE,
		final_action TEXT NOT NULL,
		final_confidence DOUBLE PRECISION NOT NULL,
		confidence_boost DOUBLE PRECISION NOT NULL DEFAULT 0,
		rationale TEXT,
		was_executed BOOLEAN NOT NULL DEFAULT FALSE,
		execute_reason TEXT,
		signal_time TIMESTAMPTZ NOT NULL,
		execution_time TIMESTAMPTZ,
		trade_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON enhanced_signals (symbol, signal_time)`,
}

// ensureSchema creates the tables and indexes if missing.
func (s *Store) ensureSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i, err)
		}
	}
	s.logger.Info().Int("statements", len(schema)).Msg("Schema ensured")
	return nil
}
