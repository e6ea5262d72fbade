package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxtrade/fluxtrader/internal/fusion"
	"github.com/fluxtrade/fluxtrader/internal/strategy"
	"github.com/fluxtrade/fluxtrader/internal/trading"
)

func fastRetry() RetryConfig {
	return RetryConfig{Attempts: 3, Delay: time.Millisecond}
}

func testPosition() trading.Position {
	now := time.Now().UTC()
	return trading.Position{
		ID:             uuid.New(),
		SessionID:      uuid.New(),
		Symbol:         "BTC",
		StrategyID:     "rsi-1",
		Side:           trading.SideLong,
		Status:         trading.PositionClosed,
		EntryPrice:     100,
		Quantity:       10,
		StopLossPct:    0.02,
		TakeProfitPct:  0.04,
		Fees:           0.2,
		OpenedAt:       now.Add(-time.Hour),
		EntrySentiment: map[string]float64{"microblog": 0.4},
		ExitPrice:      104,
		ExitReason:     trading.ExitTakeProfit,
		RealizedPnL:    39.8,
		ClosedAt:       &now,
	}
}

func TestSavePosition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, nil)
	s.SetRetry(fastRetry())

	mock.ExpectExec("INSERT INTO positions").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SavePosition(context.Background(), testPosition()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTrade(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, nil)
	s.SetRetry(fastRetry())

	mock.ExpectExec("INSERT INTO trades").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	trade := trading.Trade{
		ID:         uuid.New(),
		PositionID: uuid.New(),
		SessionID:  uuid.New(),
		Symbol:     "BTC",
		Side:       "SELL",
		Price:      104,
		Quantity:   10,
		Fee:        0.1,
		Leg:        "exit",
		ExitReason: trading.ExitTakeProfit,
		ExecutedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveTrade(context.Background(), trade))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSignal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, nil)
	s.SetRetry(fastRetry())

	mock.ExpectExec("INSERT INTO enhanced_signals").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e := fusion.Enhanced{
		ID: uuid.New(),
		Technical: strategy.Signal{
			StrategyID: "rsi-1",
			Symbol:     "BTC",
			Action:     strategy.ActionBuy,
			Confidence: 0.75,
			Reason:     "RSI oversold at 25.00",
			Timestamp:  time.Now().UTC(),
		},
		SentimentScore:      0.4,
		SentimentConfidence: 0.7,
		FinalAction:         fusion.FinalBuy,
		FinalConfidence:     0.9,
		ConfidenceBoost:     0.2,
		Rationale:           "RSI oversold at 25.00; sentiment aligned",
		WasExecuted:         true,
		SignalTime:          time.Now().UTC(),
	}
	require.NoError(t, s.SaveSignal(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, nil)
	s.SetRetry(fastRetry())

	mock.ExpectExec("INSERT INTO trading_sessions").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	summary := trading.Summary{
		SessionID:       uuid.New(),
		StartedAt:       time.Now().UTC(),
		StartingBalance: 100000,
		CurrentBalance:  100120.5,
		Active:          true,
		TotalTrades:     3,
		WinningTrades:   2,
		RealizedPnL:     120.5,
		FeesPaid:        1.1,
	}
	require.NoError(t, s.SaveSession(context.Background(), summary))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_RetriesTransientFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithPool(mock, nil)
	s.SetRetry(fastRetry())

	mock.ExpectExec("INSERT INTO trades").
		WillReturnError(errors.New("connection refused"))
	mock.ExpectExec("INSERT INTO trades").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	trade := trading.Trade{ID: uuid.New(), PositionID: uuid.New(), SessionID: uuid.New(),
		Symbol: "BTC", Side: "BUY", Price: 100, Quantity: 1, Leg: "entry", ExecutedAt: time.Now()}
	require.NoError(t, s.SaveTrade(context.Background(), trade))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_JournalsAfterExhaustedRetries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	journal, err := NewJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)

	s := NewWithPool(mock, journal)
	s.SetRetry(fastRetry())

	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO trades").
			WillReturnError(errors.New("database down"))
	}

	trade := trading.Trade{ID: uuid.New(), PositionID: uuid.New(), SessionID: uuid.New(),
		Symbol: "BTC", Side: "BUY", Price: 100, Quantity: 1, Leg: "entry", ExecutedAt: time.Now()}
	err = s.SaveTrade(context.Background(), trade)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")

	n, err := journal.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournal_AppendAndLen(t *testing.T) {
	journal, err := NewJournal(filepath.Join(t.TempDir(), "sub", "journal.jsonl"))
	require.NoError(t, err)

	n, err := journal.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, journal.Append("trade", map[string]string{"symbol": "BTC"}))
	require.NoError(t, journal.Append("position", testPosition()))

	n, err = journal.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
