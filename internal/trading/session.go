package trading

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session accumulates realized outcomes. Aggregates move only on
// CLOSED transitions so they stay monotonic with realized trades.
type Session struct {
	mu sync.Mutex

	ID              uuid.UUID `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	StartingBalance float64   `json:"starting_balance"`
	CurrentBalance  float64   `json:"current_balance"`
	Active          bool      `json:"active"`
	TotalTrades     int       `json:"total_trades"`
	WinningTrades   int       `json:"winning_trades"`
	RealizedPnL     float64   `json:"realized_pnl"`
	FeesPaid        float64   `json:"fees_paid"`
}

// NewSession starts a fresh trading session.
func NewSession() *Session {
	return &Session{ID: uuid.New(), StartedAt: time.Now().UTC(), Active: true}
}

// seedBalance sets the starting capital; the current balance tracks it
// from there as positions close.
func (s *Session) seedBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartingBalance = balance
	s.CurrentBalance = balance + s.RealizedPnL
}

// end marks the session inactive. Aggregates stay readable.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Active = false
}

// recordClose folds one closed position into the aggregates.
func (s *Session) recordClose(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalTrades++
	if p.RealizedPnL > 0 {
		s.WinningTrades++
	}
	s.RealizedPnL += p.RealizedPnL
	s.FeesPaid += p.Fees
	s.CurrentBalance += p.RealizedPnL
}

// Summary is a point-in-time copy of the session aggregates.
type Summary struct {
	SessionID       uuid.UUID `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	StartingBalance float64   `json:"starting_balance"`
	CurrentBalance  float64   `json:"current_balance"`
	Active          bool      `json:"active"`
	TotalTrades     int       `json:"total_trades"`
	WinningTrades   int       `json:"winning_trades"`
	WinRate         float64   `json:"win_rate"`
	RealizedPnL     float64   `json:"realized_pnl"`
	FeesPaid        float64   `json:"fees_paid"`
	OpenPositions   int       `json:"open_positions"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
}

// snapshot copies the aggregates.
func (s *Session) snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		SessionID:       s.ID,
		StartedAt:       s.StartedAt,
		StartingBalance: s.StartingBalance,
		CurrentBalance:  s.CurrentBalance,
		Active:          s.Active,
		TotalTrades:     s.TotalTrades,
		WinningTrades:   s.WinningTrades,
		RealizedPnL:     s.RealizedPnL,
		FeesPaid:        s.FeesPaid,
	}
	if s.TotalTrades > 0 {
		summary.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}
	return summary
}
