package sentiment

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxtrade/fluxtrader/internal/orderbook"
)

// OrderBookSource adapts the order-book analyzer into the uniform
// fetcher contract. Unlike the HTTP sources it never blocks: it reads
// the analyzer's latest intelligence.
type OrderBookSource struct {
	analyzer *orderbook.Analyzer
}

// NewOrderBookSource creates the order-book fetcher.
func NewOrderBookSource(analyzer *orderbook.Analyzer) *OrderBookSource {
	return &OrderBookSource{analyzer: analyzer}
}

func (s *OrderBookSource) Name() string { return SourceOrderBook }

func (s *OrderBookSource) Fetch(ctx context.Context, symbol string) (Reading, error) {
	intel, ok := s.analyzer.Intelligence(symbol)
	if !ok {
		return Reading{}, fmt.Errorf("no order book for %s", symbol)
	}

	return Reading{
		Source:     SourceOrderBook,
		Symbol:     symbol,
		Score:      EntrySignalScore(intel.EntrySignal),
		Confidence: intel.ConfidenceScore / 100,
		Volume:     1,
		ProducedAt: time.Now().UTC(),
		Raw: []string{fmt.Sprintf("entry_signal=%s pressure=%.1f flow=%.1f whale=%.1f",
			intel.EntrySignal, intel.MarketPressure, intel.InstitutionalFlow, intel.WhaleActivity)},
	}, nil
}

// EntrySignalScore maps the discrete book signal onto score space.
func EntrySignalScore(signal orderbook.EntrySignal) float64 {
	switch signal {
	case orderbook.EntryStrongBuy:
		return 0.8
	case orderbook.EntryBuy:
		return 0.4
	case orderbook.EntrySell:
		return -0.4
	case orderbook.EntryStrongSell:
		return -0.8
	default:
		return 0
	}
}
