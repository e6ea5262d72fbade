package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
)

// Quote is a last-price observation from the upstream exchange.
type Quote struct {
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// QuoteProvider fetches last-price quotes from an exchange. Symbol
// format translation is encapsulated behind this interface; callers
// always pass base symbols like "BTC".
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

// BinanceQuoteProvider implements QuoteProvider against the Binance
// 24h ticker endpoint.
type BinanceQuoteProvider struct {
	client *binance.Client
	quote  string
}

// NewBinanceQuoteProvider creates a provider. quoteCurrency is the
// quote leg appended to base symbols (default USDT). Public market data
// needs no API credentials.
func NewBinanceQuoteProvider(apiKey, secretKey, quoteCurrency string) *BinanceQuoteProvider {
	if quoteCurrency == "" {
		quoteCurrency = "USDT"
	}
	return &BinanceQuoteProvider{
		client: binance.NewClient(apiKey, secretKey),
		quote:  strings.ToUpper(quoteCurrency),
	}
}

// GetQuote fetches the latest price and 24h volume for a base symbol.
func (p *BinanceQuoteProvider) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	exchangeSymbol := p.translate(symbol)

	stats, err := p.client.NewListPriceChangeStatsService().Symbol(exchangeSymbol).Do(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("binance ticker for %s: %w", exchangeSymbol, err)
	}
	if len(stats) == 0 {
		return Quote{}, fmt.Errorf("binance ticker for %s: empty response", exchangeSymbol)
	}

	price, err := strconv.ParseFloat(stats[0].LastPrice, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("binance ticker for %s: bad price %q: %w", exchangeSymbol, stats[0].LastPrice, err)
	}
	volume, err := strconv.ParseFloat(stats[0].Volume, 64)
	if err != nil {
		volume = 0
	}

	return Quote{Price: price, Volume: volume, Timestamp: time.Now().UTC()}, nil
}

// translate converts a base symbol to the exchange pair format.
// Symbols that already carry a quote leg pass through unchanged.
func (p *BinanceQuoteProvider) translate(symbol string) string {
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, p.quote) {
		return upper
	}
	return upper + p.quote
}
