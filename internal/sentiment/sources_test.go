package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMicroblogSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "$BTC", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"posts": []map[string]interface{}{
				{"text": "BTC to the moon, massive breakout incoming", "engagement": 120},
				{"text": "bought more, extremely bullish on this rally", "engagement": 45},
			},
		})
	}))
	defer server.Close()

	s := NewMicroblogSource(server.URL, "test-key", 50)
	reading, err := s.Fetch(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, SourceMicroblog, reading.Source)
	assert.Equal(t, 2, reading.Volume)
	assert.Positive(t, reading.Score)
	assert.Positive(t, reading.Confidence)
	assert.Len(t, reading.Raw, 2)
}

func TestMicroblogSource_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewMicroblogSource(server.URL, "", 50)
	_, err := s.Fetch(context.Background(), "BTC")
	assert.Error(t, err)
}

func TestForumSource_RanksByEngagement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forums/cryptomarkets/top", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"posts": []map[string]interface{}{
				{"title": "dump and crash ahead, sell now", "upvotes": 5, "comments": 1},
				{"title": "accumulating through the dip, bullish long term", "upvotes": 300, "comments": 80},
			},
		})
	}))
	defer server.Close()

	s := NewForumSource(server.URL, []string{"cryptomarkets"})
	reading, err := s.Fetch(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, 2, reading.Volume)
	// Highest-engagement post first.
	assert.Contains(t, reading.Raw[0], "accumulating")
}

func TestNewsSource_FiltersBySymbol(t *testing.T) {
	const feed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <item><title>Bitcoin rally continues as ETF inflows surge</title></item>
  <item><title>Ethereum upgrade scheduled for next month</title></item>
</channel></rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feed))
	}))
	defer server.Close()

	s := NewNewsSource([]string{server.URL}, map[string][]string{"BTC": {"bitcoin"}})
	reading, err := s.Fetch(context.Background(), "BTC")
	require.NoError(t, err)

	require.Equal(t, 1, reading.Volume)
	assert.Contains(t, reading.Raw[0], "Bitcoin")
	assert.Positive(t, reading.Score)
}

func TestOnChainSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OnChainMetrics{
			TxCount:         200000,
			ExchangeInflow:  1000,
			ExchangeOutflow: 4000,
		})
	}))
	defer server.Close()

	s := NewOnChainSource(server.URL)
	reading, err := s.Fetch(context.Background(), "BTC")
	require.NoError(t, err)

	// Net outflow reads bullish: 0.6 * 3000/5000.
	assert.InDelta(t, 0.36, reading.Score, 1e-9)
	assert.Equal(t, SourceOnChain, reading.Source)
}

func TestScoreOnChain(t *testing.T) {
	t.Run("heavy inflow bearish", func(t *testing.T) {
		r := ScoreOnChain("BTC", OnChainMetrics{ExchangeInflow: 9000, ExchangeOutflow: 1000})
		assert.InDelta(t, -0.48, r.Score, 1e-9)
	})

	t.Run("dormant activations penalized", func(t *testing.T) {
		r := ScoreOnChain("BTC", OnChainMetrics{DormantActivations: 4})
		assert.InDelta(t, -0.2, r.Score, 1e-9)
	})

	t.Run("dormant penalty capped", func(t *testing.T) {
		r := ScoreOnChain("BTC", OnChainMetrics{DormantActivations: 100})
		assert.InDelta(t, -0.3, r.Score, 1e-9)
	})

	t.Run("large transfers shave score", func(t *testing.T) {
		r := ScoreOnChain("BTC", OnChainMetrics{LargeTransfers: 11})
		assert.InDelta(t, -0.1, r.Score, 1e-9)
	})

	t.Run("confidence scales with activity", func(t *testing.T) {
		quiet := ScoreOnChain("BTC", OnChainMetrics{TxCount: 1000})
		busy := ScoreOnChain("BTC", OnChainMetrics{TxCount: 100000})
		assert.Greater(t, busy.Confidence, quiet.Confidence)
	})

	t.Run("score bounded", func(t *testing.T) {
		r := ScoreOnChain("BTC", OnChainMetrics{
			ExchangeInflow:     1e9,
			DormantActivations: 1000,
			LargeTransfers:     100,
		})
		assert.GreaterOrEqual(t, r.Score, -1.0)
	})
}

func TestReadingFromTexts_Empty(t *testing.T) {
	reading := readingFromTexts(SourceForum, "BTC", nil)
	assert.Zero(t, reading.Score)
	assert.Zero(t, reading.Confidence)
	assert.Zero(t, reading.Volume)
}
