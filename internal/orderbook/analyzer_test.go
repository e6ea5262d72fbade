package orderbook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(Config{
		LargeOrderThreshold: 10,
		DepthTarget:         100,
		Staleness:           5 * time.Second,
	})
}

func snapshotJSON(t *testing.T, symbol string, bids, asks [][2]float64) []byte {
	t.Helper()
	data, err := json.Marshal(depthMessage{Symbol: symbol, Bids: bids, Asks: asks})
	require.NoError(t, err)
	return data
}

func TestAnalyzer_SnapshotMetrics(t *testing.T) {
	a := newTestAnalyzer()

	err := a.HandleMessage(snapshotJSON(t, "BTC",
		[][2]float64{{100, 12}, {99, 5}, {98, 15}},
		[][2]float64{{101, 4}, {102, 3}},
	))
	require.NoError(t, err)

	snap, ok := a.Snapshot("BTC")
	require.True(t, ok)

	assert.InDelta(t, 1.0, snap.Spread, 1e-9)
	// (32 - 7) / 39
	assert.InDelta(t, 25.0/39.0, snap.DepthImbalance, 1e-9)
	assert.Equal(t, 2, snap.LargeBidCount)
	assert.Equal(t, 0, snap.LargeAskCount)
	assert.Equal(t, WallBuy, snap.WallPressure)
	assert.False(t, snap.Stale)

	// Bids descending, asks ascending.
	assert.InDelta(t, 100.0, snap.Bids[0].Price, 1e-9)
	assert.InDelta(t, 101.0, snap.Asks[0].Price, 1e-9)
}

func TestAnalyzer_DeltaUpsertsAndRemoves(t *testing.T) {
	a := newTestAnalyzer()

	require.NoError(t, a.HandleMessage(snapshotJSON(t, "BTC",
		[][2]float64{{100, 5}, {99, 5}},
		[][2]float64{{101, 5}},
	)))

	delta, err := json.Marshal(depthMessage{
		Symbol: "BTC",
		Type:   "delta",
		Bids:   [][2]float64{{100, 0}, {98, 7}}, // remove 100, add 98
		Asks:   [][2]float64{{101, 9}},          // resize 101
	})
	require.NoError(t, err)
	require.NoError(t, a.HandleMessage(delta))

	snap, ok := a.Snapshot("BTC")
	require.True(t, ok)

	require.Len(t, snap.Bids, 2)
	assert.InDelta(t, 99.0, snap.Bids[0].Price, 1e-9)
	assert.InDelta(t, 98.0, snap.Bids[1].Price, 1e-9)
	require.Len(t, snap.Asks, 1)
	assert.InDelta(t, 9.0, snap.Asks[0].Size, 1e-9)
}

func TestAnalyzer_DeltaWithoutPriorBookActsAsSnapshot(t *testing.T) {
	a := newTestAnalyzer()

	delta, err := json.Marshal(depthMessage{
		Symbol: "ETH",
		Type:   "delta",
		Bids:   [][2]float64{{100, 5}},
		Asks:   [][2]float64{{101, 5}},
	})
	require.NoError(t, err)
	require.NoError(t, a.HandleMessage(delta))

	_, ok := a.Snapshot("ETH")
	assert.True(t, ok)
}

func TestAnalyzer_TruncatesToDepthLevels(t *testing.T) {
	a := newTestAnalyzer()

	bids := make([][2]float64, 30)
	for i := range bids {
		bids[i] = [2]float64{100 - float64(i), 1}
	}
	require.NoError(t, a.HandleMessage(snapshotJSON(t, "BTC", bids, [][2]float64{{101, 1}})))

	snap, _ := a.Snapshot("BTC")
	assert.Len(t, snap.Bids, DepthLevels)
}

func TestAnalyzer_RejectsMalformedMessage(t *testing.T) {
	a := newTestAnalyzer()

	err := a.HandleMessage([]byte("{not json"))

	assert.Error(t, err)
}

func TestIntelligence_BidHeavyBookReadsBullish(t *testing.T) {
	a := newTestAnalyzer()

	require.NoError(t, a.HandleMessage(snapshotJSON(t, "BTC",
		[][2]float64{{100, 40}, {99, 30}, {98, 20}},
		[][2]float64{{100.1, 2}, {100.2, 1}},
	)))

	intel, ok := a.Intelligence("BTC")
	require.True(t, ok)

	assert.Greater(t, intel.MarketPressure, 50.0)
	assert.Greater(t, intel.InstitutionalFlow, 0.0)
	assert.Contains(t, []EntrySignal{EntryBuy, EntryStrongBuy}, intel.EntrySignal)
	assert.Greater(t, intel.ConfidenceScore, 0.0)
	assert.GreaterOrEqual(t, intel.LiquidityScore, 0.0)
	assert.LessOrEqual(t, intel.LiquidityScore, 100.0)
}

func TestIntelligence_BalancedBookReadsNeutral(t *testing.T) {
	a := newTestAnalyzer()

	require.NoError(t, a.HandleMessage(snapshotJSON(t, "BTC",
		[][2]float64{{100, 5}, {99, 5}},
		[][2]float64{{100.1, 5}, {100.2, 5}},
	)))

	intel, ok := a.Intelligence("BTC")
	require.True(t, ok)

	assert.Equal(t, EntryNeutral, intel.EntrySignal)
	assert.InDelta(t, 0.0, intel.MarketPressure, 10.0)
}

func TestIntelligence_StaleBookHasZeroConfidence(t *testing.T) {
	a := newTestAnalyzer()
	require.NoError(t, a.HandleMessage(snapshotJSON(t, "BTC",
		[][2]float64{{100, 40}},
		[][2]float64{{101, 2}},
	)))

	// Move the clock past the staleness window.
	a.now = func() time.Time { return time.Now().Add(time.Minute) }

	snap, ok := a.Snapshot("BTC")
	require.True(t, ok)
	assert.True(t, snap.Stale)

	intel, ok := a.Intelligence("BTC")
	require.True(t, ok)
	assert.Zero(t, intel.ConfidenceScore)
}

func TestIntelligence_UnknownSymbol(t *testing.T) {
	a := newTestAnalyzer()

	_, ok := a.Intelligence("XRP")

	assert.False(t, ok)
}

func TestEntrySignalBuckets(t *testing.T) {
	assert.Equal(t, EntryStrongBuy, entrySignalFor(75))
	assert.Equal(t, EntryBuy, entrySignalFor(30))
	assert.Equal(t, EntryNeutral, entrySignalFor(0))
	assert.Equal(t, EntrySell, entrySignalFor(-30))
	assert.Equal(t, EntryStrongSell, entrySignalFor(-75))
}

func TestClient_ReceivesSnapshotsOverWebsocket(t *testing.T) {
	a := newTestAnalyzer()
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := snapshotJSON(t, "BTC", [][2]float64{{100, 5}}, [][2]float64{{101, 5}})
		_ = conn.WriteMessage(websocket.TextMessage, msg)
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewClient(url, a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := a.Snapshot("BTC")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
