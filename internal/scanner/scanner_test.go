package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/connector"
	"arbscan/internal/engine"
)

func testEngineConfig() engine.Config {
	return engine.Config{
		ThreshEnterPct: 0.40,
		ThreshExitPct:  0.30,
		MaxProfitPct:   10,
		LongSecs:       180,
		StaleSecs:      600,
		MaxDecimals:    12,
	}
}

func TestNewRejectsUnknownVenue(t *testing.T) {
	_, err := New(testEngineConfig(), []string{"binance", "nyse"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nyse")
}

func TestVenuesSorted(t *testing.T) {
	names := Venues()
	assert.Len(t, names, 12)
	assert.Contains(t, names, "binance")
	assert.Contains(t, names, "lbank")
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestSnapshotComputesOverTable(t *testing.T) {
	s, err := New(testEngineConfig(), []string{"binance", "kraken"})
	require.NoError(t, err)

	now := connector.NowMs()
	s.Table().Put("binance", "BTC/USDT", connector.Quote{
		Bid: 99.9, Ask: 100.0, BidSize: 1, AskSize: 1,
		BidStr: "99.9", AskStr: "100.0",
		TsMs: now, HasBid: true, HasAsk: true,
	})
	s.Table().Put("kraken", "BTC/USDT", connector.Quote{
		Bid: 100.5, Ask: 100.6, BidSize: 2, AskSize: 1,
		BidStr: "100.5", AskStr: "100.6",
		TsMs: now, HasBid: true, HasAsk: true,
	})

	snap := s.Snapshot()
	require.Len(t, snap.Opportunities, 1)
	op := snap.Opportunities[0]
	assert.Equal(t, "binance", op.BuyVenue)
	assert.Equal(t, "kraken", op.SellVenue)
	assert.InDelta(t, 0.5, op.ProfitPct, 1e-9)
	assert.Empty(t, snap.Stale)
	assert.Equal(t, []string{"binance", "kraken"}, snap.Venues)
}

func TestSnapshotReportsStaleSeededPairs(t *testing.T) {
	s, err := New(testEngineConfig(), []string{"binance"})
	require.NoError(t, err)

	s.Table().SetSupported("binance", []string{"BTC/USDT"})
	assert.Equal(t, []string{"BTC/USDT"}, s.Supported("binance"))

	snap := s.Snapshot()
	require.Len(t, snap.Stale, 1)
	assert.Equal(t, "binance", snap.Stale[0].Venue)
	assert.Equal(t, "BTC/USDT", snap.Stale[0].Pair)
}
