package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/connector"
)

func TestPutAndGet(t *testing.T) {
	table := NewTable()
	q := connector.Quote{Bid: 100, Ask: 101, HasBid: true, HasAsk: true, TsMs: 5}

	table.Put("binance", "BTC/USDT", q)
	got, ok := table.Get("binance", "BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, q, got)

	_, ok = table.Get("binance", "ETH/USDT")
	assert.False(t, ok)
	_, ok = table.Get("kraken", "BTC/USDT")
	assert.False(t, ok)
}

func TestPutReplacesWholeRecord(t *testing.T) {
	table := NewTable()
	table.Put("binance", "BTC/USDT", connector.Quote{Bid: 100, HasBid: true})
	table.Put("binance", "BTC/USDT", connector.Quote{Ask: 101, HasAsk: true})

	got, _ := table.Get("binance", "BTC/USDT")
	assert.False(t, got.HasBid, "old record must not bleed through")
	assert.True(t, got.HasAsk)
}

func TestSetSupportedSeedsAndPrunes(t *testing.T) {
	table := NewTable()
	table.Put("kraken", "BTC/USDT", connector.Quote{Bid: 100, HasBid: true, TsMs: 5})
	table.Put("kraken", "DOGE/USDT", connector.Quote{Bid: 0.1, HasBid: true, TsMs: 5})

	table.SetSupported("kraken", []string{"BTC/USDT", "ETH/USDT"})

	// surviving pair keeps its quote
	got, ok := table.Get("kraken", "BTC/USDT")
	require.True(t, ok)
	assert.True(t, got.HasBid)

	// new pair is seeded empty so it ages as stale until first data
	got, ok = table.Get("kraken", "ETH/USDT")
	require.True(t, ok)
	assert.Equal(t, connector.Quote{}, got)

	// dropped pair is gone
	_, ok = table.Get("kraken", "DOGE/USDT")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"BTC/USDT", "ETH/USDT"}, table.Supported("kraken"))
}

func TestSnapshotIsACopy(t *testing.T) {
	table := NewTable()
	table.Put("okx", "BTC/USDT", connector.Quote{Bid: 100, HasBid: true})

	snap := table.Snapshot()
	snap["okx"]["BTC/USDT"] = connector.Quote{Bid: 1, HasBid: true}
	snap["okx"]["ETH/USDT"] = connector.Quote{}

	got, ok := table.Get("okx", "BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Bid)
	_, ok = table.Get("okx", "ETH/USDT")
	assert.False(t, ok)
}

func TestVenues(t *testing.T) {
	table := NewTable()
	table.Put("okx", "BTC/USDT", connector.Quote{})
	table.SetSupported("kraken", []string{"BTC/USDT"})
	assert.ElementsMatch(t, []string{"okx", "kraken"}, table.Venues())
}
