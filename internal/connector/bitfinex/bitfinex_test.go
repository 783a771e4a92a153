package bitfinex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/book"
)

func TestHumanFromCode(t *testing.T) {
	pair, ok := humanFromCode("ETHUST")
	require.True(t, ok)
	assert.Equal(t, "ETH/USDT", pair)

	pair, ok = humanFromCode("LTCUDC")
	require.True(t, ok)
	assert.Equal(t, "LTC/USDC", pair)

	pair, ok = humanFromCode("BTCUSD")
	require.True(t, ok)
	assert.Equal(t, "BTC/USD", pair)

	_, ok = humanFromCode("UST")
	assert.False(t, ok, "bare quote code has no base")

	_, ok = humanFromCode("SOMETHING")
	assert.False(t, ok)
}

func TestSymbolFromPair(t *testing.T) {
	assert.Equal(t, "tETHUST", symbolFromPair("ETH/USDT"))
	assert.Equal(t, "tBTCUSD", symbolFromPair("BTC/USD"))
	assert.Equal(t, "tSOLUDC", symbolFromPair("SOL/USDC"))
}

func TestApplyEntrySides(t *testing.T) {
	b := book.New()

	// positive amount is a bid, negative an ask; size is abs(amount)
	applyEntry(b, []float64{100.5, 2, 3.5})
	applyEntry(b, []float64{100.6, 1, -1.25})

	bid, ok := b.Best(book.Bid)
	require.True(t, ok)
	assert.Equal(t, 100.5, bid.Price)
	assert.Equal(t, 3.5, bid.Size)

	ask, ok := b.Best(book.Ask)
	require.True(t, ok)
	assert.Equal(t, 100.6, ask.Price)
	assert.Equal(t, 1.25, ask.Size)
}

func TestApplyEntryCountZeroRemoves(t *testing.T) {
	b := book.New()
	applyEntry(b, []float64{100.5, 2, 3.5})
	applyEntry(b, []float64{100.4, 1, 1.0})

	// count 0 with amount 1 removes from bids
	applyEntry(b, []float64{100.5, 0, 1})
	bid, ok := b.Best(book.Bid)
	require.True(t, ok)
	assert.Equal(t, 100.4, bid.Price)

	// short entries are ignored
	applyEntry(b, []float64{100.4})
	assert.Equal(t, 1, b.Depth(book.Bid))
}
