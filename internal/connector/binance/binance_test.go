package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVenueSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", venueSymbol("BTC/USDT"))
	assert.Equal(t, "ETHUSDC", venueSymbol("eth/usdc"))
}

func TestQuoteFromTop(t *testing.T) {
	q, ok := quoteFromTop([]string{"100.50", "2"}, []string{"100.60", "1.5"})
	require.True(t, ok)
	assert.Equal(t, 100.5, q.Bid)
	assert.Equal(t, 2.0, q.BidSize)
	assert.Equal(t, 100.6, q.Ask)
	assert.Equal(t, 1.5, q.AskSize)
	assert.Equal(t, "100.50", q.BidStr)
	assert.Equal(t, "100.60", q.AskStr)
	assert.True(t, q.HasBid)
	assert.True(t, q.HasAsk)
	assert.Positive(t, q.TsMs)
}

func TestQuoteFromTopRejectsBadLevels(t *testing.T) {
	_, ok := quoteFromTop([]string{"100.50"}, []string{"100.60", "1"})
	assert.False(t, ok, "short bid level")

	_, ok = quoteFromTop([]string{"x", "2"}, []string{"100.60", "1"})
	assert.False(t, ok, "unparsable bid price")
}
