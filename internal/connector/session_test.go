package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/book"
)

func TestChunk(t *testing.T) {
	pairs := []string{"a", "b", "c", "d", "e"}

	batches := Chunk(pairs, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"c", "d"}, batches[1])
	assert.Equal(t, []string{"e"}, batches[2])

	assert.Len(t, Chunk(pairs, 10), 1)
	assert.Len(t, Chunk(pairs, 0), 1)
	assert.Empty(t, Chunk(nil, 5))
}

func TestDesiredSet(t *testing.T) {
	set := DesiredSet([]string{"BTC/USDT", "ETH/USDT", "BTC/USDT"})
	assert.Len(t, set, 2)
	_, ok := set["BTC/USDT"]
	assert.True(t, ok)
	_, ok = set["SOL/USDT"]
	assert.False(t, ok)
}

func TestTopOfBook(t *testing.T) {
	b := book.New()
	_, ok := TopOfBook(b)
	assert.False(t, ok, "empty book yields nothing")

	b.Apply(book.Bid, "100.50", 2)
	q, ok := TopOfBook(b)
	require.True(t, ok)
	assert.True(t, q.HasBid)
	assert.False(t, q.HasAsk)
	assert.Equal(t, 100.5, q.Bid)
	assert.Equal(t, "100.50", q.BidStr)
	assert.Positive(t, q.TsMs)

	b.Apply(book.Ask, "100.60", 1)
	q, ok = TopOfBook(b)
	require.True(t, ok)
	assert.True(t, q.HasAsk)
	assert.Equal(t, 100.6, q.Ask)
	assert.Equal(t, 1.0, q.AskSize)
}
