package engine

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/connector"
	"arbscan/internal/quotes"
)

func testConfig() Config {
	return Config{
		ThreshEnterPct: 0.40,
		ThreshExitPct:  0.30,
		MaxProfitPct:   10,
		LongSecs:       60,
		StaleSecs:      600,
		MaxDecimals:    12,
	}
}

func quote(bid, bidSz, ask, askSz float64, tsMs int64) connector.Quote {
	return connector.Quote{
		Bid: bid, Ask: ask,
		BidSize: bidSz, AskSize: askSz,
		BidStr: strconv.FormatFloat(bid, 'f', -1, 64),
		AskStr: strconv.FormatFloat(ask, 'f', -1, 64),
		TsMs:   tsMs,
		HasBid: true, HasAsk: true,
	}
}

func TestBelowEnterNoOpportunity(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	table.Put("a", "X/Y", quote(99.90, 1, 100.00, 1, now))
	table.Put("b", "X/Y", quote(100.30, 2, 100.40, 1, now))

	ops := e.ComputeAt(now)
	assert.Empty(t, ops)
}

func TestEnterAndRemain(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	table.Put("a", "X/Y", quote(99.90, 1, 100.00, 1, now))
	table.Put("b", "X/Y", quote(100.50, 2, 100.60, 1, now))

	ops := e.ComputeAt(now)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, "X/Y", op.Pair)
	assert.Equal(t, "a", op.BuyVenue)
	assert.Equal(t, "b", op.SellVenue)
	assert.InDelta(t, 0.50, op.ProfitPct, 1e-9)
	assert.Equal(t, 1.0, op.ExecQty)
	assert.Equal(t, 1.0, op.BuyQty)
	assert.Equal(t, 2.0, op.SellQty)
	assert.False(t, op.Long)

	// drop between exit and enter: window persists
	table.Put("b", "X/Y", quote(100.35, 2, 100.45, 1, now))
	ops = e.ComputeAt(now)
	require.Len(t, ops, 1)
	assert.InDelta(t, 0.35, ops[0].ProfitPct, 1e-9)
}

func TestExitAndNoReentryBetweenThresholds(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	table.Put("a", "X/Y", quote(99.90, 1, 100.00, 1, now))
	table.Put("b", "X/Y", quote(100.50, 2, 100.60, 1, now))
	require.Len(t, e.ComputeAt(now), 1)

	// below exit: window closes
	table.Put("b", "X/Y", quote(100.20, 2, 100.30, 1, now))
	assert.Empty(t, e.ComputeAt(now))

	// back between exit and enter: still closed
	table.Put("b", "X/Y", quote(100.35, 2, 100.45, 1, now))
	assert.Empty(t, e.ComputeAt(now))
}

func TestLongPromotion(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())

	table.Put("a", "X/Y", quote(99.90, 1, 100.00, 1, 0))
	table.Put("b", "X/Y", quote(100.50, 2, 100.60, 1, 0))

	ops := e.ComputeAt(0)
	require.Len(t, ops, 1)
	assert.False(t, ops[0].Long)

	ops = e.ComputeAt(59_900)
	require.Len(t, ops, 1)
	assert.False(t, ops[0].Long)

	ops = e.ComputeAt(60_100)
	require.Len(t, ops, 1)
	assert.True(t, ops[0].Long)
}

func TestSanityCapFiltersBeforeHysteresis(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	// 100% profit, far above the 10% cap
	table.Put("a", "X/Y", quote(0.9, 1, 1.0, 1, now))
	table.Put("b", "X/Y", quote(2.0, 1, 2.1, 1, now))
	assert.Empty(t, e.ComputeAt(now))

	// a sane profit between exit and enter must NOT be in-window: the capped
	// observation above never opened the window
	table.Put("b", "X/Y", quote(1.0035, 1, 1.01, 1, now))
	assert.Empty(t, e.ComputeAt(now))
}

func TestOrderingByProfitDesc(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	table.Put("a", "X/Y", quote(99.0, 1, 100.00, 1, now))
	table.Put("b", "X/Y", quote(100.50, 2, 100.60, 1, now))
	table.Put("a", "Z/Y", quote(99.0, 1, 100.00, 1, now))
	table.Put("b", "Z/Y", quote(101.00, 2, 101.10, 1, now))

	ops := e.ComputeAt(now)
	require.Len(t, ops, 2)
	assert.Equal(t, "Z/Y", ops[0].Pair)
	assert.Equal(t, "X/Y", ops[1].Pair)
	assert.GreaterOrEqual(t, ops[0].ProfitPct, ops[1].ProfitPct)
}

func TestMissingSidesExcluded(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	bidOnly := connector.Quote{Bid: 100.50, BidSize: 2, HasBid: true, TsMs: now}
	table.Put("a", "X/Y", quote(99.90, 1, 100.00, 1, now))
	table.Put("b", "X/Y", bidOnly)

	assert.Empty(t, e.ComputeAt(now))
}

func TestZeroSizeSidesExcluded(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	table.Put("a", "X/Y", quote(99.90, 1, 100.00, 0, now))
	table.Put("b", "X/Y", quote(100.50, 2, 100.60, 1, now))
	assert.Empty(t, e.ComputeAt(now), "zero ask size on the buy side")

	table.Put("a", "X/Y", quote(99.90, 1, 100.00, 1, now))
	table.Put("b", "X/Y", quote(100.50, 0, 100.60, 1, now))
	assert.Empty(t, e.ComputeAt(now), "zero bid size on the sell side")
}

func TestPriceTextCarriesVenuePrecision(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	buy := connector.Quote{
		Bid: 99.90, Ask: 100.00, BidSize: 1, AskSize: 1,
		BidStr: "99.900", AskStr: "100.0000000",
		TsMs: now, HasBid: true, HasAsk: true,
	}
	sell := connector.Quote{
		Bid: 100.50, Ask: 100.60, BidSize: 2, AskSize: 1,
		BidStr: "100.50", AskStr: "100.60",
		TsMs: now, HasBid: true, HasAsk: true,
	}
	table.Put("a", "X/Y", buy)
	table.Put("b", "X/Y", sell)

	ops := e.ComputeAt(now)
	require.Len(t, ops, 1)
	assert.Equal(t, "100", ops[0].BuyPriceText)
	assert.Equal(t, "100.5", ops[0].SellPriceText)
}

func TestAgeSec(t *testing.T) {
	assert.True(t, math.IsInf(AgeSec(0, 1000), 1))
	assert.True(t, math.IsInf(AgeSec(-5, 1000), 1))
	assert.Equal(t, 1.5, AgeSec(1000, 2500))
	assert.Equal(t, 0.0, AgeSec(3000, 2500), "clock skew clamps to zero")
}

func TestListStale(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(10_000_000)

	fresh := quote(100, 1, 101, 1, now-1000)
	old := quote(100, 1, 101, 1, now-700_000)
	older := quote(100, 1, 101, 1, now-900_000)
	never := connector.Quote{}

	table.Put("a", "X/Y", fresh)
	table.Put("a", "Z/Y", old)
	table.Put("b", "X/Y", older)
	table.Put("b", "W/Y", never)

	stale := e.ListStaleAt(now)
	require.Len(t, stale, 3)

	// never-updated quote is infinitely old and sorts first
	assert.Equal(t, "b", stale[0].Venue)
	assert.Equal(t, "W/Y", stale[0].Pair)
	assert.True(t, math.IsInf(stale[0].AgeSec, 1))

	assert.Equal(t, "b", stale[1].Venue)
	assert.Equal(t, "X/Y", stale[1].Pair)
	assert.Equal(t, "a", stale[2].Venue)
	assert.Equal(t, "Z/Y", stale[2].Pair)
}

func TestSymmetricKeysBothInWindow(t *testing.T) {
	table := quotes.NewTable()
	e := New(table, testConfig())
	now := int64(1_000_000)

	// both books inverted against each other: both directions profitable
	table.Put("a", "X/Y", quote(101.0, 1, 100.0, 1, now))
	table.Put("b", "X/Y", quote(100.6, 1, 100.1, 1, now))

	ops := e.ComputeAt(now)
	require.Len(t, ops, 2)
	keys := map[[2]string]bool{}
	for _, op := range ops {
		keys[[2]string{op.BuyVenue, op.SellVenue}] = true
	}
	assert.True(t, keys[[2]string{"a", "b"}])
	assert.True(t, keys[[2]string{"b", "a"}])
}
