// Package engine scans the quote table for cross-venue arbitrage. A scan
// compares every venue's best ask against every other venue's best bid for
// the same pair, runs each observation through the hysteresis state machine
// and returns the in-window opportunities ranked by profit.
package engine

import (
	"math"
	"sort"
	"sync"

	"arbscan/internal/connector"
	"arbscan/internal/numfmt"
	"arbscan/internal/quotes"
)

// Config holds the scan parameters. Thresholds arrive in percent (the way
// operators write them) and are converted to fractions internally so profit
// comparisons and hysteresis always share one representation.
type Config struct {
	ThreshEnterPct float64
	ThreshExitPct  float64
	MaxProfitPct   float64
	LongSecs       int
	StaleSecs      int
	MaxDecimals    int32
}

// Opportunity is one ranked scan result.
type Opportunity struct {
	Pair          string  `json:"pair"`
	BuyVenue      string  `json:"buy_venue"`
	SellVenue     string  `json:"sell_venue"`
	BuyPrice      float64 `json:"buy_price"`
	SellPrice     float64 `json:"sell_price"`
	BuyPriceText  string  `json:"buy_price_text"`
	SellPriceText string  `json:"sell_price_text"`
	ProfitPct     float64 `json:"profit_pct"`
	BuyQty        float64 `json:"buy_qty"`
	SellQty       float64 `json:"sell_qty"`
	ExecQty       float64 `json:"exec_qty"`
	BuyAgeSec     float64 `json:"buy_age_sec"`
	SellAgeSec    float64 `json:"sell_age_sec"`
	Long          bool    `json:"long"`
}

// StaleQuote is one row of the staleness report.
type StaleQuote struct {
	Venue  string
	Pair   string
	AgeSec float64
	Quote  connector.Quote
}

// Engine owns the hysteresis state and reads the quote table. Compute and
// ListStale may be called from any goroutine; state mutation is serialized.
type Engine struct {
	mu    sync.Mutex
	table *quotes.Table
	cfg   Config
	hyst  *hysteresis
}

func New(table *quotes.Table, cfg Config) *Engine {
	return &Engine{
		table: table,
		cfg:   cfg,
		hyst:  newHysteresis(cfg.ThreshEnterPct/100, cfg.ThreshExitPct/100),
	}
}

// AgeSec converts a quote timestamp to an age in seconds at nowMs. A quote
// that never updated (ts 0) is infinitely old.
func AgeSec(tsMs, nowMs int64) float64 {
	if tsMs <= 0 {
		return math.Inf(1)
	}
	age := float64(nowMs-tsMs) / 1000
	if age < 0 {
		return 0
	}
	return age
}

// Compute runs one scan pass at the current time.
func (e *Engine) Compute() []Opportunity {
	return e.ComputeAt(connector.NowMs())
}

// ComputeAt runs one scan pass against a fresh table snapshot. Observations
// above the sanity cap are discarded before the hysteresis transition, so
// bad quotes never open a window.
func (e *Engine) ComputeAt(nowMs int64) []Opportunity {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.table.Snapshot()

	pairsAll := make(map[string]struct{})
	for _, byPair := range snap {
		for p := range byPair {
			pairsAll[p] = struct{}{}
		}
	}

	type venueQuote struct {
		venue string
		q     connector.Quote
	}

	var ops []Opportunity
	for pair := range pairsAll {
		var avail []venueQuote
		for venue, byPair := range snap {
			q, ok := byPair[pair]
			if !ok || !q.HasBid || !q.HasAsk {
				continue
			}
			avail = append(avail, venueQuote{venue, q})
		}
		if len(avail) < 2 {
			continue
		}

		for _, buy := range avail {
			if buy.q.AskSize <= 0 {
				continue
			}
			for _, sell := range avail {
				if sell.venue == buy.venue || sell.q.BidSize <= 0 {
					continue
				}
				profitFrac := (sell.q.Bid - buy.q.Ask) / buy.q.Ask
				profitPct := profitFrac * 100
				if profitPct > e.cfg.MaxProfitPct {
					continue
				}

				key := Key{Pair: pair, BuyVenue: buy.venue, SellVenue: sell.venue}
				if !e.hyst.observe(key, profitFrac, nowMs) {
					continue
				}

				execQty := math.Min(buy.q.AskSize, sell.q.BidSize)
				ops = append(ops, Opportunity{
					Pair:          pair,
					BuyVenue:      buy.venue,
					SellVenue:     sell.venue,
					BuyPrice:      buy.q.Ask,
					SellPrice:     sell.q.Bid,
					BuyPriceText:  numfmt.FormatN(buy.q.AskStr, buy.q.Ask, e.cfg.MaxDecimals),
					SellPriceText: numfmt.FormatN(sell.q.BidStr, sell.q.Bid, e.cfg.MaxDecimals),
					ProfitPct:     profitPct,
					BuyQty:        buy.q.AskSize,
					SellQty:       sell.q.BidSize,
					ExecQty:       execQty,
					BuyAgeSec:     AgeSec(buy.q.TsMs, nowMs),
					SellAgeSec:    AgeSec(sell.q.TsMs, nowMs),
					Long:          e.hyst.isLong(key, nowMs, int64(e.cfg.LongSecs)*1000),
				})
			}
		}
	}

	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].ProfitPct > ops[j].ProfitPct
	})
	return ops
}

// ListStale reports quotes whose age meets or exceeds the stale threshold,
// oldest first, ties broken by venue then pair.
func (e *Engine) ListStale() []StaleQuote {
	return e.ListStaleAt(connector.NowMs())
}

func (e *Engine) ListStaleAt(nowMs int64) []StaleQuote {
	snap := e.table.Snapshot()

	var stale []StaleQuote
	for venue, byPair := range snap {
		for pair, q := range byPair {
			age := AgeSec(q.TsMs, nowMs)
			if age >= float64(e.cfg.StaleSecs) {
				stale = append(stale, StaleQuote{Venue: venue, Pair: pair, AgeSec: age, Quote: q})
			}
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].AgeSec != stale[j].AgeSec {
			return stale[i].AgeSec > stale[j].AgeSec
		}
		if stale[i].Venue != stale[j].Venue {
			return stale[i].Venue < stale[j].Venue
		}
		return stale[i].Pair < stale[j].Pair
	})
	return stale
}
