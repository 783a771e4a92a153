// Package connector defines the venue connector contract and the shared
// session machinery (batching, dialing, reconnect) used by every venue
// implementation.
//
// Pairs crossing the connector boundary are always canonical "BASE/QUOTE"
// strings; venue-native encodings (BTC-USDT, btc_usdt, tBTCUST, ...) stay
// inside the venue packages.
package connector

import (
	"context"
	"time"
)

// Quote is the normalized top-of-book record for one (venue, pair).
// HasBid/HasAsk gate the price and size fields; BidStr/AskStr carry the
// venue's original decimal strings when it supplied strings, so display
// precision is never laundered through float64.
type Quote struct {
	Bid     float64
	Ask     float64
	BidSize float64
	AskSize float64
	BidStr  string
	AskStr  string
	TsMs    int64
	HasBid  bool
	HasAsk  bool
}

// Sink receives quote updates from a connector. The connector calls it
// inline from its read loop, so implementations must not block.
type Sink func(pair string, q Quote)

// Connector is the capability set every venue implements.
type Connector interface {
	// Name returns the venue identifier used in the quote table.
	Name() string

	// Discover filters desired canonical pairs down to those currently
	// tradable on the venue. It also caches any canonical -> venue symbol
	// mapping needed by Run. A failed discovery returns an error and an
	// empty set; the supervisor logs and carries on with other venues.
	Discover(ctx context.Context, desired []string) ([]string, error)

	// Run maintains websocket sessions for the given pairs until ctx is
	// cancelled. Quotes are delivered through the sink bound at
	// construction time.
	Run(ctx context.Context, pairs []string)
}

const (
	// ReconnectBackoff is the fixed sleep between websocket reconnect
	// attempts. There is no attempt cap and no circuit breaker.
	ReconnectBackoff = 3 * time.Second

	// DiscoverTimeout bounds the one-shot instruments call.
	DiscoverTimeout = 20 * time.Second
)

// NowMs returns wall-clock milliseconds. Quote.TsMs is always local receive
// time, never the venue timestamp.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// DesiredSet builds a membership set from the desired pair list.
func DesiredSet(desired []string) map[string]struct{} {
	set := make(map[string]struct{}, len(desired))
	for _, p := range desired {
		set[p] = struct{}{}
	}
	return set
}
