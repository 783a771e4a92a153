// Package book implements the per-pair order book a connector session
// maintains for venues that stream level data. Levels are keyed by the
// venue's original decimal price string, so two renderings of the same
// IEEE-754 value can never produce duplicate levels.
package book

import "strconv"

// Side selects bids or asks.
type Side int

const (
	Bid Side = iota
	Ask
)

// Level is one resting price level.
type Level struct {
	PriceStr string
	Price    float64
	Size     float64
}

// Book holds both sides for one pair. It is owned by a single session
// goroutine and is not safe for concurrent use.
type Book struct {
	bids map[string]Level
	asks map[string]Level
}

func New() *Book {
	return &Book{
		bids: make(map[string]Level),
		asks: make(map[string]Level),
	}
}

func (b *Book) side(s Side) map[string]Level {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// Apply inserts or replaces the level at priceStr. A size of zero removes
// the level. Unparsable prices are dropped.
func (b *Book) Apply(s Side, priceStr string, size float64) {
	levels := b.side(s)
	if size == 0 {
		delete(levels, priceStr)
		return
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return
	}
	levels[priceStr] = Level{PriceStr: priceStr, Price: price, Size: size}
}

// ApplyFloat is Apply for venues that deliver prices as JSON numbers. The
// key is the shortest round-trip rendering of the float.
func (b *Book) ApplyFloat(s Side, price, size float64) {
	key := strconv.FormatFloat(price, 'f', -1, 64)
	levels := b.side(s)
	if size == 0 {
		delete(levels, key)
		return
	}
	levels[key] = Level{PriceStr: key, Price: price, Size: size}
}

// Reset clears both sides. Used when a venue delivers a fresh snapshot.
func (b *Book) Reset() {
	b.bids = make(map[string]Level)
	b.asks = make(map[string]Level)
}

// Best returns the extremal level: highest price for bids, lowest for asks.
// ok is false when the side is empty.
func (b *Book) Best(s Side) (Level, bool) {
	levels := b.side(s)
	var best Level
	found := false
	for _, lvl := range levels {
		if !found {
			best = lvl
			found = true
			continue
		}
		if s == Bid && lvl.Price > best.Price {
			best = lvl
		} else if s == Ask && lvl.Price < best.Price {
			best = lvl
		}
	}
	return best, found
}

// Depth returns the number of levels on a side.
func (b *Book) Depth(s Side) int {
	return len(b.side(s))
}
