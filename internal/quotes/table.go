// Package quotes holds the process-wide top-of-book table. Connectors are
// the only writers, each owning its (venue, pair) keys; the engine and any
// snapshot consumer read through materialized copies.
package quotes

import (
	"sync"

	"arbscan/internal/connector"
)

// Table maps venue -> pair -> Quote. Writes are whole-record replacements;
// the last write wins. Quotes are never garbage-collected: a silent venue
// only ages its existing entries.
type Table struct {
	mu        sync.RWMutex
	quotes    map[string]map[string]connector.Quote
	supported map[string]map[string]struct{}
}

func NewTable() *Table {
	return &Table{
		quotes:    make(map[string]map[string]connector.Quote),
		supported: make(map[string]map[string]struct{}),
	}
}

// Put replaces the quote for (venue, pair).
func (t *Table) Put(venue, pair string, q connector.Quote) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byPair, ok := t.quotes[venue]
	if !ok {
		byPair = make(map[string]connector.Quote)
		t.quotes[venue] = byPair
	}
	byPair[pair] = q
}

// Get returns the stored quote for (venue, pair).
func (t *Table) Get(venue, pair string) (connector.Quote, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.quotes[venue][pair]
	return q, ok
}

// SetSupported records the venue's accepted pair set after discovery and
// seeds empty quote slots so the pairs show up as stale until first data.
func (t *Table) SetSupported(venue string, pairs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := make(map[string]struct{}, len(pairs))
	byPair, ok := t.quotes[venue]
	if !ok {
		byPair = make(map[string]connector.Quote)
		t.quotes[venue] = byPair
	}
	kept := make(map[string]connector.Quote, len(pairs))
	for _, p := range pairs {
		set[p] = struct{}{}
		kept[p] = byPair[p]
	}
	t.quotes[venue] = kept
	t.supported[venue] = set
}

// Supported returns the venue's accepted pair set.
func (t *Table) Supported(venue string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.supported[venue]))
	for p := range t.supported[venue] {
		out = append(out, p)
	}
	return out
}

// Venues lists venues with a recorded supported set.
func (t *Table) Venues() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.quotes))
	for v := range t.quotes {
		out = append(out, v)
	}
	return out
}

// Snapshot materializes a copy of the whole table for one scan pass.
// Each quote is a point-in-time value; there is no cross-key consistency
// guarantee and none is needed by the engine.
func (t *Table) Snapshot() map[string]map[string]connector.Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]map[string]connector.Quote, len(t.quotes))
	for venue, byPair := range t.quotes {
		cp := make(map[string]connector.Quote, len(byPair))
		for pair, q := range byPair {
			cp[pair] = q
		}
		out[venue] = cp
	}
	return out
}
