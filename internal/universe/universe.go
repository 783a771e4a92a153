// Package universe selects the base symbols to scan. The raw coin list is
// a CoinPaprika /v1/coins dump kept on disk; selection is by market-cap
// rank with optional force-included extras.
package universe

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Coin is one entry of the raw universe file. Only the fields selection
// needs are decoded.
type Coin struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Rank     int    `json:"rank"`
	IsActive bool   `json:"is_active"`
}

// Load reads the universe file and returns the base symbols within the
// inclusive rank range, plus any extras present in the file regardless of
// rank. Inactive coins and entries without a symbol or rank are skipped.
func Load(path string, rankLo, rankHi int, extras []string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	var coins []Coin
	if err := json.Unmarshal(raw, &coins); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}

	if rankLo > rankHi {
		rankLo, rankHi = rankHi, rankLo
	}
	extraSet := make(map[string]struct{}, len(extras))
	for _, s := range extras {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			extraSet[s] = struct{}{}
		}
	}

	symbols := make(map[string]struct{})
	for _, c := range coins {
		sym := strings.ToUpper(strings.TrimSpace(c.Symbol))
		if sym == "" || !c.IsActive || c.Rank == 0 {
			continue
		}
		if c.Rank >= rankLo && c.Rank <= rankHi {
			symbols[sym] = struct{}{}
			continue
		}
		if _, ok := extraSet[sym]; ok {
			symbols[sym] = struct{}{}
		}
	}

	out := make([]string, 0, len(symbols))
	for s := range symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// MakePairs crosses base symbols with quote currencies, skipping identity
// pairs and duplicates. Order follows the bases slice.
func MakePairs(bases, quotes []string) []string {
	seen := make(map[string]struct{}, len(bases)*len(quotes))
	var out []string
	for _, b := range bases {
		for _, q := range quotes {
			if b == q {
				continue
			}
			p := b + "/" + q
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Key canonicalizes a pair list for change detection.
func Key(pairs []string) string {
	sorted := make([]string, len(pairs))
	copy(sorted, pairs)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
