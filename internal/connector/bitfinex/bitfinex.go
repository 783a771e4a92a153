// Package bitfinex streams spot top-of-book from Bitfinex. Book entries
// arrive as [price, count, amount] triplets: the amount's sign selects the
// side, count 0 removes the level. Bitfinex spells USDT "UST" and USDC
// "UDC" in its symbols.
package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"arbscan/internal/book"
	"arbscan/internal/connector"
	"arbscan/internal/metrics"
)

const (
	name    = "bitfinex"
	confURL = "https://api-pub.bitfinex.com/v2/conf/pub:list:pair:exchange"
	wsURL   = "wss://api-pub.bitfinex.com/ws/2"

	subBatch = 35
	bookPrec = "P0"
	bookFreq = "F0"
	bookLen  = 25
)

// suffix match order matters: UST before USD.
var quoteCodes = []struct{ bfx, human string }{
	{"UST", "USDT"},
	{"UDC", "USDC"},
	{"USD", "USD"},
	{"EUR", "EUR"},
	{"BTC", "BTC"},
}

type subscribedEvent struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	ChanID  int64  `json:"chanId"`
	Msg     string `json:"msg"`
}

type Connector struct {
	sink connector.Sink
	rest *resty.Client

	mu           sync.RWMutex
	pairToSymbol map[string]string
}

func New(sink connector.Sink) *Connector {
	return &Connector{
		sink:         sink,
		rest:         connector.NewRESTClient(),
		pairToSymbol: make(map[string]string),
	}
}

func (c *Connector) Name() string { return name }

func humanFromCode(code string) (string, bool) {
	for _, qc := range quoteCodes {
		if strings.HasSuffix(code, qc.bfx) && len(code) > len(qc.bfx) {
			return code[:len(code)-len(qc.bfx)] + "/" + qc.human, true
		}
	}
	return "", false
}

func symbolFromPair(pair string) string {
	base, quote, _ := strings.Cut(pair, "/")
	for _, qc := range quoteCodes {
		if qc.human == strings.ToUpper(quote) {
			quote = qc.bfx
			break
		}
	}
	return "t" + strings.ToUpper(base) + strings.ToUpper(quote)
}

// Discover filters desired pairs against the exchange pair list and caches
// the canonical -> venue symbol map (ETH/USDT -> tETHUST).
func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var conf [][]string
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&conf).
		Get(confURL)
	if err != nil {
		return nil, fmt.Errorf("conf: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("conf: status %s", resp.Status())
	}
	if len(conf) == 0 {
		return nil, fmt.Errorf("conf: empty response")
	}

	want := connector.DesiredSet(desired)
	mapping := make(map[string]string)
	var supported []string
	for _, code := range conf[0] {
		pair, ok := humanFromCode(code)
		if !ok {
			continue
		}
		if _, ok := want[pair]; ok {
			supported = append(supported, pair)
			mapping[pair] = "t" + code
		}
	}

	c.mu.Lock()
	c.pairToSymbol = mapping
	c.mu.Unlock()
	return supported, nil
}

func (c *Connector) symbolFor(pair string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sym, ok := c.pairToSymbol[pair]; ok {
		return sym
	}
	return symbolFromPair(pair)
}

func (c *Connector) Run(ctx context.Context, pairs []string) {
	connector.RunBatches(ctx, name, pairs, subBatch, c.session)
}

func (c *Connector) session(ctx context.Context, batch []string) error {
	conn, stop, err := connector.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer stop()

	books := make(map[string]*book.Book, len(batch))
	symToPair := make(map[string]string, len(batch))
	for _, p := range batch {
		sym := c.symbolFor(p)
		books[p] = book.New()
		symToPair[sym] = p
		sub := map[string]any{
			"event":   "subscribe",
			"channel": "book",
			"symbol":  sym,
			"prec":    bookPrec,
			"freq":    bookFreq,
			"len":     bookLen,
		}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	chanToPair := make(map[int64]string)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		// Event frames are objects; data frames are [chanId, payload] arrays.
		if len(raw) > 0 && raw[0] == '{' {
			var ev subscribedEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				metrics.RecordDrop(name)
				continue
			}
			switch ev.Event {
			case "subscribed":
				if ev.Channel == "book" {
					if pair, ok := symToPair[ev.Symbol]; ok {
						chanToPair[ev.ChanID] = pair
					}
				}
			case "error":
				log.Warn().Str("venue", name).RawJSON("frame", raw).Msg("venue error frame")
			}
			continue
		}

		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil || len(parts) < 2 {
			metrics.RecordDrop(name)
			continue
		}
		var cid int64
		if err := json.Unmarshal(parts[0], &cid); err != nil {
			continue
		}
		pair, ok := chanToPair[cid]
		if !ok {
			continue
		}
		var hb string
		if json.Unmarshal(parts[1], &hb) == nil && hb == "hb" {
			continue
		}

		b := books[pair]
		var snapshot [][]float64
		if err := json.Unmarshal(parts[1], &snapshot); err == nil {
			b.Reset()
			for _, entry := range snapshot {
				applyEntry(b, entry)
			}
		} else {
			var entry []float64
			if err := json.Unmarshal(parts[1], &entry); err != nil {
				metrics.RecordDrop(name)
				continue
			}
			applyEntry(b, entry)
		}

		q, ok := connector.TopOfBook(b)
		if !ok {
			continue
		}
		metrics.RecordQuote(name)
		c.sink(pair, q)
	}
}

// applyEntry applies one [price, count, amount] level.
func applyEntry(b *book.Book, entry []float64) {
	if len(entry) < 3 {
		return
	}
	price, count, amount := entry[0], entry[1], entry[2]
	side := book.Ask
	if amount > 0 {
		side = book.Bid
	}
	if count == 0 {
		b.ApplyFloat(side, price, 0)
		return
	}
	b.ApplyFloat(side, price, math.Abs(amount))
}
