// Package lbank streams spot top-of-book from LBank. Every depth push is a
// full snapshot, and the server's {"action":"ping"} probes are answered
// with the echoed ping id. Discovery tolerates the several shapes the
// currencyPairs endpoint has been seen to return.
package lbank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"arbscan/internal/book"
	"arbscan/internal/connector"
	"arbscan/internal/metrics"
)

const (
	name  = "lbank"
	wsURL = "wss://www.lbkex.net/ws/V2/"

	subBatch   = 35
	depthLevel = "1"
)

var discoveryEndpoints = []string{
	"https://api.lbkex.com/v2/currencyPairs.do",
	"https://api.lbkex.net/v2/currencyPairs.do",
	"https://www.lbkex.net/v2/currencyPairs.do",
}

type wsFrame struct {
	Action string `json:"action"`
	Ping   string `json:"ping"`
	Type   string `json:"type"`
	Pair   string `json:"pair"`
	Depth  struct {
		Bids [][]json.Number `json:"bids"`
		Asks [][]json.Number `json:"asks"`
	} `json:"depth"`
}

type Connector struct {
	sink connector.Sink
	rest *resty.Client
}

func New(sink connector.Sink) *Connector {
	return &Connector{sink: sink, rest: connector.NewRESTClient()}
}

func (c *Connector) Name() string { return name }

func venueSymbol(pair string) string {
	return strings.ToLower(strings.ReplaceAll(pair, "/", "_"))
}

// Discover tries the known currencyPairs endpoints in order and filters
// desired pairs against the first one that yields symbols.
func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var listed map[string]struct{}
	var lastErr error
	for _, url := range discoveryEndpoints {
		resp, err := c.rest.R().SetContext(ctx).Get(url)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("status %s", resp.Status())
			continue
		}
		if syms := extractSymbols(resp.Body()); len(syms) > 0 {
			listed = syms
			break
		}
	}
	if listed == nil {
		return nil, fmt.Errorf("currency pairs: %w", lastErr)
	}

	var supported []string
	for _, p := range desired {
		if _, ok := listed[venueSymbol(p)]; ok {
			supported = append(supported, p)
		}
	}
	return supported, nil
}

// extractSymbols accepts the payload shapes the endpoint returns:
// a bare symbol array, {"data": [...]} with strings or objects, or a
// comma-separated string.
func extractSymbols(raw []byte) map[string]struct{} {
	out := make(map[string]struct{})

	add := func(sym string) {
		sym = strings.ToLower(strings.TrimSpace(sym))
		if sym != "" {
			out[sym] = struct{}{}
		}
	}
	addList := func(items []json.RawMessage) {
		for _, item := range items {
			var s string
			if json.Unmarshal(item, &s) == nil {
				add(s)
				continue
			}
			var obj struct {
				Symbol string `json:"symbol"`
				Pair   string `json:"pair"`
			}
			if json.Unmarshal(item, &obj) == nil {
				if obj.Symbol != "" {
					add(obj.Symbol)
				} else {
					add(obj.Pair)
				}
			}
		}
	}

	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		addList(list)
		return out
	}
	var wrapped struct {
		Data []json.RawMessage `json:"data"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && len(wrapped.Data) > 0 {
		addList(wrapped.Data)
		return out
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		for _, s := range strings.Split(text, ",") {
			add(s)
		}
	}
	return out
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
		sym := venueSymbol(p)
		books[p] = book.New()
		symToPair[sym] = p
		sub := map[string]string{
			"action":    "subscribe",
			"subscribe": "depth",
			"depth":     depthLevel,
			"pair":      sym,
		}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			metrics.RecordDrop(name)
			continue
		}
		if frame.Action == "ping" {
			_ = conn.WriteJSON(map[string]string{"action": "pong", "pong": frame.Ping})
			continue
		}
		if frame.Type != "depth" {
			continue
		}
		pair, ok := symToPair[frame.Pair]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}

		// full snapshot each push
		b := books[pair]
		b.Reset()
		applyLevels(b, book.Bid, frame.Depth.Bids)
		applyLevels(b, book.Ask, frame.Depth.Asks)

		q, ok := connector.TopOfBook(b)
		if !ok {
			continue
		}
		metrics.RecordQuote(name)
		c.sink(pair, q)
	}
}

func applyLevels(b *book.Book, side book.Side, levels [][]json.Number) {
	for _, lvl := range levels {
		if len(lvl) < 2 {
			continue
		}
		sz, err := lvl[1].Float64()
		if err != nil {
			continue
		}
		b.Apply(side, lvl[0].String(), sz)
	}
}
