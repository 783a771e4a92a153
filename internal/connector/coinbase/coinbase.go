// Package coinbase streams spot top-of-book from Coinbase Exchange. The
// level2_batch channel sends one snapshot per product and then batched
// l2update deltas, so a local book is maintained per pair.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"arbscan/internal/book"
	"arbscan/internal/connector"
	"arbscan/internal/metrics"
)

const (
	name        = "coinbase"
	restBaseURL = "https://api.exchange.coinbase.com"
	wsURL       = "wss://ws-feed.exchange.coinbase.com"

	subBatch = 60
	channel  = "level2_batch"
)

type product struct {
	BaseCurrency    string `json:"base_currency"`
	QuoteCurrency   string `json:"quote_currency"`
	Status          string `json:"status"`
	TradingDisabled bool   `json:"trading_disabled"`
	CancelOnly      bool   `json:"cancel_only"`
	PostOnly        bool   `json:"post_only"`
}

type wsFrame struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	Changes   [][]string `json:"changes"`
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
	return strings.ToUpper(strings.ReplaceAll(pair, "/", "-"))
}

// Discover filters desired pairs against /products, keeping only products
// that are online and actually tradable.
func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var products []product
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&products).
		Get(restBaseURL + "/products")
	if err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("products: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	var supported []string
	for _, prod := range products {
		if !strings.EqualFold(prod.Status, "online") ||
			prod.TradingDisabled || prod.CancelOnly || prod.PostOnly {
			continue
		}
		pair := strings.ToUpper(prod.BaseCurrency) + "/" + strings.ToUpper(prod.QuoteCurrency)
		if _, ok := want[pair]; ok {
			supported = append(supported, pair)
		}
	}
	return supported, nil
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
	productIDs := make([]string, 0, len(batch))
	for _, p := range batch {
		sym := venueSymbol(p)
		books[p] = book.New()
		symToPair[sym] = p
		productIDs = append(productIDs, sym)
	}
	sub := map[string]any{
		"type": "subscribe",
		"channels": []map[string]any{
			{"name": channel, "product_ids": productIDs},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
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
		if frame.Type == "error" {
			log.Warn().Str("venue", name).RawJSON("frame", raw).Msg("venue error frame")
			continue
		}
		if frame.Type != "snapshot" && frame.Type != "l2update" {
			continue
		}
		pair, ok := symToPair[frame.ProductID]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}

		b := books[pair]
		switch frame.Type {
		case "snapshot":
			b.Reset()
			applyLevels(b, book.Bid, frame.Bids)
			applyLevels(b, book.Ask, frame.Asks)
		case "l2update":
			for _, ch := range frame.Changes {
				if len(ch) < 3 {
					continue
				}
				side := book.Ask
				if strings.EqualFold(ch[0], "buy") {
					side = book.Bid
				}
				sz, err := strconv.ParseFloat(ch[2], 64)
				if err != nil {
					continue
				}
				b.Apply(side, ch[1], sz)
			}
		}

		q, ok := connector.TopOfBook(b)
		if !ok {
			continue
		}
		metrics.RecordQuote(name)
		c.sink(pair, q)
	}
}

func applyLevels(b *book.Book, side book.Side, levels [][]string) {
	for _, lvl := range levels {
		if len(lvl) < 2 {
			continue
		}
		sz, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			continue
		}
		b.Apply(side, lvl[0], sz)
	}
}
