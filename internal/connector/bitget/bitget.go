// Package bitget streams spot top-of-book from Bitget. The books channel
// sends a snapshot per instrument followed by incremental updates, so a
// local book is maintained per pair.
package bitget

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
	name        = "bitget"
	restBaseURL = "https://api.bitget.com"
	wsURL       = "wss://ws.bitget.com/v2/ws/public"

	subBatch = 65
	channel  = "books"
)

type symbolsResponse struct {
	Data []struct {
		Symbol    string `json:"symbol"`
		BaseCoin  string `json:"baseCoin"`
		QuoteCoin string `json:"quoteCoin"`
		Status    string `json:"status"`
	} `json:"data"`
}

type wsFrame struct {
	Event  string `json:"event"`
	Code   string `json:"code"`
	Action string `json:"action"`
	Arg    struct {
		InstID string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
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
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

// Discover filters desired pairs against /api/v2/spot/public/symbols,
// keeping only instruments in the online state.
func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var symbols symbolsResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&symbols).
		Get(restBaseURL + "/api/v2/spot/public/symbols")
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("symbols: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	var supported []string
	for _, s := range symbols.Data {
		if !strings.EqualFold(s.Status, "online") {
			continue
		}
		pair := strings.ToUpper(s.BaseCoin) + "/" + strings.ToUpper(s.QuoteCoin)
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
	args := make([]map[string]string, 0, len(batch))
	for _, p := range batch {
		sym := venueSymbol(p)
		books[p] = book.New()
		symToPair[sym] = p
		args = append(args, map[string]string{
			"instType": "SPOT",
			"channel":  channel,
			"instId":   sym,
		})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
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
		if frame.Event == "subscribe" {
			continue
		}
		if frame.Event == "error" || (frame.Code != "" && frame.Code != "0" && frame.Code != "00000") {
			log.Warn().Str("venue", name).RawJSON("frame", raw).Msg("venue error frame")
			continue
		}
		if frame.Action == "" || len(frame.Data) == 0 {
			continue
		}
		pair, ok := symToPair[frame.Arg.InstID]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}

		b := books[pair]
		for _, item := range frame.Data {
			if frame.Action == "snapshot" {
				b.Reset()
			}
			applyLevels(b, book.Bid, item.Bids)
			applyLevels(b, book.Ask, item.Asks)
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
