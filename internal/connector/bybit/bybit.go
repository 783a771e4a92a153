// Package bybit streams spot top-of-book from Bybit. The orderbook.1 topic
// sends a snapshot per symbol and then deltas; the server's {"op":"ping"}
// probes are answered in kind. Bybit caps topics per socket, hence the
// small batch size.
package bybit

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
	name        = "bybit"
	restBaseURL = "https://api.bybit.com"
	wsURL       = "wss://stream.bybit.com/v5/public/spot"

	subBatch = 10
	depth    = 1
)

type instrumentsResponse struct {
	Result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BaseCoin  string `json:"baseCoin"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"list"`
	} `json:"result"`
}

type wsFrame struct {
	Op      string `json:"op"`
	Success *bool  `json:"success"`
	ReqID   string `json:"req_id"`
	RetCode *int   `json:"retCode"`
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Data    struct {
		Bids [][]string `json:"b"`
		Asks [][]string `json:"a"`
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

func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var instruments instrumentsResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("category", "spot").
		SetResult(&instruments).
		Get(restBaseURL + "/v5/market/instruments-info")
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("instruments: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	var supported []string
	for _, inst := range instruments.Result.List {
		if !strings.EqualFold(inst.Status, "Trading") {
			continue
		}
		pair := strings.ToUpper(inst.BaseCoin) + "/" + strings.ToUpper(inst.QuoteCoin)
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
	topics := make([]string, 0, len(batch))
	for _, p := range batch {
		sym := venueSymbol(p)
		books[p] = book.New()
		symToPair[sym] = p
		topics = append(topics, fmt.Sprintf("orderbook.%d.%s", depth, sym))
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": topics}); err != nil {
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
		if frame.Op == "ping" {
			_ = conn.WriteJSON(map[string]string{"op": "pong", "req_id": frame.ReqID})
			continue
		}
		if frame.Op == "subscribe" && frame.Success != nil && *frame.Success {
			continue
		}
		if frame.Op == "error" || (frame.RetCode != nil && *frame.RetCode != 0) {
			log.Warn().Str("venue", name).RawJSON("frame", raw).Msg("venue error frame")
			continue
		}
		if frame.Topic == "" || frame.Type == "" {
			continue
		}

		// topic form: orderbook.<depth>.<symbol>
		parts := strings.SplitN(frame.Topic, ".", 3)
		if len(parts) != 3 {
			continue
		}
		pair, ok := symToPair[parts[2]]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}

		b := books[pair]
		switch frame.Type {
		case "snapshot":
			b.Reset()
		case "delta":
		default:
			continue
		}
		applyLevels(b, book.Bid, frame.Data.Bids)
		applyLevels(b, book.Ask, frame.Data.Asks)

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
