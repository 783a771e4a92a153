// Package gate streams spot top-of-book from Gate.io. The spot.order_book
// channel pushes a full limited-depth snapshot at a fixed interval.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"arbscan/internal/connector"
	"arbscan/internal/metrics"
)

const (
	name        = "gate"
	restBaseURL = "https://api.gateio.ws"
	wsURL       = "wss://api.gateio.ws/ws/v4/"

	subBatch      = 60
	depthLevels   = "5"
	depthInterval = "100ms"
)

type currencyPair struct {
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	TradeStatus string `json:"trade_status"`
}

type wsFrame struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Result struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"bids"`
		Asks   [][]string `json:"asks"`
	} `json:"result"`
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
	return strings.ToUpper(strings.ReplaceAll(pair, "/", "_"))
}

func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var pairs []currencyPair
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&pairs).
		Get(restBaseURL + "/api/v4/spot/currency_pairs")
	if err != nil {
		return nil, fmt.Errorf("currency_pairs: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("currency_pairs: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	var supported []string
	for _, cp := range pairs {
		if cp.TradeStatus != "tradable" {
			continue
		}
		pair := strings.ToUpper(cp.Base) + "/" + strings.ToUpper(cp.Quote)
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

	symToPair := make(map[string]string, len(batch))
	for _, p := range batch {
		sym := venueSymbol(p)
		symToPair[sym] = p
		sub := map[string]any{
			"time":    time.Now().Unix(),
			"channel": "spot.order_book",
			"event":   "subscribe",
			"payload": []string{sym, depthLevels, depthInterval},
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
		if frame.Error != nil {
			log.Warn().Str("venue", name).RawJSON("frame", raw).Msg("venue error frame")
			continue
		}
		if frame.Channel != "spot.order_book" || frame.Event != "update" {
			continue
		}

		pair, ok := symToPair[frame.Result.Symbol]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}

		q := connector.Quote{TsMs: connector.NowMs()}
		if px, sz, str, ok := topLevel(frame.Result.Bids); ok {
			q.HasBid, q.Bid, q.BidSize, q.BidStr = true, px, sz, str
		}
		if px, sz, str, ok := topLevel(frame.Result.Asks); ok {
			q.HasAsk, q.Ask, q.AskSize, q.AskStr = true, px, sz, str
		}
		if !q.HasBid && !q.HasAsk {
			continue
		}
		metrics.RecordQuote(name)
		c.sink(pair, q)
	}
}

func topLevel(levels [][]string) (px, sz float64, pxStr string, ok bool) {
	if len(levels) == 0 || len(levels[0]) < 2 {
		return 0, 0, "", false
	}
	px, err1 := strconv.ParseFloat(levels[0][0], 64)
	sz, err2 := strconv.ParseFloat(levels[0][1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, "", false
	}
	return px, sz, levels[0][0], true
}
