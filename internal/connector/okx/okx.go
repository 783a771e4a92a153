// Package okx streams spot top-of-book from OKX. books5 pushes a 5-level
// snapshot on every change; the newest element of the data array wins.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"arbscan/internal/connector"
	"arbscan/internal/metrics"
)

const (
	name        = "okx"
	restBaseURL = "https://www.okx.com"
	wsURL       = "wss://ws.okx.com:8443/ws/v5/public"

	subBatch = 75
)

type instrumentsResponse struct {
	Data []struct {
		InstID   string `json:"instId"`
		BaseCcy  string `json:"baseCcy"`
		QuoteCcy string `json:"quoteCcy"`
		State    string `json:"state"`
	} `json:"data"`
}

type wsFrame struct {
	Event string `json:"event"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
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
	return strings.ToUpper(strings.ReplaceAll(pair, "/", "-"))
}

func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var instruments instrumentsResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("instType", "SPOT").
		SetResult(&instruments).
		Get(restBaseURL + "/api/v5/public/instruments")
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("instruments: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	var supported []string
	for _, inst := range instruments.Data {
		if inst.State != "live" {
			continue
		}
		pair := strings.ToUpper(inst.BaseCcy) + "/" + strings.ToUpper(inst.QuoteCcy)
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
	args := make([]map[string]string, 0, len(batch))
	for _, p := range batch {
		sym := venueSymbol(p)
		symToPair[sym] = p
		args = append(args, map[string]string{"channel": "books5", "instId": sym})
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
		if frame.Event == "error" {
			log.Warn().Str("venue", name).RawJSON("frame", raw).Msg("venue error frame")
			continue
		}
		if frame.Event != "" || frame.Arg.Channel != "books5" || len(frame.Data) == 0 {
			continue
		}

		pair, ok := symToPair[frame.Arg.InstID]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}
		book := frame.Data[len(frame.Data)-1]

		q := connector.Quote{TsMs: connector.NowMs()}
		if px, sz, str, ok := topLevel(book.Bids); ok {
			q.HasBid, q.Bid, q.BidSize, q.BidStr = true, px, sz, str
		}
		if px, sz, str, ok := topLevel(book.Asks); ok {
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
