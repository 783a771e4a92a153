// Package binance streams spot top-of-book from Binance. Partial depth
// streams deliver a fresh 5-level snapshot on every message, so no local
// book is maintained; bids[0]/asks[0] are taken as-is.
package binance

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
	name        = "binance"
	restBaseURL = "https://api.binance.com"
	wsBaseURL   = "wss://stream.binance.com:9443"

	subBatch      = 60
	depthLevels   = 5
	depthInterval = "100ms"
)

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

type streamFrame struct {
	Stream string `json:"stream"`
	Data   struct {
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

// Discover filters desired pairs against /api/v3/exchangeInfo.
func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var info exchangeInfoResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&info).
		Get(restBaseURL + "/api/v3/exchangeInfo")
	if err != nil {
		return nil, fmt.Errorf("exchangeInfo: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("exchangeInfo: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	var supported []string
	for _, sym := range info.Symbols {
		if sym.Status != "TRADING" {
			continue
		}
		pair := strings.ToUpper(sym.BaseAsset) + "/" + strings.ToUpper(sym.QuoteAsset)
		if _, ok := want[pair]; ok {
			supported = append(supported, pair)
		}
	}
	return supported, nil
}

// Run maintains one combined-stream socket per batch until ctx is done.
func (c *Connector) Run(ctx context.Context, pairs []string) {
	connector.RunBatches(ctx, name, pairs, subBatch, c.session)
}

func (c *Connector) session(ctx context.Context, batch []string) error {
	symToPair := make(map[string]string, len(batch))
	streams := make([]string, 0, len(batch))
	for _, p := range batch {
		sym := venueSymbol(p)
		symToPair[sym] = p
		streams = append(streams,
			fmt.Sprintf("%s@depth%d@%s", strings.ToLower(sym), depthLevels, depthInterval))
	}

	url := fmt.Sprintf("%s/stream?streams=%s", wsBaseURL, strings.Join(streams, "/"))
	conn, stop, err := connector.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer stop()

	log.Debug().Str("venue", name).Int("pairs", len(batch)).Msg("subscribed")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var frame streamFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			metrics.RecordDrop(name)
			continue
		}
		sym := strings.ToUpper(strings.SplitN(frame.Stream, "@", 2)[0])
		pair, ok := symToPair[sym]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}
		if len(frame.Data.Bids) == 0 || len(frame.Data.Asks) == 0 {
			continue
		}

		q, ok := quoteFromTop(frame.Data.Bids[0], frame.Data.Asks[0])
		if !ok {
			continue
		}
		metrics.RecordQuote(name)
		c.sink(pair, q)
	}
}

func quoteFromTop(bid, ask []string) (connector.Quote, bool) {
	if len(bid) < 2 || len(ask) < 2 {
		return connector.Quote{}, false
	}
	bidPx, err1 := strconv.ParseFloat(bid[0], 64)
	bidSz, err2 := strconv.ParseFloat(bid[1], 64)
	askPx, err3 := strconv.ParseFloat(ask[0], 64)
	askSz, err4 := strconv.ParseFloat(ask[1], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return connector.Quote{}, false
	}
	return connector.Quote{
		Bid: bidPx, Ask: askPx,
		BidSize: bidSz, AskSize: askSz,
		BidStr: bid[0], AskStr: ask[0],
		TsMs:   connector.NowMs(),
		HasBid: true, HasAsk: true,
	}, true
}
