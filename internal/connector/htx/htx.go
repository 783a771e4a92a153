// Package htx streams spot top-of-book from HTX (Huobi). Frames arrive
// gzip-compressed and the server's {"ping": n} probes must be answered with
// {"pong": n}. depth.step0 delivers a full snapshot per message.
package htx

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"arbscan/internal/connector"
	"arbscan/internal/metrics"
)

const (
	name        = "htx"
	restBaseURL = "https://api.huobi.pro"
	wsURL       = "wss://api.huobi.pro/ws"

	subBatch = 61
)

type symbolsResponse struct {
	Data []struct {
		Base  string `json:"base-currency"`
		Quote string `json:"quote-currency"`
		State string `json:"state"`
	} `json:"data"`
}

type wsFrame struct {
	Ping   int64  `json:"ping"`
	Status string `json:"status"`
	Subbed string `json:"subbed"`
	Ch     string `json:"ch"`
	Tick   struct {
		Bids [][]json.Number `json:"bids"`
		Asks [][]json.Number `json:"asks"`
	} `json:"tick"`
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
	return strings.ToLower(strings.ReplaceAll(pair, "/", ""))
}

func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var symbols symbolsResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&symbols).
		Get(restBaseURL + "/v1/common/symbols")
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("symbols: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	var supported []string
	for _, s := range symbols.Data {
		if !strings.EqualFold(s.State, "online") {
			continue
		}
		pair := strings.ToUpper(s.Base) + "/" + strings.ToUpper(s.Quote)
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
		sub := map[string]string{
			"sub": fmt.Sprintf("market.%s.depth.step0", sym),
			"id":  "sub-" + sym,
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

		text, err := inflate(raw)
		if err != nil {
			metrics.RecordDrop(name)
			continue
		}

		var frame wsFrame
		if err := json.Unmarshal(text, &frame); err != nil {
			metrics.RecordDrop(name)
			continue
		}

		if frame.Ping != 0 {
			_ = conn.WriteJSON(map[string]int64{"pong": frame.Ping})
			continue
		}
		if frame.Status == "error" {
			log.Warn().Str("venue", name).RawJSON("frame", text).Msg("venue error frame")
			continue
		}
		if frame.Subbed != "" || frame.Ch == "" {
			continue
		}

		// channel form: market.<symbol>.depth.step0
		parts := strings.Split(frame.Ch, ".")
		if len(parts) < 2 {
			continue
		}
		pair, ok := symToPair[parts[1]]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}

		q := connector.Quote{TsMs: connector.NowMs()}
		if px, sz, str, ok := topLevel(frame.Tick.Bids); ok {
			q.HasBid, q.Bid, q.BidSize, q.BidStr = true, px, sz, str
		}
		if px, sz, str, ok := topLevel(frame.Tick.Asks); ok {
			q.HasAsk, q.Ask, q.AskSize, q.AskStr = true, px, sz, str
		}
		if !q.HasBid && !q.HasAsk {
			continue
		}
		metrics.RecordQuote(name)
		c.sink(pair, q)
	}
}

// inflate decompresses a gzip frame, passing plain-text frames through.
func inflate(raw []byte) ([]byte, error) {
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return raw, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

func topLevel(levels [][]json.Number) (px, sz float64, pxStr string, ok bool) {
	if len(levels) == 0 || len(levels[0]) < 2 {
		return 0, 0, "", false
	}
	px, err1 := strconv.ParseFloat(levels[0][0].String(), 64)
	sz, err2 := strconv.ParseFloat(levels[0][1].String(), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, "", false
	}
	return px, sz, levels[0][0].String(), true
}
