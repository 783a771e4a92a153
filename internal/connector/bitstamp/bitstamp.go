// Package bitstamp streams spot top-of-book from Bitstamp. Each symbol is
// subscribed on both the full order_book channel and its _diff variant, so
// a periodic snapshot keeps the locally maintained book honest.
package bitstamp

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
	name        = "bitstamp"
	restBaseURL = "https://www.bitstamp.net"
	wsURL       = "wss://ws.bitstamp.net"

	subBatch      = 50
	channelPrefix = "order_book_"
	diffSuffix    = "_diff"
)

type tradingPair struct {
	URLSymbol string `json:"url_symbol"`
	Trading   string `json:"trading"`
}

type wsFrame struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Data    struct {
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
	return strings.ToLower(strings.ReplaceAll(pair, "/", ""))
}

// Discover filters desired pairs against trading-pairs-info by url_symbol.
func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var pairs []tradingPair
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&pairs).
		Get(restBaseURL + "/api/v2/trading-pairs-info/")
	if err != nil {
		return nil, fmt.Errorf("trading pairs: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("trading pairs: status %s", resp.Status())
	}

	listed := make(map[string]struct{}, len(pairs))
	for _, tp := range pairs {
		if tp.Trading != "" && !strings.EqualFold(tp.Trading, "Enabled") {
			continue
		}
		sym := strings.ToLower(strings.TrimSpace(tp.URLSymbol))
		if sym != "" {
			listed[sym] = struct{}{}
		}
	}

	var supported []string
	for _, p := range desired {
		if _, ok := listed[venueSymbol(p)]; ok {
			supported = append(supported, p)
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
	for _, p := range batch {
		sym := venueSymbol(p)
		books[p] = book.New()
		symToPair[sym] = p
		for _, ch := range []string{channelPrefix + sym, channelPrefix + sym + diffSuffix} {
			sub := map[string]any{
				"event": "bts:subscribe",
				"data":  map[string]string{"channel": ch},
			}
			if err := conn.WriteJSON(sub); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
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
		switch frame.Event {
		case "bts:subscription_succeeded", "bts:heartbeat":
			continue
		case "bts:request_reconnect":
			return fmt.Errorf("server requested reconnect")
		case "bts:error", "error":
			log.Warn().Str("venue", name).RawJSON("frame", raw).Msg("venue error frame")
			continue
		case "data":
		default:
			continue
		}

		ch := strings.ToLower(frame.Channel)
		if !strings.HasPrefix(ch, channelPrefix) {
			continue
		}
		isDiff := strings.HasSuffix(ch, diffSuffix)
		sym := strings.TrimSuffix(strings.TrimPrefix(ch, channelPrefix), diffSuffix)
		pair, ok := symToPair[sym]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}

		b := books[pair]
		if !isDiff {
			b.Reset()
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
