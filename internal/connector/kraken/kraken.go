// Package kraken streams spot top-of-book from Kraken. The book channel
// sends one snapshot and then deltas, so a local book is maintained per
// pair. Data frames are arrays routed by the channel id announced in the
// subscriptionStatus event. Kraken calls BTC "XBT" in wsnames.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"arbscan/internal/book"
	"arbscan/internal/connector"
	"arbscan/internal/metrics"
)

const (
	name        = "kraken"
	restBaseURL = "https://api.kraken.com"
	wsURL       = "wss://ws.kraken.com/"

	subBatch  = 60
	bookDepth = 10
)

var wsToHuman = map[string]string{"XBT": "BTC"}
var humanToWS = map[string]string{"BTC": "XBT"}

type assetPairsResponse struct {
	Result map[string]struct {
		WSName string `json:"wsname"`
	} `json:"result"`
}

type statusEvent struct {
	Event       string `json:"event"`
	Status      string `json:"status"`
	ChannelName string `json:"channelName"`
	ChannelID   *int64 `json:"channelID"`
	Pair        string `json:"pair"`
}

type bookPayload struct {
	SnapshotBids [][]string `json:"bs"`
	SnapshotAsks [][]string `json:"as"`
	Bids         [][]string `json:"b"`
	Asks         [][]string `json:"a"`
}

type Connector struct {
	sink connector.Sink
	rest *resty.Client

	mu           sync.RWMutex
	pairToWSName map[string]string
}

func New(sink connector.Sink) *Connector {
	return &Connector{
		sink:         sink,
		rest:         connector.NewRESTClient(),
		pairToWSName: make(map[string]string),
	}
}

func (c *Connector) Name() string { return name }

func wsnameToHuman(wsname string) string {
	base, quote, ok := strings.Cut(wsname, "/")
	if !ok {
		return wsname
	}
	if h, ok := wsToHuman[base]; ok {
		base = h
	}
	if h, ok := wsToHuman[quote]; ok {
		quote = h
	}
	return base + "/" + quote
}

func humanToWSName(pair string) string {
	base, quote, ok := strings.Cut(pair, "/")
	if !ok {
		return pair
	}
	if w, ok := humanToWS[base]; ok {
		base = w
	}
	if w, ok := humanToWS[quote]; ok {
		quote = w
	}
	return base + "/" + quote
}

// Discover filters desired pairs against AssetPairs and caches the
// canonical -> wsname map.
func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var pairs assetPairsResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&pairs).
		Get(restBaseURL + "/0/public/AssetPairs")
	if err != nil {
		return nil, fmt.Errorf("asset pairs: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("asset pairs: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	mapping := make(map[string]string)
	var supported []string
	for _, info := range pairs.Result {
		if info.WSName == "" {
			continue
		}
		pair := wsnameToHuman(info.WSName)
		if _, ok := want[pair]; ok {
			supported = append(supported, pair)
			mapping[pair] = info.WSName
		}
	}

	c.mu.Lock()
	c.pairToWSName = mapping
	c.mu.Unlock()
	return supported, nil
}

func (c *Connector) wsnameFor(pair string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ws, ok := c.pairToWSName[pair]; ok {
		return ws
	}
	return humanToWSName(pair)
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
	wsnames := make([]string, 0, len(batch))
	for _, p := range batch {
		books[p] = book.New()
		wsnames = append(wsnames, c.wsnameFor(p))
	}
	sub := map[string]any{
		"event":        "subscribe",
		"pair":         wsnames,
		"subscription": map[string]any{"name": "book", "depth": bookDepth},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
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

		// Status, heartbeat and error events are objects; data is an array.
		if len(raw) > 0 && raw[0] == '{' {
			var ev statusEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				metrics.RecordDrop(name)
				continue
			}
			switch {
			case ev.Event == "subscriptionStatus" && ev.Status == "subscribed" &&
				strings.HasPrefix(ev.ChannelName, "book") && ev.ChannelID != nil:
				pair := wsnameToHuman(ev.Pair)
				if _, ok := books[pair]; ok {
					chanToPair[*ev.ChannelID] = pair
				}
			case ev.Status == "error":
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
		var payload bookPayload
		if err := json.Unmarshal(parts[1], &payload); err != nil {
			continue
		}

		b := books[pair]
		if payload.SnapshotBids != nil || payload.SnapshotAsks != nil {
			b.Reset()
			applyLevels(b, book.Bid, payload.SnapshotBids)
			applyLevels(b, book.Ask, payload.SnapshotAsks)
		}
		applyLevels(b, book.Bid, payload.Bids)
		applyLevels(b, book.Ask, payload.Asks)

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
		if sz < 0 {
			sz = 0
		}
		b.Apply(side, lvl[0], sz)
	}
}
