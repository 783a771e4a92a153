// Package kucoin streams spot top-of-book from KuCoin. The websocket
// endpoint and token come from the bullet-public bootstrap call, and the
// server demands application-level client pings at the interval it returns.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"arbscan/internal/connector"
	"arbscan/internal/metrics"
)

const (
	name        = "kucoin"
	restBaseURL = "https://api.kucoin.com"

	subBatch   = 50
	topicDepth = "/spotMarket/level2Depth5:"
)

type symbolsResponse struct {
	Data []struct {
		Symbol        string `json:"symbol"`
		BaseCurrency  string `json:"baseCurrency"`
		QuoteCurrency string `json:"quoteCurrency"`
		EnableTrading bool   `json:"enableTrading"`
	} `json:"data"`
}

type bulletResponse struct {
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			PingInterval int    `json:"pingInterval"`
		} `json:"instanceServers"`
	} `json:"data"`
}

type wsMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
}

type Connector struct {
	sink connector.Sink
	rest *resty.Client

	mu           sync.RWMutex
	pairToSymbol map[string]string
}

func New(sink connector.Sink) *Connector {
	return &Connector{
		sink:         sink,
		rest:         connector.NewRESTClient(),
		pairToSymbol: make(map[string]string),
	}
}

func (c *Connector) Name() string { return name }

// Discover filters desired pairs against /api/v2/symbols and caches the
// canonical -> venue symbol map (BTC/USDT -> BTC-USDT).
func (c *Connector) Discover(ctx context.Context, desired []string) ([]string, error) {
	var symbols symbolsResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&symbols).
		Get(restBaseURL + "/api/v2/symbols")
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("symbols: status %s", resp.Status())
	}

	want := connector.DesiredSet(desired)
	mapping := make(map[string]string)
	var supported []string
	for _, s := range symbols.Data {
		if !s.EnableTrading {
			continue
		}
		pair := strings.ToUpper(s.BaseCurrency) + "/" + strings.ToUpper(s.QuoteCurrency)
		if _, ok := want[pair]; ok {
			supported = append(supported, pair)
			mapping[pair] = s.Symbol
		}
	}

	c.mu.Lock()
	c.pairToSymbol = mapping
	c.mu.Unlock()
	return supported, nil
}

func (c *Connector) symbolFor(pair string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sym, ok := c.pairToSymbol[pair]; ok {
		return sym
	}
	return strings.ReplaceAll(pair, "/", "-")
}

func (c *Connector) Run(ctx context.Context, pairs []string) {
	connector.RunBatches(ctx, name, pairs, subBatch, c.session)
}

// bootstrap performs the bullet-public call and returns the websocket URL
// plus the server's required ping interval.
func (c *Connector) bootstrap(ctx context.Context) (string, time.Duration, error) {
	var bullet bulletResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&bullet).
		Post(restBaseURL + "/api/v1/bullet-public")
	if err != nil {
		return "", 0, fmt.Errorf("bullet-public: %w", err)
	}
	if resp.IsError() {
		return "", 0, fmt.Errorf("bullet-public: status %s", resp.Status())
	}
	if bullet.Data.Token == "" || len(bullet.Data.InstanceServers) == 0 {
		return "", 0, fmt.Errorf("bullet-public: empty token or servers")
	}

	srv := bullet.Data.InstanceServers[0]
	url := fmt.Sprintf("%s?token=%s&connectId=%s", srv.Endpoint, bullet.Data.Token, uuid.NewString())

	// stay a little under the server interval, but never hammer
	interval := time.Duration(srv.PingInterval)*time.Millisecond - 2*time.Second
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return url, interval, nil
}

func (c *Connector) session(ctx context.Context, batch []string) error {
	url, pingInterval, err := c.bootstrap(ctx)
	if err != nil {
		return err
	}

	conn, stop, err := connector.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer stop()

	symToPair := make(map[string]string, len(batch))
	var writeMu sync.Mutex
	for _, p := range batch {
		sym := c.symbolFor(p)
		symToPair[sym] = p
		sub := map[string]any{
			"id":             uuid.NewString(),
			"type":           "subscribe",
			"topic":          topicDepth + sym,
			"privateChannel": false,
			"response":       true,
		}
		writeMu.Lock()
		err := conn.WriteJSON(sub)
		writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	// application-level pinger; the server disconnects clients that miss
	// the deadline
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteJSON(map[string]string{"id": uuid.NewString(), "type": "ping"})
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			metrics.RecordDrop(name)
			continue
		}

		switch msg.Type {
		case "welcome", "pong", "ack":
			continue
		case "error":
			log.Warn().Str("venue", name).RawJSON("frame", raw).Msg("venue error frame")
			continue
		case "message":
		default:
			continue
		}

		if !strings.HasPrefix(msg.Topic, topicDepth) {
			continue
		}
		sym := strings.TrimPrefix(msg.Topic, topicDepth)
		pair, ok := symToPair[sym]
		if !ok {
			metrics.RecordDrop(name)
			continue
		}

		q := connector.Quote{TsMs: connector.NowMs()}
		if px, sz, str, ok := topLevel(msg.Data.Bids); ok {
			q.HasBid, q.Bid, q.BidSize, q.BidStr = true, px, sz, str
		}
		if px, sz, str, ok := topLevel(msg.Data.Asks); ok {
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
