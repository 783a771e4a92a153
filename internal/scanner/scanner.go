// Package scanner supervises the venue connectors and the arbitrage
// engine: it discovers each venue's supported pairs, keeps the connectors
// running and restarts them when the desired universe changes.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"arbscan/internal/connector"
	"arbscan/internal/connector/binance"
	"arbscan/internal/connector/bitfinex"
	"arbscan/internal/connector/bitget"
	"arbscan/internal/connector/bitstamp"
	"arbscan/internal/connector/bybit"
	"arbscan/internal/connector/coinbase"
	"arbscan/internal/connector/gate"
	"arbscan/internal/connector/htx"
	"arbscan/internal/connector/kraken"
	"arbscan/internal/connector/kucoin"
	"arbscan/internal/connector/lbank"
	"arbscan/internal/connector/okx"
	"arbscan/internal/engine"
	"arbscan/internal/metrics"
	"arbscan/internal/quotes"
	"arbscan/internal/universe"
)

var factories = map[string]func(connector.Sink) connector.Connector{
	"binance":  func(s connector.Sink) connector.Connector { return binance.New(s) },
	"kucoin":   func(s connector.Sink) connector.Connector { return kucoin.New(s) },
	"htx":      func(s connector.Sink) connector.Connector { return htx.New(s) },
	"gate":     func(s connector.Sink) connector.Connector { return gate.New(s) },
	"okx":      func(s connector.Sink) connector.Connector { return okx.New(s) },
	"kraken":   func(s connector.Sink) connector.Connector { return kraken.New(s) },
	"coinbase": func(s connector.Sink) connector.Connector { return coinbase.New(s) },
	"bitstamp": func(s connector.Sink) connector.Connector { return bitstamp.New(s) },
	"bitfinex": func(s connector.Sink) connector.Connector { return bitfinex.New(s) },
	"bitget":   func(s connector.Sink) connector.Connector { return bitget.New(s) },
	"bybit":    func(s connector.Sink) connector.Connector { return bybit.New(s) },
	"lbank":    func(s connector.Sink) connector.Connector { return lbank.New(s) },
}

// Venues lists the known venue names, sorted.
func Venues() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot is one consistent view of the scanner's outputs.
type Snapshot struct {
	Opportunities []engine.Opportunity `json:"opportunities"`
	Stale         []engine.StaleQuote  `json:"stale"`
	Venues        []string             `json:"venues"`
}

// Scanner wires connectors into the quote table and owns the run
// lifecycle. All methods are safe for concurrent use.
type Scanner struct {
	table  *quotes.Table
	engine *engine.Engine

	mu         sync.Mutex
	connectors map[string]connector.Connector
	runCancel  context.CancelFunc
	runWG      sync.WaitGroup
	pairsKey   string
}

// New builds a scanner for the named venues. Unknown venue names are an
// error so a typo in config fails fast instead of silently scanning less.
func New(cfg engine.Config, venues []string) (*Scanner, error) {
	table := quotes.NewTable()
	s := &Scanner{
		table:      table,
		engine:     engine.New(table, cfg),
		connectors: make(map[string]connector.Connector, len(venues)),
	}

	for _, name := range venues {
		factory, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown venue %q", name)
		}
		venue := name
		sink := func(pair string, q connector.Quote) {
			s.table.Put(venue, pair, q)
		}
		s.connectors[name] = factory(sink)
	}
	return s, nil
}

// Table exposes the quote table, mainly for tests.
func (s *Scanner) Table() *quotes.Table { return s.table }

// Start discovers supported pairs on every venue and launches the
// connectors. Venues whose discovery fails are skipped until the next
// reconfigure; the scanner still runs with the rest.
func (s *Scanner) Start(ctx context.Context, desired []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoverLocked(ctx, desired)
	s.startLocked(ctx)
	s.pairsKey = universe.Key(desired)
}

func (s *Scanner) discoverLocked(ctx context.Context, desired []string) {
	var wg sync.WaitGroup
	for name, conn := range s.connectors {
		wg.Add(1)
		go func(name string, conn connector.Connector) {
			defer wg.Done()
			dctx, cancel := context.WithTimeout(ctx, connector.DiscoverTimeout)
			defer cancel()

			supported, err := conn.Discover(dctx, desired)
			metrics.RecordDiscovery(name, len(supported), err)
			if err != nil {
				log.Error().Err(err).Str("venue", name).Msg("Discovery failed")
				s.table.SetSupported(name, nil)
				return
			}
			log.Info().Str("venue", name).Int("pairs", len(supported)).Msg("Discovery complete")
			s.table.SetSupported(name, supported)
		}(name, conn)
	}
	wg.Wait()
}

func (s *Scanner) startLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	for name, conn := range s.connectors {
		pairs := s.table.Supported(name)
		if len(pairs) == 0 {
			log.Warn().Str("venue", name).Msg("No supported pairs, connector idle")
			continue
		}
		s.runWG.Add(1)
		go func(conn connector.Connector, pairs []string) {
			defer s.runWG.Done()
			conn.Run(runCtx, pairs)
		}(conn, pairs)
	}
}

// Reconfigure rediscovers and restarts the connectors when the desired
// pair set actually changed; otherwise it is a no-op.
func (s *Scanner) Reconfigure(ctx context.Context, desired []string) {
	key := universe.Key(desired)

	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.pairsKey {
		log.Info().Msg("Universe unchanged, keeping connectors")
		return
	}

	log.Info().Msg("Universe changed, reconfiguring connectors")
	if s.runCancel != nil {
		s.runCancel()
		s.runWG.Wait()
	}
	s.discoverLocked(ctx, desired)
	s.startLocked(ctx)
	s.pairsKey = key
}

// Stop cancels the running connectors and waits for them to exit.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil {
		s.runCancel()
		s.runWG.Wait()
		s.runCancel = nil
	}
}

// Supported returns the venue's accepted pair set from the last discovery.
func (s *Scanner) Supported(venue string) []string {
	return s.table.Supported(venue)
}

// Snapshot runs one engine pass and returns its results, updating the
// engine gauges as a side effect.
func (s *Scanner) Snapshot() Snapshot {
	ops := s.engine.Compute()
	stale := s.engine.ListStale()
	venues := s.table.Venues()
	sort.Strings(venues)
	metrics.Opportunities.Set(float64(len(ops)))
	metrics.StaleQuotes.Set(float64(len(stale)))
	return Snapshot{Opportunities: ops, Stale: stale, Venues: venues}
}
