// Package metrics exposes Prometheus instrumentation for the scanner.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// Quote flow
	QuoteUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_quote_updates_total",
			Help: "Total number of quote updates accepted",
		},
		[]string{"venue"},
	)

	DroppedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_dropped_frames_total",
			Help: "Total number of inbound frames dropped as unparsable or unroutable",
		},
		[]string{"venue"},
	)

	// Connections
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_reconnects_total",
			Help: "Total number of websocket reconnect attempts",
		},
		[]string{"venue"},
	)

	DiscoveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_discovery_errors_total",
			Help: "Total number of failed instrument discovery calls",
		},
		[]string{"venue"},
	)

	SupportedPairs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arb_supported_pairs",
			Help: "Number of pairs accepted per venue after discovery",
		},
		[]string{"venue"},
	)

	// Engine
	Opportunities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arb_opportunities",
			Help: "Number of in-window opportunities in the latest scan",
		},
	)

	StaleQuotes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arb_stale_quotes",
			Help: "Number of stale quotes in the latest scan",
		},
	)

	// Publisher
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_publish_errors_total",
			Help: "Total number of Redis publish errors",
		},
		[]string{"channel"},
	)
)

// RecordQuote counts one accepted quote update.
func RecordQuote(venue string) {
	QuoteUpdates.WithLabelValues(venue).Inc()
}

// RecordDrop counts one dropped inbound frame.
func RecordDrop(venue string) {
	DroppedFrames.WithLabelValues(venue).Inc()
}

// RecordReconnect counts one reconnect attempt.
func RecordReconnect(venue string) {
	Reconnects.WithLabelValues(venue).Inc()
}

// RecordDiscovery records the outcome of one discovery call.
func RecordDiscovery(venue string, supported int, err error) {
	if err != nil {
		DiscoveryErrors.WithLabelValues(venue).Inc()
	}
	SupportedPairs.WithLabelValues(venue).Set(float64(supported))
}

// Server serves /metrics and /health.
type Server struct {
	addr   string
	server *http.Server
}

func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start blocks serving metrics until the server is stopped.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	return s.server.Close()
}
