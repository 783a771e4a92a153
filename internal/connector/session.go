package connector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"arbscan/internal/book"
	"arbscan/internal/metrics"
)

// maxFrameSize caps inbound websocket frames. Venue depth snapshots for a
// full batch stay well under this.
const maxFrameSize = 1 << 22

// Chunk splits pairs into batches of at most n, preserving order.
func Chunk(pairs []string, n int) [][]string {
	if n <= 0 {
		n = len(pairs)
	}
	var out [][]string
	for i := 0; i < len(pairs); i += n {
		end := i + n
		if end > len(pairs) {
			end = len(pairs)
		}
		out = append(out, pairs[i:end])
	}
	return out
}

// SessionFunc carries one websocket session for a batch of pairs. It returns
// nil on cancellation and an error when the connection must be rebuilt.
type SessionFunc func(ctx context.Context, batch []string) error

// RunBatches fans pairs out over one session goroutine per batch and keeps
// each session alive with the fixed reconnect backoff until ctx is done.
// Any in-memory book owned by a session is lost on reconnect and rebuilt
// from the next snapshot.
func RunBatches(ctx context.Context, venue string, pairs []string, batchSize int, session SessionFunc) {
	if len(pairs) == 0 {
		return
	}
	sorted := append([]string(nil), pairs...)
	sort.Strings(sorted)

	var wg sync.WaitGroup
	for _, batch := range Chunk(sorted, batchSize) {
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			for {
				err := session(ctx, batch)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					metrics.RecordReconnect(venue)
					log.Warn().Err(err).Str("venue", venue).Int("pairs", len(batch)).
						Msg("session ended, reconnecting")
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(ReconnectBackoff):
				}
			}
		}(batch)
	}
	wg.Wait()
}

// Dial opens a websocket connection with the standard handshake timeout and
// read limit, and arranges for the connection to be closed when ctx is
// cancelled so blocked reads unwind. The returned stop func releases the
// watchdog and must be deferred by the session.
func Dial(ctx context.Context, url string) (*websocket.Conn, func(), error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, err
	}
	conn.SetReadLimit(maxFrameSize)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	stop := func() {
		close(done)
		conn.Close()
	}
	return conn, stop, nil
}

// NewRESTClient builds the resty client used for one-shot discovery calls.
func NewRESTClient() *resty.Client {
	return resty.New().
		SetTimeout(DiscoverTimeout).
		SetHeader("Accept", "application/json")
}

// TopOfBook derives a Quote from a session-local order book. ok is false
// when both sides are empty, in which case nothing must be published.
func TopOfBook(b *book.Book) (Quote, bool) {
	q := Quote{TsMs: NowMs()}
	if best, ok := b.Best(book.Bid); ok {
		q.HasBid = true
		q.Bid = best.Price
		q.BidSize = best.Size
		q.BidStr = best.PriceStr
	}
	if best, ok := b.Best(book.Ask); ok {
		q.HasAsk = true
		q.Ask = best.Price
		q.AskSize = best.Size
		q.AskStr = best.PriceStr
	}
	return q, q.HasBid || q.HasAsk
}
