package universe

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const coinpaprikaBaseURL = "https://api.coinpaprika.com/v1"

// Refresher keeps the on-disk universe file current from CoinPaprika.
type Refresher struct {
	path    string
	rest    *resty.Client
	timeout time.Duration
}

func NewRefresher(path string, timeout time.Duration) *Refresher {
	return &Refresher{
		path:    path,
		rest:    resty.New().SetTimeout(timeout),
		timeout: timeout,
	}
}

// Refresh fetches the full coin list and rewrites the universe file.
// The write goes through a temp file so a failed fetch never truncates
// the existing universe.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	var coins []Coin
	resp, err := r.rest.R().
		SetContext(ctx).
		SetResult(&coins).
		Get(coinpaprikaBaseURL + "/coins")
	if err != nil {
		return 0, fmt.Errorf("fetch coins: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("fetch coins: status %s", resp.Status())
	}
	if len(coins) == 0 {
		return 0, fmt.Errorf("fetch coins: empty list")
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, resp.Body(), 0o644); err != nil {
		return 0, fmt.Errorf("write universe: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return 0, fmt.Errorf("replace universe: %w", err)
	}
	return len(coins), nil
}

// RunPeriodic refreshes the file at the given interval until ctx is done,
// calling onRefresh after every successful rewrite. A failed refresh keeps
// the old file and is retried on the next tick.
func (r *Refresher) RunPeriodic(ctx context.Context, interval time.Duration, onRefresh func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := r.Refresh(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Universe refresh failed, keeping old file")
			continue
		}
		log.Info().Int("coins", n).Str("path", r.path).Msg("Universe refreshed")
		if onRefresh != nil {
			onRefresh()
		}
	}
}
