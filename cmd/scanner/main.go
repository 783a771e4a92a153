package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"arbscan/internal/config"
	"arbscan/internal/engine"
	"arbscan/internal/metrics"
	"arbscan/internal/publisher"
	"arbscan/internal/scanner"
	"arbscan/internal/universe"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log.Info().
		Strs("venues", cfg.Venues).
		Strs("quotes", cfg.Quotes).
		Int("rank_lo", cfg.RankLo).
		Int("rank_hi", cfg.RankHi).
		Float64("enter_pct", cfg.ThreshEnterPct).
		Float64("exit_pct", cfg.ThreshExitPct).
		Msg("Starting arbitrage scanner")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := metrics.NewServer(cfg.MetricsAddr)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	refresher := universe.NewRefresher(cfg.UniverseFile, cfg.CoinpaprikaTimeout)
	if _, err := os.Stat(cfg.UniverseFile); os.IsNotExist(err) && cfg.RefreshUniverse {
		log.Info().Str("path", cfg.UniverseFile).Msg("Universe file missing, fetching")
		if _, err := refresher.Refresh(ctx); err != nil {
			log.Fatal().Err(err).Msg("Initial universe fetch failed")
		}
	}

	loadPairs := func() ([]string, error) {
		bases, err := universe.Load(cfg.UniverseFile, cfg.RankLo, cfg.RankHi, cfg.ExtraBases)
		if err != nil {
			return nil, err
		}
		return universe.MakePairs(bases, cfg.Quotes), nil
	}

	pairs, err := loadPairs()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load universe")
	}
	log.Info().Int("pairs", len(pairs)).Msg("Universe loaded")

	sc, err := scanner.New(engine.Config{
		ThreshEnterPct: cfg.ThreshEnterPct,
		ThreshExitPct:  cfg.ThreshExitPct,
		MaxProfitPct:   cfg.MaxProfitPct,
		LongSecs:       cfg.LongSecs,
		StaleSecs:      cfg.StaleSecs,
		MaxDecimals:    cfg.MaxDecimals,
	}, cfg.Venues)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build scanner")
	}
	sc.Start(ctx, pairs)

	var pub *publisher.RedisPublisher
	if cfg.RedisAddr != "" {
		pub, err = publisher.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer pub.Close()
		log.Info().Str("addr", cfg.RedisAddr).Str("channel", cfg.RedisChannel).Msg("Publishing to Redis")
	}

	if cfg.RefreshUniverse {
		go refresher.RunPeriodic(ctx, cfg.UniverseRefreshEvery, func() {
			newPairs, err := loadPairs()
			if err != nil {
				log.Warn().Err(err).Msg("Reload after refresh failed, keeping current universe")
				return
			}
			sc.Reconfigure(ctx, newPairs)
		})
	}

	go scanLoop(ctx, cfg, sc, pub)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	cancel()
	sc.Stop()
	if err := metricsServer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping metrics server")
	}
}

func scanLoop(ctx context.Context, cfg *config.Config, sc *scanner.Scanner, pub *publisher.RedisPublisher) {
	ticker := time.NewTicker(cfg.ScanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := sc.Snapshot()
		if len(snap.Opportunities) > 0 {
			best := snap.Opportunities[0]
			log.Info().
				Int("opportunities", len(snap.Opportunities)).
				Str("pair", best.Pair).
				Str("buy", best.BuyVenue).
				Str("sell", best.SellVenue).
				Float64("profit_pct", best.ProfitPct).
				Msg("Scan")
		} else {
			log.Debug().Int("stale", len(snap.Stale)).Msg("Scan: no opportunities")
		}

		if pub != nil {
			if err := pub.PublishSnapshot(ctx, snap); err != nil {
				log.Error().Err(err).Msg("Failed to publish snapshot")
			}
		}
	}
}
