// Package config loads scanner settings from an optional YAML file plus
// ARBSCAN_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// Universe selection
	UniverseFile string   `mapstructure:"universe_file"`
	RankLo       int      `mapstructure:"rank_lo"`
	RankHi       int      `mapstructure:"rank_hi"`
	ExtraBases   []string `mapstructure:"extra_bases"`
	Quotes       []string `mapstructure:"quotes"`
	Venues       []string `mapstructure:"venues"`

	// Universe refresh
	RefreshUniverse      bool          `mapstructure:"refresh_universe"`
	UniverseRefreshEvery time.Duration `mapstructure:"universe_refresh_every"`
	CoinpaprikaTimeout   time.Duration `mapstructure:"coinpaprika_timeout"`

	// Engine thresholds (percent)
	ThreshEnterPct float64 `mapstructure:"thresh_enter_pct"`
	ThreshExitPct  float64 `mapstructure:"thresh_exit_pct"`
	MaxProfitPct   float64 `mapstructure:"max_profit_pct"`
	LongSecs       int     `mapstructure:"long_secs"`
	StaleSecs      int     `mapstructure:"stale_secs"`
	MaxDecimals    int32   `mapstructure:"max_decimals"`

	// Scan loop
	ScanEvery time.Duration `mapstructure:"scan_every"`

	// Outputs
	MetricsAddr  string `mapstructure:"metrics_addr"`
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisChannel string `mapstructure:"redis_channel"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("universe_file", "coins_universe.json")
	v.SetDefault("rank_lo", 1)
	v.SetDefault("rank_hi", 200)
	v.SetDefault("extra_bases", []string{})
	v.SetDefault("quotes", []string{"USDT", "USDC"})
	v.SetDefault("venues", []string{
		"binance", "kucoin", "htx", "gate", "okx", "kraken",
		"coinbase", "bitstamp", "bitfinex", "bitget", "bybit", "lbank",
	})

	v.SetDefault("refresh_universe", false)
	v.SetDefault("universe_refresh_every", 24*time.Hour)
	v.SetDefault("coinpaprika_timeout", 60*time.Second)

	v.SetDefault("thresh_enter_pct", 0.4)
	v.SetDefault("thresh_exit_pct", 0.3)
	v.SetDefault("max_profit_pct", 10.0)
	v.SetDefault("long_secs", 3*60)
	v.SetDefault("stale_secs", 10*60)
	v.SetDefault("max_decimals", 12)

	v.SetDefault("scan_every", 1*time.Second)

	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_channel", "arbscan:opportunities")
}

// Load reads the config file at path (optional when empty) and applies
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ARBSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.ThreshEnterPct <= 0 {
		return fmt.Errorf("thresh_enter_pct must be positive, got %v", c.ThreshEnterPct)
	}
	if c.ThreshExitPct >= c.ThreshEnterPct {
		return fmt.Errorf("thresh_exit_pct (%v) must be below thresh_enter_pct (%v)",
			c.ThreshExitPct, c.ThreshEnterPct)
	}
	if c.MaxDecimals < 1 {
		return fmt.Errorf("max_decimals must be at least 1, got %d", c.MaxDecimals)
	}
	if c.LongSecs < 0 || c.StaleSecs < 0 {
		return fmt.Errorf("long_secs and stale_secs must not be negative")
	}
	if len(c.Quotes) == 0 {
		return fmt.Errorf("at least one quote currency required")
	}
	if len(c.Venues) == 0 {
		return fmt.Errorf("at least one venue required")
	}
	if c.ScanEvery <= 0 {
		return fmt.Errorf("scan_every must be positive, got %v", c.ScanEvery)
	}
	return nil
}
