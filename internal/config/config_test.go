package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "coins_universe.json", cfg.UniverseFile)
	assert.Equal(t, 1, cfg.RankLo)
	assert.Equal(t, 200, cfg.RankHi)
	assert.Equal(t, []string{"USDT", "USDC"}, cfg.Quotes)
	assert.Len(t, cfg.Venues, 12)
	assert.Equal(t, 0.4, cfg.ThreshEnterPct)
	assert.Equal(t, 0.3, cfg.ThreshExitPct)
	assert.Equal(t, 10.0, cfg.MaxProfitPct)
	assert.Equal(t, 180, cfg.LongSecs)
	assert.Equal(t, 600, cfg.StaleSecs)
	assert.Equal(t, int32(12), cfg.MaxDecimals)
	assert.Equal(t, time.Second, cfg.ScanEvery)
	assert.False(t, cfg.RefreshUniverse)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
thresh_enter_pct: 0.8
thresh_exit_pct: 0.5
venues: [binance, kraken]
quotes: [USDT]
rank_hi: 50
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.ThreshEnterPct)
	assert.Equal(t, 0.5, cfg.ThreshExitPct)
	assert.Equal(t, []string{"binance", "kraken"}, cfg.Venues)
	assert.Equal(t, 50, cfg.RankHi)
	// untouched keys keep defaults
	assert.Equal(t, 10.0, cfg.MaxProfitPct)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.ThreshExitPct = bad.ThreshEnterPct
	assert.Error(t, bad.Validate(), "exit must stay below enter")

	bad = *cfg
	bad.ThreshEnterPct = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.MaxDecimals = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Venues = nil
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.ScanEvery = 0
	assert.Error(t, bad.Validate())
}
