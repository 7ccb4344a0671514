package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
exchange:
  market: ETH/USDT:USDT
  retry:
    min_delay: 100ms
strategy:
  moving_average:
    short_window: 3
    long_window: 10
database:
  in_memory: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETH/USDT:USDT", cfg.Exchange.Market)
	assert.Equal(t, "ccxt", cfg.Exchange.Driver)
	assert.Equal(t, 200, cfg.Exchange.PageSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Exchange.Retry.MinDelay)
	assert.Equal(t, 5*time.Second, cfg.Exchange.Retry.MaxDelay)
	assert.Equal(t, 3, cfg.Strategy.MovingAverage.ShortWindow)
	assert.Equal(t, 10, cfg.Strategy.MovingAverage.LongWindow)
	assert.Equal(t, 14, cfg.Strategy.RSIVolatility.Period)
	assert.InDelta(t, 0.02, cfg.Strategy.RSIVolatility.VolatilityThreshold, 1e-12)
	assert.Equal(t, 10000.0, cfg.Backtest.InitialBalance)
	assert.True(t, cfg.Database.InMemory)
	assert.Equal(t, []string{"stdout"}, cfg.Logging.OutputPaths)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "app:\n  environment: test\n")
	t.Setenv("BACKTEST_BACKTEST_TIMEFRAME", "4h")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "4h", cfg.Backtest.Timeframe)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	path := writeConfig(t, `
exchange:
  driver: kraken
  page_size: 0
backtest:
  initial_balance: -1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange.driver")
	assert.Contains(t, err.Error(), "exchange.page_size")
	assert.Contains(t, err.Error(), "backtest.initial_balance")
}
