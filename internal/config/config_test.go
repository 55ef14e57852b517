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
	t.Setenv("DB_CONN_STR", "postgres://x")
	t.Setenv("WALLEX_API_KEY", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres://x", cfg.DBConnStr)
	assert.Equal(t, filepath.Join("data", "history"), cfg.HistoryDir())
	assert.Equal(t, filepath.Join("data", "strategies"), cfg.StrategiesDir())
	assert.True(t, cfg.Incremental)
}

func TestLoadIgnoresUnknownFlags(t *testing.T) {
	cfg, err := Load([]string{
		"-mode", "backtest",
		"-strategy", "cross_ema",
		"-symbol", "ETH-USDT",
		"-timeframe", "1h",
		"-history", "data/history/h.csv",
		"--fast", "5",
		"--risk_percent", "1.5",
		"--slow", "20",
		"--trailing=0.5",
		"-incremental=false",
		"--limit", "50",
	})
	require.NoError(t, err)
	assert.Equal(t, "backtest", cfg.Mode)
	assert.Equal(t, "cross_ema", cfg.Strategy)
	assert.Equal(t, "data/history/h.csv", cfg.HistoryFile)
	assert.Equal(t, 5, cfg.Fast)
	assert.Equal(t, 20, cfg.Slow)
	assert.False(t, cfg.Incremental)
}

func TestLoadYAMLOverridesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
allowed_origins: ["https://a.example", "https://b.example"]
backtest_timeout: 90s
exchange: wallex
`), 0o644))

	cfg, err := Load([]string{"-addr", ":7000", "-config", path})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.BacktestTimeout)
	assert.Equal(t, "wallex", cfg.Exchange)
	assert.Equal(t, "data", cfg.DataDir, "flag defaults survive")
}

func TestChildArgsCarryEffectiveSettings(t *testing.T) {
	t.Setenv("WALLEX_API_KEY", "")
	t.Setenv("DB_CONN_STR", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: serve
data_dir: srv-data
strategy_config_dir: /etc/backtester/strategies
exchange: wallex
wallex_api_key: from-yaml
request_interval: 2s
api_retry_max_attempts: 5
symbol: BTC-USDT
`), 0o644))

	parent, err := Load([]string{"-config", path, "-incremental=false", "-end-policy", "drop"})
	require.NoError(t, err)

	args := append([]string{"-mode", "backtest"}, parent.ChildArgs()...)
	args = append(args, "-symbol", "ETH-USDT", "-timeframe", "1h")
	child, err := Load(args)
	require.NoError(t, err)

	wantData, err := filepath.Abs("srv-data")
	require.NoError(t, err)
	assert.Equal(t, "backtest", child.Mode, "the file is not passed on, so it cannot reset the mode")
	assert.Equal(t, wantData, child.DataDir)
	assert.True(t, filepath.IsAbs(child.StrategiesDir()))
	assert.Equal(t, "/etc/backtester/strategies", child.StrategyConfigDir)
	assert.Equal(t, "wallex", child.Exchange)
	assert.Equal(t, 2*time.Second, child.RequestInterval)
	assert.Equal(t, 5, child.APIRetryMaxAttempts)
	assert.Equal(t, parent.APIRetryBaseDelay, child.APIRetryBaseDelay)
	assert.Equal(t, "drop", child.EndPolicy)
	assert.False(t, child.Incremental)
	assert.Equal(t, "ETH-USDT", child.Symbol)

	assert.Equal(t, []string{"WALLEX_API_KEY=from-yaml"}, parent.ChildEnv())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load([]string{"-mode", "live"})
	assert.Error(t, err)

	_, err = Load([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = Load([]string{"-fast", "five"})
	assert.Error(t, err)
}

func writeStrategyConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cross_sma"), 0o755))
	require.NoError(t, os.WriteFile(StrategyConfigPath(dir, "cross_sma"), []byte(body), 0o644))
	return dir
}

const strategyYAML = `
allowed_symbols: ["BTC-USDT", "ETH-USDT"]
exchange:
  name: binance
  start_date: 2023-01-01
  end_date: "2024-12-31"
strategy:
  type: cross_sma
  params:
    slow: 30
    fast: 10
risk:
  stop_loss_percent: 2.5
  risk_percent: 1
`

func TestStrategyConfigValidateRequest(t *testing.T) {
	sc, err := LoadStrategyConfig(writeStrategyConfig(t, strategyYAML), "cross_sma")
	require.NoError(t, err)
	require.NotNil(t, sc)

	assert.NoError(t, sc.ValidateRequest("BTC-USDT", "2023-01-01", "2024-12-31 23:00:00"))
	assert.ErrorIs(t, sc.ValidateRequest("DOGE-USDT", "2023-06-01", "2023-07-01"), ErrSymbolNotAllowed)
	assert.ErrorIs(t, sc.ValidateRequest("BTC-USDT", "2022-12-31", "2023-07-01"), ErrDateOutOfRange)
	assert.ErrorIs(t, sc.ValidateRequest("BTC-USDT", "2023-06-01", "2025-01-01"), ErrDateOutOfRange)
	assert.NoError(t, sc.ValidateRequest("ETH-USDT", "", ""))
}

func TestStrategyConfigExtraArgs(t *testing.T) {
	sc, err := LoadStrategyConfig(writeStrategyConfig(t, strategyYAML), "cross_sma")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"--fast", "10", "--slow", "30",
		"--risk_percent", "1", "--stop_loss_percent", "2.5",
	}, sc.ExtraArgs())

	fast, slow, err := sc.Periods()
	require.NoError(t, err)
	assert.Equal(t, 10, fast)
	assert.Equal(t, 30, slow)
}

func TestStrategyConfigMissing(t *testing.T) {
	sc, err := LoadStrategyConfig(t.TempDir(), "cross_ema")
	require.NoError(t, err)
	assert.Nil(t, sc)
	assert.NoError(t, sc.ValidateRequest("ANY", "1999-01-01", "2999-01-01"))
	assert.Empty(t, sc.ExtraArgs())
}

func TestStrategyConfigBadPeriods(t *testing.T) {
	sc, err := LoadStrategyConfig(writeStrategyConfig(t, "strategy:\n  params:\n    fast: 2.5\n"), "cross_sma")
	require.NoError(t, err)
	_, _, err = sc.Periods()
	assert.Error(t, err)
}
