package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrSymbolNotAllowed = errors.New("symbol not allowed")
	ErrDateOutOfRange   = errors.New("date out of allowed range")
)

/*
Strategy config example (<strategy_config_dir>/cross_sma/config.yaml):
allowed_symbols: ["BTC-USDT", "ETH-USDT"]
exchange:
  name: binance
  symbol: BTC/USDT
  timeframe: 1h
  start_date: "2023-01-01"
  end_date: "2025-12-31"
strategy:
  type: cross_sma
  params: { fast: 10, slow: 30 }
risk:
  risk_percent: 1.0
  stop_loss_percent: 2.0
*/

type StrategyConfig struct {
	AllowedSymbols []string `yaml:"allowed_symbols"`
	Exchange       struct {
		Name      string `yaml:"name"`
		Symbol    string `yaml:"symbol"`
		Timeframe string `yaml:"timeframe"`
		StartDate string `yaml:"start_date"`
		EndDate   string `yaml:"end_date"`
	} `yaml:"exchange"`
	Strategy struct {
		Type   string         `yaml:"type"`
		Params map[string]any `yaml:"params"`
	} `yaml:"strategy"`
	Risk map[string]any `yaml:"risk"`
}

// StrategyConfigPath is where the config of a strategy lives.
func StrategyConfigPath(dir, strategy string) string {
	return filepath.Join(dir, strategy, "config.yaml")
}

// LoadStrategyConfig reads the config of a strategy. A strategy without a
// config file has no restrictions and returns nil.
func LoadStrategyConfig(dir, strategy string) (*StrategyConfig, error) {
	path := StrategyConfigPath(dir, strategy)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sc StrategyConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &sc, nil
}

// ValidateRequest checks a backtest request against the allowed symbols and
// the exchange date range. Dates are compared by day; empty dates pass.
func (sc *StrategyConfig) ValidateRequest(symbol, startDate, endDate string) error {
	if sc == nil {
		return nil
	}
	if len(sc.AllowedSymbols) > 0 && !slices.Contains(sc.AllowedSymbols, symbol) {
		return fmt.Errorf("%w: %s", ErrSymbolNotAllowed, symbol)
	}
	if sc.Exchange.StartDate != "" && startDate != "" {
		if before(startDate, sc.Exchange.StartDate) {
			return fmt.Errorf("%w: start date %s is before %s", ErrDateOutOfRange, startDate, sc.Exchange.StartDate)
		}
	}
	if sc.Exchange.EndDate != "" && endDate != "" {
		if before(sc.Exchange.EndDate, endDate) {
			return fmt.Errorf("%w: end date %s is after %s", ErrDateOutOfRange, endDate, sc.Exchange.EndDate)
		}
	}
	return nil
}

// ExtraArgs renders strategy params followed by risk params as
// "--key value" pairs, keys sorted within each group.
func (sc *StrategyConfig) ExtraArgs() []string {
	if sc == nil {
		return nil
	}
	var args []string
	for _, group := range []map[string]any{sc.Strategy.Params, sc.Risk} {
		keys := make([]string, 0, len(group))
		for k := range group {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, "--"+k, fmt.Sprint(group[k]))
		}
	}
	return args
}

// Periods returns the fast and slow periods of the strategy params, zero
// when absent.
func (sc *StrategyConfig) Periods() (fast, slow int, err error) {
	if sc == nil {
		return 0, 0, nil
	}
	if fast, err = intParam(sc.Strategy.Params, "fast"); err != nil {
		return 0, 0, err
	}
	slow, err = intParam(sc.Strategy.Params, "slow")
	return fast, slow, err
}

func intParam(params map[string]any, key string) (int, error) {
	v, ok := params[key]
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("param %s: %v is not an integer", key, v)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("param %s: %w", key, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("param %s: unsupported value %v", key, v)
}

// before reports whether day a is before day b. Values that are not dates
// are compared as strings.
func before(a, b string) bool {
	da, errA := parseDay(a)
	db, errB := parseDay(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return da.Before(db)
}

func parseDay(s string) (time.Time, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	return time.Parse("2006-01-02", s)
}
