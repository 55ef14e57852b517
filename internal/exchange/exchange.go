// Package exchange downloads historical candles from public exchange APIs.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
)

var ErrUnknownExchange = errors.New("unknown exchange")

// Exchange is a source of historical candles. FetchCandles returns the bars
// whose open time lies in [start, end), ordered by time.
type Exchange interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error)
}

// Options configures an exchange client.
type Options struct {
	BaseURL  string // overrides the public endpoint
	ProxyURL string
	APIKey   string
	Timeout  time.Duration
	// RequestInterval spaces consecutive requests of a paginated download.
	RequestInterval time.Duration
	Retry           RetryConfig
}

// New builds the named exchange client.
func New(name string, opts Options) (Exchange, error) {
	switch strings.ToLower(name) {
	case "binance", "":
		return NewBinanceExchange(opts)
	case "wallex":
		return NewWallexExchange(opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownExchange, name)
}

// NormalizeSymbol converts e.g. btc-usdt or BTC/USDT to BTCUSDT.
func NormalizeSymbol(symbol string) string {
	s := strings.ReplaceAll(symbol, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	return strings.ToUpper(s)
}
