package exchange

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/tfutils"
	wallex "github.com/wallexchange/wallex-go"
)

// WallexExchange reads candles through the Wallex client.
type WallexExchange struct {
	client *wallex.Client
	retry  RetryConfig
}

func NewWallexExchange(opts Options) *WallexExchange {
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	return &WallexExchange{
		client: wallex.New(wallex.ClientOptions{APIKey: opts.APIKey}),
		retry:  retry,
	}
}

func (w *WallexExchange) Name() string {
	return "wallex"
}

func (w *WallexExchange) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	resolution, err := tfutils.WallexResolution(timeframe)
	if err != nil {
		return nil, err
	}
	normalizedSymbol := NormalizeSymbol(symbol)

	var wallexCandles []*wallex.Candle
	err = withRetry(ctx, w.retry, "WallexExchange.FetchCandles", func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		wallexCandles, err = w.client.Candles(normalizedSymbol, resolution, start, end)
		if err != nil {
			return retryable(fmt.Errorf("fetching candles: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]candle.Candle, 0, len(wallexCandles))
	for _, wc := range wallexCandles {
		open, _ := strconv.ParseFloat(string(wc.Open), 64)
		high, _ := strconv.ParseFloat(string(wc.High), 64)
		low, _ := strconv.ParseFloat(string(wc.Low), 64)
		close, _ := strconv.ParseFloat(string(wc.Close), 64)
		volume, _ := strconv.ParseFloat(string(wc.Volume), 64)

		c := candle.Candle{
			Timestamp: wc.Timestamp.UTC().Truncate(time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    w.Name(),
		}
		if err := c.Validate(); err != nil {
			log.Printf("WallexExchange | skipping candle at %s: %v", c.Timestamp.Format(time.RFC3339), err)
			continue
		}
		if c.Timestamp.Before(start) || !c.Timestamp.Before(end) {
			continue
		}
		candles = append(candles, c)
	}
	return candle.Process(candles, start, end), nil
}
