package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/tfutils"
)

const (
	binanceBaseURL   = "https://api.binance.com"
	binanceKlinesMax = 1000
)

// BinanceExchange reads klines from the public Binance REST API. No API key
// is needed.
type BinanceExchange struct {
	baseURL  string
	client   *http.Client
	retry    RetryConfig
	interval time.Duration
	limit    int
}

func NewBinanceExchange(opts Options) (*BinanceExchange, error) {
	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		proxyParsed, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyParsed)
		log.Printf("BinanceExchange | Using proxy: %s", opts.ProxyURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}

	return &BinanceExchange{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout, Transport: transport},
		retry:    retry,
		interval: opts.RequestInterval,
		limit:    binanceKlinesMax,
	}, nil
}

func (b *BinanceExchange) Name() string {
	return "binance"
}

// FetchCandles pages through the klines endpoint until end is reached.
func (b *BinanceExchange) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	tf, err := tfutils.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("empty range %s - %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	var ticker *time.Ticker
	if b.interval > 0 {
		ticker = time.NewTicker(b.interval)
		defer ticker.Stop()
	}

	var all []candle.Candle
	for cursor, page := start, 0; cursor.Before(end); page++ {
		if page > 0 && ticker != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
			}
		}

		batch, err := b.fetchPage(ctx, symbol, timeframe, cursor, end)
		if err != nil {
			return nil, fmt.Errorf("fetching %s %s from %s: %w", symbol, timeframe, cursor.Format(time.RFC3339), err)
		}
		log.Printf("BinanceExchange | Downloaded %d candles for %s from %s", len(batch), symbol, cursor.Format(time.RFC3339))
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)

		next := batch[len(batch)-1].Timestamp.Add(tf)
		if !next.After(cursor) || len(batch) < b.limit {
			break
		}
		cursor = next
	}

	return candle.Process(all, start, end), nil
}

func (b *BinanceExchange) fetchPage(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	q := url.Values{}
	q.Set("symbol", NormalizeSymbol(symbol))
	q.Set("interval", timeframe)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli()-1, 10))
	q.Set("limit", strconv.Itoa(b.limit))
	apiURL := b.baseURL + "/api/v3/klines?" + q.Encode()

	var rawCandles [][]any
	err := withRetry(ctx, b.retry, "BinanceExchange.fetchPage", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := b.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retryable(fmt.Errorf("network error: %w", err))
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return retryable(fmt.Errorf("error reading response body: %w", err))
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
			if isRetryableHTTPStatus(resp.StatusCode) {
				return retryable(err)
			}
			return err
		}

		rawCandles = nil
		if err := json.Unmarshal(body, &rawCandles); err != nil {
			return retryable(fmt.Errorf("JSON decode error: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]candle.Candle, 0, len(rawCandles))
	for _, raw := range rawCandles {
		c, err := parseKline(raw)
		if err != nil {
			log.Printf("BinanceExchange | skipping kline: %v", err)
			continue
		}
		c.Symbol = symbol
		c.Timeframe = timeframe
		c.Source = b.Name()
		candles = append(candles, c)
	}
	return candles, nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...]. Numbers
// may arrive as JSON numbers or strings.
func parseKline(raw []any) (candle.Candle, error) {
	var c candle.Candle
	if len(raw) < 6 {
		return c, fmt.Errorf("kline has %d fields", len(raw))
	}

	ts, err := parseNumber(raw[0])
	if err != nil {
		return c, fmt.Errorf("open time: %w", err)
	}
	c.Timestamp = time.UnixMilli(int64(ts)).UTC()

	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
	for i, f := range fields {
		v, err := parseNumber(raw[i+1])
		if err != nil {
			return c, fmt.Errorf("field %d: %w", i+1, err)
		}
		*f = v
	}
	return c, nil
}

func parseNumber(val any) (float64, error) {
	switch n := val.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unexpected number type %T", n)
	}
}
