package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/journal"
)

// MemoryStorage keeps everything in process memory. The service falls back to
// it when no database is configured.
type MemoryStorage struct {
	mu sync.RWMutex

	// Candles keyed by symbol|timeframe|timestamp|source
	candles map[string]candle.Candle

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		candles: make(map[string]candle.Candle),
		events:  make([]journal.Event, 0, 1024),
	}
}

func (m *MemoryStorage) Close() error { return nil }

// -------- CandleStorage --------

func candleKey(symbol, timeframe string, ts time.Time, source string) string {
	return strings.ToUpper(symbol) + "|" + timeframe + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + source
}

func (m *MemoryStorage) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	for _, c := range candles {
		if err := validateForStorage(c); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		c.Timestamp = c.Timestamp.UTC()
		m.candles[candleKey(c.Symbol, c.Timeframe, c.Timestamp, c.Source)] = c
	}
	return nil
}

func (m *MemoryStorage) GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []candle.Candle
	for _, c := range m.candles {
		if m.inRange(c, symbol, timeframe, start, end) && (source == "" || c.Source == source) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Source < out[j].Source
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStorage) GetCandleCount(ctx context.Context, symbol, timeframe string, start, end time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.candles {
		if m.inRange(c, symbol, timeframe, start, end) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStorage) inRange(c candle.Candle, symbol, timeframe string, start, end time.Time) bool {
	if !strings.EqualFold(c.Symbol, symbol) || c.Timeframe != timeframe {
		return false
	}
	return !c.Timestamp.Before(start) && c.Timestamp.Before(end)
}

func (m *MemoryStorage) DeleteCandles(ctx context.Context, symbol, timeframe string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.candles {
		if strings.EqualFold(c.Symbol, symbol) && c.Timeframe == timeframe {
			delete(m.candles, k)
		}
	}
	return nil
}

// -------- JournalStorage --------

func (m *MemoryStorage) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Time = event.Time.UTC()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journal.Event
	for _, e := range m.events {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if !e.Time.Before(start) && e.Time.Before(end) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
