// Package db
package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/journal"
)

// Schema creates the tables used by the Postgres storage.
//
//go:embed schema.sql
var Schema string

// CandleStorage mirrors downloaded candles.
type CandleStorage interface {
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	// GetCandles returns candles in [start, end) ordered by time. An empty
	// source matches every source.
	GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error)
	GetCandleCount(ctx context.Context, symbol, timeframe string, start, end time.Time) (int, error)
	DeleteCandles(ctx context.Context, symbol, timeframe string) error
}

// Storage is the interface for all persistent storage.
type Storage interface {
	CandleStorage
	journal.Journaler
	Close() error
}

func validateForStorage(c candle.Candle) error {
	if c.Symbol == "" || c.Timeframe == "" {
		return errors.New("candle symbol and timeframe are required")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candle for %s %s at %s: %w", c.Symbol, c.Timeframe, c.Timestamp.Format(time.RFC3339), err)
	}
	return nil
}
