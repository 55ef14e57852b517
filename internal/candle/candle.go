// Package candle
package candle

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrMalformedSeries is returned when a price series breaks the ordering
// contract the backtest core relies on.
var ErrMalformedSeries = errors.New("malformed price series")

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol,omitempty"`
	Timeframe string    `json:"timeframe,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	return nil
}

// ValidateSeries checks the ordering contract of a series: non-zero,
// strictly increasing timestamps and finite close prices. It does not apply
// the stricter per-candle Validate, since cached files may carry candles an
// exchange reported with odd OHLC relations.
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if c.Timestamp.IsZero() {
			return fmt.Errorf("%w: zero timestamp at index %d", ErrMalformedSeries, i)
		}
		if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) {
			return fmt.Errorf("%w: non-finite close at index %d", ErrMalformedSeries, i)
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("%w: timestamp %s at index %d does not follow %s",
				ErrMalformedSeries, c.Timestamp.Format(time.RFC3339), i, candles[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Closes extracts the close prices of a series.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// Process sorts candles, drops duplicate timestamps (first occurrence wins)
// and trims them to [start, end). A zero start or end leaves that side open.
// The input slice is not modified.
func Process(candles []Candle, start, end time.Time) []Candle {
	if len(candles) == 0 {
		return nil
	}

	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := make([]Candle, 0, len(sorted))
	for _, c := range sorted {
		if !start.IsZero() && c.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !c.Timestamp.Before(end) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(c.Timestamp) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Merge combines two series into one ordered, de-duplicated series.
// On equal timestamps the candle from newer wins.
func Merge(existing, newer []Candle) []Candle {
	all := make([]Candle, 0, len(existing)+len(newer))
	all = append(all, newer...)
	all = append(all, existing...)
	return Process(all, time.Time{}, time.Time{})
}

// Span returns the first and last timestamps of an ordered series.
func Span(candles []Candle) (first, last time.Time, ok bool) {
	if len(candles) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return candles[0].Timestamp, candles[len(candles)-1].Timestamp, true
}
