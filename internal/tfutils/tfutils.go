package tfutils

import (
	"fmt"
	"sort"
	"time"
)

var durations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseTimeframe parses timeframe string (e.g., "5m", "1h") to time.Duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	d, ok := durations[timeframe]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe: %q", timeframe)
	}
	return d, nil
}

// GetTimeframeDuration returns the duration for a given timeframe, 0 if unknown
func GetTimeframeDuration(timeframe string) time.Duration {
	return durations[timeframe]
}

// GetSupportedTimeframes returns all supported timeframes ordered by duration
func GetSupportedTimeframes() []string {
	tfs := make([]string, 0, len(durations))
	for tf := range durations {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool {
		return durations[tfs[i]] < durations[tfs[j]]
	})
	return tfs
}

// IsValidTimeframe checks if a timeframe is supported
func IsValidTimeframe(timeframe string) bool {
	return GetTimeframeDuration(timeframe) > 0
}

// WallexResolution maps a timeframe to the resolution string of the Wallex
// candles endpoint, which counts in minutes ("1", "60") except for days ("1D").
func WallexResolution(timeframe string) (string, error) {
	d, err := ParseTimeframe(timeframe)
	if err != nil {
		return "", err
	}
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dD", int(d/(24*time.Hour))), nil
	}
	return fmt.Sprintf("%d", int(d/time.Minute)), nil
}

// BarsBetween returns how many bars of the timeframe fit in [start, end).
func BarsBetween(timeframe string, start, end time.Time) int {
	d := GetTimeframeDuration(timeframe)
	if d == 0 || !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / d)
}
