package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/crossover-backtester/internal/strategy"
)

// EndPolicy decides what happens to a position still open after the last bar.
type EndPolicy int

const (
	// CloseAtLastBar closes the open position at the final close.
	CloseAtLastBar EndPolicy = iota
	// DropOpen discards the open position.
	DropOpen
)

const (
	ReasonSignal      = "signal"
	ReasonEndOfSeries = "end-of-series"
)

func ParseEndPolicy(s string) (EndPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "close", "close_at_last_bar":
		return CloseAtLastBar, nil
	case "drop", "drop_open":
		return DropOpen, nil
	}
	return 0, fmt.Errorf("unknown end policy %q", s)
}

func (p EndPolicy) String() string {
	if p == DropOpen {
		return "drop_open"
	}
	return "close_at_last_bar"
}

// Trade is a completed long round trip.
type Trade struct {
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	Profit     float64   `json:"profit"`
	Reason     string    `json:"reason"`
}

// PairTrades scans rows in order holding at most one position. BUY opens a
// position at the bar's close when flat, SELL closes it when one is open,
// every other combination is ignored.
//
// A position left open is handled by policy. It is never closed on the bar
// it was opened on, so a BUY on the final bar is always dropped.
func PairTrades(rows []Row, policy EndPolicy) []Trade {
	trades := []Trade{}

	var (
		open  bool
		entry Row
	)
	for _, r := range rows {
		switch {
		case r.Signal == strategy.Buy && !open:
			open = true
			entry = r
		case r.Signal == strategy.Sell && open:
			trades = append(trades, newTrade(entry, r, ReasonSignal))
			open = false
		}
	}

	if open && policy == CloseAtLastBar {
		last := rows[len(rows)-1]
		if last.Timestamp.After(entry.Timestamp) {
			trades = append(trades, newTrade(entry, last, ReasonEndOfSeries))
		}
	}
	return trades
}

func newTrade(entry, exit Row, reason string) Trade {
	return Trade{
		EntryTime:  entry.Timestamp,
		EntryPrice: entry.Close,
		ExitTime:   exit.Timestamp,
		ExitPrice:  exit.Close,
		Profit:     exit.Close - entry.Close,
		Reason:     reason,
	}
}
