// Package notifier
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Notifier interface for sending notifications (e.g., Telegram, email).
type Notifier interface {
	Send(ctx context.Context, msg string) error
}

// Nop discards every message. It is used when no notifier is configured.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }

// BacktestMessage is the data a finished backtest notification reports.
type BacktestMessage struct {
	Strategy    string
	Symbol      string
	Timeframe   string
	Start, End  string
	TotalTrades int
	TotalProfit float64
	WinRate     float64
	MaxDrawdown float64
	ResultFile  string
	Duration    time.Duration
}

// Format renders the message as plain text.
func (m BacktestMessage) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backtest finished: %s %s %s\n", m.Strategy, m.Symbol, m.Timeframe)
	if m.Start != "" || m.End != "" {
		fmt.Fprintf(&b, "Period: %s to %s\n", m.Start, m.End)
	}
	fmt.Fprintf(&b, "Trades: %d, Win rate: %.2f%%\n", m.TotalTrades, m.WinRate)
	fmt.Fprintf(&b, "Total profit: %.2f, Max drawdown: %.2f\n", m.TotalProfit, m.MaxDrawdown)
	if m.ResultFile != "" {
		fmt.Fprintf(&b, "Result: %s\n", m.ResultFile)
	}
	if m.Duration > 0 {
		fmt.Fprintf(&b, "Took %s", m.Duration.Round(time.Millisecond))
	}
	return strings.TrimRight(b.String(), "\n")
}
