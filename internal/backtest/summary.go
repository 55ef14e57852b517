package backtest

import (
	"math"
	"time"
)

// Summary holds the statistics of a trade list.
type Summary struct {
	TotalTrades     int       `json:"total_trades"`
	TotalProfit     float64   `json:"total_profit"`
	WinningTrades   int       `json:"winning_trades"`
	LosingTrades    int       `json:"losing_trades"`
	WinRate         float64   `json:"win_rate"` // percent
	AvgProfit       float64   `json:"avg_profit"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	ProfitFactor    float64   `json:"profit_factor"`
	MaxConsecWins   int       `json:"max_consecutive_wins"`
	MaxConsecLosses int       `json:"max_consecutive_losses"`
	Trades          []Trade   `json:"trades"`
	EquityCurve     []float64 `json:"equity_curve"`
	DrawdownCurve   []float64 `json:"drawdown_curve"`
}

// Summarize computes the statistics of trades in order. A trade with zero
// profit counts as a loss.
func Summarize(trades []Trade) Summary {
	s := Summary{
		Trades:        append([]Trade{}, trades...),
		EquityCurve:   make([]float64, 0, len(trades)),
		DrawdownCurve: make([]float64, 0, len(trades)),
	}
	if len(trades) == 0 {
		return s
	}

	var (
		equity, peak          float64
		grossWin, grossLoss   float64
		consecWin, consecLoss int
	)
	peak = math.Inf(-1)
	for _, t := range trades {
		s.TotalProfit += t.Profit
		if t.Profit > 0 {
			s.WinningTrades++
			grossWin += t.Profit
			consecWin++
			consecLoss = 0
		} else {
			s.LosingTrades++
			grossLoss += t.Profit
			consecLoss++
			consecWin = 0
		}
		s.MaxConsecWins = max(s.MaxConsecWins, consecWin)
		s.MaxConsecLosses = max(s.MaxConsecLosses, consecLoss)

		equity += t.Profit
		peak = math.Max(peak, equity)
		dd := equity - peak
		s.EquityCurve = append(s.EquityCurve, equity)
		s.DrawdownCurve = append(s.DrawdownCurve, dd)
		s.MaxDrawdown = math.Min(s.MaxDrawdown, dd)
	}

	s.TotalTrades = len(trades)
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	s.AvgProfit = s.TotalProfit / float64(s.TotalTrades)
	if grossLoss < 0 {
		s.ProfitFactor = grossWin / -grossLoss
	}
	return s
}

// FilterRows keeps the rows whose timestamp lies in [from, to]. A zero bound
// leaves that side open.
func FilterRows(rows []Row, from, to time.Time) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}
