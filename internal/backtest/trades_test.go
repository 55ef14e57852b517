package backtest

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func makeRows(closes []float64, signals []strategy.Signal) []Row {
	rows := make([]Row, len(closes))
	for i, c := range closes {
		rows[i] = Row{
			Candle: candle.Candle{
				Timestamp: t0.Add(time.Duration(i) * time.Hour),
				Open:      c, High: c, Low: c, Close: c, Volume: 1,
			},
			Signal: signals[i],
		}
	}
	return rows
}

func TestPairTradesSingleRoundTrip(t *testing.T) {
	rows := makeRows(
		[]float64{100, 105, 110, 120, 115},
		[]strategy.Signal{strategy.None, strategy.Buy, strategy.None, strategy.Sell, strategy.None},
	)
	trades := PairTrades(rows, CloseAtLastBar)
	require.Len(t, trades, 1)
	assert.Equal(t, 105.0, trades[0].EntryPrice)
	assert.Equal(t, 120.0, trades[0].ExitPrice)
	assert.Equal(t, 15.0, trades[0].Profit)
	assert.Equal(t, ReasonSignal, trades[0].Reason)
	assert.True(t, trades[0].ExitTime.After(trades[0].EntryTime))
}

func TestPairTradesIgnoresRepeatedSignals(t *testing.T) {
	B, S, H := strategy.Buy, strategy.Sell, strategy.Hold
	rows := makeRows(
		[]float64{10, 11, 12, 13, 14, 15, 16},
		[]strategy.Signal{S, B, B, H, S, S, H},
	)
	trades := PairTrades(rows, DropOpen)
	require.Len(t, trades, 1)
	assert.Equal(t, 11.0, trades[0].EntryPrice, "second BUY does not pyramid")
	assert.Equal(t, 14.0, trades[0].ExitPrice)
}

func TestPairTradesEndPolicy(t *testing.T) {
	B, N, H := strategy.Buy, strategy.None, strategy.Hold
	closes := []float64{10, 12, 9, 11}

	t.Run("close at last bar", func(t *testing.T) {
		trades := PairTrades(makeRows(closes, []strategy.Signal{N, B, H, H}), CloseAtLastBar)
		require.Len(t, trades, 1)
		assert.Equal(t, ReasonEndOfSeries, trades[0].Reason)
		assert.Equal(t, -1.0, trades[0].Profit)
	})
	t.Run("drop open", func(t *testing.T) {
		trades := PairTrades(makeRows(closes, []strategy.Signal{N, B, H, H}), DropOpen)
		assert.Empty(t, trades)
		assert.NotNil(t, trades)
	})
	t.Run("buy on last bar", func(t *testing.T) {
		for _, p := range []EndPolicy{CloseAtLastBar, DropOpen} {
			trades := PairTrades(makeRows(closes, []strategy.Signal{N, H, H, B}), p)
			assert.Empty(t, trades, p.String())
		}
	})
	t.Run("no rows", func(t *testing.T) {
		assert.Empty(t, PairTrades(nil, CloseAtLastBar))
	})
}

func TestParseEndPolicy(t *testing.T) {
	for in, want := range map[string]EndPolicy{"": CloseAtLastBar, "close": CloseAtLastBar, "DROP_OPEN": DropOpen, "drop": DropOpen} {
		got, err := ParseEndPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseEndPolicy("hold_forever")
	assert.Error(t, err)
}

func trade(profit float64) Trade {
	return Trade{EntryPrice: 100, ExitPrice: 100 + profit, Profit: profit}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Trade{trade(15), trade(20)})
	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 35.0, s.TotalProfit)
	assert.Equal(t, []float64{15, 35}, s.EquityCurve)
	assert.Equal(t, []float64{0, 0}, s.DrawdownCurve)
	assert.Equal(t, 0.0, s.MaxDrawdown)
	assert.Equal(t, 100.0, s.WinRate)
	assert.Equal(t, 17.5, s.AvgProfit)
	assert.Equal(t, 2, s.MaxConsecWins)
}

func TestSummarizeDrawdown(t *testing.T) {
	s := Summarize([]Trade{trade(10), trade(-4), trade(-6), trade(0), trade(5)})
	assert.Equal(t, []float64{10, 6, 0, 0, 5}, s.EquityCurve)
	assert.Equal(t, []float64{0, -4, -10, -10, -5}, s.DrawdownCurve)
	assert.Equal(t, -10.0, s.MaxDrawdown)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 3, s.LosingTrades, "zero profit counts as a loss")
	assert.Equal(t, 40.0, s.WinRate)
	assert.Equal(t, 3, s.MaxConsecLosses)
	assert.InDelta(t, 1.5, s.ProfitFactor, 1e-12)

	for _, dd := range s.DrawdownCurve {
		assert.LessOrEqual(t, dd, 0.0)
	}
}

func TestSummarizeFirstTradeLoss(t *testing.T) {
	s := Summarize([]Trade{trade(-3), trade(-2)})
	assert.Equal(t, []float64{0, -2}, s.DrawdownCurve, "peak starts at the first equity value")
	assert.Equal(t, -2.0, s.MaxDrawdown)
	assert.Equal(t, 0.0, s.ProfitFactor)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.AvgProfit)
	assert.Zero(t, s.MaxDrawdown)
	assert.False(t, math.IsNaN(s.WinRate))
	assert.NotNil(t, s.Trades)
	assert.NotNil(t, s.EquityCurve)
	assert.NotNil(t, s.DrawdownCurve)
}

func TestFilterRows(t *testing.T) {
	N := strategy.None
	rows := makeRows([]float64{1, 2, 3, 4}, []strategy.Signal{N, N, N, N})

	assert.Len(t, FilterRows(rows, time.Time{}, time.Time{}), 4)
	got := FilterRows(rows, t0.Add(time.Hour), t0.Add(2*time.Hour))
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Close)
	assert.Equal(t, 3.0, got[1].Close)
	assert.Len(t, FilterRows(rows, t0.Add(3*time.Hour), time.Time{}), 1)
}

func TestResultsRoundTrip(t *testing.T) {
	rows := makeRows(
		[]float64{100, 105.5, 110},
		[]strategy.Signal{strategy.None, strategy.Buy, strategy.Hold},
	)
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, rows))
	assert.Contains(t, buf.String(), "ts,open,high,low,close,volume,signal\n")
	assert.Contains(t, buf.String(), "2024-03-01 01:00:00,105.5,105.5,105.5,105.5,1,BUY\n")

	got, err := ReadResults(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestResultsEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, []Row{{Signal: strategy.None}}))

	got, err := ReadResults(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.IsZero())
	assert.Equal(t, strategy.None, got[0].Signal)
}

func TestResultPath(t *testing.T) {
	assert.Equal(t, "backtest_BTC-USDT_1h.csv", ResultFileName("BTC/USDT", "1h"))
	assert.Equal(t, "data/strategies/cross_sma/backtest_ETH-USDT_1m.csv", ResultPath("data/strategies", "cross_sma", "ETH-USDT", "1m"))
	assert.Equal(t, "data/strategies/cross_sma/trades_ETH-USDT_1m.csv", tradesPath("data/strategies/cross_sma/backtest_ETH-USDT_1m.csv"))
}
