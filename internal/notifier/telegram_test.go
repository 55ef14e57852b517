package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSend(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("chat_id"))
		assert.Equal(t, "hello", r.PostForm.Get("text"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier("TOKEN", "42", "", 3, time.Millisecond)
	require.NoError(t, err)
	n.BaseURL = srv.URL

	require.NoError(t, n.Send(context.Background(), "hello"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTelegramSendRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewTelegramNotifier("T", "1", "", 3, time.Millisecond)
	require.NoError(t, err)
	n.BaseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), "x"))
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(-10)
	err = n.Send(context.Background(), "x")
	assert.ErrorContains(t, err, "502")
}

func TestNewTelegramNotifierBadProxy(t *testing.T) {
	_, err := NewTelegramNotifier("T", "1", "://bad", 1, 0)
	assert.Error(t, err)
}

func TestBacktestMessageFormat(t *testing.T) {
	msg := BacktestMessage{
		Strategy:    "cross_sma",
		Symbol:      "BTC-USDT",
		Timeframe:   "1h",
		Start:       "2024-01-01",
		End:         "2024-02-01",
		TotalTrades: 4,
		TotalProfit: 123.456,
		WinRate:     50,
		MaxDrawdown: -20,
		ResultFile:  "data/strategies/cross_sma/backtest_BTC-USDT_1h.csv",
	}.Format()

	assert.Equal(t, "Backtest finished: cross_sma BTC-USDT 1h\n"+
		"Period: 2024-01-01 to 2024-02-01\n"+
		"Trades: 4, Win rate: 50.00%\n"+
		"Total profit: 123.46, Max drawdown: -20.00\n"+
		"Result: data/strategies/cross_sma/backtest_BTC-USDT_1h.csv", msg)

	assert.NoError(t, Nop{}.Send(context.Background(), msg))
}
