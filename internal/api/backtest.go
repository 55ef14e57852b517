package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amirphl/crossover-backtester/internal/backtest"
	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/config"
	"github.com/amirphl/crossover-backtester/internal/history"
	"github.com/amirphl/crossover-backtester/internal/journal"
	"github.com/amirphl/crossover-backtester/internal/notifier"
	"github.com/amirphl/crossover-backtester/internal/runner"
	"github.com/gin-gonic/gin"
)

// BacktestRequest is the body of /backtest/ and /download_history/.
type BacktestRequest struct {
	Strategy  string `json:"strategy"`
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe" binding:"required"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

var errDatesRequired = errors.New("start and end date required")

func (s *Server) runBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.Strategy == "" {
		fail(c, errors.New("strategy required"), nil)
		return
	}
	ctx := c.Request.Context()

	sc, err := config.LoadStrategyConfig(s.cfg.StrategyConfigDir, req.Strategy)
	if err != nil {
		fail(c, err, nil)
		return
	}
	if err := sc.ValidateRequest(req.Symbol, req.StartDate, req.EndDate); err != nil {
		fail(c, err, nil)
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		fail(c, errDatesRequired, nil)
		return
	}

	histFile, err := s.deps.History.Resolve(req.Symbol, req.Timeframe, req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err, nil)
		return
	}
	if abs, err := filepath.Abs(histFile); err == nil {
		histFile = abs
	}

	args := runner.BacktestArgs(req.Strategy, req.Symbol, req.Timeframe, histFile,
		append([]string{"-start", req.StartDate, "-end", req.EndDate}, sc.ExtraArgs()...))
	res, err := s.deps.Runner.Run(ctx, args...)
	if err != nil {
		s.record(ctx, journal.New(journal.TypeError, "backtest failed", map[string]any{
			"strategy": req.Strategy, "symbol": req.Symbol, "timeframe": req.Timeframe, "error": err.Error(),
		}))
		extra := gin.H{"stdout": res.Stdout, "stderr": res.Stderr}
		fail(c, err, extra)
		return
	}

	resultFile := backtest.ResultPath(s.cfg.StrategiesDir(), req.Strategy, req.Symbol, req.Timeframe)
	if _, err := os.Stat(resultFile); err != nil {
		fail(c, errors.New("backtest completed but result file not found"), gin.H{"stdout": res.Stdout})
		return
	}

	s.record(ctx, journal.New(journal.TypeBacktest, "backtest finished", map[string]any{
		"strategy":    req.Strategy,
		"symbol":      req.Symbol,
		"timeframe":   req.Timeframe,
		"start_date":  req.StartDate,
		"end_date":    req.EndDate,
		"result_file": resultFile,
		"duration_ms": res.Duration.Milliseconds(),
	}))
	s.notifyBacktest(context.WithoutCancel(ctx), req, resultFile, res.Duration)

	c.JSON(http.StatusOK, gin.H{"success": true, "result_file": resultFile, "stdout": res.Stdout})
}

func (s *Server) notifyBacktest(ctx context.Context, req BacktestRequest, resultFile string, took time.Duration) {
	sum, err := summarizeFile(resultFile, time.Time{}, time.Time{})
	if err != nil {
		log.Printf("Server.notifyBacktest | %v", err)
		return
	}
	msg := notifier.BacktestMessage{
		Strategy:    req.Strategy,
		Symbol:      req.Symbol,
		Timeframe:   req.Timeframe,
		Start:       req.StartDate,
		End:         req.EndDate,
		TotalTrades: sum.TotalTrades,
		TotalProfit: sum.TotalProfit,
		WinRate:     sum.WinRate,
		MaxDrawdown: sum.MaxDrawdown,
		ResultFile:  resultFile,
		Duration:    took,
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.deps.Notifier.Send(ctx, msg.Format()); err != nil {
		log.Printf("Server.notifyBacktest | notification failed: %v", err)
	}
}

// summarizeFile pairs and summarises the rows of a result file within
// [from, to]. A position still open at the end is closed at the last bar.
func summarizeFile(path string, from, to time.Time) (backtest.Summary, error) {
	rows, err := backtest.LoadResults(path)
	if err != nil {
		return backtest.Summary{}, err
	}
	rows = backtest.FilterRows(rows, from, to)
	return backtest.Summarize(backtest.PairTrades(rows, backtest.CloseAtLastBar)), nil
}

func (s *Server) summary(c *gin.Context) {
	strategyName := c.Param("strategy")
	symbol := c.DefaultQuery("symbol", "BTC-USDT")
	timeframe := c.DefaultQuery("timeframe", "1m")

	var from, to time.Time
	for _, q := range []struct {
		name string
		dst  *time.Time
	}{{"start_date", &from}, {"end_date", &to}} {
		v := strings.TrimSpace(c.Query(q.name))
		if v == "" {
			continue
		}
		t, err := candle.ParseTime(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("%s: %v", q.name, err)})
			return
		}
		*q.dst = t
	}

	file := backtest.ResultPath(s.cfg.StrategiesDir(), strategyName, symbol, timeframe)
	sum, err := summarizeFile(file, from, to)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Backtest file not found: " + file})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// downloadHistory fetches the requested range into its own range-named file.
func (s *Server) downloadHistory(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		fail(c, errDatesRequired, nil)
		return
	}
	start, end, err := history.ParseRange(req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err, nil)
		return
	}
	ctx := c.Request.Context()

	candles, err := s.fetch(ctx, req.Symbol, req.Timeframe, start, end)
	if err != nil {
		fail(c, err, nil)
		return
	}
	path := s.deps.History.RangePath(req.Symbol, req.Timeframe, req.StartDate, req.EndDate)
	if err := candle.SaveFile(path, candles); err != nil {
		fail(c, err, nil)
		return
	}
	s.record(ctx, journal.New(journal.TypeDownload, "range download", map[string]any{
		"symbol": req.Symbol, "timeframe": req.Timeframe, "file": path, "bars": len(candles),
	}))
	c.JSON(http.StatusOK, gin.H{"success": true, "history_file": path})
}

// fetch downloads candles and mirrors them into storage.
func (s *Server) fetch(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	candles, err := s.deps.Exchange.FetchCandles(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s returned no candles for %s %s", s.deps.Exchange.Name(), symbol, timeframe)
	}
	for i := range candles {
		candles[i].Symbol = symbol
		candles[i].Timeframe = timeframe
	}
	if s.deps.Storage != nil {
		if err := s.deps.Storage.SaveCandles(ctx, candles); err != nil {
			log.Printf("Server.fetch | not mirroring %d candles into storage: %v", len(candles), err)
		}
	}
	return candles, nil
}
