package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/amirphl/crossover-backtester/internal/history"
	"github.com/amirphl/crossover-backtester/internal/journal"
	"github.com/amirphl/crossover-backtester/internal/tfutils"
	"github.com/gin-gonic/gin"
)

// HistoryDownloadRequest is the body of /api/history/download.
type HistoryDownloadRequest struct {
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	ForceExtend bool   `json:"force_extend"`
}

func (s *Server) historyList(c *gin.Context) {
	meta, err := s.deps.History.LoadMeta()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (s *Server) historyMeta(c *gin.Context) {
	meta, err := s.deps.History.LoadMeta()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	files, err := s.deps.History.ListFiles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meta": meta, "files": files})
}

type downloadResult struct {
	plan  history.Plan
	entry history.Entry
	bars  int
}

// historyDownload merges the requested range into the managed file of the
// symbol/timeframe. A request that would leave a gap next to the stored
// range is answered with a suggested range instead, and is only carried out
// when repeated with force_extend.
func (s *Server) historyDownload(c *gin.Context) {
	var req HistoryDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.Symbol == "" || req.Timeframe == "" {
		fail(c, errors.New("symbol and timeframe required"), nil)
		return
	}
	if !tfutils.IsValidTimeframe(req.Timeframe) {
		fail(c, fmt.Errorf("unsupported timeframe %q", req.Timeframe), nil)
		return
	}
	start, end, err := history.ParseRange(req.StartDate, req.EndDate)
	if err != nil {
		fail(c, err, nil)
		return
	}
	ctx := c.Request.Context()

	key := req.Symbol + "|" + req.Timeframe + "|" + strconv.FormatBool(req.ForceExtend) + "|" + start.String() + "|" + end.String()
	v, err, _ := s.downloads.Do(key, func() (any, error) {
		plan, err := s.deps.History.PlanDownload(req.Symbol, req.Timeframe, start, end, req.ForceExtend)
		if err != nil || plan.NeedsConfirmation {
			return downloadResult{plan: plan}, err
		}
		candles, err := s.fetch(ctx, req.Symbol, req.Timeframe, plan.Start, plan.End)
		if err != nil {
			return nil, err
		}
		entry, err := s.deps.History.Store(req.Symbol, req.Timeframe, candles)
		if err != nil {
			return nil, err
		}
		return downloadResult{plan: plan, entry: entry, bars: len(candles)}, nil
	})
	if err != nil {
		fail(c, err, nil)
		return
	}
	res := v.(downloadResult)

	if res.plan.NeedsConfirmation {
		cur := res.plan.Current
		fail(c, errors.New("requested range leaves a gap next to the stored data"), gin.H{
			"force_extend_param":   true,
			"current_min_date":     cur.MinDate,
			"current_max_date":     cur.MaxDate,
			"suggested_start_date": res.plan.Start.Format(time.RFC3339),
			"suggested_end_date":   res.plan.End.Format(time.RFC3339),
		})
		return
	}

	s.record(ctx, journal.New(journal.TypeDownload, "managed download", map[string]any{
		"symbol":    req.Symbol,
		"timeframe": req.Timeframe,
		"start":     res.plan.Start.Format(time.RFC3339),
		"end":       res.plan.End.Format(time.RFC3339),
		"bars":      res.bars,
	}))
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"history_file": res.entry.Filename,
		"min_date":     res.entry.MinDate,
		"max_date":     res.entry.MaxDate,
		"bars":         res.bars,
	})
}

func (s *Server) historyDelete(c *gin.Context) {
	symbol, timeframe := c.Param("symbol"), c.Param("timeframe")
	ctx := c.Request.Context()

	res, err := s.deps.History.Delete(symbol, timeframe)
	if err != nil {
		fail(c, err, gin.H{"file_deleted": res.FileDeleted, "meta_removed": res.MetaRemoved})
		return
	}
	if s.deps.Storage != nil {
		if err := s.deps.Storage.DeleteCandles(ctx, symbol, timeframe); err != nil {
			fail(c, err, gin.H{"file_deleted": res.FileDeleted, "meta_removed": res.MetaRemoved})
			return
		}
	}
	s.record(ctx, journal.New(journal.TypeHistoryDelete, "history deleted", map[string]any{
		"symbol": symbol, "timeframe": timeframe,
	}))
	c.JSON(http.StatusOK, gin.H{"success": true, "file_deleted": res.FileDeleted, "meta_removed": res.MetaRemoved})
}

// journalEvents lists journal events. Query: type (optional), days (default 7).
func (s *Server) journalEvents(c *gin.Context) {
	if s.deps.Storage == nil {
		c.JSON(http.StatusOK, gin.H{"events": []journal.Event{}})
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "days must be a positive integer"})
		return
	}
	end := time.Now().UTC().Add(time.Second)
	events, err := s.deps.Storage.GetEvents(c.Request.Context(), c.Query("type"), end.AddDate(0, 0, -days), end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
