// Package api serves the backtest and history endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/amirphl/crossover-backtester/internal/config"
	"github.com/amirphl/crossover-backtester/internal/db"
	"github.com/amirphl/crossover-backtester/internal/exchange"
	"github.com/amirphl/crossover-backtester/internal/history"
	"github.com/amirphl/crossover-backtester/internal/journal"
	"github.com/amirphl/crossover-backtester/internal/notifier"
	"github.com/amirphl/crossover-backtester/internal/runner"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BacktestRunner runs the backtest command with the given arguments.
type BacktestRunner interface {
	Run(ctx context.Context, args ...string) (runner.Result, error)
}

// Deps are the services the handlers use. Notifier may be nil.
type Deps struct {
	History  *history.Manager
	Exchange exchange.Exchange
	Storage  db.Storage
	Runner   BacktestRunner
	Notifier notifier.Notifier
}

type Server struct {
	cfg  config.Config
	deps Deps
	// downloads coalesces concurrent downloads of one symbol/timeframe.
	downloads singleflight.Group
}

func NewServer(cfg config.Config, deps Deps) *Server {
	if deps.Notifier == nil {
		deps.Notifier = notifier.Nop{}
	}
	return &Server{cfg: cfg, deps: deps}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), RequestID(), CORS(s.cfg.AllowedOrigins))
	// Symbols such as BTC%2FUSDT arrive escaped in path parameters.
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.GET("/ping", s.ping)
	r.POST("/backtest/", s.runBacktest)
	r.POST("/download_history/", s.downloadHistory)
	r.GET("/summary/:strategy", s.summary)

	api := r.Group("/api")
	{
		api.GET("/history/list", s.historyList)
		api.GET("/history/meta", s.historyMeta)
		api.POST("/history/download", s.historyDownload)
		api.DELETE("/history/:symbol/:timeframe", s.historyDelete)
		api.GET("/journal", s.journalEvents)
	}

	r.Static("/data", s.cfg.DataDir)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Router()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server.Run | HTTP server listening on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Server.Run | shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail answers a domain failure the way the frontend expects it: HTTP 200
// with success false.
func fail(c *gin.Context, err error, extra gin.H) {
	body := gin.H{"success": false, "error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// record writes a journal event. Journal failures never fail a request.
func (s *Server) record(ctx context.Context, ev journal.Event) {
	if s.deps.Storage == nil {
		return
	}
	if err := s.deps.Storage.LogEvent(ctx, ev); err != nil {
		log.Printf("Server.record | failed to log %s event: %v", ev.Type, err)
	}
}
