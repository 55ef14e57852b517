package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/crossover-backtester/internal/api"
	"github.com/amirphl/crossover-backtester/internal/backtest"
	"github.com/amirphl/crossover-backtester/internal/config"
	"github.com/amirphl/crossover-backtester/internal/db"
	"github.com/amirphl/crossover-backtester/internal/exchange"
	"github.com/amirphl/crossover-backtester/internal/history"
	"github.com/amirphl/crossover-backtester/internal/journal"
	"github.com/amirphl/crossover-backtester/internal/notifier"
	"github.com/amirphl/crossover-backtester/internal/runner"
	"github.com/amirphl/crossover-backtester/internal/strategy"
	"github.com/amirphl/crossover-backtester/internal/utils"
)

func main() {
	cfg := config.MustLoadConfig()

	logCloser, err := utils.SetupLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()
	log.Println("Starting crossover backtester in mode:", cfg.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Summaries only read a result file.
	var storage db.Storage
	if cfg.Mode != "summary" {
		if storage, err = openStorage(ctx, cfg); err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
		defer storage.Close()
	}

	switch cfg.Mode {
	case "serve":
		err = runServer(ctx, cfg, storage)
	case "backtest":
		err = runBacktest(ctx, cfg, storage)
	case "download":
		err = runDownload(ctx, cfg, storage)
	case "summary":
		err = runSummary(cfg)
	default:
		err = fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if err != nil {
		log.Printf("%s failed: %v", cfg.Mode, err)
		logCloser.Close()
		os.Exit(1)
	}
}

// openStorage connects to Postgres when a connection string is configured
// and keeps candles and journal in memory otherwise.
func openStorage(ctx context.Context, cfg config.Config) (db.Storage, error) {
	if cfg.DBConnStr == "" {
		log.Println("No database configured, keeping candles and journal in memory")
		return db.NewMemory(), nil
	}
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	p, err := db.Open(openCtx, cfg.DBConnStr)
	if err != nil {
		return nil, err
	}
	if cfg.DBMaxOpen > 0 {
		p.GetDB().SetMaxOpenConns(cfg.DBMaxOpen)
	}
	if cfg.DBMaxIdle > 0 {
		p.GetDB().SetMaxIdleConns(cfg.DBMaxIdle)
	}
	log.Println("Connected to Postgres")
	return p, nil
}

func newNotifier(cfg config.Config) notifier.Notifier {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == "" {
		return notifier.Nop{}
	}
	tn, err := notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.ProxyURL, cfg.NotificationRetries, cfg.NotificationDelay)
	if err != nil {
		log.Printf("Telegram notifications disabled: %v", err)
		return notifier.Nop{}
	}
	return tn
}

func newExchange(cfg config.Config) (exchange.Exchange, error) {
	return exchange.New(cfg.Exchange, exchange.Options{
		BaseURL:         cfg.ExchangeBaseURL,
		ProxyURL:        cfg.ProxyURL,
		APIKey:          cfg.WallexAPIKey,
		RequestInterval: cfg.RequestInterval,
		Retry: exchange.RetryConfig{
			MaxAttempts: cfg.APIRetryMaxAttempts,
			BaseDelay:   cfg.APIRetryBaseDelay,
			MaxDelay:    cfg.APIRetryMaxDelay,
		},
	})
}

func runServer(ctx context.Context, cfg config.Config, storage db.Storage) error {
	if err := os.MkdirAll(cfg.StrategiesDir(), 0o755); err != nil {
		return err
	}
	hm, err := history.NewManager(cfg.HistoryDir())
	if err != nil {
		return err
	}
	ex, err := newExchange(cfg)
	if err != nil {
		return err
	}
	// The child gets this process's directories and exchange settings, so its
	// result file lands where the server looks for it.
	r, err := runner.New(cfg.BacktestTimeout, cfg.ChildArgs(), cfg.ChildEnv())
	if err != nil {
		return err
	}
	return api.NewServer(cfg, api.Deps{
		History:  hm,
		Exchange: ex,
		Storage:  storage,
		Runner:   r,
		Notifier: newNotifier(cfg),
	}).Run(ctx)
}

// runBacktest is what the server's runner executes. The report is printed to
// stdout as JSON, logs go to stderr.
func runBacktest(ctx context.Context, cfg config.Config, storage db.Storage) error {
	kind, err := strategy.ParseKind(cfg.Strategy)
	if err != nil {
		return err
	}
	fast, slow := cfg.Fast, cfg.Slow
	if fast == 0 || slow == 0 {
		sc, err := config.LoadStrategyConfig(cfg.StrategyConfigDir, cfg.Strategy)
		if err != nil {
			return err
		}
		cf, cs, err := sc.Periods()
		if err != nil {
			return err
		}
		if fast == 0 {
			fast = cf
		}
		if slow == 0 {
			slow = cs
		}
	}

	var start, end time.Time
	if cfg.Start != "" || cfg.End != "" {
		if start, end, err = history.ParseRange(cfg.Start, cfg.End); err != nil {
			return err
		}
	}
	policy, err := backtest.ParseEndPolicy(cfg.EndPolicy)
	if err != nil {
		return err
	}
	mode := backtest.ModePrefix
	if cfg.Incremental {
		mode = backtest.ModeIncremental
	}
	// An exchange is only needed when candles are not read from a file.
	var fetcher backtest.Fetcher
	if cfg.HistoryFile == "" {
		ex, err := newExchange(cfg)
		if err != nil {
			return err
		}
		fetcher = ex
	}

	report, err := backtest.RunBacktest(ctx, backtest.Options{
		StrategyName: cfg.Strategy,
		Params:       strategy.Params{Kind: kind, Fast: fast, Slow: slow},
		Symbol:       cfg.Symbol,
		Timeframe:    cfg.Timeframe,
		HistoryFile:  cfg.HistoryFile,
		ResultsDir:   cfg.StrategiesDir(),
		Start:        start,
		End:          end,
		Mode:         mode,
		EndPolicy:    policy,
	}, storage, fetcher)
	if err != nil {
		return err
	}
	return printJSON(report)
}

// runDownload merges a range into the managed history file, the same way the
// history download endpoint does.
func runDownload(ctx context.Context, cfg config.Config, storage db.Storage) error {
	start, end, err := history.ParseRange(cfg.Start, cfg.End)
	if err != nil {
		return err
	}
	hm, err := history.NewManager(cfg.HistoryDir())
	if err != nil {
		return err
	}
	ex, err := newExchange(cfg)
	if err != nil {
		return err
	}
	plan, err := hm.PlanDownload(cfg.Symbol, cfg.Timeframe, start, end, cfg.ForceExtend)
	if err != nil {
		return err
	}
	if plan.NeedsConfirmation {
		return fmt.Errorf("range leaves a gap next to the stored %s to %s, rerun with -force-extend to download %s to %s",
			plan.Current.MinDate, plan.Current.MaxDate, plan.Start.Format(time.RFC3339), plan.End.Format(time.RFC3339))
	}

	candles, err := ex.FetchCandles(ctx, cfg.Symbol, cfg.Timeframe, plan.Start, plan.End)
	if err != nil {
		return err
	}
	for i := range candles {
		candles[i].Symbol = cfg.Symbol
		candles[i].Timeframe = cfg.Timeframe
	}
	if err := storage.SaveCandles(ctx, candles); err != nil {
		log.Printf("runDownload | not mirroring candles into storage: %v", err)
	}
	entry, err := hm.Store(cfg.Symbol, cfg.Timeframe, candles)
	if err != nil {
		return err
	}
	if err := storage.LogEvent(ctx, journal.New(journal.TypeDownload, "cli download", map[string]any{
		"symbol": cfg.Symbol, "timeframe": cfg.Timeframe, "bars": len(candles),
	})); err != nil {
		log.Printf("runDownload | failed to journal download: %v", err)
	}
	return printJSON(entry)
}

// runSummary prints the summary of a saved result file.
func runSummary(cfg config.Config) error {
	path := cfg.HistoryFile
	if path == "" {
		path = backtest.ResultPath(cfg.StrategiesDir(), cfg.Strategy, cfg.Symbol, cfg.Timeframe)
	}
	rows, err := backtest.LoadResults(path)
	if err != nil {
		return err
	}
	policy, err := backtest.ParseEndPolicy(cfg.EndPolicy)
	if err != nil {
		return err
	}
	return printJSON(backtest.Summarize(backtest.PairTrades(rows, policy)))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
