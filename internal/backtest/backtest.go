// Package backtest
package backtest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/strategy"
)

// CandleStore is the part of the storage layer a backtest reads from and
// mirrors downloads into.
type CandleStore interface {
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe, source string, start, end time.Time) ([]candle.Candle, error)
}

// Fetcher downloads candles in [start, end) when nothing is stored locally.
type Fetcher interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error)
}

// Options describes one backtest run.
type Options struct {
	// StrategyName is the configured strategy name, used as the directory the
	// result file is written to.
	StrategyName string
	Params       strategy.Params
	Symbol       string
	Timeframe    string
	// HistoryFile is read instead of the store when set.
	HistoryFile string
	ResultsDir  string
	// Start and End bound the run to [Start, End). Zero leaves a side open,
	// both are required when candles come from the store.
	Start, End time.Time
	Mode       Mode
	EndPolicy  EndPolicy
}

// Report is what a finished run produced.
type Report struct {
	Strategy   string  `json:"strategy"`
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	Bars       int     `json:"bars"`
	ResultFile string  `json:"result_file"`
	TradesFile string  `json:"trades_file"`
	Summary    Summary `json:"summary"`
}

// Outcome is the in-memory result of simulating one series.
type Outcome struct {
	Rows    []Row
	Trades  []Trade
	Summary Summary
}

// Execute simulates strat over candles and pairs the resulting signals.
func Execute(strat strategy.Strategy, candles []candle.Candle, mode Mode, policy EndPolicy) (Outcome, error) {
	rows, err := NewSimulator(strat, mode).Run(candles)
	if err != nil {
		return Outcome{}, err
	}
	trades := PairTrades(rows, policy)
	return Outcome{Rows: rows, Trades: trades, Summary: Summarize(trades)}, nil
}

// RunBacktest loads the candles of opts, simulates the crossover strategy
// over them and writes the signal rows and the trade log next to each other
// under ResultsDir/StrategyName. store and fetcher may be nil when a history
// file is given.
func RunBacktest(ctx context.Context, opts Options, store CandleStore, fetcher Fetcher) (Report, error) {
	strat, err := strategy.New(opts.Params)
	if err != nil {
		return Report{}, err
	}
	name := opts.StrategyName
	if name == "" {
		name = opts.Params.Kind.String()
	}

	var candles []candle.Candle
	if opts.HistoryFile != "" {
		candles, err = loadHistoryFile(ctx, opts, store)
	} else {
		candles, err = loadBacktestCandles(ctx, opts, store, fetcher)
	}
	if err != nil {
		return Report{}, err
	}
	log.Printf("RunBacktest | Loaded %d candles for %s %s (%s, %s mode)",
		len(candles), opts.Symbol, opts.Timeframe, strat.Name(), opts.Mode)

	out, err := Execute(strat, candles, opts.Mode, opts.EndPolicy)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Strategy:   name,
		Symbol:     opts.Symbol,
		Timeframe:  opts.Timeframe,
		Bars:       len(candles),
		ResultFile: ResultPath(opts.ResultsDir, name, opts.Symbol, opts.Timeframe),
		Summary:    out.Summary,
	}
	report.TradesFile = tradesPath(report.ResultFile)

	if err := SaveResults(report.ResultFile, out.Rows); err != nil {
		return Report{}, fmt.Errorf("saving results: %w", err)
	}
	if err := saveTrades(report.TradesFile, out.Summary); err != nil {
		return Report{}, fmt.Errorf("saving trades: %w", err)
	}

	printBacktestResults(strat, out.Summary)
	log.Printf("RunBacktest | Results saved to %s", report.ResultFile)
	return report, nil
}

// loadHistoryFile reads a cached history file. The series is validated as
// stored before it is trimmed to the requested range.
func loadHistoryFile(ctx context.Context, opts Options, store CandleStore) ([]candle.Candle, error) {
	candles, err := candle.LoadFile(opts.HistoryFile)
	if err != nil {
		return nil, fmt.Errorf("loading history file %s: %w", opts.HistoryFile, err)
	}
	if err := candle.ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.HistoryFile, err)
	}
	candles = candle.Process(candles, opts.Start, opts.End)
	for i := range candles {
		candles[i].Symbol = opts.Symbol
		candles[i].Timeframe = opts.Timeframe
		candles[i].Source = "file"
	}

	if store != nil && len(candles) > 0 {
		// Mirroring is best effort, a history file may hold bars the store rejects.
		if err := store.SaveCandles(ctx, candles); err != nil {
			log.Printf("loadHistoryFile | Not mirroring %s into storage: %v", opts.HistoryFile, err)
		}
	}
	return candles, nil
}

// loadBacktestCandles reads candles from storage, downloading and storing
// them first when storage has none for the range.
func loadBacktestCandles(ctx context.Context, opts Options, store CandleStore, fetcher Fetcher) ([]candle.Candle, error) {
	if opts.Start.IsZero() || opts.End.IsZero() {
		return nil, errors.New("a history file or a start and end date is required")
	}
	if store == nil && fetcher == nil {
		return nil, errors.New("no history file, storage or exchange to load candles from")
	}

	var candles []candle.Candle
	if store != nil {
		var err error
		candles, err = store.GetCandles(ctx, opts.Symbol, opts.Timeframe, "", opts.Start, opts.End)
		if err != nil {
			return nil, fmt.Errorf("loadBacktestCandles | error loading candles from database: %w", err)
		}
	}
	if len(candles) > 0 {
		return candle.Process(candles, opts.Start, opts.End), nil
	}
	if fetcher == nil {
		return nil, fmt.Errorf("no candles stored for %s %s from %s to %s",
			opts.Symbol, opts.Timeframe, opts.Start.Format(time.RFC3339), opts.End.Format(time.RFC3339))
	}

	log.Printf("loadBacktestCandles | No historical candles found for %s, downloading from %s...", opts.Symbol, fetcher.Name())
	downloaded, err := fetcher.FetchCandles(ctx, opts.Symbol, opts.Timeframe, opts.Start, opts.End)
	if err != nil {
		return nil, fmt.Errorf("error fetching candles from %s to %s: %w",
			opts.Start.Format(time.RFC3339), opts.End.Format(time.RFC3339), err)
	}
	candles = candle.Process(downloaded, opts.Start, opts.End)
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles available for %s from %s to %s",
			opts.Symbol, opts.Start.Format(time.RFC3339), opts.End.Format(time.RFC3339))
	}

	if store != nil {
		saveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = store.SaveCandles(saveCtx, candles)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("error saving candles to database: %w", err)
		}
		log.Printf("loadBacktestCandles | Saved %d candles to database", len(candles))
	}
	return candles, nil
}

// printBacktestResults logs the summary and the first trades of a run.
func printBacktestResults(strat strategy.Strategy, s Summary) {
	log.Printf("Backtest Results (%s):", strat.Name())
	log.Printf("  Trades=%d, Wins=%d, Losses=%d, WinRate=%.2f%%",
		s.TotalTrades, s.WinningTrades, s.LosingTrades, s.WinRate)
	log.Printf("  TotalProfit=%.2f, AvgProfit=%.2f, ProfitFactor=%.2f",
		s.TotalProfit, s.AvgProfit, s.ProfitFactor)
	log.Printf("  MaxDrawdown=%.2f, MaxConsecWins=%d, MaxConsecLosses=%d",
		s.MaxDrawdown, s.MaxConsecWins, s.MaxConsecLosses)

	log.Println("Trade Log Summary (First 10 trades):")
	const maxTrades = 10
	for i, t := range s.Trades {
		if i >= maxTrades {
			log.Printf("  ... and %d more trades", len(s.Trades)-maxTrades)
			break
		}
		log.Printf("  Trade %d: Entry=%.2f at %s, Exit=%.2f at %s, PnL=%.2f, Reason=%s",
			i+1, t.EntryPrice, t.EntryTime.Format(time.RFC3339),
			t.ExitPrice, t.ExitTime.Format(time.RFC3339), t.Profit, t.Reason)
	}
}

func tradesPath(resultFile string) string {
	dir, file := filepath.Split(resultFile)
	return filepath.Join(dir, "trades_"+strings.TrimPrefix(file, "backtest_"))
}

// saveTrades writes the trade log with its running equity.
func saveTrades(filename string, s Summary) error {
	rows := [][]string{{"trade", "entry_time", "entry_price", "exit_time", "exit_price", "profit", "reason", "equity", "drawdown"}}
	for i, t := range s.Trades {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			candle.FormatTime(t.EntryTime),
			candle.FormatFloat(t.EntryPrice),
			candle.FormatTime(t.ExitTime),
			candle.FormatFloat(t.ExitPrice),
			candle.FormatFloat(t.Profit),
			t.Reason,
			candle.FormatFloat(s.EquityCurve[i]),
			candle.FormatFloat(s.DrawdownCurve[i]),
		})
	}
	return saveCSV(filename, rows)
}

// saveCSV saves data to a CSV file
func saveCSV(filename string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		log.Printf("Error creating CSV file %s: %v", filename, err)
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		log.Printf("Error writing to CSV file %s: %v", filename, err)
		return err
	}
	return nil
}
