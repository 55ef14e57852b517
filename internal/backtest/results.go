package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/strategy"
)

// ResultHeader is the column set of a backtest result file.
var ResultHeader = append(append([]string{}, candle.Header...), "signal")

// ResultFileName is the file a backtest of symbol/timeframe is written to.
func ResultFileName(symbol, timeframe string) string {
	return fmt.Sprintf("backtest_%s_%s.csv", strings.ReplaceAll(symbol, "/", "-"), timeframe)
}

// ResultPath joins the strategies directory, the strategy name and ResultFileName.
func ResultPath(strategiesDir, strategyName, symbol, timeframe string) string {
	return filepath.Join(strategiesDir, strategyName, ResultFileName(symbol, timeframe))
}

// WriteResults writes rows with their signal column. The "no data" row of an
// empty run is written with empty fields.
func WriteResults(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultHeader); err != nil {
		return err
	}
	for _, r := range rows {
		var rec []string
		if r.Timestamp.IsZero() {
			rec = make([]string, len(ResultHeader))
		} else {
			rec = append(r.Record(), signalField(r.Signal))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func signalField(s strategy.Signal) string {
	if s == strategy.None {
		return ""
	}
	return string(s)
}

// ReadResults reads a file written by WriteResults.
func ReadResults(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := candle.NewColumns(header)
	if err != nil {
		return nil, err
	}
	if _, ok := cols["signal"]; !ok {
		return nil, errors.New(`missing column "signal"`)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(cols.Get(rec, "ts")) == "" {
			rows = append(rows, Row{Signal: strategy.None})
			continue
		}
		c, err := cols.Parse(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, Row{Candle: c, Signal: strategy.ParseSignal(cols.Get(rec, "signal"))})
	}
	return rows, nil
}

// SaveResults writes rows to path, creating parent directories.
func SaveResults(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteResults(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadResults reads a result file from disk.
func LoadResults(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadResults(f)
}
