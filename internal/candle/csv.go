package candle

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp layout of every CSV file the service writes.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the column set of a history file.
var Header = []string{"ts", "open", "high", "low", "close", "volume"}

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts the layouts found in history and result files as well as
// unix milliseconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatTime renders a timestamp in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatFloat renders a price the way the CSV files store it.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Record renders the OHLCV columns of a candle in Header order.
func (c Candle) Record() []string {
	return []string{
		FormatTime(c.Timestamp),
		FormatFloat(c.Open),
		FormatFloat(c.High),
		FormatFloat(c.Low),
		FormatFloat(c.Close),
		FormatFloat(c.Volume),
	}
}

// Columns maps header names to their index.
type Columns map[string]int

// NewColumns indexes a CSV header and checks that the OHLCV columns exist.
func NewColumns(header []string) (Columns, error) {
	cols := make(Columns, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range Header {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return cols, nil
}

// Parse builds a candle from a CSV record.
func (cols Columns) Parse(rec []string) (Candle, error) {
	var c Candle
	for _, name := range Header {
		if cols[name] >= len(rec) {
			return c, fmt.Errorf("record has %d fields, column %s missing", len(rec), name)
		}
	}
	ts, err := ParseTime(rec[cols["ts"]])
	if err != nil {
		return c, err
	}
	c.Timestamp = ts

	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
	for i, name := range Header[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[name]]), 64)
		if err != nil {
			return c, fmt.Errorf("column %s: %w", name, err)
		}
		*fields[i] = v
	}
	return c, nil
}

// Get returns the named column of a record, or "" when absent.
func (cols Columns) Get(rec []string, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// WriteCSV writes candles with a header row.
func WriteCSV(w io.Writer, candles []Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, c := range candles {
		if err := cw.Write(c.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a history file written by WriteCSV (extra columns are ignored).
func ReadCSV(r io.Reader) ([]Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := NewColumns(header)
	if err != nil {
		return nil, err
	}

	var candles []Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c, err := cols.Parse(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// SaveFile writes candles to path, creating parent directories. The file is
// written to a temporary sibling first and renamed into place.
func SaveFile(path string, candles []Candle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, candles); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile reads a history file from disk.
func LoadFile(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}
