// Package history manages the cached candle files under the history
// directory and the meta file that records the range each one covers.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/tfutils"
)

var ErrNotFound = errors.New("historical data not found")

const MetaFileName = "history_meta.json"

// Entry describes the managed file of one symbol/timeframe.
type Entry struct {
	Filename string `json:"filename"`
	MinDate  string `json:"min_date"`
	MaxDate  string `json:"max_date"`
}

// Span parses the entry's dates.
func (e Entry) Span() (first, last time.Time, err error) {
	if first, err = candle.ParseTime(e.MinDate); err != nil {
		return
	}
	last, err = candle.ParseTime(e.MaxDate)
	return
}

// Meta maps symbol -> timeframe -> entry.
type Meta map[string]map[string]Entry

// SymbolToFilename converts BTC/USDT to BTC-USDT.
func SymbolToFilename(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}

var unsafeDateChars = regexp.MustCompile(`[^0-9A-Za-z_-]`)

// cleanDate keeps the date part of an ISO timestamp and strips characters
// that do not belong in a file name.
func cleanDate(s string) string {
	if i := strings.Index(s, "T"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, " ", "_")
	return unsafeDateChars.ReplaceAllString(s, "")
}

// RangeFileName names the file holding one downloaded range.
func RangeFileName(symbol, timeframe, startDate, endDate string) string {
	return fmt.Sprintf("history_%s_%s_%s_%s.csv", SymbolToFilename(symbol), timeframe, cleanDate(startDate), cleanDate(endDate))
}

// ManagedFileName names the merged file of a symbol/timeframe.
func ManagedFileName(symbol, timeframe string) string {
	return fmt.Sprintf("history_%s_%s.csv", SymbolToFilename(symbol), timeframe)
}

// ParseRange parses request dates into a half-open range. A date without a
// time of day as end includes that whole day.
func ParseRange(startDate, endDate string) (start, end time.Time, err error) {
	if strings.TrimSpace(startDate) == "" || strings.TrimSpace(endDate) == "" {
		return start, end, errors.New("start and end date required")
	}
	if start, err = candle.ParseTime(startDate); err != nil {
		return start, end, fmt.Errorf("start date: %w", err)
	}
	if end, err = candle.ParseTime(endDate); err != nil {
		return start, end, fmt.Errorf("end date: %w", err)
	}
	if len(strings.TrimSpace(endDate)) == len("2006-01-02") {
		end = end.Add(24 * time.Hour)
	}
	if !end.After(start) {
		return start, end, fmt.Errorf("end date %s is not after start date %s", endDate, startDate)
	}
	return start, end, nil
}

// Manager owns the history directory. Meta updates are serialised.
type Manager struct {
	dir string
	mu  sync.Mutex
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) Dir() string { return m.dir }

func (m *Manager) RangePath(symbol, timeframe, startDate, endDate string) string {
	return filepath.Join(m.dir, RangeFileName(symbol, timeframe, startDate, endDate))
}

func (m *Manager) ManagedPath(symbol, timeframe string) string {
	return filepath.Join(m.dir, ManagedFileName(symbol, timeframe))
}

func (m *Manager) metaPath() string {
	return filepath.Join(m.dir, MetaFileName)
}

// LoadMeta reads the meta file; a missing file is an empty meta.
func (m *Manager) LoadMeta() (Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadMeta()
}

func (m *Manager) loadMeta() (Meta, error) {
	data, err := os.ReadFile(m.metaPath())
	if errors.Is(err, os.ErrNotExist) {
		return Meta{}, nil
	}
	if err != nil {
		return nil, err
	}
	meta := Meta{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", MetaFileName, err)
	}
	return meta, nil
}

func (m *Manager) saveMeta(meta Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.metaPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.metaPath())
}

// GetMeta returns the entry of symbol/timeframe.
func (m *Manager) GetMeta(symbol, timeframe string) (Entry, bool, error) {
	meta, err := m.LoadMeta()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := meta[symbol][timeframe]
	return e, ok, nil
}

// ListFiles returns the history CSV files in the directory, sorted.
func (m *Manager) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, "history_") && strings.HasSuffix(name, ".csv") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Store merges candles into the managed file of symbol/timeframe and records
// the resulting range in the meta file. Candles already on disk are replaced
// by new ones with the same timestamp.
func (m *Manager) Store(symbol, timeframe string, candles []candle.Candle) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.ManagedPath(symbol, timeframe)
	existing, err := candle.LoadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Entry{}, fmt.Errorf("reading %s: %w", path, err)
	}
	merged := candle.Merge(existing, candles)
	first, last, ok := candle.Span(merged)
	if !ok {
		return Entry{}, fmt.Errorf("%w: no candles for %s %s", ErrNotFound, symbol, timeframe)
	}
	if err := candle.SaveFile(path, merged); err != nil {
		return Entry{}, fmt.Errorf("writing %s: %w", path, err)
	}

	meta, err := m.loadMeta()
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Filename: filepath.Base(path),
		MinDate:  candle.FormatTime(first),
		MaxDate:  candle.FormatTime(last),
	}
	if meta[symbol] == nil {
		meta[symbol] = map[string]Entry{}
	}
	meta[symbol][timeframe] = entry
	if err := m.saveMeta(meta); err != nil {
		return Entry{}, err
	}
	log.Printf("history.Store | %s %s now covers %s to %s (%d bars)", symbol, timeframe, entry.MinDate, entry.MaxDate, len(merged))
	return entry, nil
}

// DeleteResult reports what Delete removed.
type DeleteResult struct {
	FileDeleted bool `json:"file_deleted"`
	MetaRemoved bool `json:"meta_removed"`
}

// Delete removes the managed file and meta entry of symbol/timeframe. It
// returns ErrNotFound when neither existed.
func (m *Manager) Delete(symbol, timeframe string) (DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res DeleteResult
	err := os.Remove(m.ManagedPath(symbol, timeframe))
	switch {
	case err == nil:
		res.FileDeleted = true
	case !errors.Is(err, os.ErrNotExist):
		return res, err
	}

	meta, err := m.loadMeta()
	if err != nil {
		return res, err
	}
	if _, ok := meta[symbol][timeframe]; ok {
		delete(meta[symbol], timeframe)
		if len(meta[symbol]) == 0 {
			delete(meta, symbol)
		}
		if err := m.saveMeta(meta); err != nil {
			return res, err
		}
		res.MetaRemoved = true
	}

	if !res.FileDeleted && !res.MetaRemoved {
		return res, fmt.Errorf("%w: %s %s", ErrNotFound, symbol, timeframe)
	}
	return res, nil
}

// Resolve finds the file to backtest symbol/timeframe over [start, end): the
// range file named after the request dates if present, otherwise the managed
// file when its recorded range covers the request.
func (m *Manager) Resolve(symbol, timeframe, startDate, endDate string) (string, error) {
	rangePath := m.RangePath(symbol, timeframe, startDate, endDate)
	if _, err := os.Stat(rangePath); err == nil {
		return rangePath, nil
	}

	start, end, err := ParseRange(startDate, endDate)
	if err != nil {
		return "", err
	}
	entry, ok, err := m.GetMeta(symbol, timeframe)
	if err != nil {
		return "", err
	}
	if ok {
		first, last, err := entry.Span()
		if err == nil && !start.Before(first) && !last.Before(end.Add(-tfutils.GetTimeframeDuration(timeframe))) {
			path := filepath.Join(m.dir, entry.Filename)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("%w for that period: %s", ErrNotFound, rangePath)
}
