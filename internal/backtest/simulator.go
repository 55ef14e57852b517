package backtest

import (
	"log"

	"github.com/amirphl/crossover-backtester/internal/candle"
	"github.com/amirphl/crossover-backtester/internal/strategy"
)

// Mode selects how the simulator evaluates the strategy at each bar.
type Mode int

const (
	// ModePrefix recomputes the strategy over every growing prefix of the
	// series. O(n^2), kept as the reference evaluation.
	ModePrefix Mode = iota
	// ModeIncremental feeds bars one at a time into the strategy's stepper.
	// O(n), same output as ModePrefix.
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeIncremental {
		return "incremental"
	}
	return "prefix"
}

// Row is a bar annotated with the signal the strategy produced using only
// that bar and the bars before it.
type Row struct {
	candle.Candle
	Signal strategy.Signal `json:"signal"`
}

// Simulator walks a price series forward bar by bar.
type Simulator struct {
	strategy strategy.Strategy
	mode     Mode
}

func NewSimulator(strat strategy.Strategy, mode Mode) *Simulator {
	return &Simulator{strategy: strat, mode: mode}
}

// Run produces one row per candle. Row 0 never carries a signal. An empty
// series yields a single "no data" row so callers always get output.
// The input must be strictly ordered by timestamp, otherwise Run returns an
// error wrapping candle.ErrMalformedSeries.
func (s *Simulator) Run(candles []candle.Candle) ([]Row, error) {
	if len(candles) == 0 {
		return []Row{{Signal: strategy.None}}, nil
	}
	if err := candle.ValidateSeries(candles); err != nil {
		return nil, err
	}

	if s.mode == ModeIncremental {
		if streaming, ok := s.strategy.(strategy.Streaming); ok {
			return s.runIncremental(streaming, candles), nil
		}
		log.Printf("Simulator.Run | %s has no incremental form, falling back to prefix mode", s.strategy.Name())
	}
	return s.runPrefix(candles), nil
}

func (s *Simulator) runPrefix(candles []candle.Candle) []Row {
	rows := make([]Row, len(candles))
	// closes is owned by the simulator and only ever appended to.
	closes := make([]float64, 0, len(candles))
	for i, c := range candles {
		closes = append(closes, c.Close)
		rows[i] = Row{Candle: c, Signal: strategy.None}
		if i > 0 {
			rows[i].Signal = s.strategy.SignalAt(closes[:i+1:i+1])
		}
	}
	return rows
}

func (s *Simulator) runIncremental(strat strategy.Streaming, candles []candle.Candle) []Row {
	rows := make([]Row, len(candles))
	stepper := strat.Stepper()
	for i, c := range candles {
		sig := stepper.Next(c.Close)
		if i == 0 {
			sig = strategy.None
		}
		rows[i] = Row{Candle: c, Signal: sig}
	}
	return rows
}

// Signals extracts the signal column of a row set.
func Signals(rows []Row) []strategy.Signal {
	out := make([]strategy.Signal, len(rows))
	for i, r := range rows {
		out[i] = r.Signal
	}
	return out
}
