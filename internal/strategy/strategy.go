package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/crossover-backtester/internal/indicator"
)

var (
	ErrUnknownStrategyKind = errors.New("unknown strategy kind")
	ErrInvalidPeriod       = errors.New("invalid moving average period")
)

// Signal is the action a strategy emits for one bar. None marks a bar for
// which no crossover could be evaluated at all.
type Signal string

const (
	None Signal = ""
	Buy  Signal = "BUY"
	Sell Signal = "SELL"
	Hold Signal = "HOLD"
)

func (s Signal) String() string {
	if s == None {
		return "None"
	}
	return string(s)
}

// ParseSignal reads a signal column value. Anything that is not an action
// (empty, "None", "nan") is None.
func ParseSignal(s string) Signal {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy
	case "SELL":
		return Sell
	case "HOLD":
		return Hold
	default:
		return None
	}
}

// Kind selects the moving average a crossover is computed on.
type Kind int

const (
	KindSMA Kind = iota + 1
	KindEMA
)

// ParseKind maps a configured strategy name to its kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cross_sma", "sma":
		return KindSMA, nil
	case "cross_ema", "ema":
		return KindEMA, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategyKind, name)
}

func (k Kind) String() string {
	switch k {
	case KindSMA:
		return "cross_sma"
	case KindEMA:
		return "cross_ema"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) valid() bool {
	return k == KindSMA || k == KindEMA
}

// Average computes the kind's moving average over values.
func (k Kind) Average(values []float64, period int) []float64 {
	if k == KindEMA {
		return indicator.CalculateEMA(values, period)
	}
	return indicator.CalculateSMA(values, period)
}

// NewState returns the streaming form of Average.
func (k Kind) NewState(period int) indicator.MovingAverage {
	if k == KindEMA {
		return indicator.NewEMAState(period)
	}
	return indicator.NewSMAState(period)
}

// Params configures a crossover strategy.
type Params struct {
	Kind Kind `json:"kind" yaml:"kind"`
	Fast int  `json:"fast" yaml:"fast"`
	Slow int  `json:"slow" yaml:"slow"`
}

func (p Params) Validate() error {
	if !p.Kind.valid() {
		return fmt.Errorf("%w: %v", ErrUnknownStrategyKind, p.Kind)
	}
	if p.Fast <= 0 || p.Slow <= 0 {
		return fmt.Errorf("%w: fast=%d slow=%d, both must be positive", ErrInvalidPeriod, p.Fast, p.Slow)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("%w: fast=%d must be shorter than slow=%d", ErrInvalidPeriod, p.Fast, p.Slow)
	}
	return nil
}

// Strategy computes the signal of the last bar of a close-price prefix.
type Strategy interface {
	Name() string
	SignalAt(closes []float64) Signal
}

// Stepper evaluates a strategy one bar at a time.
type Stepper interface {
	Next(close float64) Signal
}

// Streaming is implemented by strategies that can also be evaluated
// incrementally with identical results.
type Streaming interface {
	Strategy
	Stepper() Stepper
}
