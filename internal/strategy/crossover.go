package strategy

import (
	"fmt"
	"math"

	"github.com/amirphl/crossover-backtester/internal/indicator"
)

// Cross classifies the transition between two consecutive bars. The fast
// average must be strictly on one side at the previous bar and touch or pass
// the slow average at the current bar. Any undefined input yields Hold.
func Cross(prevFast, prevSlow, currFast, currSlow float64) Signal {
	if math.IsNaN(prevFast) || math.IsNaN(prevSlow) || math.IsNaN(currFast) || math.IsNaN(currSlow) {
		return Hold
	}
	if prevFast < prevSlow && currFast >= currSlow {
		return Buy
	}
	if prevFast > prevSlow && currFast <= currSlow {
		return Sell
	}
	return Hold
}

// CrossAt returns the crossover signal at index i of two aligned average
// series. Indexes without a previous bar, or outside either series, are Hold.
func CrossAt(fast, slow []float64, i int) Signal {
	if i < 1 || i >= len(fast) || i >= len(slow) {
		return Hold
	}
	return Cross(fast[i-1], slow[i-1], fast[i], slow[i])
}

// Evaluate returns the crossover signal at the last bar.
func Evaluate(fast, slow []float64) Signal {
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}
	return CrossAt(fast[:n], slow[:n], n-1)
}

// Crossover is the fast/slow moving average crossover strategy.
type Crossover struct {
	params Params
}

// New validates params and returns the strategy.
func New(params Params) (*Crossover, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Crossover{params: params}, nil
}

func (c *Crossover) Name() string {
	return fmt.Sprintf("%s(%d,%d)", c.params.Kind, c.params.Fast, c.params.Slow)
}

func (c *Crossover) Kind() Kind { return c.params.Kind }

func (c *Crossover) Params() Params { return c.params }

// Averages returns the fast and slow averages over closes.
func (c *Crossover) Averages(closes []float64) (fast, slow []float64) {
	return c.params.Kind.Average(closes, c.params.Fast), c.params.Kind.Average(closes, c.params.Slow)
}

// SignalAt recomputes both averages over closes and evaluates the last bar.
func (c *Crossover) SignalAt(closes []float64) Signal {
	return Evaluate(c.Averages(closes))
}

// Stepper returns fresh incremental state for a new series.
func (c *Crossover) Stepper() Stepper {
	return &crossoverStepper{
		fast: c.params.Kind.NewState(c.params.Fast),
		slow: c.params.Kind.NewState(c.params.Slow),
	}
}

type crossoverStepper struct {
	fast, slow         indicator.MovingAverage
	prevFast, prevSlow float64
	bars               int
}

// Next consumes one close. The first bar has no predecessor and yields None.
func (s *crossoverStepper) Next(close float64) Signal {
	f := s.fast.Update(close)
	sl := s.slow.Update(close)

	sig := None
	if s.bars > 0 {
		sig = Cross(s.prevFast, s.prevSlow, f, sl)
	}
	s.prevFast, s.prevSlow = f, sl
	s.bars++
	return sig
}
