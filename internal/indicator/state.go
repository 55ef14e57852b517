package indicator

import "math"

// MovingAverage is a streaming moving average: Update consumes the next value
// and returns the average at that bar, NaN while warming up. It yields the
// same values as the batch functions without recomputing the series.
type MovingAverage interface {
	Update(value float64) float64
	Period() int
}

// SMAState keeps a ring buffer of the trailing window.
type SMAState struct {
	period int
	window []float64
	next   int
	count  int
	sum    float64
}

func NewSMAState(period int) *SMAState {
	return &SMAState{period: period, window: make([]float64, period)}
}

func (s *SMAState) Period() int { return s.period }

func (s *SMAState) Update(value float64) float64 {
	if s.period <= 0 {
		return math.NaN()
	}
	if s.count == s.period {
		s.sum -= s.window[s.next]
	} else {
		s.count++
	}
	s.window[s.next] = value
	s.sum += value
	s.next = (s.next + 1) % s.period

	if s.count < s.period {
		return math.NaN()
	}
	return s.sum / float64(s.period)
}

// EMAState is seeded by the SMA of its first period values.
type EMAState struct {
	period int
	k      float64
	seed   *SMAState
	value  float64
	ready  bool
}

func NewEMAState(period int) *EMAState {
	return &EMAState{
		period: period,
		k:      2.0 / float64(period+1),
		seed:   NewSMAState(period),
		value:  math.NaN(),
	}
}

func (e *EMAState) Period() int { return e.period }

func (e *EMAState) Update(value float64) float64 {
	if e.period <= 0 {
		return math.NaN()
	}
	if !e.ready {
		e.value = e.seed.Update(value)
		e.ready = IsDefined(e.value)
		return e.value
	}
	e.value = (value-e.value)*e.k + e.value
	return e.value
}
