package indicator

import "math"

// Indicator values are aligned with their input: a value that cannot be
// computed yet (warmup) is NaN.

// IsDefined reports whether v holds a computed value.
func IsDefined(v float64) bool {
	return !math.IsNaN(v)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// CalculateSMA returns the simple moving average of the trailing `period`
// values at every index; indexes below period-1 are NaN.
func CalculateSMA(values []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	out := nanSeries(len(values))
	var sum float64
	for i, v := range values {
		// same operation order as SMAState so streamed values match exactly
		if i >= period {
			sum -= values[i-period]
		}
		sum += v
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// CalculateEMA returns the exponential moving average with smoothing
// 2/(period+1), seeded at index period-1 with the SMA of the first period
// values. Indexes below period-1 are NaN.
func CalculateEMA(values []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	out := nanSeries(len(values))
	if len(values) < period {
		return out
	}

	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	out[period-1] = seed / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// LastValue returns the final element of a series, NaN for an empty one.
func LastValue(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
