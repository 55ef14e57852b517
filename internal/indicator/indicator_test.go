package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSeries(t *testing.T, expected, actual []float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		if math.IsNaN(expected[i]) {
			assert.True(t, math.IsNaN(actual[i]), "index %d: expected NaN, got %v", i, actual[i])
			continue
		}
		assert.InDelta(t, expected[i], actual[i], 1e-9, "index %d", i)
	}
}

func TestCalculateSMA(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name     string
		values   []float64
		period   int
		expected []float64
	}{
		{
			name:     "Basic SMA",
			values:   []float64{1, 2, 3, 4, 5},
			period:   3,
			expected: []float64{nan, nan, 2, 3, 4},
		},
		{
			name:     "Period of one",
			values:   []float64{5, 6},
			period:   1,
			expected: []float64{5, 6},
		},
		{
			name:     "Series shorter than period",
			values:   []float64{1, 2},
			period:   3,
			expected: []float64{nan, nan},
		},
		{
			name:     "Empty series",
			values:   nil,
			period:   3,
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertSeries(t, tt.expected, CalculateSMA(tt.values, tt.period))
		})
	}

	assert.Nil(t, CalculateSMA([]float64{1, 2}, 0))
}

func TestCalculateEMA(t *testing.T) {
	nan := math.NaN()
	// period 3 => k = 0.5, seed = mean(2,4,6) = 4
	values := []float64{2, 4, 6, 8, 12}
	expected := []float64{nan, nan, 4, 6, 9}
	assertSeries(t, expected, CalculateEMA(values, 3))

	assertSeries(t, []float64{nan, nan}, CalculateEMA([]float64{1, 2}, 3))
	assert.Nil(t, CalculateEMA(values, -1))
}

func TestStreamingMatchesBatch(t *testing.T) {
	values := []float64{100, 102, 101, 99, 98, 103, 107, 111, 108, 104, 100, 97, 101, 105}

	for _, period := range []int{1, 2, 3, 5, 8} {
		sma := NewSMAState(period)
		ema := NewEMAState(period)
		gotSMA := make([]float64, len(values))
		gotEMA := make([]float64, len(values))
		for i, v := range values {
			gotSMA[i] = sma.Update(v)
			gotEMA[i] = ema.Update(v)
		}

		wantSMA := CalculateSMA(values, period)
		wantEMA := CalculateEMA(values, period)
		for i := range values {
			if math.IsNaN(wantSMA[i]) {
				assert.True(t, math.IsNaN(gotSMA[i]))
			} else {
				assert.Equal(t, wantSMA[i], gotSMA[i], "sma period %d index %d", period, i)
			}
			if math.IsNaN(wantEMA[i]) {
				assert.True(t, math.IsNaN(gotEMA[i]))
			} else {
				assert.Equal(t, wantEMA[i], gotEMA[i], "ema period %d index %d", period, i)
			}
		}
		assert.Equal(t, period, sma.Period())
		assert.Equal(t, period, ema.Period())
	}
}

func TestLastValue(t *testing.T) {
	assert.True(t, math.IsNaN(LastValue(nil)))
	assert.Equal(t, 3.0, LastValue([]float64{1, 2, 3}))
	assert.False(t, IsDefined(math.NaN()))
	assert.True(t, IsDefined(0))
}
