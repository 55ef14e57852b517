package strategy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateExternalAverages(t *testing.T) {
	tests := []struct {
		name     string
		fast     []float64
		slow     []float64
		expected Signal
	}{
		{"Fast crosses above", []float64{1, 1, 1, 1, 4, 6}, []float64{1, 1, 1, 1, 5, 5}, Buy},
		{"Fast crosses below", []float64{1, 1, 1, 1, 6, 4}, []float64{1, 1, 1, 1, 5, 5}, Sell},
		{"Equal averages", []float64{1, 1, 1, 1, 5, 5}, []float64{1, 1, 1, 1, 5, 5}, Hold},
		{"Touching counts as a cross", []float64{4, 5}, []float64{5, 5}, Buy},
		{"Previous bar must be strictly apart", []float64{5, 6}, []float64{5, 5}, Hold},
		{"Single bar", []float64{1}, []float64{2}, Hold},
		{"Empty", nil, nil, Hold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.fast, tt.slow))
		})
	}
}

func TestCrossUndefinedIsHold(t *testing.T) {
	nan := math.NaN()
	assert.Equal(t, Hold, Cross(nan, 5, 6, 5))
	assert.Equal(t, Hold, Cross(4, nan, 6, 5))
	assert.Equal(t, Hold, Cross(4, 5, nan, 5))
	assert.Equal(t, Hold, Cross(4, 5, 6, nan))
	assert.Equal(t, Hold, CrossAt([]float64{1, 2}, []float64{2, 1}, 5))
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{
		"cross_sma": KindSMA,
		"SMA":       KindSMA,
		"cross_ema": KindEMA,
		" ema ":     KindEMA,
	} {
		got, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseKind("cross_wma")
	assert.True(t, errors.Is(err, ErrUnknownStrategyKind))
	assert.Equal(t, "cross_ema", KindEMA.String())
}

func TestNewValidatesParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		err    error
	}{
		{"valid", Params{Kind: KindSMA, Fast: 10, Slow: 30}, nil},
		{"unknown kind", Params{Kind: Kind(42), Fast: 10, Slow: 30}, ErrUnknownStrategyKind},
		{"zero kind", Params{Fast: 10, Slow: 30}, ErrUnknownStrategyKind},
		{"zero fast", Params{Kind: KindEMA, Fast: 0, Slow: 30}, ErrInvalidPeriod},
		{"negative slow", Params{Kind: KindEMA, Fast: 3, Slow: -1}, ErrInvalidPeriod},
		{"fast not shorter", Params{Kind: KindEMA, Fast: 30, Slow: 30}, ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.params)
			if tt.err == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.params, s.Params())
				return
			}
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

// fast SMA(2) crosses SMA(3) upward at index 5 and downward at index 7.
var crossingCloses = []float64{10, 10, 10, 9, 8, 12, 14, 9, 5}

func TestCrossoverSignalAtPrefixes(t *testing.T) {
	s, err := New(Params{Kind: KindSMA, Fast: 2, Slow: 3})
	require.NoError(t, err)
	assert.Equal(t, "cross_sma(2,3)", s.Name())

	expected := []Signal{Hold, Hold, Hold, Hold, Hold, Buy, Hold, Sell, Hold}
	for i := range crossingCloses {
		assert.Equal(t, expected[i], s.SignalAt(crossingCloses[:i+1]), "bar %d", i)
	}
}

func TestStepperMatchesSignalAt(t *testing.T) {
	for _, kind := range []Kind{KindSMA, KindEMA} {
		s, err := New(Params{Kind: kind, Fast: 2, Slow: 3})
		require.NoError(t, err)

		stepper := s.Stepper()
		for i, c := range crossingCloses {
			got := stepper.Next(c)
			if i == 0 {
				assert.Equal(t, None, got)
				continue
			}
			assert.Equal(t, s.SignalAt(crossingCloses[:i+1]), got, "%v bar %d", kind, i)
		}
	}
}

func TestParseSignal(t *testing.T) {
	assert.Equal(t, Buy, ParseSignal("BUY"))
	assert.Equal(t, Sell, ParseSignal(" sell"))
	assert.Equal(t, Hold, ParseSignal("HOLD"))
	assert.Equal(t, None, ParseSignal(""))
	assert.Equal(t, None, ParseSignal("nan"))
	assert.Equal(t, "None", None.String())
}
