package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueReturns(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []float64
	}{
		{
			name:   "simple series",
			values: []float64{100, 110, 99},
			want:   []float64{0.1, -0.1},
		},
		{
			name:   "single value",
			values: []float64{100},
			want:   []float64{},
		},
		{
			name:   "empty",
			values: []float64{},
			want:   []float64{},
		},
		{
			name:   "zero denominator skipped",
			values: []float64{0, 100},
			want:   []float64{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValueReturns(tt.values)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}

func TestStdDevPopulation(t *testing.T) {
	// Population std of {1,2,3,4} is sqrt(1.25).
	got := StdDev([]float64{1, 2, 3, 4})
	assert.InDelta(t, math.Sqrt(1.25), got, 1e-12)

	assert.Zero(t, StdDev([]float64{5}))
	assert.Zero(t, StdDev(nil))
}

func TestSharpeRatio(t *testing.T) {
	t.Run("zero volatility is sentinel zero", func(t *testing.T) {
		assert.Zero(t, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0, 252))
	})

	t.Run("insufficient data is sentinel zero", func(t *testing.T) {
		assert.Zero(t, SharpeRatio([]float64{0.01}, 0, 252))
		assert.Zero(t, SharpeRatio(nil, 0, 252))
	})

	t.Run("positive mean with volatility", func(t *testing.T) {
		returns := []float64{0.02, -0.01, 0.03, 0.01}
		got := SharpeRatio(returns, 0, 252)

		mean := Mean(returns)
		std := StdDev(returns)
		want := mean / std * math.Sqrt(252)
		assert.InDelta(t, want, got, 1e-12)
		assert.Positive(t, got)
	})

	t.Run("risk-free rate reduces the ratio", func(t *testing.T) {
		returns := []float64{0.02, -0.01, 0.03, 0.01}
		base := SharpeRatio(returns, 0, 252)
		withRf := SharpeRatio(returns, 0.05, 252)
		assert.Less(t, withRf, base)
	})
}

func TestSortinoRatio(t *testing.T) {
	t.Run("no downside returns is plus infinity", func(t *testing.T) {
		got := SortinoRatio([]float64{0.01, 0.02, 0.0}, 0, 252)
		assert.True(t, math.IsInf(got, 1))
	})

	t.Run("single negative return has zero downside deviation", func(t *testing.T) {
		assert.Zero(t, SortinoRatio([]float64{0.01, -0.02, 0.03}, 0, 252))
	})

	t.Run("mixed returns", func(t *testing.T) {
		returns := []float64{0.02, -0.01, 0.03, -0.03}
		got := SortinoRatio(returns, 0, 252)
		require.False(t, math.IsNaN(got))
		require.False(t, math.IsInf(got, 0))

		downside := StdDev([]float64{-0.01, -0.03})
		want := Mean(returns) / downside * math.Sqrt(252)
		assert.InDelta(t, want, got, 1e-12)
	})
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{
			name:   "monotonic up has no drawdown",
			values: []float64{100, 110, 120},
			want:   0,
		},
		{
			name:   "single trough",
			values: []float64{100, 80, 90},
			want:   0.2,
		},
		{
			name:   "later deeper trough wins",
			values: []float64{100, 90, 120, 60},
			want:   0.5,
		},
		{
			name:   "short series",
			values: []float64{100},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.values), 1e-12)
		})
	}
}

func TestMaxDrawdownScaleInvariance(t *testing.T) {
	values := []float64{100, 90, 120, 60, 110}
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v * 7.5
	}
	assert.InDelta(t, MaxDrawdown(values), MaxDrawdown(scaled), 1e-12)

	// An additive shift changes the percentage metric.
	shifted := make([]float64, len(values))
	for i, v := range values {
		shifted[i] = v + 1000
	}
	assert.Greater(t, math.Abs(MaxDrawdown(values)-MaxDrawdown(shifted)), 1e-6)
}

func TestMaxDrawdownDuration(t *testing.T) {
	// Below the 120 peak for 3 steps (60, 70, 80), then recovery above.
	values := []float64{100, 120, 60, 70, 80, 130, 125}
	assert.Equal(t, 3, MaxDrawdownDuration(values))

	assert.Zero(t, MaxDrawdownDuration([]float64{1, 2, 3}))
	assert.Zero(t, MaxDrawdownDuration([]float64{1}))
}
