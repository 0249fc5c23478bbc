package backtest

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkForwardWindows(t *testing.T) {
	d := makeDataset(t, 1000, func(i int) float64 {
		return 100 + 10*math.Sin(float64(i)/25)
	})

	result, err := WalkForward(d, FixedPolicy(alwaysBuy), testOptions(), 300, 100, 100, nil, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, result.Results, 6)
	assert.Equal(t, 6, result.Summary.Windows)

	for i, r := range result.Results {
		require.NotNil(t, r.Window)
		assert.Equal(t, i*100, r.Window.TrainStart)
		assert.Equal(t, i*100+300, r.Window.TrainEnd)
		assert.Equal(t, r.Window.TrainEnd, r.Window.TestStart)
		assert.Equal(t, r.Window.TestStart+100, r.Window.TestEnd)

		// Test ranges stay inside the data and never precede the first train
		// range's end.
		assert.GreaterOrEqual(t, r.Window.TestStart, 300)
		assert.LessOrEqual(t, r.Window.TestEnd, 1000)

		// Each window ran over its own 100-bar slice.
		assert.Equal(t, 100-testOptions().Engine.WindowSize, r.Steps)
	}

	// Consecutive test windows tile without overlap at stride == test size.
	for i := 1; i < len(result.Results); i++ {
		assert.Equal(t, result.Results[i-1].Window.TestEnd, result.Results[i].Window.TestStart)
	}
}

func TestWalkForwardSummary(t *testing.T) {
	d := makeDataset(t, 1000, func(i int) float64 { return 100 + float64(i)*0.1 })

	result, err := WalkForward(d, FixedPolicy(alwaysBuy), testOptions(), 300, 100, 100, nil, zerolog.Nop())
	require.NoError(t, err)

	// A steadily rising series makes every long-only test window profitable.
	assert.Equal(t, result.Summary.Windows, result.Summary.PositiveWindows)
	assert.InDelta(t, 1.0, result.Summary.PositiveRate, 1e-9)
	assert.Positive(t, result.Summary.MeanTestReturn)
}

func TestWalkForwardValidation(t *testing.T) {
	d := makeDataset(t, 200, func(i int) float64 { return 100 })
	opts := testOptions()

	_, err := WalkForward(d, FixedPolicy(alwaysHold), opts, 0, 100, 100, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = WalkForward(d, FixedPolicy(alwaysHold), opts, 100, opts.Engine.WindowSize, 100, nil, zerolog.Nop())
	assert.Error(t, err, "test window must exceed the observation window")

	_, err = WalkForward(d, FixedPolicy(alwaysHold), opts, 150, 50, 100, nil, zerolog.Nop())
	assert.Error(t, err, "one split cannot fit")
}
