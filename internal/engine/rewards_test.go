package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solquant/soltrader/internal/domain"
)

func windowOf(values ...float64) *valueWindow {
	w := newValueWindow(len(values))
	for _, v := range values {
		w.Push(v)
	}
	return w
}

func closedCtx(netProfit float64, values *valueWindow) RewardContext {
	return RewardContext{
		Kind:           StepClosed,
		Closed:         &domain.TradeRecord{NetProfit: netProfit},
		InitialCapital: 10_000,
		Values:         values,
	}
}

func holdCtx(values *valueWindow) RewardContext {
	return RewardContext{Kind: StepHold, InitialCapital: 10_000, Values: values}
}

func openedCtx(values *valueWindow) RewardContext {
	return RewardContext{Kind: StepOpened, InitialCapital: 10_000, Values: values}
}

func TestNewScorer(t *testing.T) {
	params := ScorerParams{Window: 20, HoldPenalty: 0.01, ProfitWeight: 1, RiskWeight: 0.5, DrawdownWeight: 0.5}

	for _, name := range []string{"profit", "incremental", "sharpe", "sortino", "multi"} {
		s, err := NewScorer(name, params)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
	}

	_, err := NewScorer("bogus", params)
	assert.Error(t, err)
}

func TestProfitScorer(t *testing.T) {
	s := NewProfitScorer(0.01)
	w := windowOf(10_000)

	assert.InDelta(t, 5.0, s.Score(closedCtx(500, w)), 1e-9)
	assert.InDelta(t, -2.0, s.Score(closedCtx(-200, w)), 1e-9)
	assert.InDelta(t, 0.1, s.Score(openedCtx(w)), 1e-9)
	assert.InDelta(t, -0.01, s.Score(holdCtx(w)), 1e-9)
}

func TestIncrementalScorer(t *testing.T) {
	s := NewIncrementalScorer(0.01)

	assert.Zero(t, s.Score(holdCtx(windowOf(10_000))))

	w := windowOf(10_000, 10_100)
	assert.InDelta(t, 1.0, s.Score(openedCtx(w)), 1e-9)
	assert.InDelta(t, 1.0-0.01, s.Score(holdCtx(w)), 1e-9)

	down := windowOf(10_000, 9_900)
	assert.InDelta(t, -1.0, s.Score(openedCtx(down)), 1e-9)
}

func TestSharpeScorerFallsBackBelowWindow(t *testing.T) {
	s := NewSharpeScorer(0, 5, 0.01)
	fallback := NewProfitScorer(0.01)
	w := windowOf(10_000, 10_050)

	for _, ctx := range []RewardContext{closedCtx(300, w), openedCtx(w), holdCtx(w)} {
		assert.Equal(t, fallback.Score(ctx), s.Score(ctx))
	}
}

func TestSharpeScorerFullWindow(t *testing.T) {
	s := NewSharpeScorer(0, 4, 0.01)

	// Constant returns have zero deviation: the ratio degrades to zero.
	flat := windowOf(10_000, 20_000, 40_000, 80_000)
	assert.InDelta(t, -0.01, s.Score(holdCtx(flat)), 1e-9)

	// Positive, uneven returns score positive.
	up := windowOf(10_000, 10_100, 10_150, 10_400)
	assert.Positive(t, s.Score(openedCtx(up)))

	// Negative drift scores negative.
	down := windowOf(10_000, 9_900, 9_850, 9_600)
	assert.Negative(t, s.Score(openedCtx(down)))
}

func TestSortinoScorer(t *testing.T) {
	s := NewSortinoScorer(0, 3, 0.01)

	// Below the window: profit fallback.
	assert.InDelta(t, 0.1, s.Score(openedCtx(windowOf(10_000))), 1e-9)

	// No downside returns: reward is the scaled mean return, kept finite.
	up := windowOf(10_000, 11_000, 12_100)
	assert.InDelta(t, 0.1*100, s.Score(openedCtx(up)), 1e-9)

	// Mixed returns with downside score by downside deviation.
	mixed := windowOf(10_000, 9_000, 9_900)
	assert.NotZero(t, s.Score(openedCtx(mixed)))
}

func TestMultiObjectiveScorer(t *testing.T) {
	_, err := NewMultiObjectiveScorer(0, 0, 0, 10, 0.01)
	assert.Error(t, err)

	s, err := NewMultiObjectiveScorer(1.0, 0.5, 0.5, 3, 0.01)
	require.NoError(t, err)

	// Warm-up: entry bonus or hold penalty only.
	assert.InDelta(t, 0.1, s.Score(openedCtx(windowOf(10_000))), 1e-9)
	assert.InDelta(t, -0.01, s.Score(holdCtx(windowOf(10_000))), 1e-9)

	// Weights are normalized, so profit contributes at half strength here.
	w := windowOf(10_000, 10_200)
	assert.InDelta(t, 0.5*2.0, s.Score(openedCtx(w)), 1e-9)

	// A drawdown inside the window drags the reward below pure profit.
	drawn := windowOf(10_000, 9_500, 9_700)
	clean := windowOf(10_000, 9_690, 9_700)
	assert.Less(t, s.Score(openedCtx(drawn)), s.Score(openedCtx(clean)))
}
