package engine

import (
	"fmt"

	"github.com/solquant/soltrader/internal/domain"
	"github.com/solquant/soltrader/pkg/formulas"
)

// StepKind classifies what the position engine did during a step, as seen by
// the reward strategies.
type StepKind int

const (
	// StepHold: no position change (includes clamped-away actions).
	StepHold StepKind = iota
	// StepOpened: a new position was entered without closing one.
	StepOpened
	// StepClosed: a position was realized (signal, stop or reversal).
	StepClosed
)

// RewardContext carries one step's outcome to a scorer. Values holds the
// trailing portfolio values, most recent last, with the value sampled before
// the step's action as its final element.
type RewardContext struct {
	Kind           StepKind
	Closed         *domain.TradeRecord // non-nil only when Kind == StepClosed
	InitialCapital float64
	Values         *valueWindow
}

// Scorer maps one step's trade outcome and recent portfolio history to a
// scalar learning signal.
type Scorer interface {
	Name() string
	Score(ctx RewardContext) float64
}

// ScorerParams holds reward hyperparameters shared by the factory.
type ScorerParams struct {
	RiskFreeRate   float64
	Window         int
	HoldPenalty    float64
	ProfitWeight   float64
	RiskWeight     float64
	DrawdownWeight float64
}

// NewScorer builds the reward strategy named by rewardType. Names match the
// configuration values in internal/config.
func NewScorer(rewardType string, p ScorerParams) (Scorer, error) {
	switch rewardType {
	case "profit":
		return NewProfitScorer(p.HoldPenalty), nil
	case "incremental":
		return NewIncrementalScorer(p.HoldPenalty), nil
	case "sharpe":
		return NewSharpeScorer(p.RiskFreeRate, p.Window, p.HoldPenalty), nil
	case "sortino":
		return NewSortinoScorer(p.RiskFreeRate, p.Window, p.HoldPenalty), nil
	case "multi":
		return NewMultiObjectiveScorer(p.ProfitWeight, p.RiskWeight, p.DrawdownWeight, p.Window, p.HoldPenalty)
	default:
		return nil, fmt.Errorf("engine: unknown reward type %q", rewardType)
	}
}

// rewardScale stretches ratio-based rewards into a range comparable with the
// percentage-based profit reward.
const rewardScale = 10.0

// openBonus is the small positive signal for entering a position; it keeps
// policies from collapsing into permanent inactivity.
const openBonus = 0.1

// ProfitScorer rewards realized net profit, normalized to initial capital.
type ProfitScorer struct {
	holdPenalty float64
}

// NewProfitScorer creates the profit reward strategy.
func NewProfitScorer(holdPenalty float64) *ProfitScorer {
	return &ProfitScorer{holdPenalty: holdPenalty}
}

func (s *ProfitScorer) Name() string { return "profit" }

// Score returns the closed trade's net profit as a percentage of initial
// capital, the open bonus on an entry, and a small negative constant
// otherwise.
func (s *ProfitScorer) Score(ctx RewardContext) float64 {
	switch ctx.Kind {
	case StepClosed:
		return ctx.Closed.NetProfit / ctx.InitialCapital * 100
	case StepOpened:
		return openBonus
	default:
		return -s.holdPenalty
	}
}

// IncrementalScorer rewards the per-step portfolio value change, giving
// feedback on every step rather than only on closes.
type IncrementalScorer struct {
	holdPenalty float64
}

// NewIncrementalScorer creates the incremental reward strategy.
func NewIncrementalScorer(holdPenalty float64) *IncrementalScorer {
	return &IncrementalScorer{holdPenalty: holdPenalty}
}

func (s *IncrementalScorer) Name() string { return "incremental" }

func (s *IncrementalScorer) Score(ctx RewardContext) float64 {
	if ctx.Values.Len() < 2 {
		return 0
	}

	reward := (ctx.Values.Last() - ctx.Values.Prev()) / ctx.InitialCapital * 100
	if ctx.Kind == StepHold {
		reward -= s.holdPenalty
	}
	return reward
}

// SharpeScorer rewards the risk-adjusted return over a trailing window of
// per-step portfolio returns. Below the window length it behaves exactly like
// the profit reward.
type SharpeScorer struct {
	riskFreeRate float64
	window       int
	holdPenalty  float64
	fallback     *ProfitScorer

	scratch []float64
}

// NewSharpeScorer creates the Sharpe-ratio reward strategy.
func NewSharpeScorer(riskFreeRate float64, window int, holdPenalty float64) *SharpeScorer {
	return &SharpeScorer{
		riskFreeRate: riskFreeRate,
		window:       window,
		holdPenalty:  holdPenalty,
		fallback:     NewProfitScorer(holdPenalty),
		scratch:      make([]float64, 0, window),
	}
}

func (s *SharpeScorer) Name() string { return "sharpe" }

func (s *SharpeScorer) Score(ctx RewardContext) float64 {
	if ctx.Values.Len() < s.window {
		return s.fallback.Score(ctx)
	}

	returns := ctx.Values.Returns(s.scratch)
	s.scratch = returns
	if len(returns) < 2 {
		return -s.holdPenalty
	}

	std := formulas.StdDev(returns)
	sharpe := 0.0
	if std != 0 {
		sharpe = (formulas.Mean(returns) - s.riskFreeRate) / std
	}

	reward := sharpe * rewardScale
	if ctx.Kind == StepHold {
		reward -= s.holdPenalty
	}
	return reward
}

// SortinoScorer is the Sharpe reward with the denominator restricted to
// downside returns.
type SortinoScorer struct {
	riskFreeRate float64
	window       int
	holdPenalty  float64
	fallback     *ProfitScorer

	scratch  []float64
	downside []float64
}

// NewSortinoScorer creates the Sortino-ratio reward strategy.
func NewSortinoScorer(riskFreeRate float64, window int, holdPenalty float64) *SortinoScorer {
	return &SortinoScorer{
		riskFreeRate: riskFreeRate,
		window:       window,
		holdPenalty:  holdPenalty,
		fallback:     NewProfitScorer(holdPenalty),
		scratch:      make([]float64, 0, window),
		downside:     make([]float64, 0, window),
	}
}

func (s *SortinoScorer) Name() string { return "sortino" }

func (s *SortinoScorer) Score(ctx RewardContext) float64 {
	if ctx.Values.Len() < s.window {
		return s.fallback.Score(ctx)
	}

	returns := ctx.Values.Returns(s.scratch)
	s.scratch = returns
	if len(returns) < 2 {
		return -s.holdPenalty
	}

	mean := formulas.Mean(returns)

	s.downside = s.downside[:0]
	for _, r := range returns {
		if r < 0 {
			s.downside = append(s.downside, r)
		}
	}

	var sortino float64
	if len(s.downside) == 0 {
		// A loss-free window has zero downside deviation. The reward is the
		// scaled mean return rather than an infinity, so learning signals
		// stay finite.
		sortino = mean * rewardScale
	} else if std := formulas.StdDev(s.downside); std != 0 {
		sortino = (mean - s.riskFreeRate) / std
	}

	reward := sortino * rewardScale
	if ctx.Kind == StepHold {
		reward -= s.holdPenalty
	}
	return reward
}

// MultiObjectiveScorer combines profit, rolling volatility and rolling max
// drawdown into one weighted signal. Weights are normalized by their sum at
// construction, so they need not sum to 1.
type MultiObjectiveScorer struct {
	profitWeight   float64
	riskWeight     float64
	drawdownWeight float64
	window         int
	holdPenalty    float64

	scratchValues  []float64
	scratchReturns []float64
}

// NewMultiObjectiveScorer creates the multi-objective reward strategy.
func NewMultiObjectiveScorer(profitWeight, riskWeight, drawdownWeight float64, window int, holdPenalty float64) (*MultiObjectiveScorer, error) {
	total := profitWeight + riskWeight + drawdownWeight
	if total <= 0 {
		return nil, fmt.Errorf("engine: multi-objective weights must sum to a positive value")
	}

	return &MultiObjectiveScorer{
		profitWeight:   profitWeight / total,
		riskWeight:     riskWeight / total,
		drawdownWeight: drawdownWeight / total,
		window:         window,
		holdPenalty:    holdPenalty,
		scratchValues:  make([]float64, 0, window),
		scratchReturns: make([]float64, 0, window),
	}, nil
}

func (s *MultiObjectiveScorer) Name() string { return "multi" }

func (s *MultiObjectiveScorer) Score(ctx RewardContext) float64 {
	if ctx.Values.Len() < 2 {
		if ctx.Kind == StepHold {
			return -s.holdPenalty
		}
		return openBonus
	}

	profit := (ctx.Values.Last() - ctx.Values.Prev()) / ctx.InitialCapital * 100

	var risk, drawdown float64
	if ctx.Values.Len() >= s.window {
		returns := ctx.Values.Returns(s.scratchReturns)
		s.scratchReturns = returns
		risk = formulas.StdDev(returns) * 100

		values := ctx.Values.Values(s.scratchValues)
		s.scratchValues = values
		drawdown = formulas.MaxDrawdown(values) * 100
	}

	reward := s.profitWeight*profit - s.riskWeight*risk - s.drawdownWeight*drawdown
	if ctx.Kind == StepHold {
		reward -= s.holdPenalty
	}
	return reward
}
