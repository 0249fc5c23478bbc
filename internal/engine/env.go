package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solquant/soltrader/internal/domain"
	"github.com/solquant/soltrader/internal/market"
)

// ErrEpisodeDone signals a step attempt on a finished episode. The caller must
// Reset before stepping again.
var ErrEpisodeDone = errors.New("engine: episode is done")

// continuousDirectionBand is the neutral band for the continuous direction
// component: values inside (-band, band) quantize to a flat target.
const continuousDirectionBand = 0.3

// StepResult is one step's outcome.
type StepResult struct {
	Observation    []float64
	Reward         float64
	Terminated     bool // ran out of bars
	Truncated      bool // portfolio value fell below the truncation floor
	Trade          *domain.TradeRecord
	Opened         bool // a position was entered this step (also set on a reversal)
	PortfolioValue float64
}

// Env is the simulation step machine: it walks a dataset bar by bar, executes
// actions through a Portfolio, scores each step and produces observations.
// One Env serves one run at a time; runs over the same dataset can share the
// dataset but never the Env.
type Env struct {
	data     *market.Dataset
	cfg      Config
	scorer   Scorer
	observed []string
	log      zerolog.Logger

	portfolio *Portfolio
	t         int // current bar index
	done      bool
	values    *valueWindow // trailing values for window-based rewards
	history   []float64    // full per-step portfolio value trace
	obs       []float64    // reused observation buffer
}

// NewEnv creates a step machine over the dataset. observed names the feature
// columns included in observations; every name must already exist on the
// dataset. rewardWindow sizes the trailing value window the scorer reads.
func NewEnv(d *market.Dataset, cfg Config, scorer Scorer, rewardWindow int, observed []string, log zerolog.Logger) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Len() <= cfg.WindowSize {
		return nil, fmt.Errorf("engine: need more than %d bars, have %d", cfg.WindowSize, d.Len())
	}
	if len(observed) == 0 {
		return nil, errors.New("engine: at least one observed feature is required")
	}
	for _, name := range observed {
		if d.Feature(name) == nil {
			return nil, fmt.Errorf("engine: dataset has no feature %q", name)
		}
	}

	portfolio, err := NewPortfolio(cfg)
	if err != nil {
		return nil, err
	}

	e := &Env{
		data:      d,
		cfg:       cfg,
		scorer:    scorer,
		observed:  observed,
		log:       log.With().Str("component", "env").Logger(),
		portfolio: portfolio,
		values:    newValueWindow(rewardWindow),
		history:   make([]float64, 0, d.Len()),
		obs:       make([]float64, len(observed)*cfg.WindowSize+statusSize),
	}
	e.reset()
	return e, nil
}

// Reset returns the machine to the first decidable bar with a fresh portfolio
// and returns the initial observation.
func (e *Env) Reset() []float64 {
	e.reset()
	return e.Observation()
}

func (e *Env) reset() {
	e.portfolio.Reset()
	e.t = e.cfg.WindowSize - 1
	e.done = false
	e.values.Reset()
	e.history = e.history[:0]
}

// Step executes one action at the current bar's close price and advances to
// the next bar. An armed stop that has been crossed fires first and overrides
// the caller's action for this step; the position never reopens on the bar
// that stopped it out.
func (e *Env) Step(action domain.Action) (StepResult, error) {
	if e.done {
		return StepResult{}, ErrEpisodeDone
	}

	price := e.data.Close(e.t)

	preValue := e.portfolio.MarkToMarket(price)
	e.values.Push(preValue)
	e.history = append(e.history, preValue)

	prevDir := e.portfolio.Direction()

	trade, err := e.portfolio.CheckStop(price, e.t)
	if err != nil {
		return StepResult{}, err
	}
	if trade != nil {
		e.log.Debug().
			Int("bar", e.t).
			Float64("price", price).
			Float64("net_profit", trade.NetProfit).
			Msg("Stop loss triggered")
	} else {
		target, size, stopDistance := e.decode(action)
		trade, err = e.portfolio.Apply(target, size, stopDistance, price, e.t)
		if err != nil {
			return StepResult{}, err
		}
	}

	dir := e.portfolio.Direction()
	opened := dir != targetFlat && dir != prevDir

	kind := StepHold
	switch {
	case trade != nil:
		kind = StepClosed
	case opened:
		kind = StepOpened
	}

	reward := e.scorer.Score(RewardContext{
		Kind:           kind,
		Closed:         trade,
		InitialCapital: e.cfg.InitialCapital,
		Values:         e.values,
	})

	e.t++
	value := e.portfolio.MarkToMarket(e.data.Close(e.t))

	terminated := e.t >= e.data.Len()-1
	truncated := value <= e.cfg.TruncationFraction*e.cfg.InitialCapital
	e.done = terminated || truncated

	return StepResult{
		Observation:    e.Observation(),
		Reward:         reward,
		Terminated:     terminated,
		Truncated:      truncated,
		Trade:          trade,
		Opened:         opened,
		PortfolioValue: value,
	}, nil
}

// ForceClose realizes any open position at the current bar's close price.
// Called after termination so every opened position yields a trade record.
func (e *Env) ForceClose() (*domain.TradeRecord, error) {
	price := e.data.Close(e.t)
	trade, err := e.portfolio.ForceClose(price, e.t, domain.ExitEndOfData)
	if err != nil {
		return nil, err
	}
	if trade != nil {
		e.log.Debug().
			Int("bar", e.t).
			Float64("net_profit", trade.NetProfit).
			Msg("Position closed at end of data")
	}
	return trade, nil
}

// decode maps either action shape onto the position engine's target triple.
func (e *Env) decode(action domain.Action) (target int, size, stopDistance float64) {
	switch a := action.(type) {
	case domain.DiscreteAction:
		switch a {
		case domain.Buy:
			return targetLong, e.cfg.MaxPositionSize, 0
		case domain.Sell:
			return targetFlat, 0, 0
		default:
			return e.portfolio.Direction(), e.portfolio.SizeFraction(), 0
		}
	case domain.ContinuousAction:
		// Direction quantizes to {-1, 0, 1}; the neutral band targets flat.
		switch {
		case a.Direction >= continuousDirectionBand:
			return targetLong, a.Size, a.StopDistance
		case a.Direction <= -continuousDirectionBand:
			return targetShort, a.Size, a.StopDistance
		default:
			return targetFlat, 0, 0
		}
	default:
		return e.portfolio.Direction(), e.portfolio.SizeFraction(), 0
	}
}

// statusSize is the number of portfolio status values appended to every
// observation.
const statusSize = 7

// Observation builds the observation at the current bar: each observed feature
// over the trailing window, min-max scaled to [-1, 1] per feature within the
// window (a constant window passes through unscaled), followed by the
// portfolio status block. The returned slice is reused across steps; callers
// that retain it must copy.
func (e *Env) Observation() []float64 {
	start := e.t - e.cfg.WindowSize + 1
	out := e.obs[:0]

	for _, name := range e.observed {
		col := e.data.Feature(name)[start : e.t+1]

		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}

		if hi == lo {
			out = append(out, col...)
			continue
		}
		for _, v := range col {
			out = append(out, 2*(v-lo)/(hi-lo)-1)
		}
	}

	price := e.data.Close(e.t)
	value := e.portfolio.MarkToMarket(price)

	var unrealized float64
	if entry := e.portfolio.EntryPrice(); entry > 0 {
		if e.portfolio.Direction() == targetLong {
			unrealized = (price - entry) / entry
		} else {
			unrealized = (entry - price) / entry
		}
	}

	var stopRel float64
	if stop, armed := e.portfolio.StopPrice(); armed && price > 0 {
		stopRel = (price - stop) / price
	}

	// Holdings enter as market value relative to initial capital (signed for
	// shorts), keeping the status block on the same scale as its neighbors.
	out = append(out,
		float64(e.portfolio.Direction()),
		e.portfolio.SizeFraction(),
		e.portfolio.Cash()/e.cfg.InitialCapital,
		e.portfolio.Holdings()*price/e.cfg.InitialCapital,
		unrealized,
		value/e.cfg.InitialCapital,
		stopRel,
	)

	e.obs = out
	return out
}

// ObservationSize returns the length of every observation vector.
func (e *Env) ObservationSize() int {
	return len(e.observed)*e.cfg.WindowSize + statusSize
}

// CurrentIndex returns the bar index the next action will execute against.
func (e *Env) CurrentIndex() int { return e.t }

// Done reports whether the episode has terminated or truncated.
func (e *Env) Done() bool { return e.done }

// PortfolioValue marks the portfolio to market at the current bar.
func (e *Env) PortfolioValue() float64 {
	return e.portfolio.MarkToMarket(e.data.Close(e.t))
}

// History returns the per-step portfolio value trace recorded so far. The
// slice is owned by the Env; callers that retain it must copy.
func (e *Env) History() []float64 { return e.history }

// Portfolio exposes the underlying position state for inspection.
func (e *Env) Portfolio() *Portfolio { return e.portfolio }
