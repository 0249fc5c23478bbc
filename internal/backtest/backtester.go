package backtest

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/solquant/soltrader/internal/domain"
	"github.com/solquant/soltrader/internal/engine"
	"github.com/solquant/soltrader/internal/events"
	"github.com/solquant/soltrader/internal/features"
	"github.com/solquant/soltrader/internal/market"
)

// Policy maps an observation to the next action. The backtester injects the
// policy per call; it holds no module-level policy state.
type Policy func(obs []float64) domain.Action

// PolicyFactory builds a policy bound to the dataset it will run over;
// startIndex is the first decidable bar. Policies that walk the bars with
// their own index serve exactly one run, so batch operations (RunMany,
// WalkForward) take a factory and rebuild per run or per window.
type PolicyFactory func(d *market.Dataset, startIndex int) (Policy, error)

// FixedPolicy adapts a reusable policy to a PolicyFactory. The wrapped policy
// is shared across runs, so it must be stateless or safe for concurrent use.
func FixedPolicy(p Policy) PolicyFactory {
	return func(*market.Dataset, int) (Policy, error) {
		return p, nil
	}
}

// Options configures a backtester.
type Options struct {
	Engine         engine.Config
	RewardType     string
	Reward         engine.ScorerParams
	Observed       []string // defaults to features.DefaultObservation
	MaxSteps       int      // 0 = walk the whole dataset
	RiskFreeRate   float64
	PeriodsPerYear int
}

// Summary aggregates the outcomes of repeated runs.
type Summary struct {
	Runs            int     `json:"runs"`
	MeanReturn      float64 `json:"mean_return"`
	StdReturn       float64 `json:"std_return"`
	BestReturn      float64 `json:"best_return"`
	WorstReturn     float64 `json:"worst_return"`
	MeanSharpe      float64 `json:"mean_sharpe"`
	MeanMaxDrawdown float64 `json:"mean_max_drawdown"`
}

// Backtester runs a policy over a dataset and produces results with computed
// metrics. It is stateless across runs: every Run builds a fresh simulation,
// so one Backtester may serve concurrent runs over its shared dataset.
type Backtester struct {
	data   *market.Dataset
	opts   Options
	events *events.Manager
	log    zerolog.Logger
}

// New creates a backtester over the dataset. events may be nil to disable
// audit emission.
func New(data *market.Dataset, opts Options, ev *events.Manager, log zerolog.Logger) (*Backtester, error) {
	if err := opts.Engine.Validate(); err != nil {
		return nil, err
	}
	if opts.PeriodsPerYear <= 0 {
		return nil, fmt.Errorf("backtest: periods per year must be positive, got %d", opts.PeriodsPerYear)
	}
	if len(opts.Observed) == 0 {
		opts.Observed = features.DefaultObservation
	}

	// Fail on a missing feature now, not on the first run.
	for _, name := range opts.Observed {
		if data.Feature(name) == nil {
			return nil, fmt.Errorf("backtest: dataset has no feature %q", name)
		}
	}

	return &Backtester{
		data:   data,
		opts:   opts,
		events: ev,
		log:    log.With().Str("component", "backtest").Logger(),
	}, nil
}

// Run executes one full pass of the policy over the dataset. Any position
// still open when the bars run out is force-closed so the ledger accounts for
// every entry.
func (b *Backtester) Run(policy Policy) (*domain.BacktestResult, error) {
	scorer, err := engine.NewScorer(b.opts.RewardType, b.opts.Reward)
	if err != nil {
		return nil, err
	}

	env, err := engine.NewEnv(b.data, b.opts.Engine, scorer, b.opts.Reward.Window, b.opts.Observed, b.log)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	b.events.Emit(events.RunStarted, "backtest", map[string]interface{}{
		"run_id": runID,
		"symbol": b.data.Symbol(),
		"bars":   b.data.Len(),
		"reward": scorer.Name(),
	})

	obs := env.Reset()
	var (
		trades      []domain.TradeRecord
		totalReward float64
		steps       int
		truncated   bool
	)

	for !env.Done() {
		if b.opts.MaxSteps > 0 && steps >= b.opts.MaxSteps {
			break
		}

		res, err := env.Step(policy(obs))
		if err != nil {
			b.events.EmitError("backtest", err, map[string]interface{}{"run_id": runID, "step": steps})
			return nil, fmt.Errorf("backtest run %s: step %d: %w", runID, steps, err)
		}

		steps++
		totalReward += res.Reward
		obs = res.Observation
		truncated = truncated || res.Truncated

		if res.Trade != nil {
			trades = append(trades, *res.Trade)
			b.emitTrade(runID, res.Trade)
		}
		if res.Opened {
			b.events.Emit(events.TradeOpened, "backtest", map[string]interface{}{
				"run_id":      runID,
				"direction":   env.Portfolio().Direction(),
				"size":        env.Portfolio().SizeFraction(),
				"entry_price": env.Portfolio().EntryPrice(),
			})
		}
	}

	if trade, err := env.ForceClose(); err != nil {
		return nil, fmt.Errorf("backtest run %s: final close: %w", runID, err)
	} else if trade != nil {
		trades = append(trades, *trade)
		b.events.Emit(events.PositionForced, "backtest", map[string]interface{}{
			"run_id":     runID,
			"net_profit": trade.NetProfit,
		})
	}

	history := append([]float64(nil), env.History()...)
	history = append(history, env.PortfolioValue())

	start := b.opts.Engine.WindowSize - 1
	prices := b.data.ClosePrices()[start : env.CurrentIndex()+1]

	metrics := ComputeMetrics(history, trades, prices,
		b.opts.Engine.InitialCapital, b.opts.RiskFreeRate, b.opts.PeriodsPerYear)

	result := &domain.BacktestResult{
		RunID:            runID,
		Steps:            steps,
		TotalReward:      totalReward,
		FinalValue:       metrics.FinalValue,
		PortfolioHistory: history,
		Trades:           trades,
		Metrics:          metrics,
	}

	if truncated {
		b.events.Emit(events.RunTruncated, "backtest", map[string]interface{}{"run_id": runID, "steps": steps})
	}
	b.events.Emit(events.RunCompleted, "backtest", map[string]interface{}{
		"run_id":       runID,
		"steps":        steps,
		"final_value":  metrics.FinalValue,
		"total_return": metrics.TotalReturn,
		"trades":       len(trades),
	})
	b.log.Info().
		Str("run_id", runID).
		Int("steps", steps).
		Float64("final_value", metrics.FinalValue).
		Float64("total_return", metrics.TotalReturn).
		Int("trades", len(trades)).
		Msg("Backtest run completed")

	return result, nil
}

func (b *Backtester) emitTrade(runID string, trade *domain.TradeRecord) {
	eventType := events.TradeClosed
	if trade.ExitReason == domain.ExitStopLoss {
		eventType = events.StopLossHit
	}
	b.events.Emit(eventType, "backtest", map[string]interface{}{
		"run_id":      runID,
		"side":        string(trade.Side),
		"exit_reason": string(trade.ExitReason),
		"net_profit":  trade.NetProfit,
		"profit_pct":  trade.ProfitPct,
	})
}

// runManyWorkers bounds the concurrency of RunMany.
const runManyWorkers = 4

// RunMany executes the policy n times and aggregates the outcomes. Runs are
// independent and execute concurrently; the factory builds a fresh policy for
// each run so stateful policies never share an index across workers. Results
// come back in run order; a failed iteration aborts the batch with the
// iteration index in the error.
func (b *Backtester) RunMany(factory PolicyFactory, n int) ([]*domain.BacktestResult, Summary, error) {
	if n <= 0 {
		return nil, Summary{}, errors.New("backtest: run count must be positive")
	}

	results := make([]*domain.BacktestResult, n)
	errs := make([]error, n)
	sem := make(chan struct{}, runManyWorkers)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			p, err := factory(b.data, b.opts.Engine.WindowSize-1)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = b.Run(p)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, Summary{}, fmt.Errorf("backtest: iteration %d: %w", i, err)
		}
	}

	return results, summarize(results), nil
}

func summarize(results []*domain.BacktestResult) Summary {
	s := Summary{
		Runs:        len(results),
		BestReturn:  math.Inf(-1),
		WorstReturn: math.Inf(1),
	}

	var sumReturn, sumSq, sumSharpe, sumDD float64
	for _, r := range results {
		ret := r.Metrics.TotalReturn
		sumReturn += ret
		sumSq += ret * ret
		sumSharpe += r.Metrics.SharpeRatio
		sumDD += r.Metrics.MaxDrawdown
		if ret > s.BestReturn {
			s.BestReturn = ret
		}
		if ret < s.WorstReturn {
			s.WorstReturn = ret
		}
	}

	n := float64(len(results))
	s.MeanReturn = sumReturn / n
	if variance := sumSq/n - s.MeanReturn*s.MeanReturn; variance > 0 {
		s.StdReturn = math.Sqrt(variance)
	}
	s.MeanSharpe = sumSharpe / n
	s.MeanMaxDrawdown = sumDD / n

	return s
}
