package backtest

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/solquant/soltrader/internal/domain"
	"github.com/solquant/soltrader/internal/events"
	"github.com/solquant/soltrader/internal/market"
)

// WalkForwardSummary aggregates the out-of-sample windows of one validation.
type WalkForwardSummary struct {
	Windows         int     `json:"windows"`
	MeanTestReturn  float64 `json:"mean_test_return"`
	StdTestReturn   float64 `json:"std_test_return"`
	MeanSharpe      float64 `json:"mean_sharpe"`
	PositiveWindows int     `json:"positive_windows"`
	PositiveRate    float64 `json:"positive_rate"`
}

// WalkForwardResult holds the per-window results, each tagged with its
// train/test split, plus the aggregate summary.
type WalkForwardResult struct {
	Results []*domain.BacktestResult `json:"results"`
	Summary WalkForwardSummary       `json:"summary"`
}

// WalkForward validates a policy on rolling out-of-sample windows: the bar
// sequence is partitioned into consecutive train/test splits advancing by
// stepSize, and the policy runs on each test range only. The factory is
// invoked once per window with that window's test slice, so policies that
// walk the bars with their own index start fresh at the slice's first
// decidable bar instead of carrying state from a previous window. The train
// range is recorded on every result so a learning caller can fit on it before
// the test run; the validation itself never looks ahead of a window's test
// end.
//
// Window placement: a split fits while start+trainSize+testSize < N, with
// start advancing from 0 by stepSize. testSize must exceed the observation
// window so each test range supports at least one step.
func WalkForward(data *market.Dataset, factory PolicyFactory, opts Options, trainSize, testSize, stepSize int, ev *events.Manager, log zerolog.Logger) (*WalkForwardResult, error) {
	if trainSize <= 0 || testSize <= 0 || stepSize <= 0 {
		return nil, fmt.Errorf("backtest: walk-forward sizes must be positive, got train=%d test=%d step=%d", trainSize, testSize, stepSize)
	}
	if testSize <= opts.Engine.WindowSize {
		return nil, fmt.Errorf("backtest: test size %d must exceed observation window %d", testSize, opts.Engine.WindowSize)
	}
	if trainSize+testSize >= data.Len() {
		return nil, fmt.Errorf("backtest: %d bars cannot fit one train+test split of %d", data.Len(), trainSize+testSize)
	}

	wfLog := log.With().Str("component", "walkforward").Logger()

	var results []*domain.BacktestResult
	for start := 0; start+trainSize+testSize < data.Len(); start += stepSize {
		window := domain.WalkForwardWindow{
			TrainStart: start,
			TrainEnd:   start + trainSize,
			TestStart:  start + trainSize,
			TestEnd:    start + trainSize + testSize,
		}

		testData, err := data.Slice(window.TestStart, window.TestEnd)
		if err != nil {
			return nil, fmt.Errorf("backtest: window %d: %w", len(results), err)
		}

		b, err := New(testData, opts, ev, wfLog)
		if err != nil {
			return nil, fmt.Errorf("backtest: window %d: %w", len(results), err)
		}

		p, err := factory(testData, opts.Engine.WindowSize-1)
		if err != nil {
			return nil, fmt.Errorf("backtest: window %d: %w", len(results), err)
		}

		result, err := b.Run(p)
		if err != nil {
			return nil, fmt.Errorf("backtest: window %d: %w", len(results), err)
		}
		result.Window = &window
		results = append(results, result)

		wfLog.Info().
			Int("window", len(results)-1).
			Int("test_start", window.TestStart).
			Int("test_end", window.TestEnd).
			Float64("test_return", result.Metrics.TotalReturn).
			Msg("Walk-forward window completed")
	}

	return &WalkForwardResult{
		Results: results,
		Summary: summarizeWindows(results),
	}, nil
}

func summarizeWindows(results []*domain.BacktestResult) WalkForwardSummary {
	s := WalkForwardSummary{Windows: len(results)}
	if len(results) == 0 {
		return s
	}

	var sumReturn, sumSq, sumSharpe float64
	for _, r := range results {
		ret := r.Metrics.TotalReturn
		sumReturn += ret
		sumSq += ret * ret
		sumSharpe += r.Metrics.SharpeRatio
		if ret > 0 {
			s.PositiveWindows++
		}
	}

	n := float64(len(results))
	s.MeanTestReturn = sumReturn / n
	if variance := sumSq/n - s.MeanTestReturn*s.MeanTestReturn; variance > 0 {
		s.StdTestReturn = math.Sqrt(variance)
	}
	s.MeanSharpe = sumSharpe / n
	s.PositiveRate = float64(s.PositiveWindows) / n

	return s
}
