package backtest

import (
	"github.com/solquant/soltrader/internal/config"
	"github.com/solquant/soltrader/internal/engine"
)

// OptionsFromConfig maps the application configuration onto backtester
// options. Observed is left empty so the default observation applies.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		Engine: engine.Config{
			InitialCapital:     c.InitialCapital,
			CommissionRate:     c.CommissionRate,
			WindowSize:         c.WindowSize,
			MaxPositionSize:    c.MaxPositionSize,
			EnableShort:        c.EnableShort,
			MaxStopDistance:    c.MaxStopDistance,
			TruncationFraction: c.TruncationFraction,
		},
		RewardType: c.RewardType,
		Reward: engine.ScorerParams{
			RiskFreeRate:   c.RiskFreeRate,
			Window:         c.RewardWindow,
			HoldPenalty:    c.HoldPenalty,
			ProfitWeight:   c.ProfitWeight,
			RiskWeight:     c.RiskWeight,
			DrawdownWeight: c.DrawdownWeight,
		},
		MaxSteps:       c.MaxSteps,
		RiskFreeRate:   c.RiskFreeRate,
		PeriodsPerYear: c.PeriodsPerYear,
	}
}
