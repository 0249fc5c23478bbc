package formulas

import "math"

// SharpeRatio calculates the annualized Sharpe ratio from per-step returns.
//
//	Sharpe = (mean step return - periodic risk-free rate) / std of step returns
//	Annualized: Sharpe x sqrt(periodsPerYear)
//
// riskFreeRate is annual and converted to a periodic rate by dividing by
// periodsPerYear. Fewer than two returns, or zero volatility, yields 0 —
// the degenerate-input sentinel, callers never see NaN.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return 0
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev

	return sharpe * math.Sqrt(float64(periodsPerYear))
}

// SortinoRatio calculates the annualized Sortino ratio: the Sharpe ratio with
// the denominator restricted to the standard deviation of negative returns.
//
// Sentinels: fewer than two returns yields 0; no negative returns in the
// window yields +Inf (a loss-free series has no downside risk to divide by);
// a zero downside deviation with negative returns present yields 0.
func SortinoRatio(returns []float64, riskFreeRate float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	if len(downside) == 0 {
		return math.Inf(1)
	}

	downsideStd := StdDev(downside)
	if downsideStd == 0 {
		return 0
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sortino := (Mean(returns) - periodicRiskFree) / downsideStd

	return sortino * math.Sqrt(float64(periodsPerYear))
}
