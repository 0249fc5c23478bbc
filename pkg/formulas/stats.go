package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the population standard deviation of a slice of float64 values.
// Population (not sample) deviation keeps single-run Sharpe values comparable to
// the rolling reward windows, which are also population based.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	mean := stat.Mean(data, nil)
	var ss float64
	for _, v := range data {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(data)))
}

// Variance calculates the population variance of a slice of float64 values
func Variance(data []float64) float64 {
	sd := StdDev(data)
	return sd * sd
}

// ValueReturns converts a value series (prices or portfolio values) to
// per-step percentage returns. Returns[i] = (v[i+1] - v[i]) / v[i].
// Steps with a zero denominator contribute a zero return.
func ValueReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility scales per-step return volatility by sqrt(periods per year).
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	if len(returns) == 0 {
		return 0
	}
	return StdDev(returns) * math.Sqrt(float64(periodsPerYear))
}
