package formulas

// MaxDrawdown calculates the maximum peak-to-trough decline of a value series
// as a positive fraction (0.25 = 25% below a prior peak). The metric is a
// ratio against the running peak, so it is invariant under scaling the whole
// series by a positive factor. Fewer than two values yields 0.
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// MaxDrawdownDuration returns the length, in steps, of the longest
// consecutive run spent below a prior peak.
func MaxDrawdownDuration(values []float64) int {
	if len(values) < 2 {
		return 0
	}

	longest := 0
	current := 0
	peak := values[0]

	for _, v := range values[1:] {
		if v >= peak {
			peak = v
			current = 0
			continue
		}
		current++
		if current > longest {
			longest = current
		}
	}

	return longest
}
