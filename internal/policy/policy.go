package policy

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/markcheno/go-talib"

	"github.com/solquant/soltrader/internal/backtest"
	"github.com/solquant/soltrader/internal/domain"
	"github.com/solquant/soltrader/internal/market"
)

// BuyAndHold enters long on the first step and never exits; the simulation
// realizes the position at the end of data. It doubles as the baseline the
// alpha metric is measured against.
func BuyAndHold() backtest.Policy {
	return func(obs []float64) domain.Action {
		return domain.Buy
	}
}

// Flat never trades. Useful for exercising the hold path and as a control in
// reward comparisons.
func Flat() backtest.Policy {
	return func(obs []float64) domain.Action {
		return domain.Hold
	}
}

// Random draws uniform discrete actions from a seeded source. Safe for
// concurrent use, deterministic per seed.
func Random(seed int64) backtest.Policy {
	rng := rand.New(rand.NewSource(seed))
	var mu sync.Mutex
	return func(obs []float64) domain.Action {
		mu.Lock()
		defer mu.Unlock()
		return domain.DiscreteAction(rng.Intn(3))
	}
}

// SMACrossover goes long while the fast moving average is above the slow one
// and exits when it drops below. The policy walks the dataset alongside the
// simulation: the i-th call decides at bar startIndex+i, so it serves exactly
// one run at a time and must be rebuilt per run.
func SMACrossover(d *market.Dataset, startIndex, fast, slow int) (backtest.Policy, error) {
	if fast <= 0 || slow <= fast {
		return nil, fmt.Errorf("policy: need 0 < fast < slow, got fast=%d slow=%d", fast, slow)
	}
	if d.Len() <= slow {
		return nil, fmt.Errorf("policy: %d bars cannot warm up a %d-bar average", d.Len(), slow)
	}

	closes := d.ClosePrices()
	fastMA := talib.Sma(closes, fast)
	slowMA := talib.Sma(closes, slow)

	i := startIndex - 1
	return func(obs []float64) domain.Action {
		i++
		if i >= d.Len() || i < slow {
			return domain.Hold
		}
		if fastMA[i] > slowMA[i] {
			return domain.Buy
		}
		return domain.Sell
	}, nil
}

// RSIReversion buys when the RSI drops below the oversold level and exits
// above the overbought level. Same single-run contract as SMACrossover.
func RSIReversion(d *market.Dataset, startIndex, period int, oversold, overbought float64) (backtest.Policy, error) {
	if period <= 1 {
		return nil, fmt.Errorf("policy: rsi period must exceed 1, got %d", period)
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("policy: oversold %v must be below overbought %v", oversold, overbought)
	}
	if d.Len() <= period {
		return nil, fmt.Errorf("policy: %d bars cannot warm up a %d-bar rsi", d.Len(), period)
	}

	rsi := talib.Rsi(d.ClosePrices(), period)

	i := startIndex - 1
	return func(obs []float64) domain.Action {
		i++
		if i >= d.Len() || i <= period {
			return domain.Hold
		}
		switch {
		case rsi[i] < oversold:
			return domain.Buy
		case rsi[i] > overbought:
			return domain.Sell
		default:
			return domain.Hold
		}
	}, nil
}

// NamedFactory defers Named construction to run time, so batch operations
// rebuild the policy for every run or walk-forward window instead of reusing
// one instance whose internal bar index has already advanced.
func NamedFactory(name string) backtest.PolicyFactory {
	return func(d *market.Dataset, startIndex int) (backtest.Policy, error) {
		return Named(name, d, startIndex)
	}
}

// Named builds a baseline policy by name for the CLI and the API. startIndex
// is the first decidable bar (the observation window size minus one).
func Named(name string, d *market.Dataset, startIndex int) (backtest.Policy, error) {
	switch name {
	case "buy_and_hold":
		return BuyAndHold(), nil
	case "flat":
		return Flat(), nil
	case "random":
		return Random(1), nil
	case "sma_crossover":
		return SMACrossover(d, startIndex, 20, 50)
	case "rsi_reversion":
		return RSIReversion(d, startIndex, 14, 30, 70)
	default:
		return nil, fmt.Errorf("policy: unknown policy %q", name)
	}
}
