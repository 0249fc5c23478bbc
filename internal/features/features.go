package features

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/solquant/soltrader/internal/market"
)

// DefaultObservation is the feature subset the simulation observes by default:
// raw OHLCV plus the indicators the decision policies key on.
var DefaultObservation = []string{
	"open", "high", "low", "close", "volume",
	"rsi_14", "macd", "bbands_upper", "bbands_lower",
	"returns", "volatility",
}

// Calculator computes the technical-indicator feature matrix for a dataset.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a feature calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{log: log.With().Str("component", "features").Logger()}
}

// Calculate attaches the full feature set to the dataset: raw OHLCV columns,
// trend (SMA/EMA/MACD), momentum (RSI), volatility (Bollinger, ATR, rolling
// std of returns) and volume features. Indicator warm-up regions come back
// from talib as zeros and stay zeros.
func (c *Calculator) Calculate(d *market.Dataset) error {
	closes := d.ClosePrices()
	highs := d.HighPrices()
	lows := d.LowPrices()
	volumes := d.Volumes()

	if d.Len() < 2 {
		return fmt.Errorf("features: need at least 2 bars, have %d", d.Len())
	}

	cols := map[string][]float64{
		"open":   d.OpenPrices(),
		"high":   highs,
		"low":    lows,
		"close":  closes,
		"volume": volumes,
	}

	// Trend
	if d.Len() > 20 {
		cols["sma_20"] = talib.Sma(closes, 20)
	}
	if d.Len() > 50 {
		cols["sma_50"] = talib.Sma(closes, 50)
	}
	if d.Len() > 200 {
		cols["sma_200"] = talib.Sma(closes, 200)
	}
	if d.Len() > 26 {
		cols["ema_12"] = talib.Ema(closes, 12)
		cols["ema_26"] = talib.Ema(closes, 26)

		macd, signal, hist := talib.Macd(closes, 12, 26, 9)
		cols["macd"] = macd
		cols["macd_signal"] = signal
		cols["macd_hist"] = hist
	}

	// Momentum
	if d.Len() > 14 {
		cols["rsi_14"] = talib.Rsi(closes, 14)
	}

	// Volatility
	if d.Len() > 20 {
		upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
		cols["bbands_upper"] = upper
		cols["bbands_middle"] = middle
		cols["bbands_lower"] = lower
		cols["bbands_bandwidth"] = bandwidth(upper, middle, lower)
	}
	if d.Len() > 14 {
		cols["atr"] = talib.Atr(highs, lows, closes, 14)
	}

	// Returns and rolling return volatility
	returns := stepReturns(closes)
	cols["returns"] = returns
	if d.Len() > 20 {
		cols["volatility"] = talib.StdDev(returns, 20, 1)
	}

	// Volume
	if d.Len() > 20 {
		volumeSMA := talib.Sma(volumes, 20)
		cols["volume_sma"] = volumeSMA
		cols["volume_ratio"] = ratio(volumes, volumeSMA)
	}

	// Price relative to trend
	if sma20, ok := cols["sma_20"]; ok {
		cols["price_to_sma20"] = relative(closes, sma20)
	}

	for name, values := range cols {
		if err := d.AddFeature(name, values); err != nil {
			return fmt.Errorf("features: %w", err)
		}
	}

	c.log.Debug().
		Int("bars", d.Len()).
		Int("features", len(cols)).
		Msg("Feature matrix calculated")

	return nil
}

// stepReturns is the per-bar close-to-close return, zero at the first bar to
// keep the column aligned with the bar sequence.
func stepReturns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			out[i] = (closes[i] - closes[i-1]) / closes[i-1]
		}
	}
	return out
}

func bandwidth(upper, middle, lower []float64) []float64 {
	out := make([]float64, len(middle))
	for i := range middle {
		if middle[i] != 0 {
			out[i] = (upper[i] - lower[i]) / middle[i]
		}
	}
	return out
}

func ratio(values, base []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if base[i] != 0 {
			out[i] = values[i] / base[i]
		}
	}
	return out
}

func relative(values, base []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if base[i] != 0 {
			out[i] = (values[i] - base[i]) / base[i]
		}
	}
	return out
}
