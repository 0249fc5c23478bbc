package market

import (
	"fmt"
	"math"

	"github.com/solquant/soltrader/internal/domain"
)

// Dataset is an immutable, fully in-memory bar sequence with named feature
// columns. Storage is column-major so the simulation hot loop reads slices,
// not per-bar structs. A Dataset is safe to share across concurrent runs
// because nothing mutates it after construction.
type Dataset struct {
	symbol     string
	timestamps []int64
	open       []float64
	high       []float64
	low        []float64
	close      []float64
	volume     []float64

	featureNames []string // insertion order, stable across runs
	features     map[string][]float64
}

// NewDataset builds a Dataset from an ordered bar slice. It fails on an empty
// series, non-increasing timestamps, or non-finite/non-positive prices —
// these signal a data-quality problem upstream and are never masked.
func NewDataset(symbol string, bars []domain.Bar) (*Dataset, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("dataset %s: no bars", symbol)
	}

	d := &Dataset{
		symbol:     symbol,
		timestamps: make([]int64, len(bars)),
		open:       make([]float64, len(bars)),
		high:       make([]float64, len(bars)),
		low:        make([]float64, len(bars)),
		close:      make([]float64, len(bars)),
		volume:     make([]float64, len(bars)),
		features:   make(map[string][]float64),
	}

	for i, b := range bars {
		if i > 0 && b.Timestamp <= bars[i-1].Timestamp {
			return nil, fmt.Errorf("dataset %s: timestamp not strictly increasing at index %d", symbol, i)
		}
		for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
			if !isFinite(p) || p <= 0 {
				return nil, fmt.Errorf("dataset %s: invalid price at index %d", symbol, i)
			}
		}
		if !isFinite(b.Volume) || b.Volume < 0 {
			return nil, fmt.Errorf("dataset %s: invalid volume at index %d", symbol, i)
		}

		d.timestamps[i] = b.Timestamp
		d.open[i] = b.Open
		d.high[i] = b.High
		d.low[i] = b.Low
		d.close[i] = b.Close
		d.volume[i] = b.Volume
	}

	return d, nil
}

// AddFeature attaches a named feature column. Non-finite values (indicator
// warm-up NaNs) are replaced with zero so observations stay finite.
// Re-adding a name overwrites the previous column.
func (d *Dataset) AddFeature(name string, values []float64) error {
	if len(values) != len(d.timestamps) {
		return fmt.Errorf("feature %s: length %d does not match %d bars", name, len(values), len(d.timestamps))
	}

	col := make([]float64, len(values))
	for i, v := range values {
		if isFinite(v) {
			col[i] = v
		}
	}

	if _, exists := d.features[name]; !exists {
		d.featureNames = append(d.featureNames, name)
	}
	d.features[name] = col

	return nil
}

// Symbol returns the instrument identifier.
func (d *Dataset) Symbol() string { return d.symbol }

// Len returns the number of bars.
func (d *Dataset) Len() int { return len(d.timestamps) }

// Timestamp returns the timestamp at bar index i.
func (d *Dataset) Timestamp(i int) int64 { return d.timestamps[i] }

// Close returns the close price at bar index i.
func (d *Dataset) Close(i int) float64 { return d.close[i] }

// ClosePrices returns the full close-price column. Callers must not mutate it.
func (d *Dataset) ClosePrices() []float64 { return d.close }

// OpenPrices returns the full open-price column. Callers must not mutate it.
func (d *Dataset) OpenPrices() []float64 { return d.open }

// HighPrices returns the full high-price column. Callers must not mutate it.
func (d *Dataset) HighPrices() []float64 { return d.high }

// LowPrices returns the full low-price column. Callers must not mutate it.
func (d *Dataset) LowPrices() []float64 { return d.low }

// Volumes returns the full volume column. Callers must not mutate it.
func (d *Dataset) Volumes() []float64 { return d.volume }

// FeatureNames returns feature column names in insertion order.
func (d *Dataset) FeatureNames() []string { return d.featureNames }

// Feature returns a feature column by name, or nil if absent.
func (d *Dataset) Feature(name string) []float64 { return d.features[name] }

// Bar reconstructs the bar at index i.
func (d *Dataset) Bar(i int) domain.Bar {
	return domain.Bar{
		Timestamp: d.timestamps[i],
		Open:      d.open[i],
		High:      d.high[i],
		Low:       d.low[i],
		Close:     d.close[i],
		Volume:    d.volume[i],
	}
}

// Slice returns a view over the half-open bar range [start, end). The view
// shares the underlying columns; since datasets are read-only this is safe
// and keeps walk-forward window creation allocation-free.
func (d *Dataset) Slice(start, end int) (*Dataset, error) {
	if start < 0 || end > d.Len() || start >= end {
		return nil, fmt.Errorf("dataset %s: invalid slice [%d, %d) of %d bars", d.symbol, start, end, d.Len())
	}

	view := &Dataset{
		symbol:       d.symbol,
		timestamps:   d.timestamps[start:end],
		open:         d.open[start:end],
		high:         d.high[start:end],
		low:          d.low[start:end],
		close:        d.close[start:end],
		volume:       d.volume[start:end],
		featureNames: d.featureNames,
		features:     make(map[string][]float64, len(d.features)),
	}
	for name, col := range d.features {
		view.features[name] = col[start:end]
	}

	return view, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
