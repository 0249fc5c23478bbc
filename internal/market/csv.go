package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/solquant/soltrader/internal/domain"
)

// LoadCSV reads bars from a CSV file with a header row containing at least
// timestamp, open, high, low, close, volume (any column order). Timestamps
// are unix milliseconds.
func LoadCSV(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bars file: %w", err)
	}
	defer f.Close()

	return ReadBars(f)
}

// ReadBars parses CSV bar rows from a reader.
func ReadBars(r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var bars []domain.Bar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		line++

		ts, err := strconv.ParseInt(record[cols["timestamp"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad timestamp: %w", line, err)
		}

		bar := domain.Bar{Timestamp: ts}
		for name, dst := range map[string]*float64{
			"open":   &bar.Open,
			"high":   &bar.High,
			"low":    &bar.Low,
			"close":  &bar.Close,
			"volume": &bar.Volume,
		} {
			v, err := strconv.ParseFloat(record[cols[name]], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad %s: %w", line, name, err)
			}
			*dst = v
		}

		bars = append(bars, bar)
	}

	return bars, nil
}
