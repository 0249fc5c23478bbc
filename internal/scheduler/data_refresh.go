package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solquant/soltrader/internal/database/repositories"
	"github.com/solquant/soltrader/internal/events"
	"github.com/solquant/soltrader/internal/market"
)

// DataRefreshJob re-ingests the bars CSV into the database on a schedule, so
// an external process appending candles to the file keeps the stored series
// current. The upsert makes repeated runs converge.
type DataRefreshJob struct {
	log     zerolog.Logger
	events  *events.Manager
	bars    *repositories.BarRepository
	csvPath string
	symbol  string
}

// NewDataRefreshJob creates the refresh job. csvPath may be empty, in which
// case the job is a no-op.
func NewDataRefreshJob(log zerolog.Logger, ev *events.Manager, bars *repositories.BarRepository, csvPath, symbol string) *DataRefreshJob {
	return &DataRefreshJob{
		log:     log.With().Str("job", "data_refresh").Logger(),
		events:  ev,
		bars:    bars,
		csvPath: csvPath,
		symbol:  symbol,
	}
}

// Name returns the job name
func (j *DataRefreshJob) Name() string {
	return "data_refresh"
}

// Run ingests the CSV and upserts its bars.
func (j *DataRefreshJob) Run() error {
	if j.csvPath == "" {
		j.log.Debug().Msg("No bars CSV configured, skipping refresh")
		return nil
	}

	bars, err := market.LoadCSV(j.csvPath)
	if err != nil {
		return fmt.Errorf("data refresh: %w", err)
	}
	if err := j.bars.SaveBars(j.symbol, bars); err != nil {
		return fmt.Errorf("data refresh: %w", err)
	}

	latest, err := j.bars.LatestTimestamp(j.symbol)
	if err != nil {
		return fmt.Errorf("data refresh: %w", err)
	}

	j.events.Emit(events.DatasetRefreshed, "scheduler", map[string]interface{}{
		"symbol":           j.symbol,
		"bars":             len(bars),
		"latest_timestamp": latest,
	})
	j.log.Info().
		Str("symbol", j.symbol).
		Int("bars", len(bars)).
		Int64("latest_timestamp", latest).
		Msg("Bars refreshed")

	return nil
}
