package repositories

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solquant/soltrader/internal/domain"
)

// BarRepository persists and loads OHLCV bars per symbol.
type BarRepository struct {
	*BaseRepository
}

// NewBarRepository creates a new bar repository
func NewBarRepository(db *sql.DB, log zerolog.Logger) *BarRepository {
	return &BarRepository{
		BaseRepository: NewBase(db, log.With().Str("repo", "bars").Logger()),
	}
}

// SaveBars upserts a batch of bars in one transaction. Re-saving a timestamp
// overwrites the stored row, so refreshed candles converge.
func (r *BarRepository) SaveBars(symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO bars (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("failed to insert bar at %d: %w", b.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bars: %w", err)
	}

	r.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Bars saved")
	return nil
}

// LoadBars returns all stored bars for a symbol ordered by timestamp.
func (r *BarRepository) LoadBars(symbol string) ([]domain.Bar, error) {
	rows, err := r.db.Query(`
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ?
		ORDER BY timestamp ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bars: %w", err)
	}

	return bars, nil
}

// Count returns the number of stored bars for a symbol.
func (r *BarRepository) Count(symbol string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM bars WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars: %w", err)
	}
	return count, nil
}

// LatestTimestamp returns the newest stored bar timestamp for a symbol, or
// zero when none exist.
func (r *BarRepository) LatestTimestamp(symbol string) (int64, error) {
	var ts sql.NullInt64
	err := r.db.QueryRow(`SELECT MAX(timestamp) FROM bars WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest bar: %w", err)
	}
	return ts.Int64, nil
}
