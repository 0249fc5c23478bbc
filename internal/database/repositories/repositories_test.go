package repositories

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solquant/soltrader/internal/database"
	"github.com/solquant/soltrader/internal/domain"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBarRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewBarRepository(db.Conn(), zerolog.Nop())

	bars := []domain.Bar{
		{Timestamp: 60_000, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000},
		{Timestamp: 120_000, Open: 100.5, High: 102, Low: 100, Close: 101.5, Volume: 1100},
	}
	require.NoError(t, repo.SaveBars("SOLUSDT", bars))

	loaded, err := repo.LoadBars("SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, bars, loaded)

	count, err := repo.Count("SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	latest, err := repo.LatestTimestamp("SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), latest)

	// Upsert: a refreshed candle overwrites, never duplicates.
	bars[1].Close = 101.7
	require.NoError(t, repo.SaveBars("SOLUSDT", bars[1:]))
	loaded, err = repo.LoadBars("SOLUSDT")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 101.7, loaded[1].Close)

	// Unknown symbol: empty, not an error.
	loaded, err = repo.LoadBars("BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestResultRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewResultRepository(db.Conn(), zerolog.Nop())

	result := &domain.BacktestResult{
		RunID:      uuid.NewString(),
		Steps:      55,
		FinalValue: 11_200,
		Trades: []domain.TradeRecord{
			{
				Side: domain.SideLong, EntryIndex: 4, ExitIndex: 30,
				EntryPrice: 100, ExitPrice: 112, Quantity: 99.9,
				GrossProfit: 1198.8, Commission: 21.2, NetProfit: 1177.6,
				ProfitPct: 0.12, ExitReason: domain.ExitSignal,
			},
		},
		Metrics: domain.Metrics{
			InitialCapital: 10_000,
			FinalValue:     11_200,
			TotalReturn:    0.12,
			SharpeRatio:    1.4,
			MaxDrawdown:    0.05,
			WinningTrades:  1,
		},
	}
	require.NoError(t, repo.SaveResult(result, "SOLUSDT", "sma_crossover", "profit"))

	runs, err := repo.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].RunID)
	assert.Equal(t, "sma_crossover", runs[0].Policy)
	assert.InDelta(t, 0.12, runs[0].TotalReturn, 1e-9)

	metrics, err := repo.GetMetrics(result.RunID)
	require.NoError(t, err)
	assert.InDelta(t, 1.4, metrics.SharpeRatio, 1e-9)
	assert.Equal(t, 1, metrics.WinningTrades)

	trades, err := repo.GetTrades(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Trades, trades)

	_, err = repo.GetMetrics("missing")
	assert.Error(t, err)
}
