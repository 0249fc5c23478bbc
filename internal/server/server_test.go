package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solquant/soltrader/internal/config"
	"github.com/solquant/soltrader/internal/database"
	"github.com/solquant/soltrader/internal/database/repositories"
	"github.com/solquant/soltrader/internal/domain"
	"github.com/solquant/soltrader/internal/features"
	"github.com/solquant/soltrader/internal/market"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	bars := make([]domain.Bar, 300)
	for i := range bars {
		c := 100 + float64(i)*0.2
		bars[i] = domain.Bar{
			Timestamp: int64(i+1) * 60_000,
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	data, err := market.NewDataset("SOLUSDT", bars)
	require.NoError(t, err)
	require.NoError(t, features.NewCalculator(zerolog.Nop()).Calculate(data))

	cfg := &config.Config{
		InitialCapital:     10_000,
		CommissionRate:     0.001,
		WindowSize:         30,
		MaxPositionSize:    1.0,
		EnableShort:        true,
		MaxStopDistance:    0.2,
		TruncationFraction: 0.2,
		MaxSteps:           1_000_000,
		RewardType:         config.RewardProfit,
		RewardWindow:       20,
		HoldPenalty:        0.01,
		ProfitWeight:       0.5,
		RiskWeight:         0.3,
		DrawdownWeight:     0.2,
		PeriodsPerYear:     252,
		DatabasePath:       "unused",
		Symbol:             "SOLUSDT",
		Port:               0,
	}
	require.NoError(t, cfg.Validate())

	return New(Config{
		Port:    cfg.Port,
		Log:     zerolog.Nop(),
		Cfg:     cfg,
		Data:    data,
		Results: repositories.NewResultRepository(db.Conn(), zerolog.Nop()),
		Bars:    repositories.NewBarRepository(db.Conn(), zerolog.Nop()),
		DevMode: true,
	})
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndDataset(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = doRequest(t, s, http.MethodGet, "/api/dataset/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ds map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ds))
	assert.Equal(t, "SOLUSDT", ds["symbol"])
	assert.EqualValues(t, 300, ds["bars"])
}

func TestRunBacktestEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/backtest/run", map[string]interface{}{
		"policy":  "buy_and_hold",
		"persist": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result domain.BacktestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.RunID)
	assert.Positive(t, result.Steps)
	assert.NotEmpty(t, result.Trades)

	// The persisted run is listable and its details load back.
	rec = doRequest(t, s, http.MethodGet, "/api/results/?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
		Runs  []repositories.RunSummary
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, result.RunID, list.Runs[0].RunID)

	rec = doRequest(t, s, http.MethodGet, "/api/results/"+result.RunID+"/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/results/"+result.RunID+"/trades", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunBacktestValidation(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/backtest/run", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/backtest/run", map[string]interface{}{
		"policy": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/backtest/run", map[string]interface{}{
		"policy": "buy_and_hold",
		"reward": "bogus",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWalkForwardEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/backtest/walk-forward", map[string]interface{}{
		"policy":     "buy_and_hold",
		"train_size": 100,
		"test_size":  80,
		"step_size":  60,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		Summary struct {
			Windows int `json:"windows"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Summary.Windows)

	rec = doRequest(t, s, http.MethodPost, "/api/backtest/walk-forward", map[string]interface{}{
		"policy":     "buy_and_hold",
		"train_size": 0,
		"test_size":  80,
		"step_size":  60,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/backtest/walk-forward", map[string]interface{}{
		"policy":     "bogus",
		"train_size": 100,
		"test_size":  80,
		"step_size":  60,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRunReturns404(t *testing.T) {
	s := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/results/missing/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
