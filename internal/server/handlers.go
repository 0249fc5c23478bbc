package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/solquant/soltrader/internal/backtest"
	"github.com/solquant/soltrader/internal/policy"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "soltrader",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSystemStatus handles system status requests
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"status": "running",
		"memory": map[string]interface{}{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"num_gc":         m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleDataset describes the loaded dataset.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":          s.data.Symbol(),
		"bars":            s.data.Len(),
		"first_timestamp": s.data.Timestamp(0),
		"last_timestamp":  s.data.Timestamp(s.data.Len() - 1),
		"features":        s.data.FeatureNames(),
	})
}

// runRequest is the body of POST /api/backtest/run.
type runRequest struct {
	Policy   string `json:"policy"`
	Reward   string `json:"reward,omitempty"`   // defaults to the configured reward
	MaxSteps int    `json:"max_steps,omitempty"`
	Persist  bool   `json:"persist,omitempty"`
}

// handleRunBacktest runs a named baseline policy over the loaded dataset.
func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Policy == "" {
		s.writeError(w, http.StatusBadRequest, "policy is required")
		return
	}

	opts := backtest.OptionsFromConfig(s.cfg)
	if req.Reward != "" {
		opts.RewardType = req.Reward
	}
	if req.MaxSteps > 0 {
		opts.MaxSteps = req.MaxSteps
	}

	p, err := policy.Named(req.Policy, s.data, opts.Engine.WindowSize-1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := backtest.New(s.data, opts, s.events, s.log)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := b.Run(p)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.Persist {
		if err := s.results.SaveResult(result, s.data.Symbol(), req.Policy, opts.RewardType); err != nil {
			s.log.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to persist run")
		}
	}

	s.writeJSON(w, http.StatusOK, result)
}

// walkForwardRequest is the body of POST /api/backtest/walk-forward.
type walkForwardRequest struct {
	Policy    string `json:"policy"`
	Reward    string `json:"reward,omitempty"`
	TrainSize int    `json:"train_size"`
	TestSize  int    `json:"test_size"`
	StepSize  int    `json:"step_size"`
}

// handleWalkForward validates a named policy on rolling train/test windows.
func (s *Server) handleWalkForward(w http.ResponseWriter, r *http.Request) {
	var req walkForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Policy == "" {
		s.writeError(w, http.StatusBadRequest, "policy is required")
		return
	}

	opts := backtest.OptionsFromConfig(s.cfg)
	if req.Reward != "" {
		opts.RewardType = req.Reward
	}

	// The factory rebuilds the policy on every test window; stateful policies
	// like the crossover baselines track their own bar index and cannot be
	// shared across windows.
	result, err := backtest.WalkForward(s.data, policy.NamedFactory(req.Policy), opts, req.TrainSize, req.TestSize, req.StepSize, s.events, s.log)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleListResults lists stored runs, newest first.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := s.results.ListRuns(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleRunMetrics returns the full metrics record of one stored run.
func (s *Server) handleRunMetrics(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	metrics, err := s.results.GetMetrics(runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, metrics)
}

// handleRunTrades returns the trade ledger of one stored run.
func (s *Server) handleRunTrades(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	trades, err := s.results.GetTrades(runID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"trades": trades,
		"count":  len(trades),
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
