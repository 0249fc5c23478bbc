package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/solquant/soltrader/internal/domain"
)

// RunSummary is the list-view projection of a stored run.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Symbol          string    `json:"symbol"`
	Policy          string    `json:"policy"`
	Reward          string    `json:"reward"`
	CreatedAt       time.Time `json:"created_at"`
	Steps           int       `json:"steps"`
	FinalValue      float64   `json:"final_value"`
	TotalReturn     float64   `json:"total_return"`
	SharpeRatio     float64   `json:"sharpe_ratio"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	CompletedTrades int       `json:"completed_trades"`
}

// ResultRepository persists completed backtest runs and their trade ledgers.
type ResultRepository struct {
	*BaseRepository
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *sql.DB, log zerolog.Logger) *ResultRepository {
	return &ResultRepository{
		BaseRepository: NewBase(db, log.With().Str("repo", "results").Logger()),
	}
}

// SaveResult stores one run and its trades atomically. The full metrics
// record goes in as JSON next to the columns the list view needs.
func (r *ResultRepository) SaveResult(result *domain.BacktestResult, symbol, policy, reward string) error {
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, symbol, policy, reward, created_at, steps,
			final_value, total_return, sharpe_ratio, max_drawdown, completed_trades, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID, symbol, policy, reward, time.Now().UTC().Format(time.RFC3339),
		result.Steps, result.FinalValue, result.Metrics.TotalReturn,
		result.Metrics.SharpeRatio, result.Metrics.MaxDrawdown,
		result.Metrics.CompletedTrades, string(metricsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO trades (run_id, side, entry_index, exit_index, entry_price,
			exit_price, quantity, gross_profit, commission, net_profit, profit_pct, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range result.Trades {
		_, err := stmt.Exec(result.RunID, string(t.Side), t.EntryIndex, t.ExitIndex,
			t.EntryPrice, t.ExitPrice, t.Quantity, t.GrossProfit, t.Commission,
			t.NetProfit, t.ProfitPct, string(t.ExitReason))
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", result.RunID, err)
	}

	r.log.Info().
		Str("run_id", result.RunID).
		Str("symbol", symbol).
		Int("trades", len(result.Trades)).
		Msg("Run saved")
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *ResultRepository) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT run_id, symbol, policy, reward, created_at, steps,
			final_value, total_return, sharpe_ratio, max_drawdown, completed_trades
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		var createdAt string
		if err := rows.Scan(&s.RunID, &s.Symbol, &s.Policy, &s.Reward, &createdAt, &s.Steps,
			&s.FinalValue, &s.TotalReturn, &s.SharpeRatio, &s.MaxDrawdown, &s.CompletedTrades); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// GetMetrics loads the full metrics record of one stored run.
func (r *ResultRepository) GetMetrics(runID string) (*domain.Metrics, error) {
	var metricsJSON string
	err := r.db.QueryRow(`SELECT metrics FROM runs WHERE run_id = ?`, runID).Scan(&metricsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}

	var m domain.Metrics
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics for %s: %w", runID, err)
	}
	return &m, nil
}

// GetTrades loads the trade ledger of one stored run in entry order.
func (r *ResultRepository) GetTrades(runID string) ([]domain.TradeRecord, error) {
	rows, err := r.db.Query(`
		SELECT side, entry_index, exit_index, entry_price, exit_price,
			quantity, gross_profit, commission, net_profit, profit_pct, exit_reason
		FROM trades
		WHERE run_id = ?
		ORDER BY entry_index ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side, reason string
		if err := rows.Scan(&side, &t.EntryIndex, &t.ExitIndex, &t.EntryPrice, &t.ExitPrice,
			&t.Quantity, &t.GrossProfit, &t.Commission, &t.NetProfit, &t.ProfitPct, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		t.ExitReason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}

	return trades, nil
}
