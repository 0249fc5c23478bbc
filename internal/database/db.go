package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Use WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	return &DB{
		conn: conn,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Migrate creates the schema: one table for OHLCV bars, one for backtest runs
// and one for the per-run trade ledger.
func (db *DB) Migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol    TEXT    NOT NULL,
			timestamp INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL,
			PRIMARY KEY (symbol, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id           TEXT PRIMARY KEY,
			symbol           TEXT    NOT NULL,
			policy           TEXT    NOT NULL,
			reward           TEXT    NOT NULL,
			created_at       TEXT    NOT NULL,
			steps            INTEGER NOT NULL,
			final_value      REAL    NOT NULL,
			total_return     REAL    NOT NULL,
			sharpe_ratio     REAL    NOT NULL,
			max_drawdown     REAL    NOT NULL,
			completed_trades INTEGER NOT NULL,
			metrics          TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			side         TEXT    NOT NULL,
			entry_index  INTEGER NOT NULL,
			exit_index   INTEGER NOT NULL,
			entry_price  REAL    NOT NULL,
			exit_price   REAL    NOT NULL,
			quantity     REAL    NOT NULL,
			gross_profit REAL    NOT NULL,
			commission   REAL    NOT NULL,
			net_profit   REAL    NOT NULL,
			profit_pct   REAL    NOT NULL,
			exit_reason  TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol, created_at)`,
	}

	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}
