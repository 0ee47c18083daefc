// Package persistence provides SQLite-based storage for learned policies,
// run metadata and settled transactions.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/agentsim/internal/decision"
	"github.com/talgya/agentsim/internal/economy"
	"github.com/talgya/agentsim/internal/engine"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		snapshot_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		seed INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		ticks INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		seller INTEGER NOT NULL,
		sold INTEGER NOT NULL,
		sold_amount REAL NOT NULL,
		buyer INTEGER NOT NULL,
		bought INTEGER NOT NULL,
		bought_amount REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_run_tick ON transactions(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// LoadSnapshot implements decision.Store.
func (db *DB) LoadSnapshot(id string) (decision.Snapshot, error) {
	var raw string
	err := db.conn.Get(&raw, "SELECT snapshot_json FROM policies WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return decision.Snapshot{}, decision.ErrNotFound
	}
	if err != nil {
		return decision.Snapshot{}, fmt.Errorf("load policy %s: %w", id, err)
	}
	var snap decision.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return decision.Snapshot{}, fmt.Errorf("decode policy %s: %w", id, err)
	}
	return snap, nil
}

// SaveSnapshot implements decision.Store.
func (db *DB) SaveSnapshot(id string, snap decision.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode policy %s: %w", id, err)
	}
	_, err = db.conn.Exec(
		"INSERT OR REPLACE INTO policies (id, snapshot_json, updated_at) VALUES (?, ?, ?)",
		id, string(raw), time.Now().Unix(),
	)
	return err
}

// StartRun records a new run and returns its id.
func (db *DB) StartRun(scenario string, seed int64) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, scenario, seed, started_at) VALUES (?, ?, ?, ?)",
		id, scenario, seed, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	slog.Info("run started", "run", id, "scenario", scenario, "seed", seed)
	return id, nil
}

// FinishRun stamps a run with its final tick count.
func (db *DB) FinishRun(runID string, sim *engine.Simulation) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, ticks = ? WHERE id = ?",
		time.Now().Unix(), sim.Time, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if err := db.SaveMeta("last_run", runID); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.Itoa(sim.Time)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// Run is one row of the runs table.
type Run struct {
	ID         string        `db:"id" json:"id"`
	Scenario   string        `db:"scenario" json:"scenario"`
	Seed       int64         `db:"seed" json:"seed"`
	StartedAt  int64         `db:"started_at" json:"started_at"`
	FinishedAt sql.NullInt64 `db:"finished_at" json:"-"`
	Ticks      int           `db:"ticks" json:"ticks"`
}

// GetRun loads one run.
func (db *DB) GetRun(runID string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT id, scenario, seed, started_at, finished_at, ticks FROM runs WHERE id = ?", runID)
	return r, err
}

// SaveTransactions appends a batch of settled transactions to a run.
func (db *DB) SaveTransactions(runID string, txs []economy.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO transactions
		(run_id, tick, seller, sold, sold_amount, buyer, bought, bought_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range txs {
		_, err := stmt.Exec(runID, t.Time, t.Seller, int(t.Sold), t.SoldAmount, t.Buyer, int(t.Bought), t.BoughtAmount)
		if err != nil {
			return fmt.Errorf("insert transaction at tick %d: %w", t.Time, err)
		}
	}

	return tx.Commit()
}

// Transactions returns a run's transactions in settlement order, at most
// limit of them (0 = all).
func (db *DB) Transactions(runID string, limit int) ([]economy.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []economy.Transaction
	err := db.conn.Select(&out,
		`SELECT tick, seller, sold, sold_amount, buyer, bought, bought_amount
		 FROM transactions WHERE run_id = ? ORDER BY id LIMIT ?`,
		runID, limit,
	)
	return out, err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}
