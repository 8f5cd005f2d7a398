// Package persistence writes finished runs to disk: flat report files for
// inspection and a SQLite archive for comparing runs.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/swarm-economy/internal/engine"
)

// DB wraps a SQLite connection holding the run archive.
type DB struct {
	conn *sqlx.DB
}

// RunRow is one archived run.
type RunRow struct {
	RunID       string    `db:"run_id" json:"run_id"`
	Mode        string    `db:"mode" json:"mode"`
	Seed        int64     `db:"seed" json:"seed"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	StoppedAt   time.Time `db:"stopped_at" json:"stopped_at"`
	Day         int       `db:"day" json:"day"`
	Tick        int64     `db:"tick" json:"tick"`
	Multiplier  float64   `db:"multiplier" json:"multiplier"`
	Population  int       `db:"population" json:"population"`
	Peak        int       `db:"peak" json:"peak"`
	TotalJoined int       `db:"total_joined" json:"total_joined"`
	TotalLeft   int       `db:"total_left" json:"total_left"`
	StatsJSON   string    `db:"stats_json" json:"-"`
}

// Stats decodes the archived counters.
func (r RunRow) Stats() (engine.SimStats, error) {
	var st engine.SimStats
	if err := json.Unmarshal([]byte(r.StatsJSON), &st); err != nil {
		return st, fmt.Errorf("decode stats for run %s: %w", r.RunID, err)
	}
	return st, nil
}

// EventRow is one archived event.
type EventRow struct {
	Tick        int64  `db:"tick" json:"tick"`
	Category    string `db:"category" json:"category"`
	Description string `db:"description" json:"description"`
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
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		seed INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		stopped_at TIMESTAMP NOT NULL,
		day INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		multiplier REAL NOT NULL,
		population INTEGER NOT NULL,
		peak INTEGER NOT NULL,
		total_joined INTEGER NOT NULL,
		total_left INTEGER NOT NULL,
		stats_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_snapshots (
		run_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		activities_started INTEGER NOT NULL,
		activities_completed INTEGER NOT NULL,
		rp_earned INTEGER NOT NULL,
		rp_spent INTEGER NOT NULL,
		events_fired INTEGER NOT NULL,
		joined INTEGER NOT NULL,
		left_count INTEGER NOT NULL,
		multiplier REAL NOT NULL,
		online INTEGER NOT NULL,
		total INTEGER NOT NULL,
		PRIMARY KEY (run_id, day)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun archives a finished run. Saving the same run twice replaces it.
func (db *DB) SaveRun(r *engine.Report) error {
	statsJSON, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"daily_snapshots", "events"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", r.RunID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO runs
		(run_id, mode, seed, started_at, stopped_at, day, tick, multiplier,
		 population, peak, total_joined, total_left, stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Mode, r.Seed, r.StartedAt.UTC(), r.StoppedAt.UTC(), r.Day, int64(r.Tick), r.Multiplier,
		r.Population.Final, r.Population.Peak, r.Population.TotalJoined, r.Population.TotalLeft,
		string(statsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	stmt, err := tx.Preparex(`INSERT INTO daily_snapshots
		(run_id, day, tick, activities_started, activities_completed, rp_earned, rp_spent,
		 events_fired, joined, left_count, multiplier, online, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range r.DailySnapshots {
		_, err := stmt.Exec(
			r.RunID, d.Day, int64(d.Tick), d.ActivitiesStarted, d.ActivitiesCompleted,
			d.RPEarned, d.RPSpent, d.EventsFired, d.Joined, d.Left,
			d.Multiplier, d.Online, d.Total,
		)
		if err != nil {
			return fmt.Errorf("insert day %d: %w", d.Day, err)
		}
	}

	for _, e := range r.Events {
		_, err := tx.Exec(
			"INSERT INTO events (run_id, tick, category, description) VALUES (?, ?, ?, ?)",
			r.RunID, int64(e.Tick), e.Category.String(), e.Description,
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run archived", "run_id", r.RunID, "days", len(r.DailySnapshots), "events", len(r.Events))
	return nil
}

// Runs returns the most recent archived runs, newest first.
func (db *DB) Runs(limit int) ([]RunRow, error) {
	var runs []RunRow
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY stopped_at DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// Run returns one archived run.
func (db *DB) Run(runID string) (RunRow, error) {
	var run RunRow
	err := db.conn.Get(&run, "SELECT * FROM runs WHERE run_id = ?", runID)
	return run, err
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]EventRow, error) {
	var events []EventRow
	err := db.conn.Select(&events,
		"SELECT tick, category, description FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return events, err
}

// DayCount returns how many daily snapshots a run archived.
func (db *DB) DayCount(runID string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM daily_snapshots WHERE run_id = ?", runID)
	return n, err
}
