package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// StatsRow holds lifetime stats for one pilot name
type StatsRow struct {
	Pilot    string  `json:"pilot"`
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	Crashes  int     `json:"crashes"`
	Survival int     `json:"survival"`
	Score    int     `json:"score"`
	Playtime float64 `json:"playtime"` // seconds
}

// statDelta is the per-pilot change accumulated from one analytics batch
type statDelta struct {
	Kills, Deaths, Crashes, Survival int
	Playtime                         float64
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pilot_stats (
		pilot TEXT PRIMARY KEY,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		crashes INTEGER NOT NULL DEFAULT 0,
		survival INTEGER NOT NULL DEFAULT 0,
		playtime REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		pilot TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_type ON analytics_events(event_type);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// GetSetting returns a stored setting, or "" if missing
func (db *DB) GetSetting(key string) string {
	var v string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil {
		return ""
	}
	return v
}

// SetSetting stores a setting, replacing any previous value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// applyStats adds one batch of deltas inside tx
func applyStats(tx *sql.Tx, deltas map[string]*statDelta) error {
	stmt, err := tx.Prepare(`
		INSERT INTO pilot_stats (pilot, kills, deaths, crashes, survival, playtime)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pilot) DO UPDATE SET
			kills = kills + excluded.kills,
			deaths = deaths + excluded.deaths,
			crashes = crashes + excluded.crashes,
			survival = survival + excluded.survival,
			playtime = playtime + excluded.playtime`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for pilot, d := range deltas {
		if _, err := stmt.Exec(pilot, d.Kills, d.Deaths, d.Crashes, d.Survival, d.Playtime); err != nil {
			return fmt.Errorf("update stats for %q: %w", pilot, err)
		}
	}
	return nil
}

// GetStats returns lifetime stats for a pilot, nil if never seen
func (db *DB) GetStats(pilot string) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT pilot, kills, deaths, crashes, survival, playtime FROM pilot_stats WHERE pilot = ?",
		pilot,
	)
	s := &StatsRow{}
	err := row.Scan(&s.Pilot, &s.Kills, &s.Deaths, &s.Crashes, &s.Survival, &s.Playtime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Score = s.Kills + s.Survival
	return s, nil
}

// GetLeaderboard returns top pilots sorted by the given field
func (db *DB) GetLeaderboard(orderBy string, limit int) ([]StatsRow, error) {
	// Whitelist valid order columns
	validCols := map[string]string{
		"kills": "kills", "deaths": "deaths", "survival": "survival",
		"playtime": "playtime", "score": "kills + survival",
	}
	col, ok := validCols[orderBy]
	if !ok {
		col = "kills + survival"
	}

	query := `SELECT pilot, kills, deaths, crashes, survival, playtime
		FROM pilot_stats
		ORDER BY ` + col + ` DESC, pilot LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatsRow
	for rows.Next() {
		var s StatsRow
		if err := rows.Scan(&s.Pilot, &s.Kills, &s.Deaths, &s.Crashes, &s.Survival, &s.Playtime); err != nil {
			return nil, err
		}
		s.Score = s.Kills + s.Survival
		result = append(result, s)
	}
	return result, rows.Err()
}

// EventCounts returns how many of each event type have been recorded
func (db *DB) EventCounts() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT event_type, COUNT(*) FROM analytics_events GROUP BY event_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, err
		}
		result[evtType] = count
	}
	return result, rows.Err()
}
