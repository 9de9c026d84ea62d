package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if necessary) the sqlite database backing the
// pipeline. WAL journaling keeps the commit path from blocking readers.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the schema. Idempotent.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			latitude REAL NOT NULL DEFAULT 0,
			longitude REAL NOT NULL DEFAULT 0,
			address TEXT NOT NULL DEFAULT '',
			thresholds_json TEXT,
			status TEXT NOT NULL DEFAULT 'normal',
			last_inspection DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS readings (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			sewage_level REAL NOT NULL,
			flow_rate REAL NOT NULL,
			methane_level REAL NOT NULL,
			temperature REAL NOT NULL,
			humidity REAL NOT NULL,
			battery_level REAL NOT NULL,
			thresholds_json TEXT NOT NULL,
			alert_types_json TEXT NOT NULL,
			status TEXT NOT NULL,
			ts DATETIME NOT NULL,
			FOREIGN KEY(device_id) REFERENCES devices(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings(device_id, ts DESC);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			reading_id TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			latitude REAL NOT NULL DEFAULT 0,
			longitude REAL NOT NULL DEFAULT 0,
			address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			resolution_notes TEXT NOT NULL DEFAULT '',
			actions_json TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			FOREIGN KEY(device_id) REFERENCES devices(id),
			FOREIGN KEY(reading_id) REFERENCES readings(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_device_status ON alerts(device_id, status);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
