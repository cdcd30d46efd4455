package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// one writer: the control cycle, the event sink and the API share it
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

const schemaControlConfig = `
CREATE TABLE IF NOT EXISTS control_config (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    low_limit REAL,
    high_limit REAL,
    heating_enabled BOOLEAN NOT NULL DEFAULT 0,
    cooling_enabled BOOLEAN NOT NULL DEFAULT 0,
    bound_sensor_id TEXT NOT NULL DEFAULT '',
    control_interval_s INTEGER,
    heater_address TEXT NOT NULL DEFAULT '',
    cooler_address TEXT NOT NULL DEFAULT '',
    updated_at TEXT
);
`

const schemaControlEvents = `
CREATE TABLE IF NOT EXISTS control_events (
    id TEXT PRIMARY KEY,
    occurred_at TEXT NOT NULL,
    type TEXT NOT NULL,
    actuator TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL,
    low_limit REAL,
    high_limit REAL,
    temperature_f REAL,
    meta TEXT
);
`

const indexControlEvents = `CREATE INDEX IF NOT EXISTS idx_control_events_occurred ON control_events (occurred_at);`

const schemaSensorReadings = `
CREATE TABLE IF NOT EXISTS sensor_readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sensor_id TEXT NOT NULL,
    recorded_at TEXT NOT NULL,
    temperature_f REAL NOT NULL,
    gravity REAL
);
`

const indexSensorReadings = `CREATE INDEX IF NOT EXISTS idx_sensor_readings_sensor_time ON sensor_readings (sensor_id, recorded_at);`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaControlConfig,
		schemaControlEvents,
		indexControlEvents,
		schemaSensorReadings,
		indexSensorReadings,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
