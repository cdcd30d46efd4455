package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fermenter_controller/internal/models"
)

type ReadingSQLite struct {
	db *sql.DB
}

func NewReadingSQLite(db *sql.DB) *ReadingSQLite { return &ReadingSQLite{db: db} }

const (
	insertReadingSQL = `INSERT INTO sensor_readings (sensor_id, recorded_at, temperature_f, gravity) VALUES (?, ?, ?, ?)`

	defaultReadingLimit = 500
	maxReadingLimit     = 5000
)

// Append stores one accepted reading.
func (r *ReadingSQLite) Append(ctx context.Context, rd models.SensorReading) error {
	_, err := r.db.ExecContext(ctx, insertReadingSQL,
		rd.SensorID,
		formatTime(rd.Timestamp),
		rd.TemperatureF,
		nullFloat(rd.Gravity),
	)
	if err != nil {
		return fmt.Errorf("append reading for %s: %w", rd.SensorID, err)
	}
	return nil
}

// List returns readings matching f, newest first.
func (r *ReadingSQLite) List(ctx context.Context, f ReadingFilter) ([]models.SensorReading, error) {
	var (
		conds []string
		args  []any
	)
	if id := strings.TrimSpace(f.SensorID); id != "" {
		conds = append(conds, "sensor_id = ?")
		args = append(args, id)
	}
	if !f.From.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "recorded_at <= ?")
		args = append(args, formatTime(f.To))
	}

	q := `SELECT sensor_id, recorded_at, temperature_f, gravity FROM sensor_readings`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY recorded_at DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var out []models.SensorReading
	for rows.Next() {
		var (
			rd       models.SensorReading
			recorded string
			gravity  sql.NullFloat64
		)
		if err := rows.Scan(&rd.SensorID, &recorded, &rd.TemperatureF, &gravity); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if rd.Timestamp, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recorded, err)
		}
		rd.Gravity = floatPtr(gravity)
		out = append(out, rd)
	}
	return out, rows.Err()
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultReadingLimit
	case n > maxReadingLimit:
		return maxReadingLimit
	default:
		return n
	}
}
