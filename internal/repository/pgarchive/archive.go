// Package pgarchive mirrors accepted sensor readings into Postgres for
// long-term fermentation history.
package pgarchive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fermenter_controller/internal/models"
	"fermenter_controller/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sensor_readings (
    id BIGSERIAL PRIMARY KEY,
    sensor_id TEXT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL,
    temperature_f DOUBLE PRECISION NOT NULL,
    gravity DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS sensor_readings_sensor_time_idx ON sensor_readings (sensor_id, recorded_at DESC);
`

const insertSQL = `INSERT INTO sensor_readings (sensor_id, recorded_at, temperature_f, gravity) VALUES ($1, $2, $3, $4)`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Archive is a repository.ReadingRepo backed by Postgres.
type Archive struct {
	db   querier
	pool *pgxpool.Pool
}

var _ repository.ReadingRepo = (*Archive)(nil)

// Open connects to databaseURL and ensures the readings table exists.
func Open(ctx context.Context, databaseURL string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return &Archive{db: pool, pool: pool}, nil
}

// Close releases the pool.
func (a *Archive) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *Archive) Append(ctx context.Context, r models.SensorReading) error {
	_, err := a.db.Exec(ctx, insertSQL, r.SensorID, r.Timestamp.UTC(), r.TemperatureF, r.Gravity)
	if err != nil {
		return fmt.Errorf("archive reading for %s: %w", r.SensorID, err)
	}
	return nil
}

func (a *Archive) List(ctx context.Context, f repository.ReadingFilter) ([]models.SensorReading, error) {
	q, args := buildListQuery(f)
	rows, err := a.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []models.SensorReading
	for rows.Next() {
		var (
			r  models.SensorReading
			ts time.Time
		)
		if err := rows.Scan(&r.SensorID, &ts, &r.TemperatureF, &r.Gravity); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		r.Timestamp = ts.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

const defaultLimit = 500

func buildListQuery(f repository.ReadingFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if id := strings.TrimSpace(f.SensorID); id != "" {
		add("sensor_id = $%d", id)
	}
	if !f.From.IsZero() {
		add("recorded_at >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("recorded_at <= $%d", f.To.UTC())
	}

	q := "SELECT sensor_id, recorded_at, temperature_f, gravity FROM sensor_readings"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY recorded_at DESC LIMIT $%d", len(args))
	return q, args
}
