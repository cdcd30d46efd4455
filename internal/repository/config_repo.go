package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fermenter_controller/internal/models"
)

// ErrNoConfig is returned by Load before any configuration was saved.
var ErrNoConfig = errors.New("control config not found")

type ConfigSQLite struct {
	db *sql.DB
}

func NewConfigSQLite(db *sql.DB) *ConfigSQLite {
	return &ConfigSQLite{db: db}
}

const (
	controlConfigRowID = 1

	upsertConfigSQL = `
		INSERT INTO control_config (id, low_limit, high_limit, heating_enabled, cooling_enabled,
			bound_sensor_id, control_interval_s, heater_address, cooler_address, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			low_limit=excluded.low_limit,
			high_limit=excluded.high_limit,
			heating_enabled=excluded.heating_enabled,
			cooling_enabled=excluded.cooling_enabled,
			bound_sensor_id=excluded.bound_sensor_id,
			control_interval_s=excluded.control_interval_s,
			heater_address=excluded.heater_address,
			cooler_address=excluded.cooler_address,
			updated_at=excluded.updated_at
	`

	selectConfigSQL = `
		SELECT low_limit, high_limit, heating_enabled, cooling_enabled,
			bound_sensor_id, control_interval_s, heater_address, cooler_address, updated_at
		FROM control_config WHERE id=?
	`
)

// Save upserts the configuration row. A nil limit is stored as NULL.
func (r *ConfigSQLite) Save(ctx context.Context, c models.ControlConfig) error {
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := r.db.ExecContext(ctx, upsertConfigSQL,
		controlConfigRowID,
		nullFloat(c.LowLimit),
		nullFloat(c.HighLimit),
		c.HeatingEnabled,
		c.CoolingEnabled,
		c.BoundSensorID,
		int64(c.ControlInterval/time.Second),
		c.HeaterAddress,
		c.CoolerAddress,
		formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("save control config: %w", err)
	}
	return nil
}

// Load reads the configuration row. NULL limits come back as nil pointers.
func (r *ConfigSQLite) Load(ctx context.Context) (models.ControlConfig, error) {
	var (
		c          models.ControlConfig
		low, high  sql.NullFloat64
		intervalS  sql.NullInt64
		updatedStr sql.NullString
	)
	err := r.db.QueryRowContext(ctx, selectConfigSQL, controlConfigRowID).Scan(
		&low,
		&high,
		&c.HeatingEnabled,
		&c.CoolingEnabled,
		&c.BoundSensorID,
		&intervalS,
		&c.HeaterAddress,
		&c.CoolerAddress,
		&updatedStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ControlConfig{}, ErrNoConfig
		}
		return models.ControlConfig{}, fmt.Errorf("load control config: %w", err)
	}

	c.LowLimit = floatPtr(low)
	c.HighLimit = floatPtr(high)
	if intervalS.Valid && intervalS.Int64 > 0 {
		c.ControlInterval = time.Duration(intervalS.Int64) * time.Second
	}
	if updatedStr.Valid {
		// an unparseable timestamp is not worth failing the control cycle for
		if t, perr := parseTime(updatedStr.String); perr == nil {
			c.UpdatedAt = t
		}
	}
	return c, nil
}
