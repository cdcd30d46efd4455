package repository

import (
	"context"
	"database/sql"
	"time"

	"fermenter_controller/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// ConfigRepo stores the single control configuration row.
type ConfigRepo interface {
	Save(ctx context.Context, c models.ControlConfig) error
	Load(ctx context.Context) (models.ControlConfig, error)
}

// EventRepo is the append-only control event log.
type EventRepo interface {
	Append(ctx context.Context, e models.ControlEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.ControlEvent, error)
}

// ReadingRepo keeps the history of accepted sensor readings.
type ReadingRepo interface {
	Append(ctx context.Context, r models.SensorReading) error
	List(ctx context.Context, f ReadingFilter) ([]models.SensorReading, error)
}

// ReadingFilter narrows a history query. Zero values mean "no bound".
type ReadingFilter struct {
	SensorID string
	From     time.Time
	To       time.Time
	Limit    int
}

type Repository struct {
	ConfigRepo  ConfigRepo
	EventRepo   EventRepo
	ReadingRepo ReadingRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		ConfigRepo:  NewConfigSQLite(db),
		EventRepo:   NewEventSQLite(db),
		ReadingRepo: NewReadingSQLite(db),
		Auth:        NewUserRepository(db),
	}
}

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
