package service

import (
	"context"
	"time"

	"fermenter_controller/internal/models"
	"fermenter_controller/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Control is the live controller: sensor ingest and the current snapshot.
type Control interface {
	Ingest(ctx context.Context, r models.SensorReading) (bool, error)
	Status() models.ControlStatus
}

// Settings reads and updates the stored control configuration.
type Settings interface {
	Get(ctx context.Context) (models.ControlConfig, error)
	Update(ctx context.Context, p ConfigParams) (models.ControlConfig, error)
}

// Monitoring exposes read-only controller state.
type Monitoring interface {
	GetStatus(ctx context.Context) (models.ControlStatus, error)
}

// EventLog exposes append-only control events with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ControlEvent, error)
}

// History exposes stored sensor readings.
type History interface {
	Readings(ctx context.Context, q ReadingQuery) ([]models.SensorReading, error)
}

// Simulator runs a background loop until ctx is canceled.
type Simulator interface {
	Run(ctx context.Context, tick time.Duration)
}

// Service aggregates the sub-services used by the HTTP layer.
type Service struct {
	Control
	Settings
	Monitoring
	EventLog
	History
	Authorization
}

// NewService wires the repository layer and the running controller into the
// services consumed by handlers.
func NewService(repos *repository.Repository, ctrl *ControlService, auth AuthOptions) *Service {
	return &Service{
		Control:       ctrl,
		Settings:      NewSettingsService(repos.ConfigRepo, ctrl.SeedConfig()),
		Monitoring:    NewMonitoringService(ctrl),
		EventLog:      NewEventLogService(repos.EventRepo),
		History:       NewHistoryService(repos.ReadingRepo),
		Authorization: NewAuthService(repos.Auth, auth),
	}
}
