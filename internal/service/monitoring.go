package service

import (
	"context"
	"time"

	"fermenter_controller/internal/models"
)

// statusSource is satisfied by ControlService.
type statusSource interface {
	Status() models.ControlStatus
}

type MonitoringService struct {
	source statusSource
}

func NewMonitoringService(source statusSource) *MonitoringService {
	return &MonitoringService{source: source}
}

// GetStatus returns the current controller snapshot with times in UTC.
// Before the first cycle both actuators are reported off and the sensor stale.
func (s *MonitoringService) GetStatus(ctx context.Context) (models.ControlStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.ControlStatus{}, err
	}
	st := s.source.Status()
	st.LastReadingAt = toUTC(st.LastReadingAt)
	st.LastCycleAt = toUTC(st.LastCycleAt)
	if len(st.Actuators) == 0 {
		st.Actuators = baselineActuators()
	}
	if st.Sensors == nil {
		st.Sensors = []models.SensorReading{}
	}
	return st, nil
}

func baselineActuators() []models.ActuatorState {
	out := make([]models.ActuatorState, 0, len(models.Actuators))
	for _, a := range models.Actuators {
		out = append(out, models.ActuatorState{Actuator: a})
	}
	return out
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
