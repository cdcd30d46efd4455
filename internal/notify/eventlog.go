package notify

import (
	"context"
	"fmt"

	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/models"
	"fermenter_controller/internal/repository"
)

// EventLog persists every event and mirrors it to the structured log.
type EventLog struct {
	repo repository.EventRepo
	log  *logger.Logger
}

func NewEventLog(repo repository.EventRepo, log *logger.Logger) *EventLog {
	return &EventLog{repo: repo, log: log}
}

func (n *EventLog) Notify(ctx context.Context, e models.ControlEvent) error {
	n.log.Infow("control_event",
		"type", e.Type,
		"actuator", e.Actuator,
		"reason", e.Reason,
		"temperature_f", e.TemperatureF,
	)
	if err := n.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("append event %s: %w", e.EventID, err)
	}
	return nil
}
