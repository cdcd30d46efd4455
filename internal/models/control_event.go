package models

import "time"

// EventType classifies a control notification.
type EventType string

const (
	EventActuatorTurnedOn      EventType = "ACTUATOR_TURNED_ON"
	EventActuatorTurnedOff     EventType = "ACTUATOR_TURNED_OFF"
	EventSafetyShutdownEngaged EventType = "SAFETY_SHUTDOWN_ENGAGED"
	EventSafetyShutdownCleared EventType = "SAFETY_SHUTDOWN_CLEARED"
	EventCommandFailed         EventType = "COMMAND_FAILED"
)

// ControlEvent is a discrete transition emitted by the control core.
type ControlEvent struct {
	EventID      string    `json:"event_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	Type         EventType `json:"type"`
	Actuator     Actuator  `json:"actuator,omitempty"`
	Reason       string    `json:"reason"`
	LowLimit     *float64  `json:"low_limit,omitempty"`
	HighLimit    *float64  `json:"high_limit,omitempty"`
	TemperatureF *float64  `json:"temperature_f,omitempty"`
	Metadata     any       `json:"metadata,omitempty"`
}
