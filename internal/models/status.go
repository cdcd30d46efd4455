package models

import "time"

// ControlStatus is a read-only snapshot of the controller for the API.
type ControlStatus struct {
	ControlSensorID string          `json:"control_sensor_id,omitempty"`
	TemperatureF    *float64        `json:"temperature_f,omitempty"`
	LastReadingAt   time.Time       `json:"last_reading_at,omitempty"`
	FreshnessSec    float64         `json:"freshness_sec"`
	Stale           bool            `json:"stale"`
	SafetyShutdown  bool            `json:"safety_shutdown"`
	LastCycleAt     time.Time       `json:"last_cycle_at,omitempty"`
	Actuators       []ActuatorState `json:"actuators"`
	Sensors         []SensorReading `json:"sensors"`
}
