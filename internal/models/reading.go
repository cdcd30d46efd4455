package models

import "time"

// SensorReading is a single broadcast from a wireless hydrometer.
type SensorReading struct {
	SensorID     string    `json:"sensor_id"`
	TemperatureF float64   `json:"temperature_f"`
	Gravity      *float64  `json:"gravity,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
