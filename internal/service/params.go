package service

import "time"

// LogFilter supports event history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "" or one of the models.Event* types
}

// ReadingQuery selects stored sensor readings.
type ReadingQuery struct {
	SensorID string
	From     time.Time
	To       time.Time
	Limit    int
}

// ConfigParams is an operator update of the control configuration.
// Nil fields keep the stored value; ClearLimits removes both limits.
type ConfigParams struct {
	LowLimit        *float64
	HighLimit       *float64
	ClearLimits     bool
	HeatingEnabled  *bool
	CoolingEnabled  *bool
	BoundSensorID   *string
	ControlInterval *time.Duration
	HeaterAddress   *string
	CoolerAddress   *string
}
