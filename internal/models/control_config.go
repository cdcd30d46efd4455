package models

import "time"

// ControlConfig is the operator-owned control configuration.
// Limits are nullable; a nil limit means "no valid limit".
type ControlConfig struct {
	LowLimit        *float64      `json:"low_limit"`
	HighLimit       *float64      `json:"high_limit"`
	HeatingEnabled  bool          `json:"heating_enabled"`
	CoolingEnabled  bool          `json:"cooling_enabled"`
	BoundSensorID   string        `json:"bound_sensor_id,omitempty"`
	ControlInterval time.Duration `json:"control_interval"`
	HeaterAddress   string        `json:"heater_address,omitempty"`
	CoolerAddress   string        `json:"cooler_address,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at,omitempty"`
}

// Limits returns both limits when present.
func (c ControlConfig) Limits() (low, high float64, ok bool) {
	if c.LowLimit == nil || c.HighLimit == nil {
		return 0, 0, false
	}
	return *c.LowLimit, *c.HighLimit, true
}

// Enabled reports the enable flag for an actuator.
func (c ControlConfig) Enabled(a Actuator) bool {
	switch a {
	case Heater:
		return c.HeatingEnabled
	case Cooler:
		return c.CoolingEnabled
	}
	return false
}

// Address returns the plug address configured for an actuator.
func (c ControlConfig) Address(a Actuator) string {
	switch a {
	case Heater:
		return c.HeaterAddress
	case Cooler:
		return c.CoolerAddress
	}
	return ""
}
