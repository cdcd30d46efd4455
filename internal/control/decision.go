package control

import (
	"math"

	"fermenter_controller/internal/models"
)

// Decision is the desired on/off state of both channels.
type Decision struct {
	Heater bool
	Cooler bool
}

// On returns the desired state for a.
func (d Decision) On(a models.Actuator) bool {
	if a == models.Cooler {
		return d.Cooler
	}
	return d.Heater
}

// Off is the decision with every channel off.
var Off = Decision{}

// Decide maps the current temperature and configuration to desired actuator
// states. Limits are inclusive. Inside the band, with no temperature, or with a
// missing limit the previous decision is held; a disabled channel is always off.
func Decide(prev Decision, temp float64, hasTemp bool, cfg models.ControlConfig) Decision {
	next := prev
	if !cfg.HeatingEnabled {
		next.Heater = false
	}
	if !cfg.CoolingEnabled {
		next.Cooler = false
	}

	low, high, ok := cfg.Limits()
	if !ok || !hasTemp || math.IsNaN(temp) || math.IsInf(temp, 0) {
		return next
	}

	if cfg.HeatingEnabled {
		next.Heater = decideHeater(prev.Heater, temp, low, high)
	}
	if cfg.CoolingEnabled {
		next.Cooler = decideCooler(prev.Cooler, temp, low, high)
	}
	return next
}

// decideHeater: on at or below low, off at or above high. Off wins when both hold.
func decideHeater(prev bool, temp, low, high float64) bool {
	switch {
	case temp >= high:
		return false
	case temp <= low:
		return true
	default:
		return prev
	}
}

// decideCooler: on at or above high, off at or below low. Off wins when both hold.
func decideCooler(prev bool, temp, low, high float64) bool {
	switch {
	case temp <= low:
		return false
	case temp >= high:
		return true
	default:
		return prev
	}
}
