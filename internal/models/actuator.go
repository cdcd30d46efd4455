package models

import "time"

// Actuator names a controlled smart plug.
type Actuator string

const (
	Heater Actuator = "heater"
	Cooler Actuator = "cooler"
)

// Actuators lists every controlled channel in a stable order.
var Actuators = []Actuator{Heater, Cooler}

// Valid reports whether a is a known actuator.
func (a Actuator) Valid() bool {
	return a == Heater || a == Cooler
}

// Action is the switch command sent to an actuator.
type Action string

const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

// ActionFor maps a desired on/off state to its command action.
func ActionFor(on bool) Action {
	if on {
		return ActionOn
	}
	return ActionOff
}

// PendingCommand is a command accepted for dispatch but not yet answered by the worker.
type PendingCommand struct {
	CommandID string    `json:"command_id"`
	Action    Action    `json:"action"`
	Since     time.Time `json:"since"`
}

// ActuatorState is the authoritative bookkeeping for one actuator.
// ConfirmedOn only ever changes on a successful command result.
type ActuatorState struct {
	Actuator      Actuator        `json:"actuator"`
	DesiredOn     bool            `json:"desired_on"`
	ConfirmedOn   bool            `json:"confirmed_on"`
	Pending       *PendingCommand `json:"pending,omitempty"`
	LastCommandAt time.Time       `json:"last_command_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	LastErrorAt   time.Time       `json:"last_error_at,omitempty"`
}

// Command is the message handed to the actuator worker.
type Command struct {
	ID       string    `json:"id"`
	Actuator Actuator  `json:"actuator"`
	Address  string    `json:"address"` // http://host, mqtt://topic or sim://name
	Action   Action    `json:"action"`
	IssuedAt time.Time `json:"issued_at"`
}

// CommandResult is the worker's answer to a Command.
type CommandResult struct {
	CommandID   string    `json:"command_id"`
	Actuator    Actuator  `json:"actuator"`
	Action      Action    `json:"action"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
