package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fermenter_controller/internal/models"
)

var ErrInvalidPayload = errors.New("invalid sensor payload")

// Payload is the JSON body published by a hydrometer bridge or posted to the
// ingest endpoint. Timestamp is optional; receive time is used when absent or
// ahead of the receiver's clock.
type Payload struct {
	SensorID     string     `json:"sensor_id,omitempty"`
	TemperatureF *float64   `json:"temp_f"`
	Gravity      *float64   `json:"gravity,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// Reading validates p and converts it, falling back to sensorID and now.
func (p Payload) Reading(sensorID string, now time.Time) (models.SensorReading, error) {
	id := strings.TrimSpace(p.SensorID)
	if id == "" {
		id = sensorID
	}
	if id == "" {
		return models.SensorReading{}, fmt.Errorf("%w: missing sensor id", ErrInvalidPayload)
	}
	if p.TemperatureF == nil || math.IsNaN(*p.TemperatureF) || math.IsInf(*p.TemperatureF, 0) {
		return models.SensorReading{}, fmt.Errorf("%w: missing or non-finite temp_f", ErrInvalidPayload)
	}
	ts := now
	if p.Timestamp != nil && !p.Timestamp.IsZero() && !p.Timestamp.After(now) {
		ts = *p.Timestamp
	}
	return models.SensorReading{
		SensorID:     id,
		TemperatureF: *p.TemperatureF,
		Gravity:      p.Gravity,
		Timestamp:    ts.UTC(),
	}, nil
}

// Parse decodes an MQTT message body: a JSON Payload or a bare number
// in degrees Fahrenheit.
func Parse(sensorID string, body []byte, now time.Time) (models.SensorReading, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return models.SensorReading{}, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if strings.HasPrefix(raw, "{") {
		var p Payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return models.SensorReading{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p.Reading(sensorID, now)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return models.SensorReading{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return Payload{TemperatureF: &v}.Reading(sensorID, now)
}
