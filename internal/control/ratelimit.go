package control

import (
	"math"
	"sort"
	"sync"
	"time"

	"fermenter_controller/internal/models"
)

// Default read intervals per sensor role.
const (
	DefaultControlReadInterval = 2 * time.Minute
	DefaultLoggingReadInterval = 15 * time.Minute
)

// ReadIntervals holds the acceptance interval per sensor role.
type ReadIntervals struct {
	Control time.Duration // sensor driving control decisions
	Logging time.Duration // sensors kept for history only
}

// For returns the interval for sensorID. With no bound sensor every sensor is a
// control candidate, so all of them use the control interval.
func (p ReadIntervals) For(sensorID, boundSensorID string) time.Duration {
	if boundSensorID == "" || sensorID == boundSensorID {
		return p.Control
	}
	return p.Logging
}

// ReadingRateLimiter admits at most one reading per interval per sensor and
// retains the latest accepted reading of each sensor.
type ReadingRateLimiter struct {
	mu     sync.Mutex
	latest map[string]models.SensorReading
}

func NewReadingRateLimiter() *ReadingRateLimiter {
	return &ReadingRateLimiter{latest: make(map[string]models.SensorReading)}
}

// Accept records r and returns true when the sensor has no accepted reading yet
// or at least interval has elapsed since the last accepted one.
// Readings without a sensor id or with a non-finite temperature are dropped.
func (l *ReadingRateLimiter) Accept(r models.SensorReading, interval time.Duration) bool {
	if r.SensorID == "" || math.IsNaN(r.TemperatureF) || math.IsInf(r.TemperatureF, 0) {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.latest[r.SensorID]; ok && r.Timestamp.Sub(prev.Timestamp) < interval {
		return false
	}
	l.latest[r.SensorID] = r
	return true
}

// Latest returns the last accepted reading for sensorID.
func (l *ReadingRateLimiter) Latest(sensorID string) (models.SensorReading, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.latest[sensorID]
	return r, ok
}

// Snapshot returns the last accepted reading of every sensor, ordered by sensor id.
func (l *ReadingRateLimiter) Snapshot() []models.SensorReading {
	l.mu.Lock()
	out := make([]models.SensorReading, 0, len(l.latest))
	for _, r := range l.latest {
		out = append(out, r)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}
