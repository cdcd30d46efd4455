package control

import (
	"sync"
	"time"

	"fermenter_controller/internal/models"
)

// StaleAfterReads is how many control intervals may pass without an accepted
// reading before the control sensor counts as stale.
const StaleAfterReads = 2

// StaleThreshold returns the staleness threshold for a control interval.
func StaleThreshold(controlInterval time.Duration) time.Duration {
	return StaleAfterReads * controlInterval
}

// SelectControlSensor picks the reading that drives control. A bound sensor is
// used whenever it has reported, fresh or not. Without a bound sensor the
// fallback is the lowest sensor id among sensors fresh within threshold, so
// the choice is stable while several sensors broadcast.
func SelectControlSensor(readings []models.SensorReading, boundSensorID string, now time.Time, threshold time.Duration) (models.SensorReading, bool) {
	if boundSensorID != "" {
		for _, r := range readings {
			if r.SensorID == boundSensorID {
				return r, true
			}
		}
		return models.SensorReading{}, false
	}

	var (
		best  models.SensorReading
		found bool
	)
	for _, r := range readings {
		if age := now.Sub(r.Timestamp); age < 0 || age >= threshold {
			continue
		}
		if !found || r.SensorID < best.SensorID {
			best, found = r, true
		}
	}
	return best, found
}

// SafetyVerdict is the outcome of one freshness evaluation.
type SafetyVerdict struct {
	Stale     bool
	Freshness time.Duration // zero when no reading exists
	Threshold time.Duration
	Engaged   bool // transitioned into staleness on this evaluation
	Cleared   bool // transitioned back to freshness on this evaluation
}

// SafetyMonitor tracks control-sensor freshness and reports the one-shot
// shutdown transitions. Before the first fresh reading the monitor is stale
// but silent: there is nothing running to shut down yet.
type SafetyMonitor struct {
	mu        sync.Mutex
	stale     bool
	engaged   bool
	everFresh bool
	last      SafetyVerdict
}

func NewSafetyMonitor() *SafetyMonitor {
	return &SafetyMonitor{stale: true}
}

// Evaluate updates the monitor with the control sensor's last accepted
// reading time. A reading is stale once its age reaches the threshold; a
// reading dated after now is stale too.
func (m *SafetyMonitor) Evaluate(lastAccepted time.Time, hasReading bool, now time.Time, controlInterval time.Duration) SafetyVerdict {
	v := SafetyVerdict{Threshold: StaleThreshold(controlInterval)}
	if hasReading {
		v.Freshness = now.Sub(lastAccepted)
	}
	v.Stale = !hasReading || v.Threshold <= 0 || v.Freshness < 0 || v.Freshness >= v.Threshold

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case v.Stale && !m.engaged && m.everFresh:
		m.engaged = true
		v.Engaged = true
	case !v.Stale:
		if m.engaged {
			m.engaged = false
			v.Cleared = true
		}
		m.everFresh = true
	}
	m.stale = v.Stale
	m.last = v
	return v
}

// Stale reports the result of the latest evaluation.
func (m *SafetyMonitor) Stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

// ShutdownEngaged reports whether a safety shutdown is currently signalled.
func (m *SafetyMonitor) ShutdownEngaged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engaged
}

// Last returns the latest verdict.
func (m *SafetyMonitor) Last() SafetyVerdict {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
