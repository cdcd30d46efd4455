package control

import (
	"errors"
	"sync"

	"fermenter_controller/internal/models"
)

var ErrUnknownActuator = errors.New("unknown actuator")

// ActuatorStore owns the ActuatorState of every actuator behind one mutex.
// The dispatcher writes pending and lastCommandAt, the reconciler writes
// pending, confirmedOn and the error fields, the cycle writes desiredOn.
type ActuatorStore struct {
	mu     sync.Mutex
	states map[models.Actuator]*models.ActuatorState
}

// NewActuatorStore creates every actuator confirmed off with nothing pending.
func NewActuatorStore() *ActuatorStore {
	s := &ActuatorStore{states: make(map[models.Actuator]*models.ActuatorState, len(models.Actuators))}
	for _, a := range models.Actuators {
		s.states[a] = &models.ActuatorState{Actuator: a}
	}
	return s
}

// Get returns a copy of the state of a.
func (s *ActuatorStore) Get(a models.Actuator) (models.ActuatorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[a]
	if !ok {
		return models.ActuatorState{}, ErrUnknownActuator
	}
	return copyState(st), nil
}

// Snapshot returns copies of all states in models.Actuators order.
func (s *ActuatorStore) Snapshot() []models.ActuatorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActuatorState, 0, len(s.states))
	for _, a := range models.Actuators {
		out = append(out, copyState(s.states[a]))
	}
	return out
}

// Desired returns the current desired decision.
func (s *ActuatorStore) Desired() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Decision{
		Heater: s.states[models.Heater].DesiredOn,
		Cooler: s.states[models.Cooler].DesiredOn,
	}
}

// SetDesired records the decision for every actuator.
func (s *ActuatorStore) SetDesired(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[models.Heater].DesiredOn = d.Heater
	s.states[models.Cooler].DesiredOn = d.Cooler
}

// update runs fn on the live state of a while holding the lock.
func (s *ActuatorStore) update(a models.Actuator, fn func(st *models.ActuatorState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[a]
	if !ok {
		return ErrUnknownActuator
	}
	fn(st)
	return nil
}

func copyState(st *models.ActuatorState) models.ActuatorState {
	out := *st
	if st.Pending != nil {
		p := *st.Pending
		out.Pending = &p
	}
	return out
}
