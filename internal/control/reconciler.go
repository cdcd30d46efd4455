package control

import (
	"time"

	"fermenter_controller/internal/models"
)

// DefaultPendingTimeout bounds how long a command may stay pending without a result.
const DefaultPendingTimeout = 10 * time.Second

const unknownFailure = "command failed"

// Reconciliation describes what a result changed.
type Reconciliation struct {
	Actuator     models.Actuator
	Success      bool
	Changed      bool // confirmedOn flipped
	ConfirmedOn  bool
	FirstFailure bool // failure after a success or at startup
	Matched      bool // result answered the pending command
}

// ResultReconciler applies worker results to the actuator store and clears
// pending commands whose result never came back.
type ResultReconciler struct {
	store          *ActuatorStore
	pendingTimeout time.Duration
}

func NewResultReconciler(store *ActuatorStore, pendingTimeout time.Duration) *ResultReconciler {
	if pendingTimeout <= 0 {
		pendingTimeout = DefaultPendingTimeout
	}
	return &ResultReconciler{store: store, pendingTimeout: pendingTimeout}
}

// Apply reconciles one result. On success confirmedOn follows the action; on
// failure confirmedOn is left untouched and the error is recorded. Pending is
// cleared only by the result carrying its command id; a late answer to an
// older command never clears a newer pending command.
func (r *ResultReconciler) Apply(res models.CommandResult, now time.Time) (Reconciliation, error) {
	out := Reconciliation{Actuator: res.Actuator, Success: res.Success}

	err := r.store.update(res.Actuator, func(st *models.ActuatorState) {
		if p := st.Pending; p != nil && p.CommandID == res.CommandID {
			st.Pending = nil
			out.Matched = true
		}

		if res.Success {
			on := res.Action == models.ActionOn
			out.Changed = st.ConfirmedOn != on
			st.ConfirmedOn = on
			st.LastError = ""
			st.LastErrorAt = time.Time{}
			out.ConfirmedOn = on
			return
		}

		msg := res.Error
		if msg == "" {
			msg = unknownFailure
		}
		out.FirstFailure = st.LastError == ""
		st.LastError = msg
		st.LastErrorAt = now
		out.ConfirmedOn = st.ConfirmedOn
	})
	return out, err
}

// Sweep clears every pending command older than the pending timeout and
// returns the actuators it released.
func (r *ResultReconciler) Sweep(now time.Time) []models.Actuator {
	var cleared []models.Actuator
	for _, a := range models.Actuators {
		_ = r.store.update(a, func(st *models.ActuatorState) {
			if st.Pending != nil && now.Sub(st.Pending.Since) >= r.pendingTimeout {
				st.Pending = nil
				cleared = append(cleared, a)
			}
		})
	}
	return cleared
}
