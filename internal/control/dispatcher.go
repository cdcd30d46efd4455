package control

import (
	"sync/atomic"
	"time"

	"fermenter_controller/internal/models"

	"github.com/google/uuid"
)

// DefaultMinCommandSpacing is the minimum time between two commands to the same actuator.
const DefaultMinCommandSpacing = 5 * time.Second

// SuppressReason explains why MaybeSend did not send a command.
type SuppressReason string

const (
	NotSuppressed       SuppressReason = ""
	SuppressedVeto      SuppressReason = "safety_veto"
	SuppressedRedundant SuppressReason = "redundant"
	SuppressedInFlight  SuppressReason = "identical_command_pending"
	SuppressedBusy      SuppressReason = "other_command_pending"
	SuppressedSpacing   SuppressReason = "min_spacing"
	SuppressedNoAddress SuppressReason = "no_address"
	SuppressedQueueFull SuppressReason = "queue_full"
	SuppressedUnknown   SuppressReason = "unknown_actuator"
)

// CommandDispatcher decides whether a desired state needs a hardware command
// and hands accepted commands to the actuator worker queue.
type CommandDispatcher struct {
	store      *ActuatorStore
	queue      chan<- models.Command
	minSpacing time.Duration
	vetoOn     atomic.Bool
	newID      func() string
}

func NewCommandDispatcher(store *ActuatorStore, queue chan<- models.Command, minSpacing time.Duration) *CommandDispatcher {
	if minSpacing < 0 {
		minSpacing = 0
	}
	return &CommandDispatcher{
		store:      store,
		queue:      queue,
		minSpacing: minSpacing,
		newID:      uuid.NewString,
	}
}

// SetOnVeto blocks (true) or allows (false) every ON command.
func (d *CommandDispatcher) SetOnVeto(veto bool) {
	d.vetoOn.Store(veto)
}

// OnVetoed reports whether ON commands are currently blocked.
func (d *CommandDispatcher) OnVetoed() bool {
	return d.vetoOn.Load()
}

// MaybeSend sends the command that moves actuator a to desiredOn unless it is
// vetoed, redundant, already in flight, too soon after the previous command or
// cannot be queued. The enqueue never blocks.
//
// Any pending command blocks a new one for the same actuator, so commands for
// one actuator reach the worker in submission order.
func (d *CommandDispatcher) MaybeSend(a models.Actuator, desiredOn bool, address string, now time.Time) (bool, SuppressReason) {
	if desiredOn && d.vetoOn.Load() {
		return false, SuppressedVeto
	}

	action := models.ActionFor(desiredOn)
	reason := SuppressedUnknown
	sent := false

	err := d.store.update(a, func(st *models.ActuatorState) {
		switch {
		case desiredOn == st.ConfirmedOn:
			reason = SuppressedRedundant
			return
		case st.Pending != nil && st.Pending.Action == action:
			reason = SuppressedInFlight
			return
		case st.Pending != nil:
			reason = SuppressedBusy
			return
		case !st.LastCommandAt.IsZero() && now.Sub(st.LastCommandAt) < d.minSpacing:
			reason = SuppressedSpacing
			return
		case address == "":
			reason = SuppressedNoAddress
			return
		}

		cmd := models.Command{
			ID:       d.newID(),
			Actuator: a,
			Address:  address,
			Action:   action,
			IssuedAt: now,
		}
		select {
		case d.queue <- cmd:
		default:
			reason = SuppressedQueueFull
			return
		}

		st.Pending = &models.PendingCommand{CommandID: cmd.ID, Action: action, Since: now}
		st.LastCommandAt = now
		reason = NotSuppressed
		sent = true
	})
	if err != nil {
		return false, SuppressedUnknown
	}
	return sent, reason
}
