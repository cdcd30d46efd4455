package control

import (
	"testing"
	"time"

	"fermenter_controller/internal/models"
)

const heaterAddr = "sim://heater"

func newTestDispatcher(queueSize int, spacing time.Duration) (*ActuatorStore, *CommandDispatcher, chan models.Command) {
	store := NewActuatorStore()
	q := make(chan models.Command, queueSize)
	d := NewCommandDispatcher(store, q, spacing)
	n := 0
	d.newID = func() string {
		n++
		return "cmd-" + string(rune('0'+n))
	}
	return store, d, q
}

func TestMaybeSend_AcceptsAndSetsPending(t *testing.T) {
	store, d, q := newTestDispatcher(4, DefaultMinCommandSpacing)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	sent, reason := d.MaybeSend(models.Heater, true, heaterAddr, now)
	if !sent || reason != NotSuppressed {
		t.Fatalf("sent=%v reason=%q", sent, reason)
	}

	select {
	case cmd := <-q:
		if cmd.Actuator != models.Heater || cmd.Action != models.ActionOn || cmd.Address != heaterAddr || cmd.ID != "cmd-1" {
			t.Fatalf("unexpected command: %+v", cmd)
		}
	default:
		t.Fatalf("command not queued")
	}

	st, _ := store.Get(models.Heater)
	if st.Pending == nil || st.Pending.Action != models.ActionOn || !st.Pending.Since.Equal(now) || st.Pending.CommandID != "cmd-1" {
		t.Fatalf("pending not recorded: %+v", st.Pending)
	}
	if st.ConfirmedOn {
		t.Fatalf("dispatch must never touch confirmedOn")
	}
	if !st.LastCommandAt.Equal(now) {
		t.Fatalf("lastCommandAt = %v", st.LastCommandAt)
	}
}

func TestMaybeSend_Suppression(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		prepare func(st *models.ActuatorState, d *CommandDispatcher)
		desired bool
		address string
		at      time.Time
		want    SuppressReason
	}{
		{
			name:    "redundant off",
			desired: false,
			address: heaterAddr,
			at:      now,
			want:    SuppressedRedundant,
		},
		{
			name:    "redundant on",
			prepare: func(st *models.ActuatorState, _ *CommandDispatcher) { st.ConfirmedOn = true },
			desired: true,
			address: heaterAddr,
			at:      now,
			want:    SuppressedRedundant,
		},
		{
			name: "identical pending",
			prepare: func(st *models.ActuatorState, _ *CommandDispatcher) {
				st.Pending = &models.PendingCommand{Action: models.ActionOn, Since: now}
			},
			desired: true,
			address: heaterAddr,
			at:      now.Add(time.Minute),
			want:    SuppressedInFlight,
		},
		{
			name: "opposite pending",
			prepare: func(st *models.ActuatorState, _ *CommandDispatcher) {
				st.ConfirmedOn = true
				st.Pending = &models.PendingCommand{Action: models.ActionOn, Since: now}
			},
			desired: false,
			address: heaterAddr,
			at:      now.Add(time.Minute),
			want:    SuppressedBusy,
		},
		{
			name:    "min spacing",
			prepare: func(st *models.ActuatorState, _ *CommandDispatcher) { st.LastCommandAt = now },
			desired: true,
			address: heaterAddr,
			at:      now.Add(time.Second),
			want:    SuppressedSpacing,
		},
		{
			name:    "safety veto",
			prepare: func(_ *models.ActuatorState, d *CommandDispatcher) { d.SetOnVeto(true) },
			desired: true,
			address: heaterAddr,
			at:      now,
			want:    SuppressedVeto,
		},
		{
			name:    "no address",
			desired: true,
			address: "",
			at:      now,
			want:    SuppressedNoAddress,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, d, q := newTestDispatcher(4, DefaultMinCommandSpacing)
			if tc.prepare != nil {
				_ = store.update(models.Heater, func(st *models.ActuatorState) { tc.prepare(st, d) })
			}
			sent, reason := d.MaybeSend(models.Heater, tc.desired, tc.address, tc.at)
			if sent || reason != tc.want {
				t.Fatalf("sent=%v reason=%q, want suppressed %q", sent, reason, tc.want)
			}
			if len(q) != 0 {
				t.Fatalf("suppressed command must not be queued")
			}
		})
	}
}

func TestMaybeSend_VetoAllowsOff(t *testing.T) {
	store, d, q := newTestDispatcher(4, DefaultMinCommandSpacing)
	_ = store.update(models.Heater, func(st *models.ActuatorState) { st.ConfirmedOn = true })
	d.SetOnVeto(true)

	sent, _ := d.MaybeSend(models.Heater, false, heaterAddr, time.Now())
	if !sent {
		t.Fatalf("OFF must pass the safety veto")
	}
	if cmd := <-q; cmd.Action != models.ActionOff {
		t.Fatalf("expected OFF command, got %+v", cmd)
	}
}

func TestMaybeSend_QueueFullLeavesStateUntouched(t *testing.T) {
	store, d, q := newTestDispatcher(1, 0)
	q <- models.Command{ID: "blocker"}

	sent, reason := d.MaybeSend(models.Heater, true, heaterAddr, time.Now())
	if sent || reason != SuppressedQueueFull {
		t.Fatalf("sent=%v reason=%q", sent, reason)
	}
	st, _ := store.Get(models.Heater)
	if st.Pending != nil || !st.LastCommandAt.IsZero() {
		t.Fatalf("queue-full must not mark pending: %+v", st)
	}
}

func TestMaybeSend_NoRedundantSendsAcrossCycles(t *testing.T) {
	store, d, q := newTestDispatcher(8, 0)
	_ = store.update(models.Heater, func(st *models.ActuatorState) { st.ConfirmedOn = true })

	now := time.Now()
	for i := 0; i < 10; i++ {
		if sent, _ := d.MaybeSend(models.Heater, true, heaterAddr, now.Add(time.Duration(i)*time.Minute)); sent {
			t.Fatalf("cycle %d: redundant command sent", i)
		}
	}
	if len(q) != 0 {
		t.Fatalf("queue must stay empty")
	}
}

func TestMaybeSend_UnknownActuator(t *testing.T) {
	_, d, _ := newTestDispatcher(1, 0)
	if sent, reason := d.MaybeSend(models.Actuator("fan"), true, heaterAddr, time.Now()); sent || reason != SuppressedUnknown {
		t.Fatalf("sent=%v reason=%q", sent, reason)
	}
}
