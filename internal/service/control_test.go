package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/models"
	"fermenter_controller/internal/repository"
)

func f64(v float64) *float64 { return &v }

// ---- Test doubles ----

type memConfigRepo struct {
	mu      sync.Mutex
	cfg     models.ControlConfig
	has     bool
	loadErr error
	saveErr error
	saves   int
}

func (r *memConfigRepo) Save(_ context.Context, c models.ControlConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.cfg, r.has = c, true
	r.saves++
	return nil
}

func (r *memConfigRepo) Load(_ context.Context) (models.ControlConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return models.ControlConfig{}, r.loadErr
	}
	if !r.has {
		return models.ControlConfig{}, repository.ErrNoConfig
	}
	return r.cfg, nil
}

type memReadingRepo struct {
	mu       sync.Mutex
	readings []models.SensorReading
	err      error
	lastF    repository.ReadingFilter
}

func (r *memReadingRepo) Append(_ context.Context, rd models.SensorReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.readings = append(r.readings, rd)
	return nil
}

func (r *memReadingRepo) List(_ context.Context, f repository.ReadingFilter) ([]models.SensorReading, error) {
	r.lastF = f
	return r.readings, r.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.ControlEvent
}

func (r *eventRecorder) Notify(_ context.Context, e models.ControlEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) ofType(typ models.EventType) []models.ControlEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ControlEvent
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type controlHarness struct {
	svc      *ControlService
	commands chan models.Command
	clock    *fakeClock
	events   *eventRecorder
	readings *memReadingRepo
	config   *memConfigRepo
}

func newControlHarness(t *testing.T, cfg models.ControlConfig) *controlHarness {
	t.Helper()
	h := &controlHarness{
		commands: make(chan models.Command, 8),
		clock:    &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)},
		events:   &eventRecorder{},
		readings: &memReadingRepo{},
		config:   &memConfigRepo{cfg: cfg, has: true},
	}
	h.svc = NewControlService(h.config, h.readings, h.events, h.commands, nil, ControlOptions{
		MinCommandSpacing: 5 * time.Second,
		PendingTimeout:    10 * time.Second,
		Now:               h.clock.Now,
	}, logger.Nop())
	return h
}

func (h *controlHarness) ingest(t *testing.T, sensorID string, temp float64) bool {
	t.Helper()
	ok, err := h.svc.Ingest(context.Background(), models.SensorReading{SensorID: sensorID, TemperatureF: temp, Timestamp: h.clock.Now()})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return ok
}

// drain returns every queued command.
func (h *controlHarness) drain() []models.Command {
	var out []models.Command
	for {
		select {
		case c := <-h.commands:
			out = append(out, c)
		default:
			return out
		}
	}
}

// ack answers cmd as the worker would.
func (h *controlHarness) ack(cmd models.Command, success bool, errMsg string) {
	h.svc.HandleResult(context.Background(), models.CommandResult{
		CommandID:   cmd.ID,
		Actuator:    cmd.Actuator,
		Action:      cmd.Action,
		Success:     success,
		Error:       errMsg,
		CompletedAt: h.clock.Now(),
	})
}

func (h *controlHarness) state(t *testing.T, a models.Actuator) models.ActuatorState {
	t.Helper()
	st, err := h.svc.store.Get(a)
	if err != nil {
		t.Fatalf("Get(%s): %v", a, err)
	}
	return st
}

func heatingOnly(low, high float64) models.ControlConfig {
	return models.ControlConfig{
		LowLimit:        f64(low),
		HighLimit:       f64(high),
		HeatingEnabled:  true,
		BoundSensorID:   "RED",
		ControlInterval: 2 * time.Minute,
		HeaterAddress:   "sim://heater",
		CoolerAddress:   "sim://cooler",
	}
}

// ---- Scenarios ----

func TestControl_HysteresisSequence(t *testing.T) {
	h := newControlHarness(t, heatingOnly(73, 75))

	temps := []float64{76, 74, 73, 72, 75}
	wantDesired := []bool{false, false, true, true, false}
	var sent []models.Command

	for i, temp := range temps {
		if i > 0 {
			h.clock.Advance(2 * time.Minute)
		}
		if !h.ingest(t, "RED", temp) {
			t.Fatalf("reading %d rejected", i)
		}
		h.svc.Cycle(context.Background())

		if got := h.state(t, models.Heater).DesiredOn; got != wantDesired[i] {
			t.Fatalf("step %d (%.0fF): desired heater = %t, want %t", i, temp, got, wantDesired[i])
		}
		for _, c := range h.drain() {
			sent = append(sent, c)
			h.ack(c, true, "")
		}
	}

	if len(sent) != 2 {
		t.Fatalf("commands = %d, want 2 (ON then OFF): %+v", len(sent), sent)
	}
	if sent[0].Actuator != models.Heater || sent[0].Action != models.ActionOn || sent[0].Address != "sim://heater" {
		t.Fatalf("first command = %+v", sent[0])
	}
	if sent[1].Action != models.ActionOff {
		t.Fatalf("second command = %+v", sent[1])
	}

	on := h.events.ofType(models.EventActuatorTurnedOn)
	off := h.events.ofType(models.EventActuatorTurnedOff)
	if len(on) != 1 || len(off) != 1 {
		t.Fatalf("turned on/off events = %d/%d, want 1/1", len(on), len(off))
	}
	if on[0].Reason != reasonBelowLow || *on[0].LowLimit != 73 || *on[0].HighLimit != 75 || *on[0].TemperatureF != 73 {
		t.Fatalf("turned-on event = %+v", on[0])
	}
	if off[0].Reason != reasonAboveHigh {
		t.Fatalf("turned-off reason = %q", off[0].Reason)
	}
	if st := h.state(t, models.Cooler); st.DesiredOn || st.ConfirmedOn || st.Pending != nil {
		t.Fatalf("disabled cooler must stay off: %+v", st)
	}
	if len(h.readings.readings) != len(temps) {
		t.Fatalf("stored readings = %d, want %d", len(h.readings.readings), len(temps))
	}
}

func TestControl_SilentSensorShutsHeaterOffOnce(t *testing.T) {
	h := newControlHarness(t, heatingOnly(66, 68))

	h.ingest(t, "RED", 64)
	h.svc.Cycle(context.Background())
	cmds := h.drain()
	if len(cmds) != 1 || cmds[0].Action != models.ActionOn {
		t.Fatalf("expected heater ON, got %+v", cmds)
	}
	h.ack(cmds[0], true, "")

	var offs []models.Command
	for i := 0; i < 5; i++ {
		h.clock.Advance(2 * time.Minute)
		h.svc.Cycle(context.Background())
		for _, c := range h.drain() {
			if c.Action == models.ActionOn {
				t.Fatalf("ON command sent while sensor silent: %+v", c)
			}
			offs = append(offs, c)
			h.ack(c, true, "")
		}
	}

	if len(offs) != 1 || offs[0].Actuator != models.Heater {
		t.Fatalf("OFF commands = %+v, want exactly one heater OFF", offs)
	}
	if n := len(h.events.ofType(models.EventSafetyShutdownEngaged)); n != 1 {
		t.Fatalf("engaged events = %d, want 1", n)
	}
	if st := h.state(t, models.Heater); st.ConfirmedOn || st.DesiredOn {
		t.Fatalf("heater after shutdown = %+v", st)
	}
	if !h.svc.Status().SafetyShutdown {
		t.Fatalf("status must report the shutdown")
	}

	// Sensor comes back below the low limit: cleared, then ON again.
	h.clock.Advance(time.Minute)
	h.ingest(t, "RED", 64)
	h.svc.Cycle(context.Background())
	if n := len(h.events.ofType(models.EventSafetyShutdownCleared)); n != 1 {
		t.Fatalf("cleared events = %d, want 1", n)
	}
	if cmds := h.drain(); len(cmds) != 1 || cmds[0].Action != models.ActionOn {
		t.Fatalf("expected heater ON after recovery, got %+v", cmds)
	}
}

func TestControl_LostResultReleasedByWatchdog(t *testing.T) {
	h := newControlHarness(t, heatingOnly(66, 68))

	h.ingest(t, "RED", 60)
	h.svc.Cycle(context.Background())
	first := h.drain()
	if len(first) != 1 {
		t.Fatalf("expected one command, got %d", len(first))
	}
	// The result is lost.

	h.clock.Advance(9 * time.Second)
	h.svc.Sweep(context.Background())
	h.svc.Cycle(context.Background())
	if cmds := h.drain(); len(cmds) != 0 {
		t.Fatalf("resent while pending: %+v", cmds)
	}
	if h.state(t, models.Heater).Pending == nil {
		t.Fatalf("pending cleared before timeout")
	}

	h.clock.Advance(time.Second)
	h.svc.Sweep(context.Background())
	if h.state(t, models.Heater).Pending != nil {
		t.Fatalf("pending not cleared at timeout")
	}
	h.svc.Cycle(context.Background())
	retry := h.drain()
	if len(retry) != 1 || retry[0].Action != models.ActionOn || retry[0].ID == first[0].ID {
		t.Fatalf("expected a fresh ON command, got %+v", retry)
	}

	// The original result finally arrives. It confirms ON but the retry is
	// still in flight, so its pending slot stays.
	h.ack(first[0], true, "")
	st := h.state(t, models.Heater)
	if !st.ConfirmedOn || st.Pending == nil || st.Pending.CommandID != retry[0].ID {
		t.Fatalf("late success: %+v", st)
	}
	h.svc.Cycle(context.Background())
	if cmds := h.drain(); len(cmds) != 0 {
		t.Fatalf("sent while retry in flight: %+v", cmds)
	}
	h.ack(retry[0], true, "")
	if h.state(t, models.Heater).Pending != nil {
		t.Fatalf("retry result must release pending")
	}
	if n := len(h.events.ofType(models.EventActuatorTurnedOn)); n != 1 {
		t.Fatalf("turned-on events = %d, want 1", n)
	}
}

func TestControl_FailingPlugEmitsOneFailureAndRetries(t *testing.T) {
	h := newControlHarness(t, heatingOnly(66, 68))
	h.ingest(t, "RED", 60)

	attempts := 0
	for i := 0; i < 3; i++ {
		h.svc.Cycle(context.Background())
		for _, c := range h.drain() {
			attempts++
			h.ack(c, false, "dial tcp 10.0.0.20:80: i/o timeout")
		}
		h.clock.Advance(6 * time.Second)
	}

	if attempts != 3 {
		t.Fatalf("attempts = %d, want one per cycle", attempts)
	}
	failed := h.events.ofType(models.EventCommandFailed)
	if len(failed) != 1 {
		t.Fatalf("commandFailed events = %d, want 1", len(failed))
	}
	if failed[0].Actuator != models.Heater || failed[0].Reason == "" {
		t.Fatalf("failure event = %+v", failed[0])
	}
	st := h.state(t, models.Heater)
	if st.ConfirmedOn || st.LastError == "" {
		t.Fatalf("failed command must not confirm: %+v", st)
	}

	// Recovery clears the error and a later failure is reported again.
	h.svc.Cycle(context.Background())
	cmds := h.drain()
	if len(cmds) != 1 {
		t.Fatalf("expected a retry, got %d", len(cmds))
	}
	h.ack(cmds[0], true, "")
	if st := h.state(t, models.Heater); !st.ConfirmedOn || st.LastError != "" {
		t.Fatalf("after success: %+v", st)
	}
	if len(h.events.ofType(models.EventActuatorTurnedOn)) != 1 {
		t.Fatalf("expected turned-on event after recovery")
	}
}

func TestControl_NoRedundantCommandsAtSteadyState(t *testing.T) {
	h := newControlHarness(t, heatingOnly(66, 68))
	for i := 0; i < 10; i++ {
		h.ingest(t, "RED", 67)
		h.svc.Cycle(context.Background())
		if cmds := h.drain(); len(cmds) != 0 {
			t.Fatalf("cycle %d sent %+v inside the band with everything off", i, cmds)
		}
		h.clock.Advance(2 * time.Minute)
	}
}

func TestControl_FallbackSensorWithoutBinding(t *testing.T) {
	cfg := heatingOnly(66, 68)
	cfg.BoundSensorID = ""
	h := newControlHarness(t, cfg)

	h.ingest(t, "YELLOW", 70)
	h.ingest(t, "BLUE", 60)
	h.svc.Cycle(context.Background())

	st := h.svc.Status()
	if st.ControlSensorID != "BLUE" || *st.TemperatureF != 60 {
		t.Fatalf("control sensor = %q (%v), want BLUE", st.ControlSensorID, st.TemperatureF)
	}
	if cmds := h.drain(); len(cmds) != 1 || cmds[0].Action != models.ActionOn {
		t.Fatalf("expected heater ON from BLUE, got %+v", cmds)
	}
}

func TestControl_IngestRateLimitsPerRole(t *testing.T) {
	h := newControlHarness(t, heatingOnly(66, 68))
	h.svc.Cycle(context.Background()) // load config

	if !h.ingest(t, "RED", 67) || !h.ingest(t, "GREEN", 67) {
		t.Fatalf("first readings must be accepted")
	}
	h.clock.Advance(2 * time.Minute)
	if !h.ingest(t, "RED", 67) {
		t.Fatalf("bound sensor uses the control interval")
	}
	if h.ingest(t, "GREEN", 67) {
		t.Fatalf("logging-only sensor must wait for the logging interval")
	}
	h.clock.Advance(13 * time.Minute)
	if !h.ingest(t, "GREEN", 67) {
		t.Fatalf("logging-only sensor accepted after 15m")
	}
	if h.ingest(t, "", 67) {
		t.Fatalf("empty sensor id must be rejected")
	}
}

func TestControl_FutureTimestampDoesNotKeepSensorFresh(t *testing.T) {
	h := newControlHarness(t, heatingOnly(66, 68))

	ahead := h.clock.Now().Add(time.Hour)
	ok, err := h.svc.Ingest(context.Background(), models.SensorReading{SensorID: "RED", TemperatureF: 60, Timestamp: ahead})
	if !ok || err != nil {
		t.Fatalf("ok=%t err=%v", ok, err)
	}
	if got := h.readings.readings[0].Timestamp; !got.Equal(h.clock.Now()) {
		t.Fatalf("stored timestamp = %v, want receive time %v", got, h.clock.Now())
	}
	h.svc.Cycle(context.Background())
	for _, c := range h.drain() {
		h.ack(c, true, "")
	}
	if !h.state(t, models.Heater).ConfirmedOn {
		t.Fatalf("heater should be on while the sensor is fresh")
	}

	// The sensor goes silent; its bridge clock must not keep it fresh.
	h.clock.Advance(30 * time.Minute)
	h.svc.Cycle(context.Background())
	if st := h.state(t, models.Heater); st.DesiredOn {
		t.Fatalf("silent sensor must force the heater off: %+v", st)
	}
	if n := len(h.events.ofType(models.EventSafetyShutdownEngaged)); n != 1 {
		t.Fatalf("safety engaged events = %d, want 1", n)
	}

	// A real-time reading is accepted again.
	if !h.ingest(t, "RED", 60) {
		t.Fatalf("real-time reading rejected after a future-dated one")
	}
}

func TestControl_IngestReportsHistoryFailure(t *testing.T) {
	h := newControlHarness(t, heatingOnly(66, 68))
	h.readings.err = errors.New("disk full")

	ok, err := h.svc.Ingest(context.Background(), models.SensorReading{SensorID: "RED", TemperatureF: 60, Timestamp: h.clock.Now()})
	if !ok || err == nil {
		t.Fatalf("ok=%t err=%v, want accepted with error", ok, err)
	}
	h.svc.Cycle(context.Background())
	if len(h.drain()) != 1 {
		t.Fatalf("reading must still drive control")
	}
}

func TestControl_ConfigLoadFailureHoldsLastConfig(t *testing.T) {
	h := newControlHarness(t, heatingOnly(66, 68))
	h.ingest(t, "RED", 60)
	h.svc.Cycle(context.Background())
	h.ack(h.drain()[0], true, "")

	h.config.loadErr = errors.New("database is locked")
	h.clock.Advance(2 * time.Minute)
	h.ingest(t, "RED", 67)
	h.svc.Cycle(context.Background())

	if st := h.state(t, models.Heater); !st.DesiredOn {
		t.Fatalf("heater must hold inside the band with the last known config")
	}
}

func TestControl_MissingLimitsHold(t *testing.T) {
	cfg := heatingOnly(66, 68)
	h := newControlHarness(t, cfg)
	h.ingest(t, "RED", 60)
	h.svc.Cycle(context.Background())
	h.ack(h.drain()[0], true, "")

	cfg.HighLimit = nil
	h.config.cfg = cfg
	h.clock.Advance(2 * time.Minute)
	h.ingest(t, "RED", 80)
	h.svc.Cycle(context.Background())

	if st := h.state(t, models.Heater); !st.DesiredOn {
		t.Fatalf("missing limit must hold the previous decision")
	}
	if cmds := h.drain(); len(cmds) != 0 {
		t.Fatalf("no commands expected, got %+v", cmds)
	}
}

func TestControl_SeedUsedWhenNothingStored(t *testing.T) {
	h := newControlHarness(t, models.ControlConfig{})
	h.config.has = false
	h.svc.opts.Seed = heatingOnly(66, 68)

	h.ingest(t, "RED", 60)
	h.svc.Cycle(context.Background())
	if cmds := h.drain(); len(cmds) != 1 || cmds[0].Action != models.ActionOn {
		t.Fatalf("seed config must drive control, got %+v", cmds)
	}
}

func TestControl_RunAppliesResults(t *testing.T) {
	cmds := make(chan models.Command, 4)
	results := make(chan models.CommandResult, 4)
	events := &eventRecorder{}
	cfg := heatingOnly(66, 68)
	svc := NewControlService(&memConfigRepo{cfg: cfg, has: true}, nil, events, cmds, results, ControlOptions{
		WatchdogTick: 10 * time.Millisecond,
	}, logger.Nop())

	if ok, _ := svc.Ingest(context.Background(), models.SensorReading{SensorID: "RED", TemperatureF: 60, Timestamp: time.Now()}); !ok {
		t.Fatalf("reading rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	var cmd models.Command
	select {
	case cmd = <-cmds:
	case <-time.After(2 * time.Second):
		t.Fatalf("no command from the first cycle")
	}
	results <- models.CommandResult{CommandID: cmd.ID, Actuator: cmd.Actuator, Action: cmd.Action, Success: true, CompletedAt: time.Now()}

	deadline := time.Now().Add(2 * time.Second)
	for len(events.ofType(models.EventActuatorTurnedOn)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(events.ofType(models.EventActuatorTurnedOn)) != 1 {
		t.Fatalf("result was not applied by Run")
	}
	var heater models.ActuatorState
	for _, st := range svc.Status().Actuators {
		if st.Actuator == models.Heater {
			heater = st
		}
	}
	if !heater.ConfirmedOn {
		t.Fatalf("status heater = %+v", heater)
	}
}
