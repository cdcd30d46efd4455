package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fermenter_controller/internal/control"
	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/models"
	"fermenter_controller/internal/notify"
	"fermenter_controller/internal/repository"

	"github.com/google/uuid"
)

const defaultWatchdogTick = time.Second

// Event reasons.
const (
	reasonBelowLow      = "temperature at or below low limit"
	reasonAboveHigh     = "temperature at or above high limit"
	reasonDisabled      = "channel disabled"
	reasonSafety        = "control sensor stale"
	reasonSensorBack    = "control sensor fresh again"
	reasonPendingExpiry = "no result before pending timeout"
)

type ControlOptions struct {
	LoggingInterval   time.Duration
	MinCommandSpacing time.Duration
	PendingTimeout    time.Duration
	WatchdogTick      time.Duration
	// Seed is used while no configuration is stored.
	Seed models.ControlConfig
	Now  func() time.Time
}

// ControlService runs the control cycle. It owns the rate limiter, the safety
// monitor and the actuator store; the worker is reached only through the
// command and result channels.
type ControlService struct {
	configRepo repository.ConfigRepo
	readings   repository.ReadingRepo
	notifier   notify.Notifier
	log        *logger.Logger
	opts       ControlOptions

	limiter    *control.ReadingRateLimiter
	safety     *control.SafetyMonitor
	store      *control.ActuatorStore
	dispatcher *control.CommandDispatcher
	reconciler *control.ResultReconciler
	results    <-chan models.CommandResult

	mu          sync.RWMutex
	cfg         models.ControlConfig
	hasCfg      bool
	lastCycleAt time.Time
	sensor      models.SensorReading
	hasSensor   bool
	reasons     map[models.Actuator]string
}

func NewControlService(
	configRepo repository.ConfigRepo,
	readings repository.ReadingRepo,
	notifier notify.Notifier,
	commands chan<- models.Command,
	results <-chan models.CommandResult,
	opts ControlOptions,
	log *logger.Logger,
) *ControlService {
	if opts.LoggingInterval <= 0 {
		opts.LoggingInterval = control.DefaultLoggingReadInterval
	}
	if opts.MinCommandSpacing <= 0 {
		opts.MinCommandSpacing = control.DefaultMinCommandSpacing
	}
	if opts.WatchdogTick <= 0 {
		opts.WatchdogTick = defaultWatchdogTick
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	store := control.NewActuatorStore()
	return &ControlService{
		configRepo: configRepo,
		readings:   readings,
		notifier:   notifier,
		log:        log,
		opts:       opts,
		limiter:    control.NewReadingRateLimiter(),
		safety:     control.NewSafetyMonitor(),
		store:      store,
		dispatcher: control.NewCommandDispatcher(store, commands, opts.MinCommandSpacing),
		reconciler: control.NewResultReconciler(store, opts.PendingTimeout),
		results:    results,
		reasons:    make(map[models.Actuator]string),
	}
}

// SeedConfig returns the configuration used while none is stored.
func (s *ControlService) SeedConfig() models.ControlConfig {
	return s.opts.Seed
}

// Run executes a cycle immediately and then once per control interval, sweeps
// expired pending commands and applies worker results, until ctx is canceled.
func (s *ControlService) Run(ctx context.Context) {
	cycle := time.NewTimer(0)
	watchdog := time.NewTicker(s.opts.WatchdogTick)
	defer func() {
		cycle.Stop()
		watchdog.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cycle.C:
			s.Cycle(ctx)
			cycle.Reset(s.interval())
		case <-watchdog.C:
			s.Sweep(ctx)
		case res, ok := <-s.results:
			if !ok {
				s.results = nil
				continue
			}
			s.HandleResult(ctx, res)
		}
	}
}

// Ingest rate-limits a reading and appends accepted ones to the history.
// The returned error concerns history only; an accepted reading counts for
// control even when it could not be stored.
func (s *ControlService) Ingest(ctx context.Context, r models.SensorReading) (bool, error) {
	// sensor clocks are not trusted ahead of ours
	if now := s.opts.Now(); r.Timestamp.IsZero() || r.Timestamp.After(now) {
		r.Timestamp = now
	}
	cfg := s.config()
	intervals := control.ReadIntervals{Control: normalizeInterval(cfg.ControlInterval), Logging: s.opts.LoggingInterval}
	if !s.limiter.Accept(r, intervals.For(r.SensorID, cfg.BoundSensorID)) {
		return false, nil
	}
	s.log.Debugw("reading_accepted", "sensor_id", r.SensorID, "temperature_f", r.TemperatureF)
	if s.readings == nil {
		return true, nil
	}
	if err := s.readings.Append(ctx, r); err != nil {
		s.log.Warnw("reading_store_failed", "sensor_id", r.SensorID, "err", err)
		return true, fmt.Errorf("store reading: %w", err)
	}
	return true, nil
}

// Cycle runs one control cycle: select the control sensor, evaluate safety,
// decide and dispatch. It never waits on the worker.
func (s *ControlService) Cycle(ctx context.Context) {
	now := s.opts.Now()
	cfg := s.loadConfig(ctx)
	interval := normalizeInterval(cfg.ControlInterval)

	reading, found := control.SelectControlSensor(s.limiter.Snapshot(), cfg.BoundSensorID, now, control.StaleThreshold(interval))
	verdict := s.safety.Evaluate(reading.Timestamp, found, now, interval)
	s.dispatcher.SetOnVeto(verdict.Stale)

	var temp *float64
	if found {
		t := reading.TemperatureF
		temp = &t
	}

	desired := control.Off
	if !verdict.Stale {
		desired = control.Decide(s.store.Desired(), reading.TemperatureF, found, cfg)
	}
	s.store.SetDesired(desired)

	s.mu.Lock()
	s.lastCycleAt = now
	s.sensor, s.hasSensor = reading, found
	s.mu.Unlock()

	switch {
	case verdict.Engaged:
		s.log.Warnw("safety_shutdown_engaged",
			"sensor_id", reading.SensorID,
			"freshness", verdict.Freshness,
			"threshold", verdict.Threshold,
		)
		s.emit(ctx, models.EventSafetyShutdownEngaged, "", reasonSafety, cfg, temp, map[string]any{
			"sensor_id":     reading.SensorID,
			"freshness_sec": verdict.Freshness.Seconds(),
		})
	case verdict.Cleared:
		s.log.Infow("safety_shutdown_cleared", "sensor_id", reading.SensorID)
		s.emit(ctx, models.EventSafetyShutdownCleared, "", reasonSensorBack, cfg, temp, nil)
	}

	for _, a := range models.Actuators {
		on := desired.On(a)
		sent, why := s.dispatcher.MaybeSend(a, on, cfg.Address(a), now)
		switch {
		case sent:
			s.setReason(a, decisionReason(a, on, verdict.Stale, cfg))
			s.log.Infow("command_dispatched", "actuator", a, "action", models.ActionFor(on), "temperature_f", temp)
		case why == control.SuppressedQueueFull || why == control.SuppressedNoAddress:
			s.log.Warnw("command_suppressed", "actuator", a, "action", models.ActionFor(on), "reason", why)
		case why != control.SuppressedRedundant:
			s.log.Debugw("command_suppressed", "actuator", a, "action", models.ActionFor(on), "reason", why)
		}
	}
}

// HandleResult reconciles one worker result and emits the resulting
// transition, if any.
func (s *ControlService) HandleResult(ctx context.Context, res models.CommandResult) {
	rec, err := s.reconciler.Apply(res, s.opts.Now())
	if err != nil {
		s.log.Warnw("command_result_rejected", "command_id", res.CommandID, "actuator", res.Actuator, "err", err)
		return
	}
	if !rec.Matched {
		s.log.Infow("command_result_late", "command_id", res.CommandID, "actuator", res.Actuator, "success", res.Success)
	}

	cfg := s.config()
	temp := s.controlTemp()
	switch {
	case rec.Success && rec.Changed:
		typ := models.EventActuatorTurnedOff
		if rec.ConfirmedOn {
			typ = models.EventActuatorTurnedOn
		}
		s.emit(ctx, typ, res.Actuator, s.reason(res.Actuator), cfg, temp, map[string]any{"command_id": res.CommandID})
	case !rec.Success && rec.FirstFailure:
		s.emit(ctx, models.EventCommandFailed, res.Actuator, res.Error, cfg, temp, map[string]any{
			"command_id": res.CommandID,
			"action":     res.Action,
		})
	}
}

// Sweep releases pending commands whose result never arrived.
func (s *ControlService) Sweep(_ context.Context) {
	for _, a := range s.reconciler.Sweep(s.opts.Now()) {
		s.log.Warnw("pending_command_expired", "actuator", a, "reason", reasonPendingExpiry)
	}
}

// Status returns a snapshot of the controller.
func (s *ControlService) Status() models.ControlStatus {
	now := s.opts.Now()
	verdict := s.safety.Last()

	s.mu.RLock()
	st := models.ControlStatus{
		Stale:          verdict.Stale || !s.hasSensor,
		SafetyShutdown: s.safety.ShutdownEngaged(),
		LastCycleAt:    s.lastCycleAt,
		Actuators:      s.store.Snapshot(),
		Sensors:        s.limiter.Snapshot(),
	}
	if s.hasSensor {
		t := s.sensor.TemperatureF
		st.ControlSensorID = s.sensor.SensorID
		st.TemperatureF = &t
		st.LastReadingAt = s.sensor.Timestamp
		st.FreshnessSec = now.Sub(s.sensor.Timestamp).Seconds()
	}
	s.mu.RUnlock()
	return st
}

func (s *ControlService) loadConfig(ctx context.Context) models.ControlConfig {
	cfg, err := s.configRepo.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNoConfig):
		cfg = s.opts.Seed
	default:
		s.log.Warnw("config_load_failed", "err", err)
		return s.config()
	}

	s.mu.Lock()
	s.cfg, s.hasCfg = cfg, true
	s.mu.Unlock()
	return cfg
}

// config returns the configuration used by the latest cycle.
func (s *ControlService) config() models.ControlConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasCfg {
		return s.opts.Seed
	}
	return s.cfg
}

func (s *ControlService) interval() time.Duration {
	return normalizeInterval(s.config().ControlInterval)
}

func (s *ControlService) controlTemp() *float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasSensor {
		return nil
	}
	t := s.sensor.TemperatureF
	return &t
}

func (s *ControlService) setReason(a models.Actuator, reason string) {
	s.mu.Lock()
	s.reasons[a] = reason
	s.mu.Unlock()
}

func (s *ControlService) reason(a models.Actuator) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reasons[a]
}

func (s *ControlService) emit(ctx context.Context, typ models.EventType, a models.Actuator, reason string, cfg models.ControlConfig, temp *float64, meta map[string]any) {
	e := models.ControlEvent{
		EventID:      uuid.NewString(),
		OccurredAt:   s.opts.Now().UTC(),
		Type:         typ,
		Actuator:     a,
		Reason:       reason,
		LowLimit:     cfg.LowLimit,
		HighLimit:    cfg.HighLimit,
		TemperatureF: temp,
	}
	if meta != nil {
		e.Metadata = meta
	}
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.log.Errorw("event_notify_failed", "type", typ, "actuator", a, "err", err)
	}
}

func decisionReason(a models.Actuator, on, stale bool, cfg models.ControlConfig) string {
	switch {
	case stale:
		return reasonSafety
	case !cfg.Enabled(a):
		return reasonDisabled
	case a == models.Heater && on, a == models.Cooler && !on:
		return reasonBelowLow
	default:
		return reasonAboveHigh
	}
}

func normalizeInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return control.DefaultControlReadInterval
	}
	return d
}
