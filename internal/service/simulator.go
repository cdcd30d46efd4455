package service

import (
	"context"
	"math"
	"sync"
	"time"

	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/models"
)

// Default simulation rates, in °F per simulated minute.
const (
	DefaultAmbientF       = 72.0
	DefaultHeatPerMin     = 0.2
	DefaultCoolPerMin     = 0.3
	DefaultDriftPerMin    = 0.02 // fraction of the gap to ambient closed per minute
	defaultSimSensorID    = "SIM"
	simTemperaturePrecise = 10.0 // readings are rounded to 0.1 °F like a Tilt
)

type SimulatorOptions struct {
	SensorID    string
	StartF      float64
	AmbientF    float64
	HeatPerMin  float64
	CoolPerMin  float64
	DriftPerMin float64
	TimeScale   float64 // simulated seconds per real second
	HeaterPlug  string
	CoolerPlug  string
	Now         func() time.Time
}

// SimulatorService models a fermenter that drifts toward ambient and is moved
// by the simulated heater and cooler plugs. Each tick it publishes a reading
// to the sink.
type SimulatorService struct {
	sink func(context.Context, models.SensorReading)
	opts SimulatorOptions
	log  *logger.Logger

	mu       sync.Mutex
	tempF    float64
	heaterOn bool
	coolerOn bool
	last     time.Time
}

func NewSimulatorService(sink func(context.Context, models.SensorReading), opts SimulatorOptions, log *logger.Logger) *SimulatorService {
	if opts.SensorID == "" {
		opts.SensorID = defaultSimSensorID
	}
	if opts.AmbientF == 0 {
		opts.AmbientF = DefaultAmbientF
	}
	if opts.StartF == 0 {
		opts.StartF = opts.AmbientF
	}
	if opts.HeatPerMin <= 0 {
		opts.HeatPerMin = DefaultHeatPerMin
	}
	if opts.CoolPerMin <= 0 {
		opts.CoolPerMin = DefaultCoolPerMin
	}
	if opts.DriftPerMin <= 0 {
		opts.DriftPerMin = DefaultDriftPerMin
	}
	if opts.TimeScale <= 0 {
		opts.TimeScale = 1
	}
	if opts.HeaterPlug == "" {
		opts.HeaterPlug = string(models.Heater)
	}
	if opts.CoolerPlug == "" {
		opts.CoolerPlug = string(models.Cooler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SimulatorService{sink: sink, opts: opts, log: log, tempF: opts.StartF}
}

// SetPlug is the simulated plug callback; unknown plug names are ignored.
func (s *SimulatorService) SetPlug(name string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case s.opts.HeaterPlug:
		s.heaterOn = on
	case s.opts.CoolerPlug:
		s.coolerOn = on
	}
}

// Temperature returns the current simulated temperature.
func (s *SimulatorService) Temperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempF
}

// Run ticks at the given interval until ctx is canceled.
func (s *SimulatorService) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()

	s.publish(ctx, s.opts.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := s.opts.Now()
			s.advance(now)
			s.publish(ctx, now)
		}
	}
}

// advance moves the model forward to now.
func (s *SimulatorService) advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.IsZero() {
		s.last = now
		return
	}
	elapsed := now.Sub(s.last)
	s.last = now
	if elapsed <= 0 {
		return
	}
	s.step(elapsed.Minutes() * s.opts.TimeScale)
}

// step applies minutes of simulated time. Caller holds mu.
func (s *SimulatorService) step(minutes float64) {
	gap := s.opts.AmbientF - s.tempF
	drift := gap * math.Min(1, s.opts.DriftPerMin*minutes)
	s.tempF += drift
	if s.heaterOn {
		s.tempF += s.opts.HeatPerMin * minutes
	}
	if s.coolerOn {
		s.tempF -= s.opts.CoolPerMin * minutes
	}
}

func (s *SimulatorService) publish(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if s.last.IsZero() {
		s.last = now
	}
	r := models.SensorReading{
		SensorID:     s.opts.SensorID,
		TemperatureF: math.Round(s.tempF*simTemperaturePrecise) / simTemperaturePrecise,
		Timestamp:    now.UTC(),
	}
	heater, cooler := s.heaterOn, s.coolerOn
	s.mu.Unlock()

	s.log.Debugw("sim_reading", "temperature_f", r.TemperatureF, "heater", heater, "cooler", cooler)
	s.sink(ctx, r)
}
