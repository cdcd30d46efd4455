package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fermenter_controller/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FERMENTER_MQTT_BROKER.
const EnvPrefix = "FERMENTER"

// Sensor feed kinds.
const (
	SourceMQTT = "mqtt"
	SourceHTTP = "http"
	SourceSim  = "sim"
)

type Config struct {
	Port      string
	Log       LogConfig
	DB        DBConfig
	Auth      AuthConfig
	Control   ControlConfig
	Worker    WorkerConfig
	MQTT      MQTTConfig
	Sensor    SensorConfig
	Ingest    IngestConfig
	WS        WSConfig
	Notify    NotifyConfig
	History   HistoryConfig
	Simulator SimulatorConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type DBConfig struct {
	Path string
}

type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// ControlConfig holds the control timing knobs plus the seed used for the
// stored control configuration on first start.
type ControlConfig struct {
	Interval          time.Duration
	LoggingInterval   time.Duration
	MinCommandSpacing time.Duration
	PendingTimeout    time.Duration
	WatchdogTick      time.Duration
	LowLimit          *float64
	HighLimit         *float64
	HeatingEnabled    bool
	CoolingEnabled    bool
	BoundSensorID     string
	HeaterAddress     string
	CoolerAddress     string
}

type WorkerConfig struct {
	QueueSize      int
	CommandTimeout time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	SensorTopic string
}

type SensorConfig struct {
	Source string
}

type IngestConfig struct {
	Token string
}

// WSConfig controls the /ws status stream. Empty AllowedOrigins means
// same-host browsers only.
type WSConfig struct {
	AllowedOrigins []string
}

type NotifyConfig struct {
	PushoverToken   string
	PushoverUserKey string
	PushoverURL     string
}

type HistoryConfig struct {
	PostgresURL string
}

type SimulatorConfig struct {
	SensorID    string
	StartF      float64
	AmbientF    float64
	Tick        time.Duration
	TimeScale   float64
	HeatPerMin  float64
	CoolPerMin  float64
	DriftPerMin float64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.path", "fermenter.db")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("ws.allowed_origins", []string{})

	v.SetDefault("control.interval", "2m")
	v.SetDefault("control.logging_interval", "15m")
	v.SetDefault("control.min_command_spacing", "5s")
	v.SetDefault("control.pending_timeout", "10s")
	v.SetDefault("control.watchdog_tick", "1s")
	v.SetDefault("control.heating_enabled", false)
	v.SetDefault("control.cooling_enabled", false)
	v.SetDefault("control.bound_sensor_id", "")
	v.SetDefault("control.heater_address", "")
	v.SetDefault("control.cooler_address", "")

	v.SetDefault("worker.queue_size", 8)
	v.SetDefault("worker.command_timeout", "8s")
	v.SetDefault("worker.max_attempts", 2)
	v.SetDefault("worker.retry_delay", "500ms")

	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "fermenter-controller")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.sensor_topic", "tilt/+")

	v.SetDefault("sensor.source", SourceHTTP)
	v.SetDefault("ingest.token", "")

	v.SetDefault("notify.pushover.token", "")
	v.SetDefault("notify.pushover.user_key", "")
	v.SetDefault("notify.pushover.url", "https://api.pushover.net/1/messages.json")

	v.SetDefault("history.postgres_url", "")

	v.SetDefault("simulator.sensor_id", "SIM")
	v.SetDefault("simulator.start_f", 70.0)
	v.SetDefault("simulator.ambient_f", 72.0)
	v.SetDefault("simulator.tick", "5s")
	v.SetDefault("simulator.time_scale", 1.0)
	v.SetDefault("simulator.heat_per_min", 0.2)
	v.SetDefault("simulator.cool_per_min", 0.3)
	v.SetDefault("simulator.drift_per_min", 0.02)
}

// Load reads an optional .env file, then configs/config.yml (or the file at
// path when given), then FERMENTER_* environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port: v.GetString("port"),
		Log:  LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		DB:   DBConfig{Path: v.GetString("db.path")},
		Auth: AuthConfig{
			SigningKey: v.GetString("auth.signing_key"),
			TokenTTL:   v.GetDuration("auth.token_ttl"),
		},
		Control: ControlConfig{
			Interval:          v.GetDuration("control.interval"),
			LoggingInterval:   v.GetDuration("control.logging_interval"),
			MinCommandSpacing: v.GetDuration("control.min_command_spacing"),
			PendingTimeout:    v.GetDuration("control.pending_timeout"),
			WatchdogTick:      v.GetDuration("control.watchdog_tick"),
			LowLimit:          optionalFloat(v, "control.low_limit"),
			HighLimit:         optionalFloat(v, "control.high_limit"),
			HeatingEnabled:    v.GetBool("control.heating_enabled"),
			CoolingEnabled:    v.GetBool("control.cooling_enabled"),
			BoundSensorID:     v.GetString("control.bound_sensor_id"),
			HeaterAddress:     v.GetString("control.heater_address"),
			CoolerAddress:     v.GetString("control.cooler_address"),
		},
		Worker: WorkerConfig{
			QueueSize:      v.GetInt("worker.queue_size"),
			CommandTimeout: v.GetDuration("worker.command_timeout"),
			MaxAttempts:    v.GetInt("worker.max_attempts"),
			RetryDelay:     v.GetDuration("worker.retry_delay"),
		},
		MQTT: MQTTConfig{
			Broker:      v.GetString("mqtt.broker"),
			ClientID:    v.GetString("mqtt.client_id"),
			Username:    v.GetString("mqtt.username"),
			Password:    v.GetString("mqtt.password"),
			SensorTopic: v.GetString("mqtt.sensor_topic"),
		},
		Sensor: SensorConfig{Source: strings.ToLower(strings.TrimSpace(v.GetString("sensor.source")))},
		Ingest: IngestConfig{Token: v.GetString("ingest.token")},
		WS:     WSConfig{AllowedOrigins: v.GetStringSlice("ws.allowed_origins")},
		Notify: NotifyConfig{
			PushoverToken:   v.GetString("notify.pushover.token"),
			PushoverUserKey: v.GetString("notify.pushover.user_key"),
			PushoverURL:     v.GetString("notify.pushover.url"),
		},
		History: HistoryConfig{PostgresURL: v.GetString("history.postgres_url")},
		Simulator: SimulatorConfig{
			SensorID:    v.GetString("simulator.sensor_id"),
			StartF:      v.GetFloat64("simulator.start_f"),
			AmbientF:    v.GetFloat64("simulator.ambient_f"),
			Tick:        v.GetDuration("simulator.tick"),
			TimeScale:   v.GetFloat64("simulator.time_scale"),
			HeatPerMin:  v.GetFloat64("simulator.heat_per_min"),
			CoolPerMin:  v.GetFloat64("simulator.cool_per_min"),
			DriftPerMin: v.GetFloat64("simulator.drift_per_min"),
		},
	}
	return cfg, cfg.validate()
}

// optionalFloat returns nil for an unset or unparseable key instead of 0, so
// a missing limit never turns into an arbitrary one.
func optionalFloat(v *viper.Viper, key string) *float64 {
	if !v.IsSet(key) {
		return nil
	}
	f, err := toFloat(v.Get(key))
	if err != nil {
		return nil
	}
	return &f
}

func (c Config) validate() error {
	switch c.Sensor.Source {
	case SourceMQTT, SourceHTTP, SourceSim:
	default:
		return fmt.Errorf("unknown sensor.source %q (want mqtt, http or sim)", c.Sensor.Source)
	}
	if c.Control.Interval <= 0 {
		return errors.New("control.interval must be positive")
	}
	if c.Control.PendingTimeout <= 0 {
		return errors.New("control.pending_timeout must be positive")
	}
	if c.Worker.QueueSize <= 0 {
		return errors.New("worker.queue_size must be positive")
	}
	return nil
}

// SeedControlConfig converts the control section into the stored control
// configuration used when none exists yet.
func (c Config) SeedControlConfig() models.ControlConfig {
	return models.ControlConfig{
		LowLimit:        c.Control.LowLimit,
		HighLimit:       c.Control.HighLimit,
		HeatingEnabled:  c.Control.HeatingEnabled,
		CoolingEnabled:  c.Control.CoolingEnabled,
		BoundSensorID:   c.Control.BoundSensorID,
		ControlInterval: c.Control.Interval,
		HeaterAddress:   c.Control.HeaterAddress,
		CoolerAddress:   c.Control.CoolerAddress,
	}
}
