package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "fermenter_controller/docs"
	"fermenter_controller/internal/config"
	"fermenter_controller/internal/handlers"
	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/models"
	"fermenter_controller/internal/notify"
	"fermenter_controller/internal/repository"
	"fermenter_controller/internal/repository/db"
	"fermenter_controller/internal/repository/pgarchive"
	"fermenter_controller/internal/sensor"
	"fermenter_controller/internal/server"
	"fermenter_controller/internal/service"
	"fermenter_controller/internal/worker"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// load configs/config.yml, .env and FERMENTER_* overrides
	cfg, err := config.Load(os.Getenv("FERMENTER_CONFIG"))
	if err != nil {
		logger.Get(logger.InfoLevel, "").Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.Log.Level, cfg.Log.Format)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// open DB
	sqlDB, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(sqlDB)
	if cfg.History.PostgresURL != "" {
		archive, err := pgarchive.Open(ctx, cfg.History.PostgresURL)
		if err != nil {
			log.Fatalw("failed to open reading archive", "err", err)
		}
		defer archive.Close()
		repos.ReadingRepo = repository.NewReadingFanout(repos.ReadingRepo, archive)
		log.Infow("reading_archive_enabled")
	}

	seed := cfg.SeedControlConfig()
	if err := service.EnsureSeeded(ctx, repos.ConfigRepo, seed); err != nil {
		log.Fatalw("failed to seed control config", "err", err)
	}

	// MQTT is shared by the sensor subscriber and Tasmota plugs
	var mqttClient mqtt.Client
	if needsMQTT(ctx, cfg, repos.ConfigRepo, seed) {
		mqttClient, err = sensor.NewMQTTClient(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password, log)
		if err != nil {
			log.Fatalw("failed to connect mqtt", "err", err)
		}
		defer mqttClient.Disconnect(250)
	}

	notifier := buildNotifier(ctx, cfg, repos, log)

	// control core and actuator worker talk only through these channels
	commands := make(chan models.Command, cfg.Worker.QueueSize)
	results := make(chan models.CommandResult, cfg.Worker.QueueSize)

	ctrl := service.NewControlService(repos.ConfigRepo, repos.ReadingRepo, notifier, commands, results, service.ControlOptions{
		LoggingInterval:   cfg.Control.LoggingInterval,
		MinCommandSpacing: cfg.Control.MinCommandSpacing,
		PendingTimeout:    cfg.Control.PendingTimeout,
		WatchdogTick:      cfg.Control.WatchdogTick,
		Seed:              seed,
	}, log)

	simPlugs := worker.NewSimSwitch()
	router := worker.NewRouter().
		Handle(worker.SchemeHTTP, worker.NewShellySwitch()).
		Handle(worker.SchemeHTTPS, worker.NewShellySwitch()).
		Handle(worker.SchemeSim, simPlugs)
	if mqttClient != nil {
		router.Handle(worker.SchemeMQTT, worker.NewTasmotaSwitch(mqttClient))
	}

	w := worker.New(router, commands, results, worker.Options{
		CommandTimeout: cfg.Worker.CommandTimeout,
		Retry: worker.RetryConfig{
			MaxAttempts:  cfg.Worker.MaxAttempts,
			InitialDelay: cfg.Worker.RetryDelay,
			MaxDelay:     4 * cfg.Worker.RetryDelay,
			Multiplier:   2.0,
		},
	}, log)
	go w.Run(ctx)
	go ctrl.Run(ctx)

	startSensorSource(ctx, cfg, ctrl, simPlugs, mqttClient, log)

	services := service.NewService(repos, ctrl, service.AuthOptions{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	})
	apiHandler := handlers.NewHandler(services, log, handlers.WithIngestToken(cfg.Ingest.Token),
		handlers.WithAllowedOrigins(cfg.WS.AllowedOrigins...),
	)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

// openDB initializes the SQLite database, falling back to fermenter.db.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "fermenter.db")
		path = "fermenter.db"
	}
	return db.InitDB(path)
}

// buildNotifier persists every event and, when configured, pushes it to
// Pushover without blocking the control cycle.
func buildNotifier(ctx context.Context, cfg config.Config, repos *repository.Repository, log *logger.Logger) notify.Notifier {
	chain := notify.Multi{notify.NewEventLog(repos.EventRepo, log)}

	push := notify.NewPushover(cfg.Notify.PushoverToken, cfg.Notify.PushoverUserKey, cfg.Notify.PushoverURL)
	if push.Enabled() {
		async := notify.NewAsync(push, 32, 15*time.Second, log)
		go async.Run(ctx)
		chain = append(chain, async)
		log.Infow("pushover_enabled")
	}
	return chain
}

func needsMQTT(ctx context.Context, cfg config.Config, repo repository.ConfigRepo, seed models.ControlConfig) bool {
	if cfg.Sensor.Source == config.SourceMQTT {
		return true
	}
	stored, err := repo.Load(ctx)
	if err != nil {
		stored = seed
	}
	for _, addr := range []string{stored.HeaterAddress, stored.CoolerAddress, seed.HeaterAddress, seed.CoolerAddress} {
		if strings.HasPrefix(addr, worker.SchemeMQTT+"://") {
			return true
		}
	}
	return false
}

// startSensorSource starts the configured reading feed. The http source needs
// no goroutine: readings arrive on POST /ingest/readings.
func startSensorSource(ctx context.Context, cfg config.Config, ctrl *service.ControlService, plugs *worker.SimSwitch, client mqtt.Client, log *logger.Logger) {
	// history failures are logged by Ingest itself
	ingest := func(ctx context.Context, r models.SensorReading) {
		_, _ = ctrl.Ingest(ctx, r)
	}

	switch cfg.Sensor.Source {
	case config.SourceMQTT:
		src := sensor.NewMQTTSource(client, cfg.MQTT.SensorTopic, func(r models.SensorReading) {
			ingest(ctx, r)
		}, log)
		go func() {
			if err := src.Run(ctx); err != nil && ctx.Err() == nil {
				log.Errorw("sensor_source_stopped", "err", err)
			}
		}()
	case config.SourceSim:
		sim := service.NewSimulatorService(ingest, service.SimulatorOptions{
			SensorID:    cfg.Simulator.SensorID,
			StartF:      cfg.Simulator.StartF,
			AmbientF:    cfg.Simulator.AmbientF,
			HeatPerMin:  cfg.Simulator.HeatPerMin,
			CoolPerMin:  cfg.Simulator.CoolPerMin,
			DriftPerMin: cfg.Simulator.DriftPerMin,
			TimeScale:   cfg.Simulator.TimeScale,
		}, log)
		plugs.OnChange(sim.SetPlug)
		go sim.Run(ctx, cfg.Simulator.Tick)
		log.Infow("simulator_started", "sensor_id", cfg.Simulator.SensorID)
	default:
		log.Infow("sensor_source_http", "endpoint", "/ingest/readings")
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop control cycle, worker and sources
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
