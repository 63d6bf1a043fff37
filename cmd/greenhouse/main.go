// Greenhouse Core - autonomous greenhouse control loop
//
// This is the main entry point for the Greenhouse Core application.
// Greenhouse Core keeps a small greenhouse alive on its own:
//   - Collects sensor telemetry over MQTT
//   - Estimates environmental trends from recent readings
//   - Decides on device actions (external reasoner with a rule fallback)
//   - Drives pumps and fans through a fixed safety gate
//   - Records every decision for audit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/verdantio/greenhouse-core/migrations"

	"github.com/verdantio/greenhouse-core/internal/alert"
	"github.com/verdantio/greenhouse-core/internal/api"
	"github.com/verdantio/greenhouse-core/internal/brain"
	"github.com/verdantio/greenhouse-core/internal/decision"
	"github.com/verdantio/greenhouse-core/internal/device"
	"github.com/verdantio/greenhouse-core/internal/executor"
	"github.com/verdantio/greenhouse-core/internal/forecast"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/database"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/influxdb"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/logging"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/metrics"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/mqtt"
	"github.com/verdantio/greenhouse-core/internal/relay"
	"github.com/verdantio/greenhouse-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// flags holds the parsed command-line options.
type flags struct {
	configPath string
	once       bool
	dryRun     bool
	noReasoner bool
	debug      bool
}

func main() {
	f := parseFlags()

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads command-line options. The config path flag is
// overridden by the GREENHOUSE_CONFIG environment variable when set.
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", defaultConfigPath, "path to configuration file")
	flag.BoolVar(&f.once, "once", false, "run a single control cycle and exit")
	flag.BoolVar(&f.dryRun, "dry-run", false, "evaluate decisions without touching hardware")
	flag.BoolVar(&f.noReasoner, "no-reasoner", false, "skip the external reasoner and use the fallback policy")
	flag.BoolVar(&f.debug, "debug", false, "force debug logging regardless of config")
	flag.Parse()

	f.configPath = resolveConfigPath(f.configPath)
	return f
}

// resolveConfigPath returns the configuration file path.
// The GREENHOUSE_CONFIG environment variable wins over the flag value.
func resolveConfigPath(flagValue string) string {
	if path := os.Getenv("GREENHOUSE_CONFIG"); path != "" {
		return path
	}
	return flagValue
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, f flags) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Greenhouse Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", f.configPath)

	if f.debug {
		cfg.Logging.Level = "debug"
	}
	if f.dryRun {
		cfg.Control.DryRun = true
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// The site timezone drives daily counter resets and forecast dates.
	// Validate() has already checked the name parses.
	location := cfg.Timezone()

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry from configured devices
	deviceConfigs := make([]device.Config, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		deviceConfigs = append(deviceConfigs, device.ConfigFrom(dc))
	}
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo, deviceConfigs)
	if initErr := registry.Init(ctx, time.Now()); initErr != nil {
		return fmt.Errorf("initialising device registry: %w", initErr)
	}
	log.Info("device registry initialised", "devices", len(deviceConfigs))

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Weather forecast client (optional)
	var forecastClient *forecast.Client
	if cfg.Forecast.Enabled {
		forecastClient = forecast.NewClient(cfg.Forecast,
			cfg.Site.Location.Latitude,
			cfg.Site.Location.Longitude,
			location,
		)
		log.Info("forecast client enabled", "base_url", cfg.Forecast.BaseURL)
	} else {
		log.Info("forecast disabled")
	}

	// Prometheus instruments
	instruments := metrics.New()

	// Telemetry ingestion: validate, store, archive, count
	store := telemetry.NewStore()
	processor := telemetry.NewProcessor(cfg.Sensors)
	ingestorOpts := []telemetry.IngestorOption{
		telemetry.WithLogger(log),
		telemetry.WithAcceptHook(func(r telemetry.Reading) {
			instruments.LastTelemetryTimestamp.Set(float64(r.RecordedAt.Unix()))
		}),
	}
	if influxClient != nil {
		ingestorOpts = append(ingestorOpts, telemetry.WithArchiver(influxClient))
	}
	ingestor := telemetry.NewIngestor(processor, store, byte(cfg.MQTT.QoS), ingestorOpts...)
	if startErr := ingestor.Start(mqttClient); startErr != nil {
		return fmt.Errorf("starting telemetry ingestor: %w", startErr)
	}
	log.Info("telemetry ingestor started")

	// Alert notifier
	var alerter *alert.Notifier
	if cfg.Alerts.Enabled {
		alerter = alert.NewNotifier(mqttClient, alert.WithLogger(log))
	} else {
		alerter = alert.NewNotifier(nil, alert.WithLogger(log))
		log.Info("alert publishing disabled")
	}

	// Executor: the safety gate between decisions and hardware
	relayController := relay.NewController(mqttClient)
	exec := executor.New(registry, relayController,
		executor.WithDryRun(cfg.Control.DryRun),
		executor.WithAlerter(alerter),
		executor.WithLogger(log),
	)
	defer exec.Close()
	if cfg.Control.DryRun {
		log.Warn("dry-run mode: relay commands are suppressed")
	}

	// Decision makers: fallback policy always, reasoner when configured
	fallback := decision.NewPolicy(cfg.Control)
	history := decision.NewSQLiteHistory(db.DB)

	var reasoner decision.Maker
	if cfg.Reasoner.Enabled && !f.noReasoner {
		deviceIDs := make([]string, 0, len(deviceConfigs))
		for _, dc := range deviceConfigs {
			deviceIDs = append(deviceIDs, dc.ID)
		}
		reasoner = decision.NewClient(cfg.Reasoner, deviceIDs)
		log.Info("reasoner enabled", "url", cfg.Reasoner.URL)
	} else {
		log.Info("reasoner disabled, fallback policy decides every cycle")
	}

	// Control loop orchestrator
	orchestratorOpts := []brain.Option{
		brain.WithMetrics(instruments),
		brain.WithLogger(log),
	}
	if reasoner != nil {
		orchestratorOpts = append(orchestratorOpts, brain.WithReasoner(reasoner))
	}
	if forecastClient != nil {
		orchestratorOpts = append(orchestratorOpts, brain.WithForecaster(forecastClient))
	}
	if influxClient != nil {
		orchestratorOpts = append(orchestratorOpts, brain.WithArchiver(influxClient))
	}
	orchestrator := brain.New(cfg.Control, store, fallback, exec, registry, history, orchestratorOpts...)

	// Daily counter reset at local midnight, with catch-up after restarts
	resetScheduler := brain.NewResetScheduler(registry, location, log)
	if catchErr := resetScheduler.CatchUp(ctx); catchErr != nil {
		return fmt.Errorf("daily counter catch-up: %w", catchErr)
	}

	// Single-cycle mode: decide once, report, exit
	if f.once {
		record, cycleErr := orchestrator.RunCycle(ctx)
		if cycleErr != nil {
			return fmt.Errorf("control cycle: %w", cycleErr)
		}
		log.Info("cycle complete",
			"action", string(record.Decision.Action),
			"device_id", record.Decision.DeviceID,
			"outcome", string(record.Outcome),
			"reason", record.Decision.Reason,
		)
		return nil
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Registry: registry,
		Store:    store,
		Executor: exec,
		History:  history,
		Forecast: apiForecaster(forecastClient),
		Broker:   mqttClient,
		Metrics:  instruments,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		orchestrator.Run(ctx)
	}()
	go func() {
		defer loops.Done()
		resetScheduler.Run(ctx)
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	// An in-flight cycle finishes before anything closes underneath it.
	log.Info("shutdown signal received, waiting for control loop")
	loops.Wait()

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Executor (auto-shutoff timers)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Greenhouse Core stopped")
	return nil
}

// apiForecaster converts a possibly-nil *forecast.Client into the API's
// optional Forecaster dependency without wrapping nil in a non-nil
// interface value.
func apiForecaster(c *forecast.Client) api.Forecaster {
	if c == nil {
		return nil
	}
	return c
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// InfluxDB is optional
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
