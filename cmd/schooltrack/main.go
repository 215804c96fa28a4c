// SchoolTrack Asset Core - School Device Fleet Platform
//
// This is the main entry point for the SchoolTrack Asset Core service.
// SchoolTrack tracks ICT device fleets deployed across schools:
//   - Device registry with derived name tags and depreciation
//   - School directory with ownership-scoped access
//   - Heartbeat liveness ingest over MQTT
//   - On-demand automation rules (maintenance, warranty, offline sweeps)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/schooltrack/asset-core/migrations"

	"github.com/schooltrack/asset-core/internal/api"
	"github.com/schooltrack/asset-core/internal/audit"
	"github.com/schooltrack/asset-core/internal/auth"
	"github.com/schooltrack/asset-core/internal/automation"
	"github.com/schooltrack/asset-core/internal/device"
	"github.com/schooltrack/asset-core/internal/infrastructure/config"
	"github.com/schooltrack/asset-core/internal/infrastructure/database"
	"github.com/schooltrack/asset-core/internal/infrastructure/influxdb"
	"github.com/schooltrack/asset-core/internal/infrastructure/logging"
	"github.com/schooltrack/asset-core/internal/infrastructure/mqtt"
	"github.com/schooltrack/asset-core/internal/school"
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

// fleetSnapshotInterval is how often a fleet telemetry snapshot is
// written when InfluxDB is enabled.
const fleetSnapshotInterval = 15 * time.Minute

// heartbeatQoS is the subscribe QoS for the heartbeat topic. Heartbeats
// tolerate loss; QoS 1 keeps the redelivery window small without
// exactly-once cost.
const heartbeatQoS = 1

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo,maintidx // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SchoolTrack Asset Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "org", cfg.Org.Name)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
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

	// Repositories
	deviceRepo := device.NewSQLiteRepository(db.DB)
	schoolRepo := school.NewSQLiteRepository(db.DB)
	ruleRepo := automation.NewSQLiteRepository(db.DB)
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)
	scopeRepo := auth.NewScopeRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Device manager
	deviceManager := device.NewManager(deviceRepo, schoolRepo, log)

	// Seed the admin account on first start
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
	} else {
		log.Info("MQTT disabled")
	}

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

	// Automation registry and engine
	registry := automation.NewRegistry(ruleRepo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading automation rules: %w", refreshErr)
	}
	log.Info("automation rules loaded", "rules", registry.GetRuleCount())

	engine := automation.NewEngine(registry, ruleRepo, log)
	registerHandlers(engine, deviceRepo, schoolRepo, mqttClient, influxClient)

	// Heartbeat ingest: agents publish on schooltrack/heartbeat/<serial>
	if mqttClient != nil {
		if subErr := subscribeHeartbeats(ctx, mqttClient, deviceManager, deviceRepo, influxClient, log); subErr != nil {
			return fmt.Errorf("subscribing to heartbeats: %w", subErr)
		}
	}

	// Periodic fleet telemetry snapshots
	if influxClient != nil {
		go fleetSnapshotLoop(ctx, deviceManager, influxClient, log)
	}

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		Security:   cfg.Security,
		Logger:     log,
		DB:         db,
		Devices:    deviceManager,
		DeviceRepo: deviceRepo,
		Schools:    schoolRepo,
		Rules:      registry,
		Engine:     engine,
		UserRepo:   userRepo,
		TokenRepo:  tokenRepo,
		ScopeRepo:  scopeRepo,
		AuditRepo:  auditRepo,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("SchoolTrack Asset Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SCHOOLTRACK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SCHOOLTRACK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registerHandlers wires all rule handlers into the engine.
//
// The interface assignments are deliberately guarded: assigning a nil
// *mqtt.Client or *influxdb.Client directly would produce a non-nil
// interface value and defeat the handlers' nil checks.
func registerHandlers(engine *automation.Engine, devices device.Repository, schools school.Repository, mqttClient *mqtt.Client, influxClient *influxdb.Client) {
	var pub automation.Publisher
	if mqttClient != nil {
		pub = mqttClient
	}
	var telemetry automation.Telemetry
	if influxClient != nil {
		telemetry = influxClient
	}

	engine.Register(automation.MaintenanceReminderHandler{Devices: devices, Publisher: pub})
	engine.Register(automation.WarrantyAlertHandler{Devices: devices, Publisher: pub})
	engine.Register(automation.OfflineDetectionHandler{Devices: devices, Publisher: pub})
	engine.Register(automation.AgingUpdateHandler{Devices: devices, Telemetry: telemetry})
	engine.Register(automation.UserAssignmentHandler{Devices: devices, Schools: schools, Publisher: pub})
}

// heartbeatPayload is the optional JSON body of a heartbeat message.
// An empty payload means "seen now".
type heartbeatPayload struct {
	SeenAt *time.Time `json:"seen_at,omitempty"`
}

// subscribeHeartbeats wires the device liveness ingest path. Heartbeats
// from serial numbers not in the registry are logged and dropped.
func subscribeHeartbeats(ctx context.Context, mqttClient *mqtt.Client, manager *device.Manager, repo device.Repository, influxClient *influxdb.Client, log *logging.Logger) error {
	topics := mqtt.Topics{}

	return mqttClient.Subscribe(topics.AllHeartbeats(), heartbeatQoS, func(topic string, payload []byte) error {
		serial := topic[strings.LastIndex(topic, "/")+1:]
		if serial == "" {
			return fmt.Errorf("heartbeat topic %q has no serial segment", topic)
		}

		seenAt := time.Now().UTC()
		if len(payload) > 0 {
			var hb heartbeatPayload
			if err := json.Unmarshal(payload, &hb); err == nil && hb.SeenAt != nil {
				seenAt = hb.SeenAt.UTC()
			}
		}

		if err := manager.RecordHeartbeat(ctx, serial, seenAt); err != nil {
			if errors.Is(err, device.ErrNotFound) {
				log.Warn("heartbeat from unknown device", "serial", serial)
				return nil
			}
			return err
		}

		if influxClient != nil {
			nameTag := ""
			if dev, err := repo.GetBySerial(ctx, serial); err == nil {
				nameTag = dev.NameTag
			}
			influxClient.WriteHeartbeat(serial, nameTag, seenAt)
		}
		return nil
	})
}

// fleetSnapshotLoop periodically writes a fleet summary to InfluxDB
// until the context is cancelled.
func fleetSnapshotLoop(ctx context.Context, manager *device.Manager, influxClient *influxdb.Client, log *logging.Logger) {
	ticker := time.NewTicker(fleetSnapshotInterval)
	defer ticker.Stop()

	write := func() {
		stats, err := manager.Stats(ctx)
		if err != nil {
			log.Error("fleet snapshot failed", "error", err)
			return
		}
		influxClient.WriteFleetSnapshot(
			stats.Total,
			stats.Online,
			stats.ByStatus[device.StatusMaintenance],
			stats.BookValue,
		)
	}

	// One snapshot shortly after startup, then on the interval.
	write()
	for {
		select {
		case <-ticker.C:
			write()
		case <-ctx.Done():
			return
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB are skipped when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
