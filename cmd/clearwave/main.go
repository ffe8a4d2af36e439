// ClearWave Core - Hospital IoT Telemetry Platform
//
// This is the main entry point for the ClearWave Core application.
// ClearWave Core is the access-control and telemetry backend for a
// fleet of environmental sensors deployed across hospitals:
//   - Multi-tenant RBAC (admins, region admins, hospital users)
//   - Device-key authenticated sensor ingest over HTTP and MQTT
//   - Append-only audit trail of security-relevant actions
//   - Optional InfluxDB mirror for time-series dashboards
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/clearwave/clearwave-core/migrations"

	"github.com/clearwave/clearwave-core/internal/api"
	"github.com/clearwave/clearwave-core/internal/audit"
	"github.com/clearwave/clearwave-core/internal/auth"
	"github.com/clearwave/clearwave-core/internal/devicekey"
	"github.com/clearwave/clearwave-core/internal/infrastructure/config"
	"github.com/clearwave/clearwave-core/internal/infrastructure/database"
	"github.com/clearwave/clearwave-core/internal/infrastructure/influxdb"
	"github.com/clearwave/clearwave-core/internal/infrastructure/logging"
	"github.com/clearwave/clearwave-core/internal/infrastructure/mqtt"
	"github.com/clearwave/clearwave-core/internal/org"
	"github.com/clearwave/clearwave-core/internal/telemetry"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting ClearWave Core",
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
	log.Info("configuration loaded", "path", configPath)

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
	users := auth.NewUserRepository(db.DB)
	tokens := auth.NewTokenRepository(db.DB)
	orgs := org.NewSQLiteRepository(db.DB)
	keyRepo := devicekey.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	readings := telemetry.NewSQLiteRepository(db.DB)

	// Seed the first admin account on an empty database
	if _, seedErr := auth.SeedAdmin(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Auth service
	authSvc := auth.NewService(users, tokens, auth.ServiceConfig{
		JWTSecret:          cfg.Security.JWT.Secret,
		Issuer:             cfg.Site.Name,
		AccessTokenTTL:     cfg.AccessTokenTTL(),
		RefreshTokenTTL:    cfg.RefreshTokenTTL(),
		LockoutMaxAttempts: cfg.Security.Lockout.MaxAttempts,
		LockoutDuration:    cfg.LockoutDuration(),
		PasswordMinLength:  cfg.Security.Password.MinLength,
	})

	// Device key authority. Disabled rate limiting means an effectively
	// unbounded per-key budget.
	rpm := cfg.Security.RateLimit.RequestsPerMinute
	if !cfg.Security.RateLimit.Enabled {
		rpm = 1_000_000
	}
	authority := devicekey.NewAuthority(keyRepo, devicekey.Config{
		RequestsPerMinute: rpm,
	})

	// Async audit recorder
	recorder := audit.NewRecorder(auditRepo, log.Logger, audit.RecorderConfig{
		BufferSize:          cfg.Audit.BufferSize,
		TelemetrySampleRate: cfg.Audit.TelemetrySampleRate,
	})
	defer func() {
		log.Info("flushing audit recorder")
		recorder.Close()
	}()

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

	// Telemetry service; a nil interface must stay nil when Influx is off
	var mirror telemetry.Mirror
	if influxClient != nil {
		mirror = influxClient
	}
	telemetrySvc := telemetry.NewService(readings, orgs, mirror, recorder)

	// Connect to the MQTT broker (optional) and subscribe to readings
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

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		topic := mqtt.Topics{}.AllSensorReadings()
		handler := telemetry.IngestHandler(authority, telemetrySvc, log.Logger)
		if subErr := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), handler); subErr != nil {
			return fmt.Errorf("subscribing to sensor readings: %w", subErr)
		}
		log.Info("subscribed to sensor readings", "topic", topic)
	} else {
		log.Info("MQTT disabled, sensors must use HTTP ingest")
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Auth:      authSvc,
		Users:     users,
		Orgs:      orgs,
		Keys:      authority,
		KeyRepo:   keyRepo,
		Telemetry: telemetrySvc,
		AuditRepo: auditRepo,
		Recorder:  recorder,
		DB:        db.DB,
		MQTT:      mqttClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
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
	// API server, MQTT, InfluxDB, audit recorder, database

	log.Info("ClearWave Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CLEARWAVE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CLEARWAVE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
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
