package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/remoteeye-relay/internal/api"
	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/command"
	"github.com/nerrad567/remoteeye-relay/internal/device"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/config"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/database"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/logging"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/objectstore"
	"github.com/nerrad567/remoteeye-relay/internal/maintenance"
	"github.com/nerrad567/remoteeye-relay/internal/presence"
	"github.com/nerrad567/remoteeye-relay/internal/push"
	"github.com/nerrad567/remoteeye-relay/internal/realtime"
	"github.com/nerrad567/remoteeye-relay/internal/recording"
)

// schedulerStopTimeout bounds the wait for a running maintenance job.
const schedulerStopTimeout = 10 * time.Second

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (HTTP API and realtime channel)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := load()
			if err != nil {
				return err
			}

			// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg, path)
		},
	}
}

// run wires every component and blocks until ctx is cancelled or the HTTP
// listener fails.
//
// Shutdown order: HTTP server and realtime sessions, maintenance jobs,
// InfluxDB, MQTT, then the database (deferred closes run in reverse).
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Validated configuration
//   - configPath: Where cfg came from, for logging ("" for built-in defaults)
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config, configPath string) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting RemoteEye relay",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPathOrDefaults(configPath),
	)

	db, err := database.OpenMigrated(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	devices := device.NewSQLiteRepository(db.DB)
	commands := command.NewSQLiteRepository(db.DB)
	recordings := recording.NewSQLiteRepository(db.DB)
	pairings := auth.NewPairingRepository(db.DB)

	mqttClient, notifier, err := connectPush(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	// InfluxDB is optional; the relay runs without telemetry history.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("flushing and closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	storage, err := objectstore.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("configuring object storage: %w", err)
	}
	log.Info("object storage", "configured", storage.IsConfigured(), "bucket", cfg.Storage.Bucket)

	registry := presence.NewRegistry()
	dispatcher := command.NewDispatcher(commands, registry)
	dispatcher.SetLogger(log)

	tokens := auth.NewTokenIssuer(cfg.Security.JWT.Secret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())

	protoDeps := realtime.Deps{
		Registry:        registry,
		Dispatcher:      dispatcher,
		Devices:         devices,
		Recordings:      recordings,
		Verifier:        tokens,
		CloseSuperseded: cfg.Sessions.CloseSuperseded,
	}
	if influxClient != nil {
		protoDeps.Telemetry = influxClient
	}
	protocol, err := realtime.New(protoDeps)
	if err != nil {
		return fmt.Errorf("creating realtime protocol: %w", err)
	}
	protocol.SetLogger(log)

	sweeper := realtime.NewSweeper(registry, cfg.HeartbeatTimeout(), cfg.SweepInterval())
	sweeper.SetLogger(log)

	scheduler, err := maintenance.New(maintenance.Deps{
		Pairings:        pairings,
		CleanupSchedule: cfg.Pairing.CleanupSchedule,
	})
	if err != nil {
		return fmt.Errorf("creating maintenance scheduler: %w", err)
	}
	scheduler.SetLogger(log)
	scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), schedulerStopTimeout)
		defer cancel()
		if stopErr := scheduler.Stop(stopCtx); stopErr != nil {
			log.Warn("maintenance scheduler did not stop cleanly", "error", stopErr)
		}
	}()

	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Devices:    devices,
		Commands:   commands,
		Dispatcher: dispatcher,
		Recordings: recordings,
		Pairings:   pairings,
		Tokens:     tokens,
		Registry:   registry,
		Protocol:   protocol,
		Push:       notifier,
		Storage:    storage,
		PairingTTL: cfg.PairingCodeTTL(),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	listenErr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err, ok := <-listenErr:
			if ok && err != nil {
				return err
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down API server and realtime sessions")
		return srv.Close()
	})

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"websocket_path", cfg.WebSocket.Path,
		"push", notifier.IsConfigured(),
	)

	err = g.Wait()

	log.Info("RemoteEye relay stopped")
	return err
}

// connectPush connects to MQTT when enabled and builds the push notifier.
// Without push.enabled the notifier reports itself unconfigured.
func connectPush(cfg *config.Config, log *logging.Logger) (*mqtt.Client, push.Notifier, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled, push notifications unavailable")
		return nil, push.Disabled{}, nil
	}

	client, err := mqtt.Connect(cfg.MQTT, cfg.Push.TopicPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	if !cfg.Push.Enabled {
		return client, push.Disabled{}, nil
	}
	notifier := push.NewMQTTNotifier(client, client.Topics())
	notifier.SetLogger(log)
	return client, notifier, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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

func configPathOrDefaults(path string) string {
	if path == "" {
		return "(built-in defaults)"
	}
	return path
}
