// habsync mirrors openHAB items into typed entities.
//
// It polls the openHAB REST API, listens to the openHAB event stream for
// changes, and republishes the result as retained MQTT state, a REST/WebSocket
// API and an entity registry.
//
// Usage:
//
//	habsync                  run the service
//	habsync token <subject>  print a signed API token
//	habsync version          print build information
//
// The configuration path is taken from HABSYNC_CONFIG, defaulting to
// configs/config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/habsync/internal/api"
	"github.com/nerrad567/habsync/internal/classify"
	"github.com/nerrad567/habsync/internal/coordinator"
	"github.com/nerrad567/habsync/internal/entity"
	"github.com/nerrad567/habsync/internal/eventstream"
	"github.com/nerrad567/habsync/internal/infrastructure/config"
	"github.com/nerrad567/habsync/internal/infrastructure/database"
	"github.com/nerrad567/habsync/internal/infrastructure/influxdb"
	"github.com/nerrad567/habsync/internal/infrastructure/logging"
	"github.com/nerrad567/habsync/internal/infrastructure/mqtt"
	"github.com/nerrad567/habsync/internal/openhab"
	"github.com/nerrad567/habsync/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := dispatch(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dispatch selects the subcommand.
func dispatch(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return run(ctx)
	}
	switch args[0] {
	case "token":
		if len(args) != 2 {
			return errors.New("usage: habsync token <subject>")
		}
		return printToken(args[1], out)
	case "version":
		fmt.Fprintf(out, "habsync %s (commit %s, built %s)\n", version, commit, date)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// printToken signs an API token for subject with the configured secret.
func printToken(subject string, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set")
	}
	tok, err := api.GenerateToken(subject, cfg.Security.JWT.Secret, cfg.GetTokenTTL())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok)
	return nil
}

// run is the service, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting habsync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // best-effort on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	categories, err := entity.ParseCategories(cfg.Entities.Categories)
	if err != nil {
		return fmt.Errorf("entities.categories: %w", err)
	}

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())
	registry := entity.NewSQLiteRegistry(db.DB)

	// openHAB
	auth := openhab.Auth{
		Mode:     openhab.AuthMode(cfg.OpenHAB.Auth.Mode),
		Token:    cfg.OpenHAB.Auth.Token,
		Username: cfg.OpenHAB.Auth.Username,
		Password: cfg.OpenHAB.Auth.Password,
	}
	ohClient, err := openhab.NewClient(openhab.Options{
		BaseURL: cfg.OpenHAB.BaseURL,
		Auth:    auth,
		Timeout: cfg.GetRequestTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating openHAB client: %w", err)
	}

	// Event stream
	var stream *eventstream.Client
	if cfg.Sync.StreamEnabled {
		stream, err = eventstream.New(eventstream.Config{
			URL:         ohClient.EventsURL(),
			Auth:        auth,
			RetryDelay:  cfg.GetStreamRetryDelay(),
			ReadTimeout: cfg.GetStreamReadTimeout(),
		}, log.Component("eventstream"))
		if err != nil {
			return fmt.Errorf("creating event stream: %w", err)
		}
	} else {
		log.Info("event stream disabled, relying on polling")
	}

	// Coordinator
	opts := coordinator.Options{
		Lister:    ohClient,
		Versioner: ohClient,
		Interval:  cfg.GetPollInterval(),
		Cooldown:  cfg.GetDebounceCooldown(),
	}
	if stream != nil {
		opts.Stream = stream
	}
	coord, err := coordinator.New(opts)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}
	coord.SetLogger(log.Component("coordinator"))
	// Covers early returns; on a normal exit Shutdown runs before the
	// deferred closes below.
	defer coord.Shutdown()

	commander := entity.NewCommander(ohClient, coord)

	// WebSocket hub, shared by the publisher and the API
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))
		go hub.Run(ctx)
		if stream != nil {
			stream.SetOnEvent(hub.RelayEvent)
		}
	}

	// MQTT (optional)
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
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"prefix", cfg.MQTT.TopicPrefix,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Publisher
	pubOpts := entity.PublisherOptions{
		Topics:     mqtt.NewTopics(cfg.MQTT.TopicPrefix),
		Registry:   registry,
		Commander:  commander,
		Categories: categories,
	}
	if mqttClient != nil {
		pubOpts.Broker = mqttClient
		pubOpts.Topics = mqttClient.Topics()
	}
	if hub != nil {
		pubOpts.Hub = hub
	}
	publisher := entity.NewPublisher(pubOpts)
	publisher.SetLogger(log.Component("publisher"))
	if restoreErr := publisher.Restore(ctx); restoreErr != nil {
		log.Warn("could not restore published state", "error", restoreErr)
	}
	coord.AddListener(publisher.Handle)
	if subErr := publisher.SubscribeCommands(); subErr != nil {
		return fmt.Errorf("subscribing to commands: %w", subErr)
	}

	// InfluxDB telemetry (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		wireTelemetry(influxClient, coord, stream)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log.Component("api"),
			Sync:       coord,
			Commander:  commander,
			Registry:   registry,
			Categories: categories,
			Hub:        hub,
			Version:    version,
		}
		if stream != nil {
			deps.Stream = stream
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	coord.Start()
	log.Info("initialisation complete, waiting for shutdown signal",
		"openhab", cfg.OpenHAB.BaseURL,
		"poll_interval", cfg.GetPollInterval(),
		"categories", categoryNames(categories),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Stop polling and the event stream first so nothing publishes into
	// closed clients. Deferred closes then run in reverse order: API,
	// InfluxDB, MQTT, database.
	coord.Shutdown()
	log.Info("coordinator stopped")
	return nil
}

// wireTelemetry registers poll and stream metrics.
func wireTelemetry(client *influxdb.Client, coord *coordinator.Coordinator, stream *eventstream.Client) {
	coord.AddListener(func(u coordinator.Update) {
		client.WritePollMetric(influxdb.PollSample{
			Duration: u.Duration,
			Items:    u.Snapshot.Len(),
			Online:   u.Online,
			Err:      u.Err,
			At:       u.At,
		})
	})
	if stream == nil {
		return
	}
	stream.SetOnStateChange(func(_ eventstream.State) {
		st := stream.Stats()
		client.WriteStreamMetric(influxdb.StreamSample{
			State:    st.StateName,
			Connects: st.Connects,
			Failures: st.Failures,
			Events:   st.Events,
			Signals:  st.Signals,
		})
	})
}

// getConfigPath returns HABSYNC_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("HABSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the local infrastructure. openHAB itself is not
// checked: the coordinator tolerates it being down and reports that via
// availability.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (nil if disabled)
//   - influxClient: InfluxDB client to check (nil if disabled)
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

func categoryNames(cats []classify.Category) []string {
	if len(cats) == 0 {
		cats = classify.All
	}
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
