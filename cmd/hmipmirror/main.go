// HmIP Mirror - live local mirror of a HomematicIP cloud home
//
// hmipmirror loads the full home state over REST, keeps it current from the
// push event stream and republishes every change to the optional sinks:
//   - MQTT (retained entity state, change events, command bridge)
//   - InfluxDB (device channel telemetry)
//   - SQLite (notification journal)
//   - HTTP/WebSocket API (read-only graph and live notifications)
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-hmip/internal/admission"
	"github.com/nerrad567/gray-logic-hmip/internal/api"
	"github.com/nerrad567/gray-logic-hmip/internal/history"
	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hmip/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hmip/internal/mirror"
	"github.com/nerrad567/gray-logic-hmip/internal/model"
	"github.com/nerrad567/gray-logic-hmip/internal/notify"
	"github.com/nerrad567/gray-logic-hmip/internal/relay"
	"github.com/nerrad567/gray-logic-hmip/internal/stream"
	"github.com/nerrad567/gray-logic-hmip/internal/transport"
	"github.com/nerrad567/gray-logic-hmip/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// pruneInterval is how often the journal drops expired rows.
	pruneInterval = time.Hour

	// graphStatsInterval is how often entity counts are written to InfluxDB.
	graphStatsInterval = time.Minute
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("hmipmirror", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configPath := flags.StringP("config", "c", "", "path to the configuration file (default $HMIP_CONFIG or "+defaultConfigPath+")")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	if *showVersion {
		fmt.Fprintf(stdout, "hmipmirror %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting HmIP mirror",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	path := getConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", path,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Cloud side: admission controller, REST transport, push stream
	limiter := admission.New(cfg.Limiter.Capacity, cfg.Limiter.FillRate)
	rest := transport.New(transport.Config{
		BaseURL:         cfg.Cloud.RestURL,
		AuthToken:       cfg.Cloud.AuthToken,
		ClientAuthToken: cfg.Cloud.ClientAuthToken,
		APIVersion:      cfg.Cloud.APIVersion,
		AccessPointID:   cfg.Cloud.AccessPointID,
		ClientLanguage:  cfg.Cloud.ClientLanguage,
		Timeout:         cfg.RequestTimeout(),
		TakeTimeout:     cfg.TakeTimeout(),
	},
		transport.WithLimiter(limiter),
		transport.WithLogger(log.Component("transport")),
	)

	conn := stream.New(stream.Config{
		URL:               cfg.Cloud.StreamURL,
		AuthToken:         cfg.Cloud.AuthToken,
		ClientAuthToken:   cfg.Cloud.ClientAuthToken,
		ReconnectOnError:  cfg.Stream.ReconnectOnError,
		ReconnectDelay:    cfg.ReconnectDelay(),
		MaxReconnectDelay: cfg.MaxReconnectDelay(),
		PingInterval:      time.Duration(cfg.Stream.PingInterval) * time.Second,
		HandshakeTimeout:  time.Duration(cfg.Stream.HandshakeTimeout) * time.Second,
	})
	conn.SetLogger(log.Component("stream"))
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing stream", "error", closeErr)
		}
	}()

	// Graph, engine and notification fan-out
	bus := notify.NewBus()
	bus.SetLogger(log.Component("notify"))

	graph := model.NewGraph()
	engine := mirror.New(graph, bus)
	engine.SetLogger(log.Component("mirror"))

	syncer := mirror.NewSyncer(engine, rest)
	syncer.SetLogger(log.Component("sync"))

	// Sinks that replay the whole graph after a snapshot rebuild
	var replayQueues []*notify.Queue

	// Sinks with a HealthCheck, checked at startup and on GET /health.
	checks := make(map[string]api.HealthChecker)

	// Notification journal (optional)
	var journal *history.Journal
	if cfg.Database.Enabled {
		db, dbErr := openJournal(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		checks["database"] = db
		journal = history.New(db.DB)
		journal.SetLogger(log.Component("history"))
		startQueue(ctx, bus, journal.Handle, log)

		retention := time.Duration(cfg.Database.RetentionHours) * time.Hour
		if retention > 0 {
			go journal.RunPruner(ctx, retention, pruneInterval)
		}
	} else {
		log.Info("notification journal disabled")
	}

	// MQTT relay and command bridge (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		checks["mqtt"] = mqttClient
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		sink := relay.NewMQTTSink(mqttClient, mqttClient.Topics())
		sink.SetLogger(log.Component("relay"))
		replayQueues = append(replayQueues, startQueue(ctx, bus, sink.Handle, log))

		bridge := relay.NewCommandBridge(rest, mqttClient, mqttClient.Topics())
		bridge.SetLogger(log.Component("commands"))
		bridge.SetTimeout(cfg.RequestTimeout() + cfg.TakeTimeout())
		if attachErr := bridge.Attach(mqttClient, byte(cfg.MQTT.QoS)); attachErr != nil {
			return fmt.Errorf("subscribing to command topics: %w", attachErr)
		}
	} else {
		log.Info("MQTT relay disabled")
	}

	// InfluxDB telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", influxClient.Bucket(),
		)
		checks["influxdb"] = influxClient

		replayQueues = append(replayQueues, startQueue(ctx, bus, relay.NewTelemetrySink(influxClient).Handle, log))
		go runGraphStats(ctx, influxClient, graph, graphStatsInterval)
	} else {
		log.Info("InfluxDB disabled")
	}

	// HTTP API and WebSocket relay (optional)
	if cfg.API.Enabled {
		hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
		go hub.Run(ctx)
		bus.SubscribeAll(hub.Handle)

		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.Component("api"),
			Graph:    graph,
			Hub:      hub,
			Stream:   conn,
			Checks:   checks,
			Version:  version,
		}
		if journal != nil {
			deps.History = journal
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Initial load. The stateful sinks are replayed from the graph after
	// every snapshot build; a resync also announces created and removed
	// entities through the bus first.
	replay := func() {
		if replayErr := relay.Replay(ctx, graph, time.Now(), replayQueues...); replayErr != nil {
			log.Warn("graph replay interrupted", "error", replayErr)
		}
	}
	syncer.SetOnResync(func(mirror.Report) { replay() })

	rep, err := engine.Bootstrap(ctx, rest)
	if err != nil {
		return fmt.Errorf("loading initial state: %w", err)
	}
	counts := graph.Counts()
	log.Info("initial state loaded",
		"devices", counts.Devices,
		"groups", counts.Groups,
		"clients", counts.Clients,
		"skipped", rep.Skipped,
	)
	for _, diag := range rep.Diagnostics {
		log.Warn("entity rejected during bootstrap", "error", diag)
	}
	replay()

	// Push stream; Listen blocks until ctx is done or the stream gives up
	conn.SetOnConnect(syncer.OnConnect(ctx))
	conn.SetOnDisconnect(func(err error) {
		log.Warn("event stream disconnected", "error", err)
	})

	log.Info("initialisation complete, listening for events")
	if err := conn.Listen(ctx, syncer.Handler(ctx)); err != nil {
		return fmt.Errorf("event stream: %w", err)
	}

	log.Info("HmIP mirror stopped", "resyncs", syncer.Resyncs())
	return nil
}

// getConfigPath returns the configuration file path: the flag value, then
// HMIP_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("HMIP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openJournal opens the journal database and applies pending migrations.
func openJournal(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path(), "migrations_applied", applied)
	return db, nil
}

// healthCheck runs every sink check once, in name order.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// startQueue attaches handler to bus through a buffered queue drained on
// its own goroutine.
func startQueue(ctx context.Context, bus *notify.Bus, handler notify.Handler, log *logging.Logger) *notify.Queue {
	q := notify.NewQueue(notify.DefaultQueueSize, handler)
	q.SetLogger(log.Component("notify"))
	q.Attach(bus)
	go q.Run(ctx)
	return q
}

// graphStatsWriter is the part of *influxdb.Client runGraphStats uses.
type graphStatsWriter interface {
	WriteGraphCounts(counts model.Counts, at time.Time)
}

// runGraphStats writes the graph's entity counts every interval.
func runGraphStats(ctx context.Context, w graphStatsWriter, graph *model.Graph, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.WriteGraphCounts(graph.Counts(), now)
		}
	}
}
