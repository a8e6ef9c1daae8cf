// Homegw is a web gateway for CoAP home-automation devices.
//
// It discovers devices on the local link by multicast, keeps a directory of
// the devices it has seen recently, and serves HTML pages that read and
// write their state. MQTT presence and InfluxDB recording are optional.
//
// Usage:
//
//	homegw [serve] [--config path]
//	homegw discover [--config path]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/home-gateway/internal/api"
	"github.com/nerrad567/home-gateway/internal/coap"
	"github.com/nerrad567/home-gateway/internal/discovery"
	"github.com/nerrad567/home-gateway/internal/infrastructure/config"
	"github.com/nerrad567/home-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/home-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/home-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/home-gateway/internal/labels"
	"github.com/nerrad567/home-gateway/internal/web"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnv names the environment variable consulted when --config is unset.
const configEnv = "HOMEGW_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM so every task shuts down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command serves.
func newRootCmd() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), getConfigPath(configPath))
	}

	root := &cobra.Command{
		Use:   "homegw",
		Short: "CoAP home-automation web gateway",
		Long: `Discovers CoAP devices on the local network and serves a web front end
for reading and setting their state.

Without a configuration file the gateway listens on port 3000, rediscovers
devices every 10 minutes and forgets devices unseen for an hour.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration (default $"+configEnv+")")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})

	root.AddCommand(&cobra.Command{
		Use:   "discover",
		Short: "Run one discovery query and print the devices that answered",
		Example: `  # List devices using the default multicast group
  homegw discover`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd.Context(), getConfigPath(configPath), cmd.OutOrStdout())
		},
	})

	return root
}

// getConfigPath returns the configuration file path.
// The flag wins over HOMEGW_CONFIG; "" means built-in defaults only.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(configEnv)
}

// run starts every gateway task and blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration, or "" for defaults
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting home gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	coapClient := newCoAPClient(cfg, log)

	directory := discovery.NewDirectory()
	directory.SetLogger(log)

	hub := api.NewHub(cfg.WebSocket, log)
	directory.Subscribe(hub)

	refresher := discovery.NewRefresher(directory, coapDiscoverer{client: coapClient}, discovery.RefresherConfig{
		Period: cfg.Gateway.DiscoveryPeriod,
	})
	refresher.SetLogger(log.Component("discovery"))

	sweeper := discovery.NewSweeper(directory, discovery.SweeperConfig{
		InitialDelay: cfg.Gateway.CleanupInitialDelay,
		Period:       cfg.Gateway.CleanupPeriod,
		Timeout:      cfg.Gateway.CleanupTimeout,
	})
	sweeper.SetLogger(log.Component("expiry"))

	// runCtx also stops background tasks when startup fails part way
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var mqttReporter api.ConnectionReporter
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
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
		mqttReporter = mqttClient

		presence := mqtt.NewPresence(mqttClient)
		presence.SetLogger(log)
		directory.Subscribe(presence)
		g.Go(func() error {
			presence.Run(gctx)
			return nil
		})

		stopDiscover, err := subscribeDiscoverCommand(gctx, mqttClient, refresher, log)
		if err != nil {
			return err
		}
		defer stopDiscover()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var recorder api.ReadingRecorder
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		refresher.OnCycle(func(res discovery.CycleResult) {
			influxClient.WriteDiscoveryCycle(res.Started, res.Devices, res.Duration, res.Err != nil)
		})
		recorder = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Directory: directory,
		Devices:   coapClient,
		Renderer:  renderer,
		Recorder:  recorder,
		MQTT:      mqttReporter,
		Hub:       hub,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		refresher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, healthChecks(server, mqttClient, influxClient)); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"discovery_period", cfg.Gateway.DiscoveryPeriod,
		"cleanup_timeout", cfg.Gateway.CleanupTimeout,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("home gateway stopped")
	return nil
}

// runDiscover performs a single discovery query and prints a table.
func runDiscover(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	services, err := newCoAPClient(cfg, log).Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering devices: %w", err)
	}

	printServiceTable(out, services)
	return nil
}

// printServiceTable writes one row per service, in arrival order.
func printServiceTable(out io.Writer, services []coap.Service) {
	if len(services) == 0 {
		fmt.Fprintln(out, "No devices answered.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tADDRESS\tLABEL")
	for _, svc := range services {
		typ := svc.Type
		if typ == "" {
			typ = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", svc.ID, typ, svc.Addr, labels.For(svc.ID))
	}
	_ = w.Flush()
}

func newCoAPClient(cfg *config.Config, log *logging.Logger) *coap.Client {
	client := coap.NewClient(coap.Config{
		MulticastAddress: cfg.CoAP.MulticastAddress,
		DiscoveryPath:    cfg.CoAP.DiscoveryPath,
		DiscoveryWindow:  cfg.CoAP.DiscoveryWindow,
		RequestTimeout:   cfg.CoAP.RequestTimeout,
	})
	client.SetLogger(log.Component("coap"))
	return client
}

// serviceDiscoverer is the discovery side of the CoAP client.
type serviceDiscoverer interface {
	Discover(ctx context.Context) ([]coap.Service, error)
}

// coapDiscoverer adapts the CoAP client to the directory refresher.
type coapDiscoverer struct {
	client serviceDiscoverer
}

// Discover implements discovery.Discoverer.
func (d coapDiscoverer) Discover(ctx context.Context) ([]discovery.Announcement, error) {
	services, err := d.client.Discover(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]discovery.Announcement, 0, len(services))
	for _, svc := range services {
		out = append(out, discovery.Announcement{ID: svc.ID, Type: svc.Type, Addr: svc.Addr})
	}
	return out, nil
}

// subscriber is the subscription side of the MQTT client.
type subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// cycleRunner runs one discovery cycle on demand.
type cycleRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

// subscribeDiscoverCommand starts a discovery cycle for every message on
// homegw/command/discover. The payload is ignored.
//
// Cycles run on their own goroutine so the MQTT delivery goroutine is never
// held for a discovery window. A trigger that arrives while a triggered
// cycle is still running is dropped. The returned stop function
// unsubscribes and waits for that cycle.
func subscribeDiscoverCommand(ctx context.Context, sub subscriber, runner cycleRunner, log *logging.Logger) (func(), error) {
	topic := mqtt.Topics{}.CommandDiscover()

	var (
		running atomic.Bool
		wg      sync.WaitGroup
	)
	err := sub.Subscribe(topic, 1, func(_ string, _ []byte) error {
		if !running.CompareAndSwap(false, true) {
			log.Debug("discovery already running, trigger dropped")
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer running.Store(false)

			n, err := runner.RunOnce(ctx)
			if err != nil {
				log.Warn("triggered discovery failed", "error", err)
				return
			}
			log.Info("discovery triggered over MQTT", "devices", n)
		}()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	return func() {
		if err := sub.Unsubscribe(topic); err != nil {
			log.Debug("unsubscribing discover command", "error", err)
		}
		wg.Wait()
	}, nil
}

// healthChecker is implemented by every component checked at startup.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// namedCheck pairs a component with the name used in error messages.
type namedCheck struct {
	name    string
	checker healthChecker
}

// healthChecks lists the API server and whichever optional connections are
// enabled.
func healthChecks(server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) []namedCheck {
	checks := []namedCheck{{name: "api", checker: server}}
	if mqttClient != nil {
		checks = append(checks, namedCheck{name: "mqtt", checker: mqttClient})
	}
	if influxClient != nil {
		checks = append(checks, namedCheck{name: "influxdb", checker: influxClient})
	}
	return checks
}

// healthCheck runs checks in order.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks []namedCheck) error {
	for _, c := range checks {
		if err := c.checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
