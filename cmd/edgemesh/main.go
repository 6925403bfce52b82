package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"edgemesh/internal/billing"
	"edgemesh/internal/circuitbreaker"
	"edgemesh/internal/config"
	"edgemesh/internal/dockerhost"
	"edgemesh/internal/etcd"
	"edgemesh/internal/etcdcoord"
	"edgemesh/internal/eventbus"
	"edgemesh/internal/healthcheck"
	"edgemesh/internal/lb"
	"edgemesh/internal/logger"
	"edgemesh/internal/metrics"
	"edgemesh/internal/proxy"
	"edgemesh/internal/registry"
	"edgemesh/internal/selector"
)

const topicContainerLifecycle = "container-lifecycle"

func main() {
	app := &cli.App{
		Name:  "edgemesh",
		Usage: "request-path data plane for the Cloud-Run-lite platform",
		Commands: []*cli.Command{
			registryCommand(),
			lbCommand(),
			billingCommand(),
			edgeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addrFlag(defaultAddr string) *cli.StringFlag {
	return &cli.StringFlag{Name: "addr", Value: defaultAddr, EnvVars: []string{"EDGEMESH_ADDR"}}
}

func baseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))
	r.Use(httprate.LimitByIP(200, time.Second))
	return r
}

func runHTTPServer(ctx context.Context, log *zap.Logger, name, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", zap.String("component", name), zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func redisBus(cfg config.Config) (*eventbus.RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return eventbus.NewRedisBus(client), nil
}

// newCoordinator dials etcd and builds a Coordinator for this process,
// used to elect a single leader across registry instances for
// duties (like probe scheduling) that must run exactly once.
func newCoordinator(cfg config.Config, log *zap.Logger) (*etcdcoord.Coordinator, error) {
	client, err := etcd.NewClient(etcd.Config{Endpoints: cfg.EtcdEndpoints, DialTimeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return etcdcoord.New(client, instanceID(), log), nil
}

// metricsHandler wraps a metrics.Collector in a Prometheus exporter and
// returns the handler to mount at /metrics.
func metricsHandler(collector *metrics.Collector) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewPrometheusExporter(collector))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// registryCommand runs the service registry and health-check watcher.
func registryCommand() *cli.Command {
	return &cli.Command{
		Name:  "registry",
		Usage: "run the service registry and health-check watcher",
		Flags: []cli.Flag{addrFlag(":8500")},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			log := logger.NewLoggerFromEnv()
			defer func() { _ = log.Sync() }()

			ctx, cancel := signalContext()
			defer cancel()

			reg := registry.New(cfg.DeregisterCriticalAfter(), log)

			engine, err := dockerhost.Resolve()
			if err != nil {
				return fmt.Errorf("resolving docker host: %w", err)
			}

			sink := &registrySink{}
			prober := healthcheck.NewProber(sink, cfg.HealthCheckInterval(), healthcheck.DefaultTimeout,
				healthcheck.DefaultCriticalThreshold, log)
			ingest := registry.NewIngest(reg, engine, prober, log)
			sink.ingest = ingest

			bus, err := redisBus(cfg)
			if err != nil {
				return err
			}
			defer bus.Close()

			consumer, err := bus.Subscribe(ctx, topicContainerLifecycle, "registry", instanceID())
			if err != nil {
				return fmt.Errorf("subscribing to event bus: %w", err)
			}
			loop := eventbus.NewConsumerLoop(consumer, ingest.Dispatcher(), log)

			var wg multierror.Group
			if len(cfg.EtcdEndpoints) > 0 {
				coordinator, err := newCoordinator(cfg, log)
				if err != nil {
					return fmt.Errorf("connecting to etcd: %w", err)
				}
				wg.Go(func() error { coordinator.Join(ctx, "registry"); return nil })
				wg.Go(func() error {
					return coordinator.Elected(ctx, "registry", func(leaderCtx context.Context) { prober.Run(leaderCtx) })
				})
			} else {
				wg.Go(func() error { prober.Run(ctx); return nil })
			}
			wg.Go(func() error { loop.Run(ctx); return nil })
			wg.Go(func() error {
				router := baseRouter()
				registry.NewServer(reg, log).Routes(router)
				return runHTTPServer(ctx, log, "registry", c.String("addr"), router)
			})

			<-ctx.Done()
			loop.Stop()
			if err := wg.Wait().ErrorOrNil(); err != nil {
				log.Error("registry: component exited with error", zap.Error(err))
				return cli.Exit(err.Error(), 2)
			}
			return nil
		},
	}
}

// lbCommand runs the load balancer selection core.
func lbCommand() *cli.Command {
	return &cli.Command{
		Name:  "lb",
		Usage: "run the load balancer selection core",
		Flags: []cli.Flag{addrFlag(":8080")},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			log := logger.NewLoggerFromEnv()
			defer func() { _ = log.Sync() }()

			ctx, cancel := signalContext()
			defer cancel()

			registryClient := lb.NewRegistryClient(cfg.RegistryURL, cfg.LBTimeout())
			breakers := circuitbreaker.NewArena(uint32(cfg.CircuitFailureThreshold), cfg.CircuitResetTimeout())
			core := lb.New(registryClient, breakers, selector.NewRoundRobin(), cfg.CacheDefaultTTL(), lb.DefaultFallbackFreshness, log)

			router := baseRouter()
			lb.NewServer(core, log).Routes(router)

			if err := runHTTPServer(ctx, log, "lb", c.String("addr"), router); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			return nil
		},
	}
}

// billingCommand runs the billing usage ledger.
func billingCommand() *cli.Command {
	return &cli.Command{
		Name:  "billing",
		Usage: "run the billing usage ledger",
		Flags: []cli.Flag{addrFlag(":8081")},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			log := logger.NewLoggerFromEnv()
			defer func() { _ = log.Sync() }()

			ctx, cancel := signalContext()
			defer cancel()

			ledger := billing.New(cfg.BillingRatePerMinute, log)

			bus, err := redisBus(cfg)
			if err != nil {
				return err
			}
			defer bus.Close()

			consumer, err := bus.Subscribe(ctx, topicContainerLifecycle, "billing", instanceID())
			if err != nil {
				return fmt.Errorf("subscribing to event bus: %w", err)
			}
			loop := eventbus.NewConsumerLoop(consumer, ledger.Dispatcher(), log)

			var wg multierror.Group
			wg.Go(func() error { loop.Run(ctx); return nil })
			wg.Go(func() error {
				router := baseRouter()
				billing.NewServer(ledger).Routes(router)
				return runHTTPServer(ctx, log, "billing", c.String("addr"), router)
			})

			<-ctx.Done()
			loop.Stop()
			if err := wg.Wait().ErrorOrNil(); err != nil {
				log.Error("billing: component exited with error", zap.Error(err))
				return cli.Exit(err.Error(), 2)
			}
			return nil
		},
	}
}

// edgeCommand runs the edge request router.
func edgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "edge",
		Usage: "run the edge request router",
		Flags: []cli.Flag{addrFlag(":8000")},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			log := logger.NewLoggerFromEnv()
			defer func() { _ = log.Sync() }()

			ctx, cancel := signalContext()
			defer cancel()

			lbClient := proxy.NewHTTPLBClient(cfg.LBURL, cfg.LBTimeout())
			collector := metrics.NewCollector()
			router := proxy.NewRouter(lbClient, collector, cfg.BackendTimeout(), log)

			mux := baseRouter()
			mux.Handle("/metrics", metricsHandler(collector))
			router.Routes(mux)

			if err := runHTTPServer(ctx, log, "edge", c.String("addr"), mux); err != nil {
				return cli.Exit(err.Error(), 2)
			}
			return nil
		},
	}
}

// registrySink breaks the construction cycle between a Prober (which
// needs a Sink) and an Ingest (which needs that same Prober): the
// Prober is built first against this forwarding shim, then the real
// Ingest is plugged in once it exists.
type registrySink struct {
	ingest *registry.Ingest
}

func (s *registrySink) ReportHealth(ctx context.Context, result healthcheck.Result) {
	if s.ingest == nil {
		return
	}
	s.ingest.ReportHealth(ctx, result)
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "edgemesh-instance"
	}
	return host
}
