package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/botgraph/internal/analytics"
	"github.com/djlord-it/botgraph/internal/api"
	"github.com/djlord-it/botgraph/internal/axis"
	"github.com/djlord-it/botgraph/internal/circuitbreaker"
	"github.com/djlord-it/botgraph/internal/config"
	"github.com/djlord-it/botgraph/internal/cron"
	"github.com/djlord-it/botgraph/internal/domain"
	"github.com/djlord-it/botgraph/internal/fetcher"
	"github.com/djlord-it/botgraph/internal/janitor"
	"github.com/djlord-it/botgraph/internal/leaderelection"
	"github.com/djlord-it/botgraph/internal/metrics"
	"github.com/djlord-it/botgraph/internal/region"
	"github.com/djlord-it/botgraph/internal/scheduler"
	"github.com/djlord-it/botgraph/internal/store/journal"
	"github.com/djlord-it/botgraph/internal/transport/channel"
	"github.com/djlord-it/botgraph/internal/transport/websocket"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "ctl":
		os.Exit(runCtl(os.Args[2:], os.Stdout))
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`botgraph - live player and bot statistics grapher

Usage:
  botgraph <command>

Commands:
  serve      Start polling and serve the chart
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information
  ctl        Control a running server (run "botgraph ctl" for actions)

Environment Variables:
  STATS_URL                 Upstream statistics endpoint (required)
  REGIONS_URL               Upstream region metadata endpoint (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080", or ":$PORT")
  FETCH_TIMEOUT             Upstream request timeout (default: "10s")

  WINDOW_HOURS              Initial chart window in hours (default: "1")
  MAX_RENDERABLE_POINTS     Maximum points per series (default: "1440")
  MIN_INTERVAL              Minimum polling interval (default: "5s")
  CONTEXT_ALL_PLAYERS       Minimum span of the players axis (default: "500")
  CONTEXT_MALICIOUS_BOTS    Minimum span of the malicious bots axis (default: "50")
  CONTEXT_IMPACT            Minimum span of the bot impact axis (default: "5")
  CLEAR_SCHEDULE            Cron expression for scheduled clears (optional)
  CLEAR_TIMEZONE            Timezone for CLEAR_SCHEDULE (default: "UTC")
  FRAME_BUFFER_SIZE         Frame bus buffer (default: "16")

  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before opening (default: "5", 0 disables)
  CIRCUIT_BREAKER_COOLDOWN  Time before a half-open probe (default: "30s")
  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")

  REDIS_ADDR                Redis address for sample analytics (optional)
  ANALYTICS_WINDOW          Analytics bucket size: 1m, 5m, 1h, 24h (default: "5m")
  ANALYTICS_RETENTION       Analytics bucket TTL (default: "24h")

  JOURNAL_DRIVER            Tick journal driver: sqlite or postgres (optional)
  JOURNAL_DSN               Tick journal DSN or sqlite file path
  JOURNAL_RETENTION         Journal row retention (default: "168h")
  JANITOR_INTERVAL          Journal pruning interval (default: "1h")

  BOTGRAPH_URL              Server base URL used by "ctl" (default: from HTTP_ADDR)`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	// Validate has already bounded WINDOW_HOURS.
	windowDur, _ := domain.WindowDuration(cfg.WindowHours)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("botgraph: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		// Start metrics HTTP server on separate port
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("botgraph: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("botgraph: metrics server error: %v", err)
			}
		}()
	}

	client := fetcher.New(cfg.StatsURL, cfg.RegionsURL, cfg.FetchTimeout)
	if cfg.CircuitBreakerThreshold > 0 {
		client = client.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("botgraph: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}
	if metricsSink != nil {
		client = client.WithMetrics(metricsSink)
	}

	// Create frame bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewFrameBus(cfg.FrameBufferSize, busOpts...)

	hub := websocket.NewHub()
	if metricsSink != nil {
		hub = hub.WithMetrics(metricsSink)
	}

	selection := region.NewSelection()
	estimator := axis.NewEstimator(axis.Contexts{
		domain.AxisAllPlayers:    cfg.ContextAllPlayers,
		domain.AxisMaliciousBots: cfg.ContextMaliciousBots,
		domain.AxisImpact:        cfg.ContextImpact,
	})

	sched := scheduler.New(
		scheduler.Config{
			Window:              windowDur,
			MinInterval:         cfg.MinInterval,
			MaxRenderablePoints: cfg.MaxRenderablePoints,
		},
		client,
		selection,
		estimator,
		bus,
	)
	if metricsSink != nil {
		sched = sched.WithMetrics(metricsSink)
	}

	if cfg.ClearSchedule != "" {
		clearAt, err := cron.NewParser().Parse(cfg.ClearSchedule, cfg.ClearTimezone)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid CLEAR_SCHEDULE: %v\n", err)
			return exitInvalidConfig
		}
		sched = sched.WithClearSchedule(clearAt)
		log.Printf("botgraph: scheduled clears enabled (%s, tz=%s)", cfg.ClearSchedule, cfg.ClearTimezone)
	}

	apiHandler := api.NewHandler(sched, selection).WithPush(hub)

	// Wire analytics if Redis is configured
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		defer redisClient.Close()
		sink := analytics.NewRedisSink(redisClient, cfg.AnalyticsWindow, cfg.AnalyticsRetention)
		sched = sched.WithAnalytics(sink)
		apiHandler = apiHandler.WithHealthChecker("redis", sink)
		log.Printf("botgraph: analytics enabled (redis=%s, window=%s)", cfg.RedisAddr, cfg.AnalyticsWindow)
	}

	// Wire the tick journal if configured
	var store *journal.Store
	if cfg.JournalDriver != "" {
		dialect, err := journal.ParseDialect(cfg.JournalDriver)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			return exitInvalidConfig
		}
		openCtx, openCancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err = journal.Open(openCtx, dialect, cfg.JournalDSN)
		openCancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open tick journal: %v\n", err)
			return exitRuntimeError
		}
		defer store.Close()
		sched = sched.WithJournal(store)
		apiHandler = apiHandler.WithTicks(store).WithHealthChecker("journal", store)
		log.Printf("botgraph: tick journal enabled (driver=%s, retention=%s)", dialect, cfg.JournalRetention)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("botgraph: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("botgraph: http server error: %v", err)
		}
	}()

	// Separate contexts for each component to enable ordered shutdown.
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	hubCtx, cancelHub := context.WithCancel(context.Background())

	var schedulerWg sync.WaitGroup
	var hubWg sync.WaitGroup
	var janitorWg sync.WaitGroup
	var cancelJanitor context.CancelFunc

	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx, bus.Channel())
	}()

	schedulerWg.Add(1)
	go func() {
		defer schedulerWg.Done()
		if err := sched.Run(schedulerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("botgraph: scheduler error: %v", err)
		}
	}()

	if store != nil {
		var janitorCtx context.Context
		janitorCtx, cancelJanitor = context.WithCancel(context.Background())
		jan := janitor.New(janitor.Config{
			Interval:  cfg.JanitorInterval,
			Retention: cfg.JournalRetention,
		}, store)
		if metricsSink != nil {
			jan = jan.WithMetrics(metricsSink)
		}

		// Replicas sharing a Postgres journal prune it from one elected instance.
		run := jan.Run
		if store.Dialect() == journal.DialectPostgres {
			elector := leaderelection.New(store.DB(), leaderelection.Config{LockKey: leaderelection.JanitorLockKey})
			if metricsSink != nil {
				elector = elector.WithMetrics(metricsSink)
			}
			run = func(ctx context.Context) { elector.Run(ctx, jan.Run) }
		}

		janitorWg.Add(1)
		go func() {
			defer janitorWg.Done()
			run(janitorCtx)
		}()
	}

	log.Printf("botgraph: started (window=%sh, interval=%s, http=%s)",
		cfg.WindowHoursStr, sched.Interval(), cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("botgraph: received signal %v, shutting down", received)

	// Phase 1: Stop scheduler (no new frames emitted)
	log.Println("botgraph: stopping scheduler...")
	cancelScheduler()
	schedulerWg.Wait()
	log.Println("botgraph: scheduler stopped")

	// Phase 2: Stop janitor
	if cancelJanitor != nil {
		log.Println("botgraph: stopping janitor...")
		cancelJanitor()
		janitorWg.Wait()
		log.Println("botgraph: janitor stopped")
	}

	// Phase 3: Stop push hub (closes browser connections)
	log.Println("botgraph: stopping push hub...")
	cancelHub()
	hubWg.Wait()
	log.Println("botgraph: push hub stopped")

	// Phase 4: Stop HTTP server with graceful shutdown
	log.Println("botgraph: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("botgraph: http server shutdown error: %v", err)
	}
	log.Println("botgraph: http server stopped")

	// Phase 5: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("botgraph: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("botgraph: metrics server shutdown error: %v", err)
		}
		log.Println("botgraph: metrics server stopped")
	}

	log.Println("botgraph: stopped")
	return exitSuccess
}

// logConfigWarnings logs operational warnings for configurations that run
// but degrade what the chart can show or what survives a restart.
func logConfigWarnings(cfg *config.Config) {
	if cfg.RegionsURL == "" {
		log.Println("botgraph: WARNING [P1]: REGIONS_URL not set; region selection disabled, charting global totals")
	}
	if cfg.MinInterval > 0 && cfg.MinInterval < 5*time.Second {
		log.Printf("botgraph: WARNING [P1]: MIN_INTERVAL=%s is below the upstream cache period of 5s; consecutive samples may repeat", cfg.MinInterval)
	}
	if !cfg.MetricsEnabled {
		log.Println("botgraph: WARNING [P2]: METRICS_ENABLED=false; no visibility into fetch failures or dropped frames")
	}
	if cfg.JournalDriver == "" {
		log.Println("botgraph: INFO: JOURNAL_DRIVER not set; tick history is kept in memory only")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("botgraph: INFO: CIRCUIT_BREAKER_THRESHOLD=0; upstream circuit breaker disabled")
	}
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("botgraph version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
