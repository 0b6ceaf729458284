// Command server runs the hangar allocation and provisioning API.
//
// Collaborators named in the configuration are required and abort startup
// when unreachable. Collaborators left unconfigured degrade to in-process
// substitutes (memory stores, a fake hosting platform) so the binary stays
// runnable on a laptop with an empty environment.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"hangar/internal/allocator"
	allocatormetrics "hangar/internal/allocator/metrics"
	"hangar/internal/engine"
	"hangar/internal/events"
	"hangar/internal/hosting"
	"hangar/internal/platform/config"
	"hangar/internal/platform/httpserver"
	"hangar/internal/platform/logger"
	platformmetrics "hangar/internal/platform/metrics"
	redisplatform "hangar/internal/platform/redis"
	"hangar/internal/poller"
	pollermetrics "hangar/internal/poller/metrics"
	"hangar/internal/quota"
	"hangar/internal/registrar"
	"hangar/internal/registry"
	registrymetrics "hangar/internal/registry/metrics"
	"hangar/internal/scheduler"
	schedulermetrics "hangar/internal/scheduler/metrics"
	httptransport "hangar/internal/transport/http"
	"hangar/pkg/domain"
	"hangar/pkg/platform/circuit"
	"hangar/pkg/platform/retry"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a hangar.yaml config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	// ---- Site topology ----

	siteMap := config.DefaultSiteMap()
	if cfg.SiteMapPath != "" {
		loaded, err := config.LoadSiteMap(cfg.SiteMapPath)
		if err != nil {
			return fmt.Errorf("load site map %s: %w", cfg.SiteMapPath, err)
		}
		siteMap = loaded
	}
	topology, err := allocator.TopologyFromSiteMap(siteMap)
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}
	log.Info("site topology loaded",
		"categories", len(topology.Categories()),
		"source", siteMapSource(cfg.SiteMapPath))

	// ---- Outbound collaborators ----

	var platform hosting.Client
	if cfg.Hosting.BaseURL != "" {
		tokens, err := hosting.NewCachingTokenSource(hosting.Static(cfg.Hosting.Token))
		if err != nil {
			return fmt.Errorf("hosting token source: %w", err)
		}
		client, err := hosting.NewHTTPClient(cfg.Hosting.BaseURL, cfg.Hosting.Project, tokens,
			hosting.WithLogger(log),
			hosting.WithBreaker(circuit.New("hosting")),
		)
		if err != nil {
			return fmt.Errorf("hosting client: %w", err)
		}
		platform = client
	} else {
		log.Warn("hosting platform not configured, serving from the in-memory fake")
		platform = hosting.NewFake(seedSites(topology)...)
	}

	var dns registrar.Client
	if cfg.Registrar.BaseURL != "" {
		client, err := registrar.NewHTTPClient(cfg.Registrar.BaseURL, cfg.Registrar.APIKey, cfg.Registrar.APISecret,
			registrar.WithShopperID(cfg.Registrar.ShopperID),
			registrar.WithLogger(log),
			registrar.WithBreaker(circuit.New("registrar")),
		)
		if err != nil {
			return fmt.Errorf("registrar client: %w", err)
		}
		dns = client
	} else {
		log.Warn("registrar not configured, DNS updates recorded in memory only")
		dns = registrar.NewFake()
	}

	// ---- Stores ----

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	registryStore := registry.Store(registry.NewMemoryStore())
	issuedStore := quota.Store(quota.NewMemoryStore())
	if redisClient != nil {
		registryStore = registry.NewRedisStore(redisClient.Client)
		issuedStore = quota.NewRedisStore(redisClient.Client)
		log.Info("redis stores enabled")
	}

	var db *sql.DB
	runStore := scheduler.RunStore(scheduler.NewMemoryRunStore())
	if cfg.Postgres.DSN != "" {
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		pgStore := scheduler.NewPostgresRunStore(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("batch run schema: %w", err)
		}
		runStore = pgStore
		log.Info("postgres run store enabled")
	}

	// ---- Events ----

	publisher := events.Publisher(events.Nop{})
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafka(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, events.WithLogger(log))
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		publisher = kafka
		log.Info("kafka events enabled", "topic", cfg.Kafka.Topic)
	}
	defer publisher.Close()

	// ---- Services ----

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     retry.Exponential(cfg.Retry.BackoffBase, cfg.Retry.BackoffCap),
	}

	cache, err := registry.New(platform, registryStore,
		registry.WithTTL(cfg.Registry.CacheTTL),
		registry.WithFetchBatch(cfg.Registry.FetchBatchSize, cfg.Registry.FetchBatchDelay),
		registry.WithRetryPolicy(retryPolicy),
		registry.WithLogger(log),
		registry.WithMetrics(registrymetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("registry cache: %w", err)
	}

	alloc, err := allocator.New(topology, cache,
		allocator.WithLogger(log),
		allocator.WithMetrics(allocatormetrics.New()),
		allocator.WithEvents(publisher),
	)
	if err != nil {
		return fmt.Errorf("allocator: %w", err)
	}

	watcher, err := poller.New(platform,
		poller.WithInterval(cfg.Poller.Interval),
		poller.WithDeadline(cfg.Poller.Deadline),
		poller.WithLogger(log),
		poller.WithMetrics(pollermetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	batches, err := scheduler.New(alloc, cache, platform, dns, watcher,
		scheduler.WithRunStore(runStore),
		scheduler.WithQuotaStore(issuedStore),
		scheduler.WithQuotaConfig(cfg.Quota),
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithSubmitDelay(cfg.Scheduler.SubmitDelay),
		scheduler.WithMaxPerBatch(cfg.Scheduler.MaxPerBatch),
		scheduler.WithRetryPolicy(retryPolicy),
		scheduler.WithEvents(publisher),
		scheduler.WithLogger(log),
		scheduler.WithMetrics(schedulermetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	eng, err := engine.New(alloc, batches, watcher, cache, engine.WithLogger(log))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// ---- HTTP server ----

	ready := func(ctx context.Context) error {
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	handler := httptransport.New(eng, log)
	router := httptransport.NewRouter(handler, log, platformmetrics.New(), httptransport.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready:          ready,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("hangar listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	if err := httpserver.Shutdown(srv, cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

// seedSites mirrors the configured topology into the fake platform so local
// development sees the same sites an allocation would pick from.
func seedSites(topology allocator.Topology) []hosting.FakeSite {
	var sites []hosting.FakeSite
	seen := make(map[domain.SiteID]bool)
	for _, category := range topology.Categories() {
		for _, site := range topology.Pool(category) {
			if seen[site.ID] {
				continue
			}
			seen[site.ID] = true
			sites = append(sites, hosting.FakeSite{ID: site.ID})
		}
	}
	return sites
}

func siteMapSource(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}
