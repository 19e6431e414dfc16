package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/httpx"
	"github.com/md-rashed-zaman/clinicsync/libs/kafkax"
	"github.com/md-rashed-zaman/clinicsync/libs/runtime"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/fetch"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/invalidation"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/navigator"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/upstream"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/view"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// App is the wired dashboard service.
type App struct {
	Handler  http.Handler
	Upstream *upstream.Client
	Resolver *availability.Resolver
	Sessions *view.Registry
	// Consumer is nil when Kafka is not configured.
	Consumer *invalidation.Consumer

	closers []func()
}

// New wires every component from cfg. Redis and Kafka are optional; without
// them the service runs with a process-local cache and manual refresh only.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	a := &App{}

	var (
		cache  fetch.Cache = fetch.NewMemoryCache(nil)
		rdb    *redis.Client
		shared *fetch.RedisCache
	)
	if cfg.RedisAddr != "" {
		client, err := fetch.Connect(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		rdb = client
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		shared = fetch.NewRedisCache(rdb, "", logger)
		cache = fetch.TieredCache{
			Local:    fetch.NewMemoryCache(nil),
			Shared:   shared,
			LocalTTL: cfg.FetchCacheTTL / 2,
		}
	}

	var limiter *rate.Limiter
	if cfg.FetchRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.FetchRatePerSec), cfg.FetchRatePerSec)
	}

	fetcher := fetch.NewClient(fetch.Options{
		Cache:       cache,
		TTL:         cfg.FetchCacheTTL,
		Timeout:     cfg.FetchTimeout,
		MaxAttempts: cfg.FetchMaxAttempts,
		RetryDelay:  cfg.FetchRetryDelay,
		Limiter:     limiter,
		Logger:      logger,
	})
	a.Upstream = upstream.NewClient(fetcher, cfg.UpstreamURL)

	a.Resolver = availability.NewResolver(a.Upstream, availability.Options{
		Location:  cfg.Location,
		CacheSize: cfg.ResolverCacheSize,
		Mode:      cfg.SlotMatchMode,
		SlotStep:  cfg.SlotStep,
		EagerDays: cfg.PrefetchEagerDays,
		BatchSize: cfg.PrefetchBatchSize,
		Logger:    logger,
	})

	a.Sessions = view.NewRegistry(view.RegistryOptions{
		Builder: &view.Builder{Data: a.Upstream, Prefetcher: a.Resolver, Location: cfg.Location},
		Logger:  logger,
	})
	a.closers = append(a.closers, a.Sessions.Close)

	nav := navigator.New(a.Upstream, navigator.Options{
		PollInterval: cfg.NavPollInterval,
		PollAttempts: cfg.NavPollAttempts,
		SettleDelay:  cfg.NavSettleDelay,
		Location:     cfg.Location,
		Logger:       logger,
	})

	checks := []runtime.ReadyCheck{
		{Name: "upstream", Check: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			_, err := a.Upstream.ListDepartments(ctx)
			return err
		}},
	}
	if shared != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Optional: true, Check: shared.Ping})
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Optional: true, Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})

		inv := &invalidation.Invalidator{Fetch: a.Upstream, Days: a.Resolver, Location: cfg.Location, Logger: logger}
		a.Consumer = invalidation.New(logger, invalidation.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topics:  cfg.InvalidationTopics,
		}, inv.Handle)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewDashboardHandler(a.Upstream, a.Resolver, nav, a.Sessions, cfg.Location, logger).Register(mux)

	var limit httpx.Middleware
	if cfg.RateLimitPerMinute > 0 {
		if rdb != nil {
			limit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "").Middleware(logger, true)
		} else {
			limit = httpx.NewRateLimiter(cfg.RateLimitPerMinute).Middleware()
		}
	}

	h := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		limit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	a.Handler = h
	return a, nil
}

// Close releases background renders and connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
