package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsync/libs/config"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/availability"
)

type Config struct {
	Service     string
	Port        string
	UpstreamURL string
	Location    *time.Location

	FetchTimeout     time.Duration
	FetchMaxAttempts int
	FetchRetryDelay  time.Duration
	FetchCacheTTL    time.Duration
	FetchRatePerSec  int

	ResolverCacheSize int
	PrefetchEagerDays int
	PrefetchBatchSize int
	SlotMatchMode     availability.MatchMode
	SlotStep          time.Duration

	NavPollInterval time.Duration
	NavPollAttempts int
	NavSettleDelay  time.Duration

	RedisAddr          string
	KafkaBrokers       string
	KafkaGroupID       string
	InvalidationTopics []string

	RateLimitPerMinute int
	CORSOrigins        []string
	RequestTimeout     time.Duration
}

// LoadConfig reads the dashboard configuration from the environment.
func LoadConfig() (Config, error) {
	cfg := Config{
		Service: config.String("SERVICE_NAME", "dashboard-service"),

		FetchTimeout:     config.Millis("FETCH_TIMEOUT_MS", 8*time.Second),
		FetchMaxAttempts: config.Int("FETCH_MAX_ATTEMPTS", 3),
		FetchRetryDelay:  config.Millis("FETCH_RETRY_DELAY_MS", time.Second),
		FetchCacheTTL:    config.Seconds("FETCH_CACHE_TTL_SECONDS", 60*time.Second),
		FetchRatePerSec:  config.NonNegativeInt("FETCH_RATE_PER_SECOND", 0),

		ResolverCacheSize: config.Int("RESOLVER_CACHE_SIZE", availability.DefaultCacheSize),
		PrefetchEagerDays: config.Int("PREFETCH_EAGER_DAYS", 7),
		PrefetchBatchSize: config.Int("PREFETCH_BATCH_SIZE", 5),
		SlotStep:          time.Duration(config.Int("SLOT_STEP_MINUTES", 30)) * time.Minute,

		NavPollInterval: config.Millis("NAV_POLL_INTERVAL_MS", 300*time.Millisecond),
		NavPollAttempts: config.Int("NAV_POLL_ATTEMPTS", 10),
		NavSettleDelay:  config.Millis("NAV_SETTLE_MS", 50*time.Millisecond),

		RedisAddr:    config.String("REDIS_URL", config.String("REDIS_ADDR", "")),
		KafkaBrokers: config.String("KAFKA_BROKERS", ""),
		KafkaGroupID: config.String("KAFKA_GROUP_ID", "dashboard-service"),
		InvalidationTopics: config.List("KAFKA_INVALIDATION_TOPICS",
			"booking.appointment.booked.v1,booking.appointment.cancelled.v1"),

		RateLimitPerMinute: config.NonNegativeInt("RATE_LIMIT_PER_MINUTE", 600),
		CORSOrigins:        config.List("CORS_ALLOWED_ORIGINS", ""),
		RequestTimeout:     config.Seconds("HTTP_REQUEST_TIMEOUT_SECONDS", 45*time.Second),
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8090"); err != nil {
		return Config{}, err
	}
	if cfg.UpstreamURL, err = config.RequiredString("UPSTREAM_BASE_URL"); err != nil {
		return Config{}, err
	}
	if !strings.HasPrefix(cfg.UpstreamURL, "http://") && !strings.HasPrefix(cfg.UpstreamURL, "https://") {
		return Config{}, fmt.Errorf("UPSTREAM_BASE_URL must be an http(s) URL (got %q)", cfg.UpstreamURL)
	}

	tz := config.String("CLINIC_TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	if cfg.SlotMatchMode, err = availability.ParseMatchMode(config.String("SLOT_MATCH_MODE", "exact")); err != nil {
		return Config{}, fmt.Errorf("SLOT_MATCH_MODE: %w", err)
	}
	return cfg, nil
}
