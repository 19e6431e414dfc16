package app

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/availability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "http://clinic.local/api/")
	t.Setenv("CLINIC_TIMEZONE", "America/New_York")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8090" || cfg.Service != "dashboard-service" {
		t.Fatalf("unexpected defaults: port=%q service=%q", cfg.Port, cfg.Service)
	}
	if cfg.Location.String() != "America/New_York" {
		t.Fatalf("expected clinic location, got %s", cfg.Location)
	}
	if cfg.FetchTimeout != 8*time.Second || cfg.FetchMaxAttempts != 3 || cfg.FetchRetryDelay != time.Second {
		t.Fatalf("unexpected fetch settings: %+v", cfg)
	}
	if cfg.ResolverCacheSize != availability.DefaultCacheSize || cfg.SlotMatchMode != availability.MatchExact {
		t.Fatalf("unexpected resolver settings: %+v", cfg)
	}
	if cfg.NavPollInterval != 300*time.Millisecond || cfg.NavPollAttempts != 10 {
		t.Fatalf("unexpected navigator settings: %+v", cfg)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Fatalf("expected 45s request timeout, got %s", cfg.RequestTimeout)
	}
	if len(cfg.InvalidationTopics) != 2 {
		t.Fatalf("expected default topics, got %v", cfg.InvalidationTopics)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing upstream", env: map[string]string{"UPSTREAM_BASE_URL": ""}},
		{name: "non-http upstream", env: map[string]string{"UPSTREAM_BASE_URL": "ftp://clinic.local"}},
		{name: "unknown timezone", env: map[string]string{"UPSTREAM_BASE_URL": "http://clinic.local", "CLINIC_TIMEZONE": "Mars/Olympus"}},
		{name: "unknown match mode", env: map[string]string{"UPSTREAM_BASE_URL": "http://clinic.local", "SLOT_MATCH_MODE": "fuzzy"}},
		{name: "bad port", env: map[string]string{"UPSTREAM_BASE_URL": "http://clinic.local", "PORT": "http"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadConfig_RedisURLWins(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "https://clinic.local")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("SLOT_MATCH_MODE", "overlap")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RedisAddr != "redis://cache:6379/1" {
		t.Fatalf("expected REDIS_URL, got %q", cfg.RedisAddr)
	}
	if cfg.SlotMatchMode != availability.MatchOverlap {
		t.Fatalf("expected overlap mode, got %v", cfg.SlotMatchMode)
	}
}
