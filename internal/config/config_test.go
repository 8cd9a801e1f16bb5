package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL", "REDIS_URL", "HUB_URL", "HUB_AUTH_TOKEN",
		"CHARGE_AMOUNT_SATS", "CHARGE_INTERVAL_MS", "GRACE_PERIOD_SECONDS", "RATE_LIMIT_PER_HOUR",
		"BILLING_CONCURRENCY", "ACTIVITY_RETENTION", "ORIGIN_HASH_KEY", shutdownSecondsEnvVar,
		shutdownDurationEnvVar, idemTTLSecondsEnvVar, idemTTLDurEnvVar,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChargeAmount != 1 || cfg.ChargeInterval != time.Hour || cfg.GracePeriod != time.Hour {
		t.Fatalf("unexpected billing defaults %+v", cfg)
	}
	if cfg.RateLimitPerHour != 10 || cfg.BillingConcurrency != 4 || cfg.ActivityRetention != 1000 {
		t.Fatalf("unexpected limits %+v", cfg)
	}
	if cfg.Address() != ":8080" || cfg.LogFormat != "json" || cfg.ShutdownPeriod != 10*time.Second {
		t.Fatalf("unexpected server defaults %+v", cfg)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Fatalf("storage urls must be optional")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", ":9000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CHARGE_AMOUNT_SATS", "3")
	t.Setenv("CHARGE_INTERVAL_MS", "10000")
	t.Setenv("GRACE_PERIOD_SECONDS", "0")
	t.Setenv("RATE_LIMIT_PER_HOUR", "2")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "60")
	t.Setenv("HUB_URL", "https://hub.example.com")
	t.Setenv("HUB_AUTH_TOKEN", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9000" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected server config %+v", cfg)
	}
	if cfg.ChargeAmount != 3 || cfg.ChargeInterval != 10*time.Second || cfg.GracePeriod != 0 || cfg.RateLimitPerHour != 2 {
		t.Fatalf("unexpected billing config %+v", cfg)
	}
	if cfg.ShutdownPeriod != 3*time.Second || cfg.IdempotencyTTL != time.Minute {
		t.Fatalf("unexpected durations %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"CHARGE_AMOUNT_SATS":   "0",
		"CHARGE_INTERVAL_MS":   "soon",
		"GRACE_PERIOD_SECONDS": "-1",
		"BILLING_CONCURRENCY":  "-4",
		"SHUTDOWN_TIMEOUT":     "forever",
		"ORIGIN_HASH_KEY":      strings.Repeat("k", 65),
		"HUB_URL":              "https://hub.example.com",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%q to be rejected", key, value)
			}
		})
	}
}
