package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName            = "lncurl"
	defaultPort               = "8080"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultShutdownDelay      = 10 * time.Second
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultChargeAmount       = 1
	defaultChargeInterval     = time.Hour
	defaultGracePeriod        = time.Hour
	defaultRateLimitPerHour   = 10
	defaultBillingConcurrency = 4
	defaultActivityRetention  = 1000
	defaultHubTimeout         = 15 * time.Second
	maxOriginKeyBytes         = 64
	idemTTLSecondsEnvVar      = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar          = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar     = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar    = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	HubURL        string
	HubAuthToken  string
	HubName       string
	HubRegion     string
	HubTimeout    time.Duration
	AddressDomain string

	ChargeAmount       int64
	ChargeInterval     time.Duration
	GracePeriod        time.Duration
	BillingConcurrency int
	RateLimitPerHour   int
	ActivityRetention  int

	// OriginHashKey keys the digest stored for each wallet's creator origin.
	OriginHashKey string
	// Funds is the raw FUNDS JSON array.
	Funds string
}

// Load reads an optional .env file, then configuration values from the
// environment. Variables already set win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		HubURL:         os.Getenv("HUB_URL"),
		HubAuthToken:   os.Getenv("HUB_AUTH_TOKEN"),
		HubName:        os.Getenv("HUB_NAME"),
		HubRegion:      os.Getenv("HUB_REGION"),
		HubTimeout:     defaultHubTimeout,
		AddressDomain:  getEnv("LIGHTNING_ADDRESS_DOMAIN", "getalby.com"),
		OriginHashKey:  os.Getenv("ORIGIN_HASH_KEY"),
		Funds:          os.Getenv("FUNDS"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.HubTimeout, err = durationEnv("HUB_TIMEOUT_SECONDS", "HUB_TIMEOUT", defaultHubTimeout); err != nil {
		return Config{}, err
	}

	amount, err := positiveInt("CHARGE_AMOUNT_SATS", defaultChargeAmount)
	if err != nil {
		return Config{}, err
	}
	cfg.ChargeAmount = int64(amount)

	intervalMS, err := positiveInt("CHARGE_INTERVAL_MS", int(defaultChargeInterval/time.Millisecond))
	if err != nil {
		return Config{}, err
	}
	cfg.ChargeInterval = time.Duration(intervalMS) * time.Millisecond

	graceSeconds, err := nonNegativeInt("GRACE_PERIOD_SECONDS", int(defaultGracePeriod/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.GracePeriod = time.Duration(graceSeconds) * time.Second

	if cfg.RateLimitPerHour, err = positiveInt("RATE_LIMIT_PER_HOUR", defaultRateLimitPerHour); err != nil {
		return Config{}, err
	}
	if cfg.BillingConcurrency, err = positiveInt("BILLING_CONCURRENCY", defaultBillingConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.ActivityRetention, err = positiveInt("ACTIVITY_RETENTION", defaultActivityRetention); err != nil {
		return Config{}, err
	}

	if len(cfg.OriginHashKey) > maxOriginKeyBytes {
		return Config{}, fmt.Errorf("ORIGIN_HASH_KEY must be at most %d bytes", maxOriginKeyBytes)
	}
	if cfg.HubURL != "" && cfg.HubAuthToken == "" {
		return Config{}, fmt.Errorf("HUB_AUTH_TOKEN must be set when HUB_URL is set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads a whole-seconds variable, falling back to a Go duration
// string variable, then to fallback.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func positiveInt(key string, fallback int) (int, error) {
	n, err := intEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func nonNegativeInt(key string, fallback int) (int, error) {
	n, err := intEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
