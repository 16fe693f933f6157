package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort            = "8080"
	defaultDBDriver        = "postgres"
	defaultLocalCache      = "memory"
	defaultRedisAddr       = "localhost:6379"
	defaultSQLitePath      = "binfleet-cache.db"
	defaultPollInterval    = 5 * time.Minute
	defaultRequestTimeout  = 30 * time.Second
	defaultOriginLat       = 43.6532
	defaultOriginLng       = -79.3832
	defaultOriginAddress   = "100 Queen St W, Toronto, ON M5H 2N2"
	defaultFirebaseCredsFn = "./firebase-service-account.json"
)

// Config holds runtime configuration for the server.
type Config struct {
	Port string

	DatabaseURL   string
	DBDriver      string // postgres | pgx
	RemoteEnabled bool

	LocalCache      string // memory | redis | sqlite
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	SQLiteCachePath string

	SensorAPIURL         string
	SensorAPIKey         string
	SensorPollInterval   time.Duration
	SensorRequestTimeout time.Duration

	HereAPIKey string
	JWTSecret  string

	FirebaseCredentialsBase64 string
	FirebaseCredentialsFile   string

	OriginLat     float64
	OriginLng     float64
	OriginAddress string

	SeedDemoData bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		Port:                      envOr("PORT", defaultPort),
		DatabaseURL:               strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBDriver:                  strings.ToLower(envOr("DB_DRIVER", defaultDBDriver)),
		LocalCache:                strings.ToLower(envOr("LOCAL_CACHE", defaultLocalCache)),
		RedisAddr:                 envOr("REDIS_ADDR", defaultRedisAddr),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		SQLiteCachePath:           envOr("SQLITE_CACHE_PATH", defaultSQLitePath),
		SensorAPIURL:              strings.TrimSpace(os.Getenv("SENSOR_API_URL")),
		SensorAPIKey:              strings.TrimSpace(os.Getenv("SENSOR_API_KEY")),
		HereAPIKey:                strings.TrimSpace(os.Getenv("HERE_API_KEY")),
		JWTSecret:                 os.Getenv("APP_JWT_SECRET"),
		FirebaseCredentialsBase64: strings.TrimSpace(os.Getenv("FIREBASE_CREDENTIALS_BASE64")),
		FirebaseCredentialsFile:   envOr("FIREBASE_CREDENTIALS_FILE", defaultFirebaseCredsFn),
		OriginAddress:             envOr("ORIGIN_ADDRESS", defaultOriginAddress),
	}

	var err error
	if cfg.RemoteEnabled, err = parseBool("REMOTE_ENABLED", true); err != nil {
		return cfg, err
	}
	if cfg.SeedDemoData, err = parseBool("SEED_DEMO_DATA", false); err != nil {
		return cfg, err
	}
	if cfg.RemoteEnabled && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required when REMOTE_ENABLED is true")
	}

	switch cfg.DBDriver {
	case "postgres", "pgx":
	default:
		return cfg, fmt.Errorf("invalid DB_DRIVER %q (want postgres or pgx)", cfg.DBDriver)
	}

	switch cfg.LocalCache {
	case "memory", "redis", "sqlite":
	default:
		return cfg, fmt.Errorf("invalid LOCAL_CACHE %q (want memory, redis or sqlite)", cfg.LocalCache)
	}

	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}

	if cfg.SensorPollInterval, err = parseDuration("SENSOR_POLL_INTERVAL", defaultPollInterval); err != nil {
		return cfg, err
	}
	if cfg.SensorRequestTimeout, err = parseDuration("SENSOR_REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return cfg, err
	}

	if cfg.OriginLat, err = parseFloat("ORIGIN_LAT", defaultOriginLat); err != nil {
		return cfg, err
	}
	if cfg.OriginLng, err = parseFloat("ORIGIN_LNG", defaultOriginLng); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// TelemetryEnabled reports whether a sensor gateway is configured
func (c Config) TelemetryEnabled() bool {
	return c.SensorAPIURL != ""
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
