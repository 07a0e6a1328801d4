// README: Config loader with env defaults for the two store credentials,
// matching thresholds, retry policy, and the optional Redis/Postgres/Maps
// integrations.
package config

import (
	"os"
	"strconv"
	"time"
)

// MatchingConfig carries the greedy matcher's distance constraints.
type MatchingConfig struct {
	MaxMatchDistanceKm        float64
	MaxDestinationDeviationKm float64
}

// SyncConfig carries the listener-side tunables.
type SyncConfig struct {
	ArrivedDistanceThresholdKm float64
	ResweepInterval            time.Duration
}

type RetryConfig struct {
	Initial  time.Duration
	Cap      time.Duration
	Attempts int
}

type Config struct {
	PassengerCredentials string
	DriverCredentials    string

	Matching MatchingConfig
	Sync     SyncConfig
	Retry    RetryConfig

	HTTP struct {
		Addr string
	}
	Redis struct {
		Addr string
	}
	DB struct {
		DSN string
	}
	Maps struct {
		APIKey string
	}
	Log struct {
		Level  string
		Format string
	}
}

func Load() (Config, error) {
	var cfg Config
	cfg.PassengerCredentials = envOrDefault("PASSENGER_DB_CREDENTIALS", "passenger-service-account.json")
	cfg.DriverCredentials = envOrDefault("DRIVER_DB_CREDENTIALS", "driver-service-account.json")

	cfg.Matching.MaxMatchDistanceKm = envOrDefaultFloat("MAX_MATCH_DISTANCE_KM", 5.0)
	cfg.Matching.MaxDestinationDeviationKm = envOrDefaultFloat("MAX_DESTINATION_DEVIATION_KM", 5.0)
	cfg.Sync.ArrivedDistanceThresholdKm = envOrDefaultFloat("ARRIVED_DISTANCE_THRESHOLD_KM", 0.05)
	cfg.Sync.ResweepInterval = envOrDefaultDuration("RIDELINK_RESWEEP_INTERVAL", 0)

	cfg.Retry.Initial = envOrDefaultDuration("RIDELINK_RETRY_INITIAL", 2*time.Second)
	cfg.Retry.Cap = envOrDefaultDuration("RIDELINK_RETRY_CAP", 60*time.Second)
	cfg.Retry.Attempts = envOrDefaultInt("RIDELINK_RETRY_ATTEMPTS", 10)

	cfg.HTTP.Addr = envOrDefault("RIDELINK_HTTP_ADDR", ":8080")
	cfg.Redis.Addr = os.Getenv("RIDELINK_REDIS_ADDR")
	cfg.DB.DSN = os.Getenv("RIDELINK_DB_DSN")
	cfg.Maps.APIKey = os.Getenv("RIDELINK_MAPS_KEY")

	cfg.Log.Level = envOrDefault("LOG_LEVEL", "info")
	cfg.Log.Format = envOrDefault("LOG_FORMAT", "text")
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
