// Package config centralizes environment variable parsing for every
// core service binary, loading a .env file via godotenv before
// reading os.Getenv with typed defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting the core services
// read.
type Config struct {
	// Event bus settings. Redis Streams stands in for the Kafka-style
	// bus the env var names still imply; see DESIGN.md for why.
	RedisAddr     string
	ConsumerGroup string

	RegistryURL     string
	LBURL           string
	OrchestratorURL string

	LBTimeoutMS      int
	BackendTimeoutMS int

	CircuitFailureThreshold int
	CircuitResetTimeoutS    int

	CacheDefaultTTLS int

	BillingRatePerMinute float64

	HealthCheckIntervalS     int
	DeregisterCriticalAfterS int

	EtcdEndpoints []string
	Env           string
}

// Load reads .env (if present) then the environment, applying typed
// defaults for every setting.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		RedisAddr:     getString("KAFKA_BOOTSTRAP_SERVERS", "localhost:6379"),
		ConsumerGroup: getString("KAFKA_CONSUMER_GROUP", "edgemesh"),

		RegistryURL:     getString("REGISTRY_URL", "http://localhost:8500"),
		LBURL:           getString("LB_URL", "http://localhost:8080"),
		OrchestratorURL: getString("ORCHESTRATOR_URL", ""),

		LBTimeoutMS:      getInt("LB_TIMEOUT_MS", 500),
		BackendTimeoutMS: getInt("BACKEND_TIMEOUT_MS", 10000),

		CircuitFailureThreshold: getInt("CIRCUIT_FAILURE_THRESHOLD", 3),
		CircuitResetTimeoutS:    getInt("CIRCUIT_RESET_TIMEOUT_S", 15),

		CacheDefaultTTLS: getInt("CACHE_DEFAULT_TTL_S", 1800),

		BillingRatePerMinute: getFloat("BILLING_RATE_PER_MINUTE", 0.01),

		HealthCheckIntervalS:     getInt("HEALTH_CHECK_INTERVAL_S", 10),
		DeregisterCriticalAfterS: getInt("DEREGISTER_CRITICAL_AFTER_S", 60),

		EtcdEndpoints: getStringSlice("EDGEMESH_ETCD_ENDPOINTS", nil),
		Env:           getString("EDGEMESH_ENV", "development"),
	}
}

func (c Config) LBTimeout() time.Duration {
	return time.Duration(c.LBTimeoutMS) * time.Millisecond
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutMS) * time.Millisecond
}

func (c Config) CircuitResetTimeout() time.Duration {
	return time.Duration(c.CircuitResetTimeoutS) * time.Second
}

func (c Config) CacheDefaultTTL() time.Duration {
	return time.Duration(c.CacheDefaultTTLS) * time.Second
}

func (c Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalS) * time.Second
}

func (c Config) DeregisterCriticalAfter() time.Duration {
	return time.Duration(c.DeregisterCriticalAfterS) * time.Second
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getStringSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
