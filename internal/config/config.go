// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backends understood by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds configuration knobs for the HTTP server, item store and alert pipeline.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string

	StoreBackend string
	DatabaseURL  string

	FeedShards       int
	FeedBatchSize    int
	FeedPollInterval time.Duration
	FeedConsumer     string

	TenantHeader   string
	DemoTenant     string
	JWTSecret      string
	JWTTenantClaim string

	AlertSubject     string
	AlertWebhookURL  string
	PublishTimeout   time.Duration
	AlertDedupWindow time.Duration
	AlertHistorySize int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// LoadDotEnv reads a .env file into the process environment when one exists.
// Variables already present in the environment win.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load collects configuration from environment with defaults.
func Load() Config {
	shards := atoienv("FEED_SHARDS", 4)
	if shards == 0 {
		shards = 1
	}
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
		LogLevel:        strings.ToLower(getenv("LOG_LEVEL", "info")),

		StoreBackend: strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  getenv("DATABASE_URL", ""),

		FeedShards:       shards,
		FeedBatchSize:    atoienv("FEED_BATCH_SIZE", 100),
		FeedPollInterval: durenvms("FEED_POLL_INTERVAL_MS", 250),
		FeedConsumer:     getenv("FEED_CONSUMER", "alert-pipeline"),

		TenantHeader:   getenv("TENANT_HEADER", "X-Shop-Id"),
		DemoTenant:     getenv("DEMO_TENANT", ""),
		JWTSecret:      getenv("JWT_SECRET", ""),
		JWTTenantClaim: getenv("JWT_TENANT_CLAIM", "shopId"),

		AlertSubject:     getenv("ALERT_SUBJECT", "Low stock alert"),
		AlertWebhookURL:  getenv("ALERT_WEBHOOK_URL", ""),
		PublishTimeout:   durenvms("PUBLISH_TIMEOUT_MS", 5000),
		AlertDedupWindow: durenvs("ALERT_DEDUP_WINDOW_S", 600),
		AlertHistorySize: atoienv("ALERT_HISTORY_SIZE", 200),
	}
}
