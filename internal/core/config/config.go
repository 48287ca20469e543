package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Path    string
}

type Config struct {
	Addr             string
	LogLevel         string
	RedisAddr        string
	SeedFile         string
	CatalogCacheSize int
	CatalogOpTimeout time.Duration
	Metrics          MetricsCfg
	Invalidation     InvalidationCfg
}

func FromEnv() Config {
	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		RedisAddr:        getenv("REDIS_ADDR", ""),
		SeedFile:         getenv("SEED_FILE", ""),
		CatalogCacheSize: getint("CATALOG_CACHE_SIZE", 256),
		CatalogOpTimeout: getduration("CATALOG_OP_TIMEOUT", 250*time.Millisecond),
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "view-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "view-invalidator"),
		},
	}
}

// BrokerList splits the comma-separated broker string.
func (c InvalidationCfg) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
