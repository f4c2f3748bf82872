package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	HTTPAddr           string
	GRPCAddr           string
	StoreDriver        string
	DatabaseDSN        string
	RedisAddr          string
	KafkaBrokers       string
	KafkaTopic         string
	WorkerCount        int
	EventQueueSize     int
	RequestTimeout     time.Duration
	SummaryConcurrency int
	BusinessName       string
	SeedShops          int
	LogFormat          string
}

// Load reads the server configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:     getenv("GRPC_ADDR", ":50051"),
		StoreDriver:  strings.ToLower(getenv("STORE_DRIVER", DriverMemory)),
		DatabaseDSN:  getenv("DATABASE_DSN", ""),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		KafkaBrokers: getenv("KAFKA_BROKERS", ""),
		KafkaTopic:   getenv("KAFKA_TOPIC", "ledger-events"),
		BusinessName: getenv("BUSINESS_NAME", "BrainGrid"),
		LogFormat:    strings.ToLower(getenv("LOG_FORMAT", "json")),
	}

	var err error
	if cfg.WorkerCount, err = getint("WORKER_COUNT", 4); err != nil {
		return Config{}, err
	}
	if cfg.EventQueueSize, err = getint("EVENT_QUEUE_SIZE", 1000); err != nil {
		return Config{}, err
	}
	if cfg.SummaryConcurrency, err = getint("SUMMARY_CONCURRENCY", 8); err != nil {
		return Config{}, err
	}
	if cfg.SeedShops, err = getint("SEED_SHOPS", 20); err != nil {
		return Config{}, err
	}
	timeoutMS, err := getint("REQUEST_TIMEOUT_MS", 5000)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout = time.Duration(timeoutMS) * time.Millisecond

	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return Config{}, fmt.Errorf("DATABASE_DSN is required for store driver %s", cfg.StoreDriver)
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return Config{}, fmt.Errorf("unknown LOG_FORMAT %q", cfg.LogFormat)
	}
	return cfg, nil
}

// CLI is the client side configuration of cmd/cli.
type CLI struct {
	APIURL           string
	ShareCommand     string
	OpenCommand      string
	ClipboardCommand string
	BusinessName     string
}

func LoadCLI() CLI {
	return CLI{
		APIURL:           strings.TrimRight(getenv("MILKROUTE_API", "http://localhost:8080"), "/"),
		ShareCommand:     getenv("SHARE_COMMAND", ""),
		OpenCommand:      getenv("OPEN_COMMAND", "xdg-open"),
		ClipboardCommand: getenv("CLIPBOARD_COMMAND", ""),
		BusinessName:     getenv("BUSINESS_NAME", "BrainGrid"),
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func getint(k string, def int) (int, error) {
	v := getenv(k, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", k, v)
	}
	return n, nil
}
