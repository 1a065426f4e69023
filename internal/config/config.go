package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	Dataset DatasetConfig
	Demo    DemoConfig
}

// DatasetConfig sizes the synthetic evidence dataset generated at startup.
type DatasetConfig struct {
	Seed                 int64
	Merchants            int
	PlansPerMerchant     int
	PriceChangeEvents    int
	CancellationEvents   int
	PaymentFailureEvents int
	PauseEvents          int
}

// DemoConfig controls the report run by cmd/revlift.
type DemoConfig struct {
	UseGlobalBenchmarks bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "revlift"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Dataset: DatasetConfig{
			Seed:                 getenvInt64("DATASET_SEED", 42),
			Merchants:            getenvInt("DATASET_MERCHANTS", 4),
			PlansPerMerchant:     getenvInt("DATASET_PLANS_PER_MERCHANT", 3),
			PriceChangeEvents:    getenvInt("DATASET_PRICE_CHANGE_EVENTS", 120),
			CancellationEvents:   getenvInt("DATASET_CANCELLATION_EVENTS", 600),
			PaymentFailureEvents: getenvInt("DATASET_PAYMENT_FAILURE_EVENTS", 400),
			PauseEvents:          getenvInt("DATASET_PAUSE_EVENTS", 250),
		},
		Demo: DemoConfig{
			UseGlobalBenchmarks: getenvBool("DEMO_USE_GLOBAL_BENCHMARKS", true),
		},
	}
}

// Module wires configuration for the application.
var Module = fx.Module("config",
	fx.Provide(Load, NewPolicyHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
