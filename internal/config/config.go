package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type AppConfig struct {
	// Registry API key; the only required external credential. Warehouse
	// credentials come from the ambient default client configuration.
	PurpleAPIKey string `validate:"required"`

	// SensorID is the registry sensor whose channels are ingested.
	SensorID int64 `validate:"required"`

	// WindowDays is the trailing window of readings fetched per channel.
	WindowDays int `validate:"gt=0"`

	// Destination table.
	BQProject string `validate:"required"`
	BQDataset string `validate:"required"`
	BQTable   string `validate:"required"`

	HTTPTimeout time.Duration

	// RunInterval enables scheduled runs when non-zero.
	RunInterval time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.PurpleAPIKey = os.Getenv("PURPLE_API_KEY")
	cfg.SensorID = int64(getenvInt("SENSOR_ID", 20957))
	cfg.WindowDays = getenvInt("FEED_WINDOW_DAYS", 3)

	cfg.BQProject = getenvDefault("BQ_PROJECT", "databuildtool")
	cfg.BQDataset = getenvDefault("BQ_DATASET", "air_quality")
	cfg.BQTable = getenvDefault("BQ_TABLE", "raw_thingspeak")

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	// Scheduled runs are off unless an interval is set.
	if v := os.Getenv("RUN_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RUN_INTERVAL: %w", err)
		}
		cfg.RunInterval = interval
	}

	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
