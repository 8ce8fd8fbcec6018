package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the sync agent.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	APIBaseURL   string
	ListenAddr   string
	DatabasePath string
	LogLevel     string

	// Local state locations
	SecretsDir        string
	PendingUploadsDir string
	MigrationsPath    string

	// Session settings
	RefreshLeeway time.Duration
	HTTPTimeout   time.Duration

	// Import queue settings
	MaxImportSizeBytes int64
	DrainMinInterval   time.Duration
	ImportMaxBackoff   time.Duration
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the agent.
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	Cfg = &AppConfig{
		APIBaseURL:   getEnv("API_BASE_URL", "http://localhost:8080"),
		ListenAddr:   getEnv("LISTEN_ADDR", "127.0.0.1:8123"),
		DatabasePath: getEnv("DATABASE_PATH", "./spendsync.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		SecretsDir:        getEnv("SECRETS_DIR", "./secrets"),
		PendingUploadsDir: getEnv("PENDING_UPLOADS_DIR", "./pending_uploads"),
		MigrationsPath:    getEnv("MIGRATIONS_PATH", "./db/migrations"),

		RefreshLeeway: getEnvAsDuration("REFRESH_LEEWAY", 30*time.Second),
		HTTPTimeout:   getEnvAsDuration("HTTP_TIMEOUT", 15*time.Second),

		MaxImportSizeBytes: getEnvAsInt64("MAX_IMPORT_SIZE_BYTES", 5*1024*1024),
		DrainMinInterval:   getEnvAsDuration("DRAIN_MIN_INTERVAL", 10*time.Second),
		ImportMaxBackoff:   getEnvAsDuration("IMPORT_MAX_BACKOFF", 10*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Invalid int64 value for %s, using fallback %d", key, fallback)
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using fallback %s", key, fallback)
		return fallback
	}
	return value
}
