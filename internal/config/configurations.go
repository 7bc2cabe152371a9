package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Configurations struct {
	// Server configuration
	PORT string
	MODE string

	// OSV client configuration
	OSV_API_URL            string
	MAX_CONCURRENT_BATCHES int

	// Vulnerability cache configuration
	OSV_CACHE_PATH      string
	OSV_CACHE_TTL_HOURS int
	CACHE_DB_DRIVER     string
	CACHE_DB_DSN        string

	// Scan limits
	MAX_CONCURRENT_SCANS int
	MAX_BODY_BYTES       int64
	MAX_FILES_PER_SCAN   int
	ALLOWED_ORIGINS      []string

	// Report archive (object storage) configuration
	ARCHIVE_ENABLED    bool
	STORAGE_ENDPOINT   string
	STORAGE_ACCESS_KEY string
	STORAGE_SECRET_KEY string
	BUCKET_NAME        string
	STORAGE_USE_SSL    bool
}

func LoadConfigurations() *Configurations {

	if os.Getenv("DEVELOPER_HOST") == "true" {
		err := godotenv.Load()
		if err != nil {
			panic("Error loading .env file")
		}
	}
	return &Configurations{
		// Server configuration
		PORT: getEnvWithDefault("PORT", "8080"),
		MODE: getEnvWithDefault("MODE", "release"),

		// OSV client configuration
		OSV_API_URL:            getEnvWithDefault("OSV_API_URL", "https://api.osv.dev/v1"),
		MAX_CONCURRENT_BATCHES: getEnvInt("MAX_CONCURRENT_BATCHES", 8),

		// Vulnerability cache configuration
		OSV_CACHE_PATH:      getEnvWithDefault("OSV_CACHE_PATH", "osv_cache.db"),
		OSV_CACHE_TTL_HOURS: getEnvInt("OSV_CACHE_TTL_HOURS", 24),
		CACHE_DB_DRIVER:     getEnvWithDefault("CACHE_DB_DRIVER", "sqlite"),
		CACHE_DB_DSN:        getEnvWithDefault("CACHE_DB_DSN", ""),

		// Scan limits
		MAX_CONCURRENT_SCANS: getEnvInt("MAX_CONCURRENT_SCANS", 4),
		MAX_BODY_BYTES:       int64(getEnvInt("MAX_BODY_BYTES", 8<<20)),
		MAX_FILES_PER_SCAN:   getEnvInt("MAX_FILES_PER_SCAN", 16),
		ALLOWED_ORIGINS:      splitNonEmpty(os.Getenv("ALLOWED_ORIGINS")),

		// Report archive configuration
		ARCHIVE_ENABLED:    getEnvWithDefault("ARCHIVE_ENABLED", "false") == "true",
		STORAGE_ENDPOINT:   getEnvWithDefault("STORAGE_ENDPOINT", "localhost:9000"),
		STORAGE_ACCESS_KEY: getEnvWithDefault("STORAGE_ACCESS_KEY", "minioadmin"),
		STORAGE_SECRET_KEY: getEnvWithDefault("STORAGE_SECRET_KEY", "minioadmin"),
		BUCKET_NAME:        getEnvWithDefault("BUCKET_NAME", "depscan-reports"),
		STORAGE_USE_SSL:    getEnvWithDefault("STORAGE_SSL", "false") == "true",
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
