package config

import (
	"os"
	"strconv"
	"time"

	"epiclim/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Ops      OpsConfig
	Data     DataConfig
	Geocode  GeocodeConfig
	ISIMIP   ISIMIPConfig
	LENS2    LENS2Config
}

// DatabaseConfig holds database connection settings. The database is
// optional; without it fetch jobs are not persisted.
type DatabaseConfig struct {
	URL     string
	Enabled bool
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// OpsConfig holds the operational endpoints settings
type OpsConfig struct {
	Port    string
	Enabled bool
}

// DataConfig holds data directories and input files
type DataConfig struct {
	CacheDir         string
	SuitabilityTable string
}

// GeocodeConfig holds geocoding client settings
type GeocodeConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheSize int
}

// ISIMIPConfig holds ISIMIP subsetting client settings
type ISIMIPConfig struct {
	BaseURL         string
	PollInterval    time.Duration
	Timeout         time.Duration
	DownloadRetries int
}

// LENS2Config holds LENS2 bucket settings
type LENS2Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "debug"),
		},
		Ops: OpsConfig{
			Port:    getEnvOrDefault("OPS_PORT", "9090"),
			Enabled: getEnvBoolOrDefault("OPS_ENABLED", true),
		},
		Data: DataConfig{
			CacheDir:         getEnvOrDefault("CACHE_DIR", "./data"),
			SuitabilityTable: getEnvOrDefault("SUITABILITY_TABLE", ""),
		},
		Geocode: GeocodeConfig{
			BaseURL:   getEnvOrDefault("NOMINATIM_URL", ""),
			UserAgent: getEnvOrDefault("GEOCODE_USER_AGENT", "epiclim/1.0"),
			Timeout:   getEnvDurationOrDefault("GEOCODE_TIMEOUT", 10*time.Second),
			CacheSize: getEnvIntOrDefault("GEOCODE_CACHE_SIZE", 128),
		},
		ISIMIP: ISIMIPConfig{
			BaseURL:         getEnvOrDefault("ISIMIP_URL", ""),
			PollInterval:    getEnvDurationOrDefault("ISIMIP_POLL_INTERVAL", 10*time.Second),
			Timeout:         getEnvDurationOrDefault("ISIMIP_TIMEOUT", 20*time.Minute),
			DownloadRetries: getEnvIntOrDefault("ISIMIP_DOWNLOAD_RETRIES", 3),
		},
		LENS2: LENS2Config{
			Bucket:   getEnvOrDefault("LENS2_BUCKET", ""),
			Region:   getEnvOrDefault("LENS2_REGION", ""),
			Endpoint: getEnvOrDefault("LENS2_ENDPOINT", ""),
		},
	}
	config.Database.Enabled = config.Database.URL != ""

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Data.CacheDir == "" {
		return errors.ConfigInvalid("cache directory is required")
	}
	if config.Geocode.UserAgent == "" {
		return errors.ConfigInvalid("geocode user agent is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
