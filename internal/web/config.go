package web

import (
	"github.com/census-resolver/internal/config"
)

// Backend selects which reference store the server runs against.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config represents the web server configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Census   CensusConfig   `json:"census"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port   int    `json:"port"`
	Host   string `json:"host"`
	APIKey string `json:"-"`
}

// DatabaseConfig selects and configures the store backend
type DatabaseConfig struct {
	Backend      string `json:"backend"`
	SnapshotPath string `json:"snapshot_path"`
}

// CensusConfig contains upstream data API settings
type CensusConfig struct {
	BaseURL       string `json:"base_url"`
	APIKey        string `json:"api_key"`
	CacheTTLHours int    `json:"cache_ttl_hours"`
}

// FromEnv builds the server configuration from environment variables.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:   config.GetEnvInt("WEB_PORT", 8080),
			Host:   config.GetEnv("WEB_HOST", "0.0.0.0"),
			APIKey: config.GetEnv("SERVER_API_KEY", ""),
		},
		Database: DatabaseConfig{
			Backend:      config.GetEnv("STORE_BACKEND", BackendPostgres),
			SnapshotPath: config.GetEnv("SNAPSHOT_PATH", "reference.sqlite"),
		},
		Census: CensusConfig{
			BaseURL:       config.GetEnv("CENSUS_API_URL", ""),
			APIKey:        config.GetEnv("CENSUS_API_KEY", ""),
			CacheTTLHours: config.GetEnvInt("CACHE_TTL_HOURS", 24),
		},
	}
}
