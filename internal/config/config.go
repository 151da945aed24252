// Package config loads the process-wide domain.Config via Viper, the way
// the teacher's internal/config.Manager loads its own root Config: defaults
// first, then an optional config file, then environment variables, each
// layer overriding the last.
package config

import (
	"fmt"
	"strings"

	"github.com/genomax/protocol-engine/internal/domain"
	"github.com/spf13/viper"
)

// Manager implements configuration loading and validation using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager loads configuration from config.yaml (if present), environment
// variables prefixed GENOMAX_, and built-in defaults.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/genomax-protocol-engine/")

	viper.SetEnvPrefix("GENOMAX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &domain.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = cfg
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.default_deadline", "5s")

	// Empty by default: the audit database is opt-in (set GENOMAX_DATABASE_HOST
	// or database.host in config.yaml to enable audit persistence).
	viper.SetDefault("database.host", "")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "genomax_protocol_engine")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.connect_max_retries", 5)
	viper.SetDefault("database.connect_backoff", "250ms")

	viper.SetDefault("catalog.source_url", "")
	viper.SetDefault("catalog.reload_interval", "5m")
	viper.SetDefault("catalog.reload_timeout", "10s")
	viper.SetDefault("catalog.breaker_max_fails", 3)
	viper.SetDefault("catalog.breaker_open_for", "60s")

	viper.SetDefault("ruleset.reference_ranges_path", "")
	viper.SetDefault("ruleset.gate_registry_version", "gate_registry_v2.0")
	viper.SetDefault("ruleset.mapping_version", "constraint_mappings_v1.0")

	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "1h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.lru_size", 1)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns the database section.
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns the server section.
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetCatalogConfig returns the catalog section.
func (m *Manager) GetCatalogConfig() *domain.CatalogConfig {
	return &m.config.Catalog
}

// GetCacheConfig returns the cache section.
func (m *Manager) GetCacheConfig() *domain.CacheConfig {
	return &m.config.Cache
}

// Reload re-reads configuration from disk/env. The catalog and ruleset
// stores perform their own atomic snapshot swap separately; Reload only
// refreshes the in-memory config values a future catalog load would use.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate checks the loaded configuration for obviously invalid values.
func (m *Manager) Validate() error {
	cfg := m.config

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	// The audit database is optional (see cmd/server/main.go): an empty
	// host means audit persistence is disabled, not a misconfiguration, so
	// it is validated only when configured.
	if cfg.Database.Host != "" && cfg.Database.Database == "" {
		return fmt.Errorf("database name is required when database host is set")
	}
	if cfg.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	return nil
}

// DatabaseConnectionString builds a libpq-style DSN from the database
// section.
func (m *Manager) DatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// IsProduction reports whether the environment is set to production.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}
