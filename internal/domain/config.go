package domain

import "time"

// Config is the root configuration structure, unmarshaled by viper from
// config.yaml, environment variables, and defaults.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Catalog     CatalogConfig  `mapstructure:"catalog"`
	Ruleset     RulesetConfig  `mapstructure:"ruleset"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig configures the thin HTTP transport.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	DefaultDeadline time.Duration `mapstructure:"default_deadline"`
}

// DatabaseConfig configures the Postgres connection used for append-only
// audit persistence.
type DatabaseConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Database          string        `mapstructure:"database"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxOpenConns      int32         `mapstructure:"max_open_conns"`
	MaxIdleConns      int32         `mapstructure:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectMaxRetries int           `mapstructure:"connect_max_retries"`
	ConnectBackoff    time.Duration `mapstructure:"connect_backoff"`
}

// CatalogConfig locates the catalog snapshot source and tunes reload
// resilience.
type CatalogConfig struct {
	SourceURL        string        `mapstructure:"source_url"`
	ReloadInterval   time.Duration `mapstructure:"reload_interval"`
	ReloadTimeout    time.Duration `mapstructure:"reload_timeout"`
	BreakerMaxFails  uint32        `mapstructure:"breaker_max_fails"`
	BreakerOpenFor   time.Duration `mapstructure:"breaker_open_for"`
}

// RulesetConfig locates the reference-range table, gate registry, and
// constraint mapping documents loaded once at startup.
type RulesetConfig struct {
	ReferenceRangesPath string `mapstructure:"reference_ranges_path"`
	GateRegistryVersion string `mapstructure:"gate_registry_version"`
	MappingVersion      string `mapstructure:"mapping_version"`
}

// CacheConfig configures the optional Redis-backed routing-result cache.
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	LRUSize     int           `mapstructure:"lru_size"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
