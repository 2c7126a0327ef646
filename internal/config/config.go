package config

import (
	"fmt"
	"time"

	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Keys        KeysConfig      `mapstructure:"keys"`
	Token       TokenConfig     `mapstructure:"token"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Timeouts    TimeoutsConfig  `mapstructure:"timeouts"`
	Log         LogConfig       `mapstructure:"log"`
	Tracing     TracingConfig   `mapstructure:"tracing"`
	Auth        AuthConfig      `mapstructure:"auth"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the KeyStore backend. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig configures the shared KeyCache, RevocationStore and rotation lock.
// With no addresses the service runs single-instance on in-process caches.
type RedisConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	MasterName   string   `mapstructure:"master_name"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
}

// Enabled reports whether a shared redis is configured
func (c *RedisConfig) Enabled() bool {
	return len(c.Addresses) > 0
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// KeysConfig controls the signing key lifecycle.
type KeysConfig struct {
	Algorithm       string        `mapstructure:"algorithm"`
	ValidityWindow  time.Duration `mapstructure:"validity_window"`
	RotationAdvance time.Duration `mapstructure:"rotation_advance"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	PurgeRetention  time.Duration `mapstructure:"purge_retention"`
	SigningCacheTTL time.Duration `mapstructure:"signing_cache_ttl"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

type TokenConfig struct {
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
	Leeway time.Duration `mapstructure:"leeway"`
}

type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	RotationInterval time.Duration `mapstructure:"rotation_interval"`
	PurgeInterval    time.Duration `mapstructure:"purge_interval"`
}

// TimeoutsConfig bounds every store and cache round trip.
type TimeoutsConfig struct {
	Store time.Duration `mapstructure:"store"`
	Cache time.Duration `mapstructure:"cache"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// AuthConfig controls how the authentication gate resolves authorities.
// An empty PermissionsFile keeps the authorities carried by the token.
type AuthConfig struct {
	PermissionsFile string `mapstructure:"permissions_file"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.ErrInvalidRequest(fmt.Sprintf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Keys.Algorithm != "RS256" {
		return errors.ErrInvalidRequest(fmt.Sprintf("keys.algorithm %q is not supported", c.Keys.Algorithm))
	}
	positive := map[string]time.Duration{
		"keys.validity_window":        c.Keys.ValidityWindow,
		"keys.cache_ttl":              c.Keys.CacheTTL,
		"keys.signing_cache_ttl":      c.Keys.SigningCacheTTL,
		"token.ttl":                   c.Token.TTL,
		"timeouts.store":              c.Timeouts.Store,
		"timeouts.cache":              c.Timeouts.Cache,
		"scheduler.rotation_interval": c.Scheduler.RotationInterval,
		"scheduler.purge_interval":    c.Scheduler.PurgeInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			return errors.ErrInvalidRequest(fmt.Sprintf("%s must be positive", name))
		}
	}
	if c.Keys.RotationAdvance < 0 || c.Keys.RotationAdvance >= c.Keys.ValidityWindow {
		return errors.ErrInvalidRequest("keys.rotation_advance must be within [0, keys.validity_window)")
	}
	if c.Keys.PurgeRetention < 0 || c.Token.Leeway < 0 {
		return errors.ErrInvalidRequest("keys.purge_retention and token.leeway must not be negative")
	}
	if c.Token.TTL >= c.Keys.ValidityWindow {
		return errors.ErrInvalidRequest("token.ttl must be shorter than keys.validity_window")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.ErrInvalidRequest("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

// IsProduction reports whether the service runs in the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == constants.EnvProduction
}

//Personal.AI order the ending
