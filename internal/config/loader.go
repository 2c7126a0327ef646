package config

import (
	"context"
	"errors"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

// Loader reads configuration from defaults, an optional YAML file and KEYTRUST_* environment variables.
type Loader struct {
	v      *viper.Viper
	log    logger.Logger
	loaded bool
}

// NewLoader creates a loader. An empty configFile searches ./config.yaml and /etc/keytrust/config.yaml.
func NewLoader(configFile string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/keytrust/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KEYTRUST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log.WithComponent("ConfigLoader")}
}

// Load loads the configuration from file, environment variables and defaults.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		l.log.Info(context.Background(), "No config file found, using defaults and environment")
	} else {
		l.loaded = true
		l.log.Info(context.Background(), "Config file loaded", logger.String("file", l.v.ConfigFileUsed()))
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the config file on change and hands the validated result to onChange.
// Invalid edits are logged and ignored. It is a no-op when no file was loaded.
func (l *Loader) Watch(onChange func(*Config)) {
	if !l.loaded {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		cfg, err := l.decode()
		if err != nil {
			l.log.Error(ctx, "Reloaded config rejected", err, logger.String("file", e.Name))
			return
		}
		l.log.Info(ctx, "Config reloaded", logger.String("file", e.Name), logger.String("op", e.Op.String()))
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// LoadConfig is a convenience wrapper for a one-shot load with the default search paths.
func LoadConfig(log logger.Logger) (*Config, error) {
	return NewLoader("", log).Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "keytrust")
	v.SetDefault("database.database", "keytrust")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "keytrust.db")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.addresses", []string{})
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", constants.DefaultKeyEventsTopic)
	v.SetDefault("kafka.group_id", "keytrust")

	v.SetDefault("keys.algorithm", string(constants.DefaultJWTAlgorithm))
	v.SetDefault("keys.validity_window", constants.DefaultKeyValidity.String())
	v.SetDefault("keys.rotation_advance", constants.DefaultRotationAdvance.String())
	v.SetDefault("keys.cache_ttl", constants.DefaultKeyCacheTTL.String())
	v.SetDefault("keys.purge_retention", constants.DefaultPurgeRetention.String())
	v.SetDefault("keys.signing_cache_ttl", constants.DefaultSigningKeyCacheTTL.String())
	v.SetDefault("keys.lock_ttl", constants.DefaultRotationLockTTL.String())

	v.SetDefault("token.issuer", constants.DefaultTokenIssuer)
	v.SetDefault("token.ttl", constants.DefaultTokenTTL.String())
	v.SetDefault("token.leeway", "0s")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.rotation_interval", constants.DefaultRotationCheckInterval.String())
	v.SetDefault("scheduler.purge_interval", constants.DefaultPurgeInterval.String())

	v.SetDefault("timeouts.store", constants.DefaultStoreTimeout.String())
	v.SetDefault("timeouts.cache", constants.DefaultCacheTimeout.String())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("auth.permissions_file", "")
}
