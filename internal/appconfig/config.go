// Package appconfig loads the agent's own operational configuration — the
// knobs in spec.md §6 that pick a deployment profile and wire the standard
// profile's Postgres/Redis-backed components — as distinct from the
// sing-box configuration document the Config Store manages.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Profile selects which optional components the agent wires up.
type Profile string

const (
	// ProfileLite runs with filesystem-only storage and no Redis; the
	// distributed lock coordinator and prober cache are never constructed.
	ProfileLite Profile = "lite"

	// ProfileStandard adds a Postgres- or SQLite-backed backup index, a
	// Redis-backed distributed lock, and a Redis-backed prober cache.
	ProfileStandard Profile = "standard"
)

// StorageBackend selects the Backup Index implementation in the standard
// profile. The lite profile only ever uses BackendFilesystem.
type StorageBackend string

const (
	BackendFilesystem StorageBackend = "filesystem"
	BackendPostgres   StorageBackend = "postgres"
	BackendSQLite     StorageBackend = "sqlite"
)

// Config is the agent's full operational configuration, loaded by Load.
type Config struct {
	DeploymentProfile Profile        `mapstructure:"deploymentProfile" validate:"required,oneof=lite standard"`
	StorageBackend    StorageBackend `mapstructure:"storageBackend" validate:"required,oneof=filesystem postgres sqlite"`

	Database       DatabaseConfig       `mapstructure:"database"`
	SQLite         SQLiteConfig         `mapstructure:"sqlite"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Lock           LockConfig           `mapstructure:"lock"`
	ValidatorCache ValidatorCacheConfig `mapstructure:"validatorCache"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`

	LogLevel  string `mapstructure:"logLevel" validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"logFormat" validate:"required,oneof=json text"`
}

// DatabaseConfig holds the Postgres pool settings for the standard profile
// (storageBackend=postgres).
type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn"`
	MaxConns       int32         `mapstructure:"maxConns" validate:"gte=1"`
	MinConns       int32         `mapstructure:"minConns" validate:"gte=0"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout" validate:"gt=0"`
}

// SQLiteConfig holds the embedded-SQLite backup index path (standard
// profile, storageBackend=sqlite).
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig wires the distributed lock coordinator and prober cache
// (standard profile only).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LockConfig tunes the distributed lock coordinator.
type LockConfig struct {
	TTL            time.Duration `mapstructure:"ttl" validate:"gt=0"`
	AcquireTimeout time.Duration `mapstructure:"acquireTimeout" validate:"gt=0"`
}

// ValidatorCacheConfig tunes the Validator's advisory result cache.
type ValidatorCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size" validate:"gt=0"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// MetricsConfig names the Prometheus metric namespace prefix.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace" validate:"required"`
}

const envPrefix = "SINGBOXCTL"

// Load reads configuration from an optional YAML file, then environment
// variables prefixed SINGBOXCTL_ (env always wins over file), applies
// defaults for anything unset, and validates the result. configPath may be
// empty, in which case only defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("appconfig: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("appconfig: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("appconfig: validate: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deploymentProfile", "lite")
	v.SetDefault("storageBackend", "filesystem")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxConns", int32(10))
	v.SetDefault("database.minConns", int32(2))
	v.SetDefault("database.connectTimeout", "10s")

	v.SetDefault("sqlite.path", "/var/lib/singboxctl/backups.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.acquireTimeout", "5s")

	v.SetDefault("validatorCache.enabled", true)
	v.SetDefault("validatorCache.size", 256)
	v.SetDefault("validatorCache.ttl", "10m")

	v.SetDefault("metrics.namespace", "singboxctl")

	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "json")
}

// Validate runs struct-tag validation and the profile/storage-backend
// compatibility rule spec.md §6 implies: lite only ever uses filesystem
// storage, and a standard profile's chosen backend must carry the settings
// it needs.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.DeploymentProfile == ProfileLite && c.StorageBackend != BackendFilesystem {
		return fmt.Errorf("lite profile requires storageBackend=filesystem (got %q)", c.StorageBackend)
	}

	if c.DeploymentProfile == ProfileStandard {
		switch c.StorageBackend {
		case BackendPostgres:
			if c.Database.DSN == "" {
				return fmt.Errorf("standard profile with storageBackend=postgres requires database.dsn")
			}
		case BackendSQLite:
			if c.SQLite.Path == "" {
				return fmt.Errorf("standard profile with storageBackend=sqlite requires sqlite.path")
			}
		case BackendFilesystem:
			// valid: standard profile may still use a filesystem-only
			// backup index, it simply forgoes the queryable SQL index.
		}
	}

	return nil
}

// IsLite reports whether the agent is running in the lite profile.
func (c *Config) IsLite() bool { return c.DeploymentProfile == ProfileLite }

// IsStandard reports whether the agent is running in the standard profile.
func (c *Config) IsStandard() bool { return c.DeploymentProfile == ProfileStandard }

// UsesRedis reports whether the distributed lock coordinator and prober
// cache should be constructed.
func (c *Config) UsesRedis() bool { return c.IsStandard() }
