// Package config loads service configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore: INSPECTION_SYNC_SYNC__MAX_ATTEMPTS=5.
const EnvPrefix = "INSPECTION_SYNC_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Log          LogConfig          `koanf:"log"`
	Storage      StorageConfig      `koanf:"storage"`
	Database     DatabaseConfig     `koanf:"database"`
	API          APIConfig          `koanf:"api"`
	Sync         SyncConfig         `koanf:"sync"`
	Connectivity ConnectivityConfig `koanf:"connectivity"`
	CORS         CORSConfig         `koanf:"cors"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig controls the stdout logger and the optional rotated JSON file.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"` // "json" or "text"
	File       string `koanf:"file"`   // empty disables file logging
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

type StorageConfig struct {
	Driver    string `koanf:"driver"`
	Path      string `koanf:"path"` // sqlite database file
	KeyPrefix string `koanf:"key_prefix"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// APIConfig describes the remote inspection backend.
type APIConfig struct {
	URL               string        `koanf:"url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	PhotoDir          string        `koanf:"photo_dir"`
	MaxPhotoBytes     int64         `koanf:"max_photo_bytes"`
}

type SyncConfig struct {
	Interval           time.Duration `koanf:"interval"`
	Cooldown           time.Duration `koanf:"cooldown"`
	MaxAttempts        int           `koanf:"max_attempts"`
	LockTTL            time.Duration `koanf:"lock_ttl"`
	ResetClaimsOnStart bool          `koanf:"reset_claims_on_start"`
}

// ConnectivityConfig configures the probe. Without a probe URL the device
// is assumed to be online.
type ConnectivityConfig struct {
	ProbeURL string        `koanf:"probe_url"`
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// Default returns the configuration used for keys that are not set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      0, // the websocket stream is long-lived
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Storage: StorageConfig{
			Driver:    DriverSQLite,
			Path:      "inspection-sync.db",
			KeyPrefix: "@sync",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			ConnectAttempts: 5,
			ConnectTimeout:  time.Minute,
		},
		API: APIConfig{
			Timeout:       30 * time.Second,
			Burst:         1,
			MaxPhotoBytes: 10 << 20,
		},
		Sync: SyncConfig{
			Interval:           30 * time.Second,
			Cooldown:           10 * time.Second,
			MaxAttempts:        3,
			LockTTL:            5 * time.Minute,
			ResetClaimsOnStart: true,
		},
		Connectivity: ConnectivityConfig{
			Interval: 15 * time.Second,
			Timeout:  5 * time.Second,
		},
	}
}

// Load reads configuration. path may be empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps INSPECTION_SYNC_SYNC__MAX_ATTEMPTS to sync.max_attempts.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.API.URL == "" {
		errs = append(errs, errors.New("api.url is required"))
	} else if u, err := url.Parse(c.API.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.url %q is not an absolute URL", c.API.URL))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of memory, sqlite, postgres", c.Storage.Driver))
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	if c.Sync.Cooldown < 0 {
		errs = append(errs, errors.New("sync.cooldown must not be negative"))
	}
	if c.Sync.MaxAttempts <= 0 {
		errs = append(errs, errors.New("sync.max_attempts must be positive"))
	}
	if c.Sync.LockTTL <= 0 {
		errs = append(errs, errors.New("sync.lock_ttl must be positive"))
	}
	if c.Connectivity.Interval <= 0 {
		errs = append(errs, errors.New("connectivity.interval must be positive"))
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("api.requests_per_second must not be negative"))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	return errors.Join(errs...)
}
