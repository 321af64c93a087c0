package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "POS"

	EnvAppEnv        = "POS_APP_ENV"
	EnvLogLevel      = "POS_LOG_LEVEL"
	EnvLogFormat     = "POS_LOG_FORMAT"
	EnvAPIURL        = "POS_API_URL"
	EnvClerkID       = "POS_CLERK_ID"
	EnvHTTPTimeout   = "POS_HTTP_REQUEST_TIMEOUT"
	EnvAPITimeout    = "POS_REQUEST_TIMEOUT"
	EnvStorageDriver = "POS_STORAGE_DRIVER"
	EnvRedisAddr     = "POS_REDIS_ADDR"
	EnvSyncInterval  = "POS_SYNC_INTERVAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Backend BackendConfig
	Storage StorageConfig
	Redis   RedisConfig
	Sync    SyncConfig
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"POS_APP_ENV" default:"dev"`
	LogLevel  string `envconfig:"POS_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"POS_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

type HTTPConfig struct {
	Addr            string        `envconfig:"POS_HTTP_ADDR" default:"127.0.0.1:8090"`
	RequestTimeout  time.Duration `envconfig:"POS_HTTP_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"POS_SHUTDOWN_TIMEOUT" default:"10s"`
}

type BackendConfig struct {
	APIURL          string        `envconfig:"POS_API_URL" required:"true"`
	ClerkID         string        `envconfig:"POS_CLERK_ID" required:"true"`
	RequestTimeout  time.Duration `envconfig:"POS_REQUEST_TIMEOUT" default:"10s"`
	BreakerFailures uint32        `envconfig:"POS_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"POS_BREAKER_TIMEOUT" default:"30s"`
}

type StorageConfig struct {
	Driver     string `envconfig:"POS_STORAGE_DRIVER" default:"sqlite"`
	SQLitePath string `envconfig:"POS_SQLITE_PATH" default:"pos.db"`
}

type RedisConfig struct {
	Addr     string `envconfig:"POS_REDIS_ADDR"`
	Password string `envconfig:"POS_REDIS_PASSWORD"`
	DB       int    `envconfig:"POS_REDIS_DB" default:"0"`
}

type SyncConfig struct {
	ProbeInterval time.Duration `envconfig:"POS_PROBE_INTERVAL" default:"5s"`
	// Interval of zero syncs only on reconnect or request.
	Interval time.Duration `envconfig:"POS_SYNC_INTERVAL" default:"0s"`
}

func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Backend.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", EnvAPIURL, c.Backend.APIURL))
	}
	if strings.TrimSpace(c.Backend.ClerkID) == "" {
		errs = append(errs, fmt.Errorf("%s must not be blank", EnvClerkID))
	}

	switch c.Storage.Driver {
	case "sqlite", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s=redis", EnvRedisAddr, EnvStorageDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be sqlite, redis or memory, got %q", EnvStorageDriver, c.Storage.Driver))
	}

	// a checkout must outlive its backend call to fall back to the queue
	if c.HTTP.RequestTimeout <= c.Backend.RequestTimeout {
		errs = append(errs, fmt.Errorf("%s (%s) must be longer than %s (%s)",
			EnvHTTPTimeout, c.HTTP.RequestTimeout, EnvAPITimeout, c.Backend.RequestTimeout))
	}
	if c.Sync.ProbeInterval <= 0 {
		errs = append(errs, errors.New("POS_PROBE_INTERVAL must be positive"))
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvSyncInterval))
	}

	return errors.Join(errs...)
}
