// Package config provides runtime configuration values for the service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "PANTRY"

const (
	EnvHTTPAddr        = "PANTRY_HTTP_ADDR"
	EnvShutdownTimeout = "PANTRY_SHUTDOWN_TIMEOUT"
	EnvLogLevel        = "PANTRY_LOG_LEVEL"
	EnvSyncPolicy      = "PANTRY_SYNC_POLICY"
	EnvStoreTimeout    = "PANTRY_STORE_TIMEOUT"
	EnvStoreBackend    = "PANTRY_STORE_BACKEND"
	EnvMemorySeed      = "PANTRY_MEMORY_SEED"
	EnvSheetsID        = "PANTRY_SHEETS_SPREADSHEET_ID"
	EnvSheetsName      = "PANTRY_SHEETS_SHEET_NAME"
	EnvDBDriver        = "PANTRY_DB_DRIVER"
	EnvDBDSN           = "PANTRY_DB_DSN"
	EnvRedisURL        = "PANTRY_REDIS_URL"
	EnvRedisKey        = "PANTRY_REDIS_KEY"
)

// Sync policies.
const (
	PolicyManual = "manual"
	PolicyEager  = "eager"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSheets = "sheets"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// Config holds configuration for the HTTP server, the sync manager and the remote store.
type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	Sync   SyncConfig
	Store  StoreConfig
	Sheets SheetsConfig
	DB     DBConfig
	Redis  RedisConfig
}

type AppConfig struct {
	Env          string `envconfig:"PANTRY_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"PANTRY_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PANTRY_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PANTRY_LOG_WARN_STACK" default:"false"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"PANTRY_HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"PANTRY_SHUTDOWN_TIMEOUT" default:"15s"`
}

type SyncConfig struct {
	Policy       string        `envconfig:"PANTRY_SYNC_POLICY" default:"manual"`
	StoreTimeout time.Duration `envconfig:"PANTRY_STORE_TIMEOUT" default:"30s"`
}

type StoreConfig struct {
	Backend    string `envconfig:"PANTRY_STORE_BACKEND" default:"memory"`
	MemorySeed string `envconfig:"PANTRY_MEMORY_SEED"`
}

type SheetsConfig struct {
	SpreadsheetID   string `envconfig:"PANTRY_SHEETS_SPREADSHEET_ID"`
	SheetName       string `envconfig:"PANTRY_SHEETS_SHEET_NAME" default:"Sheet1"`
	LastColumn      string `envconfig:"PANTRY_SHEETS_LAST_COLUMN" default:"Z"`
	CredentialsJSON string `envconfig:"PANTRY_SHEETS_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"PANTRY_SHEETS_CREDENTIALS_FILE"`
	Endpoint        string `envconfig:"PANTRY_SHEETS_ENDPOINT"`
}

type DBConfig struct {
	Driver          string        `envconfig:"PANTRY_DB_DRIVER" default:"postgres"`
	DSN             string        `envconfig:"PANTRY_DB_DSN"`
	AutoMigrate     bool          `envconfig:"PANTRY_DB_AUTO_MIGRATE" default:"true"`
	MaxOpenConns    int           `envconfig:"PANTRY_DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"PANTRY_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"PANTRY_DB_CONN_MAX_LIFETIME" default:"1h"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PANTRY_REDIS_URL"`
	Address      string        `envconfig:"PANTRY_REDIS_ADDR"`
	Password     string        `envconfig:"PANTRY_REDIS_PASSWORD"`
	DB           int           `envconfig:"PANTRY_REDIS_DB" default:"0"`
	Key          string        `envconfig:"PANTRY_REDIS_KEY" default:"pantry:table:inventory"`
	DialTimeout  time.Duration `envconfig:"PANTRY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PANTRY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PANTRY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Load collects configuration from the environment with defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Sync.Policy = strings.ToLower(strings.TrimSpace(cfg.Sync.Policy))
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Sync.Policy {
	case PolicyManual, PolicyEager:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvSyncPolicy, PolicyManual, PolicyEager, c.Sync.Policy)
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSheets:
		if strings.TrimSpace(c.Sheets.SpreadsheetID) == "" {
			return fmt.Errorf("%s is required for the sheets backend", EnvSheetsID)
		}
	case BackendSQL:
		if strings.TrimSpace(c.DB.DSN) == "" {
			return fmt.Errorf("%s is required for the sql backend", EnvDBDSN)
		}
		switch c.DB.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("%s must be postgres or sqlite, got %q", EnvDBDriver, c.DB.Driver)
		}
	case BackendRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return errors.New("redis url or address is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown %s %q", EnvStoreBackend, c.Store.Backend)
	}
	if c.Sync.StoreTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvStoreTimeout)
	}
	return nil
}
