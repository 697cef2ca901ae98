package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Storage StorageConfig
	Redis   RedisConfig
	DB      DBConfig
	Engine  EngineConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RECEIPTFLOW_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"RECEIPTFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RECEIPTFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StorageConfig selects the durable key-value backend for engine state.
type StorageConfig struct {
	Driver    string `envconfig:"RECEIPTFLOW_STORAGE_DRIVER" default:"memory"`
	Namespace string `envconfig:"RECEIPTFLOW_STORAGE_NAMESPACE" default:"rf"`
}

// NormalizedDriver returns the lowercase, trimmed driver name.
func (s StorageConfig) NormalizedDriver() string {
	return strings.ToLower(strings.TrimSpace(s.Driver))
}

func (s StorageConfig) IsSQL() bool {
	driver := s.NormalizedDriver()
	return driver == StorageDriverSQLite || driver == StorageDriverPostgres
}

type RedisConfig struct {
	URL          string        `envconfig:"RECEIPTFLOW_REDIS_URL"`
	Address      string        `envconfig:"RECEIPTFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"RECEIPTFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"RECEIPTFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RECEIPTFLOW_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"RECEIPTFLOW_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"RECEIPTFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RECEIPTFLOW_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"RECEIPTFLOW_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type DBConfig struct {
	DSN         string `envconfig:"RECEIPTFLOW_DB_DSN"`
	AutoMigrate bool   `envconfig:"RECEIPTFLOW_DB_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"RECEIPTFLOW_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"RECEIPTFLOW_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"RECEIPTFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RECEIPTFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// EngineConfig tunes the receipt engine.
type EngineConfig struct {
	OrderIDMax   int `envconfig:"RECEIPTFLOW_ORDER_ID_MAX" default:"1000"`
	CSVMinGroups int `envconfig:"RECEIPTFLOW_CSV_MIN_GROUPS" default:"3"`
	CSVMaxGroups int `envconfig:"RECEIPTFLOW_CSV_MAX_GROUPS" default:"7"`
}

func (c *Config) validate() error {
	switch c.Storage.NormalizedDriver() {
	case StorageDriverMemory:
	case StorageDriverRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("either %s or %s is required for the redis driver", EnvRedisURL, EnvRedisAddr)
		}
	case StorageDriverSQLite, StorageDriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("%s is required for the %s driver", EnvDBDSN, c.Storage.NormalizedDriver())
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvStorageDriver, c.Storage.Driver)
	}
	if c.Engine.OrderIDMax <= 0 {
		return fmt.Errorf("%s must be positive", EnvOrderIDMax)
	}
	if c.Engine.CSVMinGroups <= 0 || c.Engine.CSVMinGroups > c.Engine.CSVMaxGroups {
		return fmt.Errorf("%s must be positive and not exceed %s", EnvCSVMinGroups, EnvCSVMaxGroups)
	}
	return nil
}
