package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	CursorStoreMemory = "memory"
	CursorStoreRedis  = "redis"
)

type Config struct {
	AppName string `mapstructure:"app_name"`

	Server struct {
		Addr     string `mapstructure:"addr"`
		HTTPAddr string `mapstructure:"http_addr"`
	} `mapstructure:"server"`

	Dispatch struct {
		PageSize int `mapstructure:"page_size"`
	} `mapstructure:"dispatch"`

	Cursor struct {
		Store string        `mapstructure:"store"`
		TTL   time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cursor"`

	Cache struct {
		Size int           `mapstructure:"size"`
		TTL  time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novaquery")
	v.SetDefault("server.addr", "127.0.0.1:8866")
	v.SetDefault("server.http_addr", "127.0.0.1:8867")
	v.SetDefault("dispatch.page_size", 1000)
	v.SetDefault("cursor.store", CursorStoreMemory)
	v.SetDefault("cursor.ttl", "5m")
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("logging.level", "info")
}

// LoadConfig reads a YAML file (optional when path is empty) and applies
// NOVAQUERY_* environment overrides, e.g. NOVAQUERY_SERVER_ADDR.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("novaquery")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if cfg.Dispatch.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.page_size must be positive, got %d", cfg.Dispatch.PageSize))
	}
	switch cfg.Cursor.Store {
	case CursorStoreMemory:
	case CursorStoreRedis:
		if cfg.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis cursor store"))
		}
	default:
		errs = append(errs, fmt.Errorf("cursor.store must be %q or %q, got %q",
			CursorStoreMemory, CursorStoreRedis, cfg.Cursor.Store))
	}
	if cfg.Cursor.TTL <= 0 {
		errs = append(errs, errors.New("cursor.ttl must be positive"))
	}
	if cfg.Cache.Size < 0 {
		errs = append(errs, errors.New("cache.size must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
