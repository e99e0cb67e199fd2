// Package config loads the runtime configuration of the quire CLI and server.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/quire/internal/executor"
	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/internal/planner"
	"github.com/aretw0/quire/pkg/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUIRE_"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Catalog  string         `mapstructure:"catalog"`
	Handlers string         `mapstructure:"handlers"`
	Planner  PlannerConfig  `mapstructure:"planner"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Store    StoreConfig    `mapstructure:"store"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type PlannerConfig struct {
	Budget int `mapstructure:"budget"`
}

type ExecutorConfig struct {
	Retry       domain.RetryPolicy `mapstructure:"retry"`
	HardTimeout time.Duration      `mapstructure:"hard_timeout"`
	MaxParallel int                `mapstructure:"max_parallel"`
	// RateLimit is in handler dispatches per second; zero disables throttling.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

type StoreConfig struct {
	Backend string        `mapstructure:"backend"`
	Dir     string        `mapstructure:"dir"`
	Redis   RedisConfig   `mapstructure:"redis"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// EncryptionKey is a base64 encoded 32 byte key; empty disables encryption.
	EncryptionKey string `mapstructure:"encryption_key"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		LogLevel: "info",
		Planner:  PlannerConfig{Budget: planner.DefaultBudget},
		Executor: ExecutorConfig{
			Retry:       domain.DefaultRetryPolicy(),
			HardTimeout: executor.DefaultHardTimeout,
			Burst:       1,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Dir:     ".quire/sessions",
			LockTTL: 10 * time.Minute,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "quire:session:",
			},
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(data []byte, cfg *Config) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// applyEnv overrides fields from QUIRE_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("CATALOG", &c.Catalog)
	str("HANDLERS", &c.Handlers)
	str("STORE", &c.Store.Backend)
	str("STORE_DIR", &c.Store.Dir)
	str("REDIS_ADDR", &c.Store.Redis.Addr)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	str("REDIS_PREFIX", &c.Store.Redis.Prefix)
	str("ENCRYPTION_KEY", &c.Store.EncryptionKey)
	str("HTTP_ADDR", &c.HTTP.Addr)

	return errors.Join(
		integer("REDIS_DB", &c.Store.Redis.DB),
		integer("PLANNER_BUDGET", &c.Planner.Budget),
		integer("MAX_PARALLEL", &c.Executor.MaxParallel),
		integer("MAX_RETRIES", &c.Executor.Retry.MaxRetries),
	)
}

// Validate reports every inconsistent setting.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Planner.Budget <= 0 {
		errs = append(errs, fmt.Errorf("planner.budget must be positive, got %d", c.Planner.Budget))
	}
	if c.Executor.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("executor.retry.max_retries must not be negative"))
	}
	if c.Executor.HardTimeout <= 0 {
		errs = append(errs, fmt.Errorf("executor.hard_timeout must be positive"))
	}
	if c.Executor.MaxParallel < 0 {
		errs = append(errs, fmt.Errorf("executor.max_parallel must not be negative"))
	}
	if c.Executor.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("executor.rate_limit must not be negative"))
	}
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := c.Store.Key(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Key decodes the encryption key. It returns nil when encryption is disabled.
func (s StoreConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store.encryption_key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("store.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
