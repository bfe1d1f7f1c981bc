package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// RedisAddrVar names the Redis server. Setting it makes races use Redis
// unless a backend is chosen explicitly.
const RedisAddrVar = "TYPERACE_REDIS_ADDR"

// EnvConfig holds settings read from the environment.
type EnvConfig struct {
	RedisAddr       string `env:"TYPERACE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string `env:"TYPERACE_REDIS_PASSWORD"`
	RedisDB         int    `env:"TYPERACE_REDIS_DB" envDefault:"0"`
	RedisMaxRetries uint64 `env:"TYPERACE_REDIS_MAX_RETRIES" envDefault:"5"`
	UserID          string `env:"TYPERACE_USER_ID"`
}

// LoadEnv loads the given .env files when present and parses the environment.
// With no files it tries ./.env.
func LoadEnv(files ...string) (EnvConfig, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return EnvConfig{}, fmt.Errorf("failed to load .env: %w", err)
		}
		logrus.Debugf("no .env file loaded: %v", err)
	}
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c EnvConfig) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("TYPERACE_REDIS_ADDR must not be empty")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid TYPERACE_REDIS_DB: %d", c.RedisDB)
	}
	return nil
}
