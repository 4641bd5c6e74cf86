package cacheinfra

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/cache"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config selects and configures the cache backend.
type Config struct {
	// Driver is "memory" or "redis".
	Driver  string        `koanf:"driver"`
	Memory  MemoryConfig  `koanf:"memory"`
	Redis   RedisConfig   `koanf:"redis"`
	Breaker BreakerConfig `koanf:"breaker"`
}

func DefaultConfig() Config {
	return Config{
		Driver:  DriverMemory,
		Memory:  DefaultMemoryConfig(),
		Redis:   DefaultRedisConfig(),
		Breaker: DefaultBreakerConfig(),
	}
}

func (c Config) Validate() error {
	if err := validation.Validate(c.Driver, validation.Required, validation.In(DriverMemory, DriverRedis)); err != nil {
		return &cache.ConfigError{Field: "Driver", Message: err.Error()}
	}
	if c.Driver == DriverRedis {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
		return c.Breaker.Validate()
	}
	return c.Memory.Validate()
}

// Open builds the configured backend. Redis backends are wrapped in a
// circuit breaker; every backend is instrumented. The returned close
// function releases connections and is never nil.
func Open(cfg Config, logger zerolog.Logger) (cache.Backend, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Driver {
	case DriverRedis:
		client, err := NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		breaker, err := NewBreakerBackend(NewRedisBackend(client, cfg.Redis.KeyPrefix), cfg.Breaker, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("cache backend: redis")
		return NewInstrumentedBackend(breaker), client.Close, nil
	default:
		mem, err := NewMemoryBackend(cfg.Memory)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Int("capacity", cfg.Memory.Capacity).Msg("cache backend: memory")
		return NewInstrumentedBackend(mem), func() error { return nil }, nil
	}
}
