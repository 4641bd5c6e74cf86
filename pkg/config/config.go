// Package config loads the application configuration in three layers:
// built-in defaults, an optional YAML file, then CATALOG_ environment
// variables. Later layers win.
//
// Environment variables use a double underscore for nesting:
//
//	CATALOG_CACHE__DRIVER=redis
//	CATALOG_CACHE__REDIS__ADDR=redis:6379
//	CATALOG_INGEST__STEP_TIMEOUT=90s
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/ingest"
	"github.com/goliatone/go-catalog-cache/internal/cacheinfra"
	"github.com/goliatone/go-catalog-cache/internal/logging"
	"github.com/goliatone/go-catalog-cache/internal/mediainfra"
	"github.com/goliatone/go-catalog-cache/internal/store"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CATALOG_"
	// PathEnvVar overrides the config file location.
	PathEnvVar = "CATALOG_CONFIG"
)

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{
	"catalog.yaml",
	"catalog.yml",
	"/etc/catalog/catalog.yaml",
}

// Config is the application configuration.
type Config struct {
	Logging logging.Config    `koanf:"logging"`
	Store   store.Config      `koanf:"store"`
	Cache   cacheinfra.Config `koanf:"cache"`
	TTL     cache.TTLConfig   `koanf:"ttl"`
	Ingest  ingest.Config     `koanf:"ingest"`
	Media   mediainfra.Config `koanf:"media"`
	Metrics MetricsConfig     `koanf:"metrics"`
	// Warm runs a cache warm pass when the worker starts.
	Warm bool `koanf:"warm"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: logging.DefaultConfig(),
		Store:   store.DefaultConfig(),
		Cache:   cacheinfra.DefaultConfig(),
		TTL:     cache.DefaultTTLConfig(),
		Ingest:  ingest.DefaultConfig(),
		Media:   mediainfra.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true, Addr: ":9102"},
		Warm:    true,
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []struct {
		section string
		check   func() error
	}{
		{"logging", c.Logging.Validate},
		{"store", c.Store.Validate},
		{"cache", c.Cache.Validate},
		{"ttl", c.TTL.Validate},
		{"ingest", c.Ingest.Validate},
		{"media", c.Media.Validate},
	}
	for _, ch := range checks {
		if err := ch.check(); err != nil {
			return fmt.Errorf("%s: %w", ch.section, err)
		}
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics: %w", &cache.ConfigError{Field: "Addr", Message: "cannot be blank"})
	}
	return nil
}

// Load reads the configuration. An empty path searches PathEnvVar and
// DefaultPaths; no file at all is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps CATALOG_CACHE__REDIS__ADDR to cache.redis.addr.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
