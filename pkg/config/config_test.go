package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/internal/cacheinfra"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Cache.Driver != def.Cache.Driver || cfg.Ingest.SizeThreshold != def.Ingest.SizeThreshold {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.TTL.Trending != 30*time.Minute || cfg.TTL.Popular != time.Hour {
		t.Errorf("unexpected ttl %+v", cfg.TTL)
	}
	if cfg.Logging.Output == nil {
		t.Error("logging output should keep its default")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeYAML(t, `
cache:
  driver: redis
  redis:
    addr: redis:6379
ingest:
  quality: high
  workers: 4
ttl:
  detail: 2m
`)
	t.Setenv("CATALOG_INGEST__WORKERS", "8")
	t.Setenv("CATALOG_INGEST__STEP_TIMEOUT", "90s")
	t.Setenv("CATALOG_LOGGING__LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Cache.Driver != cacheinfra.DriverRedis || cfg.Cache.Redis.Addr != "redis:6379" {
		t.Errorf("file values not applied: %+v", cfg.Cache)
	}
	if cfg.Ingest.Quality != "high" {
		t.Errorf("Quality = %s", cfg.Ingest.Quality)
	}
	if cfg.Ingest.Workers != 8 {
		t.Errorf("env should win over file, Workers = %d", cfg.Ingest.Workers)
	}
	if cfg.Ingest.StepTimeout != 90*time.Second {
		t.Errorf("StepTimeout = %s", cfg.Ingest.StepTimeout)
	}
	if cfg.TTL.Detail != 2*time.Minute || cfg.TTL.List != Default().TTL.List {
		t.Errorf("ttl merge wrong: %+v", cfg.TTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %s", cfg.Logging.Level)
	}
}

func TestLoad_PathFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeYAML(t, "warm: false\n")
	t.Setenv(PathEnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Warm {
		t.Error("expected warm disabled by file found through env")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"cache driver", "cache:\n  driver: memcached\n", "Driver"},
		{"ingest workers", "ingest:\n  workers: 0\n", "Workers"},
		{"quality", "ingest:\n  quality: lossless\n", "Quality"},
		{"done ttl below claim ttl", "ingest:\n  claim_ttl: 2h\n  done_ttl: 1h\n", "DoneTTL"},
		{"claim ttl", "ingest:\n  claim_ttl: 10ms\n", "ClaimTTL"},
		{"store driver", "store:\n  driver: oracle\n", "Driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeYAML(t, tt.yaml))
			var cfgErr *cache.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("expected config error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for an explicit missing file")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CATALOG_CACHE__REDIS__ADDR":   "cache.redis.addr",
		"CATALOG_INGEST__STEP_TIMEOUT": "ingest.step_timeout",
		"CATALOG_WARM":                 "warm",
		"CATALOG_CONFIG":               "",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%s) = %q, want %q", in, got, want)
		}
	}
}
