package di

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/internal/cacheinfra"
	"github.com/goliatone/go-catalog-cache/pkg/config"
	"github.com/goliatone/go-catalog-cache/pkg/testsupport"
)

// testConfig returns the default configuration backed by a sqlite file in
// the test's temp dir.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "catalog.db")
	return cfg
}

func newTestContainer(t *testing.T, cfg config.Config, opts ...Option) *Container {
	t.Helper()
	opts = append([]Option{
		WithLogger(zerolog.Nop()),
		WithMedia(&testsupport.FakeProber{Default: 215}, &testsupport.FakeTranscoder{OutputSize: 1}),
	}, opts...)

	c, err := NewContainer(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return c
}

func TestNewContainer(t *testing.T) {
	cfg := testConfig(t)
	container := newTestContainer(t, cfg)

	// Verify that dependencies are properly initialized
	if container.Store() == nil {
		t.Error("Container should have a non-nil store")
	}
	if container.Backend() == nil {
		t.Error("Container should have a non-nil cache backend")
	}
	if container.Coordinator() == nil || container.QueryCache() == nil {
		t.Error("Container should have a coordinator and a query cache")
	}
	if container.Worker() == nil || container.Dispatcher() == nil {
		t.Error("Container should have an ingestion worker and dispatcher")
	}

	if got := container.Config().Store.DSN; got != cfg.Store.DSN {
		t.Errorf("Expected DSN %q, got %q", cfg.Store.DSN, got)
	}
	if got := container.QueryCache().TTL(); got != cfg.TTL {
		t.Errorf("Expected TTL %+v, got %+v", cfg.TTL, got)
	}

	status := container.QueryCache().Check(context.Background())
	if !status.Healthy {
		t.Errorf("Expected healthy backend, got %+v", status)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"store driver", func(c *config.Config) { c.Store.Driver = "oracle" }},
		{"cache driver", func(c *config.Config) { c.Cache.Driver = "memcached" }},
		{"ingest workers", func(c *config.Config) { c.Ingest.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)

			_, err := NewContainer(context.Background(), cfg, WithLogger(zerolog.Nop()))
			if err == nil {
				t.Fatal("Expected error for invalid config")
			}
			var cfgErr *cache.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected *cache.ConfigError, got %T: %v", err, err)
			}
		})
	}
}

func TestNewContainer_MissingFFmpeg(t *testing.T) {
	cfg := testConfig(t)
	cfg.Media.FFmpegPath = filepath.Join(t.TempDir(), "no-such-ffmpeg")

	c, err := NewContainer(context.Background(), cfg, WithLogger(zerolog.Nop()))
	if err == nil {
		_ = c.Close()
		t.Fatal("Expected error when ffmpeg cannot be found")
	}
	if c != nil {
		t.Error("Expected nil container on error")
	}
}

func TestNewContainer_WithBackend(t *testing.T) {
	backend, err := cacheinfra.NewMemoryBackend(cacheinfra.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("NewMemoryBackend() failed: %v", err)
	}
	container := newTestContainer(t, testConfig(t), WithBackend(backend))

	if container.Backend() != cache.Backend(backend) {
		t.Error("Expected the injected backend to be used")
	}

	ctx := context.Background()
	if err := container.Coordinator().Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	gens := cache.NewGenerations(backend)
	for _, scope := range cache.CollectionScopes() {
		if gen, _ := gens.Current(ctx, scope); gen != 1 {
			t.Errorf("Expected %s at generation 1 after Flush, got %d", scope, gen)
		}
	}
}

func TestNewContainerWithDefaults(t *testing.T) {

	container, err := NewContainerWithDefaults(context.Background(),
		WithLogger(zerolog.Nop()),
		WithMedia(&testsupport.FakeProber{Default: 1}, &testsupport.FakeTranscoder{}),
	)
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	defaults := config.Default()
	if got := container.Config(); got.Store.Driver != defaults.Store.Driver || got.Cache.Driver != defaults.Cache.Driver {
		t.Errorf("Expected default drivers, got store=%s cache=%s", got.Store.Driver, got.Cache.Driver)
	}
}
