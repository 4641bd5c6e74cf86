package cacheinfra

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-catalog-cache/cache"
)

// MemoryConfig holds the configuration of the in-process backend.
type MemoryConfig struct {
	// Capacity defines the maximum number of entries that the cache can store.
	Capacity int `koanf:"capacity"`

	// NumShards determines the number of cache shards for concurrent access.
	// Default: 256
	NumShards int `koanf:"num_shards"`

	// MaxTTL is the hard expiry applied by sturdyc. Per-key TTLs passed to
	// Set are honoured as long as they are shorter.
	MaxTTL time.Duration `koanf:"max_ttl"`

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int `koanf:"eviction_percentage"`

	// EvictionInterval sets how often expired entries are swept.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration `koanf:"eviction_interval"`
}

// DefaultMemoryConfig returns a MemoryConfig sized for a single process.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          256,
		MaxTTL:             time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
func (c MemoryConfig) Validate() error {
	return cache.AsConfigError(validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	))
}

func (c MemoryConfig) sturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is a cache.Backend for a single process: tests, local
// development and single-instance deployments. Multi-instance deployments
// must use the Redis backend so invalidations are shared.
type MemoryBackend struct {
	client *sturdyc.Client[memoryEntry]
	// counters hold generations only; the set of scopes is fixed.
	counters *xsync.MapOf[string, *atomic.Int64]
	nx       sync.Mutex
	maxTTL   time.Duration
	now      func() time.Time
}

var _ cache.Backend = (*MemoryBackend)(nil)

// NewMemoryBackend validates cfg and creates the sturdyc client.
func NewMemoryBackend(cfg MemoryConfig) (*MemoryBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[memoryEntry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		cfg.sturdycOptions()...,
	)

	return &MemoryBackend{
		client:   client,
		counters: xsync.NewMapOf[string, *atomic.Int64](),
		maxTTL:   cfg.MaxTTL,
		now:      time.Now,
	}, nil
}

// Get returns counters as decimal text and values until their TTL passes.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if c, ok := m.counters.Load(key); ok {
		return []byte(strconv.FormatInt(c.Load(), 10)), true, nil
	}

	entry, ok := m.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.client.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.client.Set(key, m.entry(value, ttl))
	return nil
}

// SetNX is serialized with other SetNX calls. A plain Set racing it on the
// same key may still win.
func (m *MemoryBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.nx.Lock()
	defer m.nx.Unlock()
	if _, ok, _ := m.Get(ctx, key); ok {
		return false, nil
	}
	m.client.Set(key, m.entry(value, ttl))
	return true, nil
}

func (m *MemoryBackend) entry(value []byte, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 && ttl < m.maxTTL {
		entry.expiresAt = m.now().Add(ttl)
	}
	return entry
}

func (m *MemoryBackend) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.client.Delete(key)
		m.counters.Delete(key)
	}
	return nil
}

// Incr is atomic: concurrent increments of one key never lose an update.
func (m *MemoryBackend) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c, _ := m.counters.LoadOrCompute(key, func() *atomic.Int64 {
		return new(atomic.Int64)
	})
	return c.Add(1), nil
}

// Len reports the number of stored values, counters excluded.
func (m *MemoryBackend) Len() int {
	return len(m.client.ScanKeys())
}
