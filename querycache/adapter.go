package querycache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
	"github.com/goliatone/go-catalog-cache/internal/metrics"
)

// Invalidator receives write notifications for entities that changed
// outside the content store's event stream.
type Invalidator interface {
	Invalidate(ctx context.Context, entity catalog.EntityType, id string)
}

// Adapter caches catalog reads under generation tagged keys.
type Adapter struct {
	backend     cache.Backend
	gens        *cache.Generations
	codec       cache.Codec
	ttl         cache.TTLConfig
	store       catalog.Reader
	invalidator Invalidator
	logger      zerolog.Logger
	now         func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

func WithCodec(c cache.Codec) Option {
	return func(a *Adapter) {
		if c != nil {
			a.codec = c
		}
	}
}

func WithTTL(cfg cache.TTLConfig) Option {
	return func(a *Adapter) { a.ttl = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithInvalidator sets the target of InvalidateWrite, normally the
// invalidation coordinator.
func WithInvalidator(inv Invalidator) Option {
	return func(a *Adapter) { a.invalidator = inv }
}

// WithClock overrides time.Now for the trending window.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New creates an adapter reading misses from store.
func New(backend cache.Backend, store catalog.Reader, opts ...Option) (*Adapter, error) {
	if backend == nil {
		return nil, cache.ErrNoBackend
	}
	if store == nil {
		return nil, fmt.Errorf("querycache: store is required")
	}

	a := &Adapter{
		backend: backend,
		gens:    cache.NewGenerations(backend),
		codec:   cache.DefaultCodec,
		ttl:     cache.DefaultTTLConfig(),
		store:   store,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.ttl.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Backend returns the backend the adapter reads from.
func (a *Adapter) Backend() cache.Backend {
	return a.backend
}

// TTL returns the configured expiry tiers.
func (a *Adapter) TTL() cache.TTLConfig {
	return a.ttl
}

// Read is the typed read-through: it derives the key of (scope, signature,
// page) from the scope's current generation, returns the cached value on a
// hit and loads, stores and returns fetch's result on a miss. Any backend
// failure turns into a direct fetch; only fetch errors are returned.
func Read[T any](ctx context.Context, a *Adapter, scope cache.Scope, signature string, page int, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	key, err := a.gens.KeyFor(ctx, scope, signature, page)
	if err != nil {
		a.swallow("generation", cache.GenerationKey(scope), err)
		metrics.RecordQueryRead(string(scope), "bypass")
		return fetch(ctx)
	}
	return readKey(ctx, a, string(scope), key, ttl, fetch)
}

// ReadDetail reads a direct detail key. Detail keys are deleted by id on
// mutation, so they carry no generation.
func ReadDetail[T any](ctx context.Context, a *Adapter, entity catalog.EntityType, id string, fetch func(context.Context) (T, error)) (T, error) {
	key := cache.DetailKey(string(entity), id)
	return readKey(ctx, a, string(entity)+":detail", key, a.ttl.Detail, fetch)
}

func readKey[T any](ctx context.Context, a *Adapter, label, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	outcome := "hit"
	wrapped := func(ctx context.Context) (T, error) {
		if outcome == "hit" {
			outcome = "miss"
		}
		return fetch(ctx)
	}
	onErr := func(op, k string, err error) {
		if op == "get" {
			outcome = "bypass"
		}
		a.swallow(op, k, err)
	}

	value, err := cache.GetOrFetch[T](ctx, a.backend, a.codec, key, ttl, wrapped, onErr)
	if err != nil {
		return value, err
	}
	metrics.RecordQueryRead(label, outcome)
	return value, nil
}

// ReadThrough is the untyped form of Read. dest must be a non-nil pointer
// whose element type matches the value returned by fetch.
func (a *Adapter) ReadThrough(ctx context.Context, scope cache.Scope, signature string, page int, ttl time.Duration, dest any, fetch func(ctx context.Context) (any, error)) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("querycache: dest must be a non-nil pointer, got %T", dest)
	}
	elem := rv.Elem()

	key, err := a.gens.KeyFor(ctx, scope, signature, page)
	if err != nil {
		a.swallow("generation", cache.GenerationKey(scope), err)
		metrics.RecordQueryRead(string(scope), "bypass")
		return assignFetched(ctx, elem, fetch)
	}

	raw, ok, err := a.backend.Get(ctx, key)
	switch {
	case err != nil:
		a.swallow("get", key, cache.Unavailable("get", key, err))
		metrics.RecordQueryRead(string(scope), "bypass")
		return assignFetched(ctx, elem, fetch)
	case ok:
		derr := a.codec.Decode(raw, dest)
		if derr == nil {
			metrics.RecordQueryRead(string(scope), "hit")
			return nil
		}
		a.swallow("decode", key, derr)
	}

	if err := assignFetched(ctx, elem, fetch); err != nil {
		return err
	}
	metrics.RecordQueryRead(string(scope), "miss")

	data, err := a.codec.Encode(elem.Interface())
	if err != nil {
		a.swallow("encode", key, err)
		return nil
	}
	if err := a.backend.Set(ctx, key, data, ttl); err != nil {
		a.swallow("set", key, cache.Unavailable("set", key, err))
	}
	return nil
}

func assignFetched(ctx context.Context, elem reflect.Value, fetch func(ctx context.Context) (any, error)) error {
	v, err := fetch(ctx)
	if err != nil {
		return err
	}
	if v == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	fv := reflect.ValueOf(v)
	if !fv.Type().AssignableTo(elem.Type()) {
		return fmt.Errorf("querycache: fetched %s is not assignable to %s", fv.Type(), elem.Type())
	}
	elem.Set(fv)
	return nil
}

// InvalidateWrite reports a write that bypassed the store's event stream.
// Cached values are never patched in place.
func (a *Adapter) InvalidateWrite(ctx context.Context, entity catalog.EntityType, id string) {
	if a.invalidator == nil {
		a.logger.Warn().Str("entity", string(entity)).Str("id", id).Msg("no invalidator configured, write ignored")
		return
	}
	a.invalidator.Invalidate(ctx, entity, id)
}

func (a *Adapter) swallow(op, key string, err error) {
	a.logger.Warn().Err(err).Str("op", op).Str("key", key).Msg("cache degraded, reading from store")
}
