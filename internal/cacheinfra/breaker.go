package cacheinfra

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/internal/metrics"
)

// BreakerConfig configures the fail-fast wrapper around a remote backend.
type BreakerConfig struct {
	Name string `koanf:"name"`
	// OpTimeout bounds each backend call.
	OpTimeout time.Duration `koanf:"op_timeout"`
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32 `koanf:"consecutive_failures"`
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `koanf:"open_timeout"`
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32 `koanf:"half_open_requests"`
	// Interval clears the closed-state counts. Zero never clears them.
	Interval time.Duration `koanf:"interval"`
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "cache-backend",
		OpTimeout:           250 * time.Millisecond,
		ConsecutiveFailures: 5,
		OpenTimeout:         10 * time.Second,
		HalfOpenRequests:    1,
		Interval:            time.Minute,
	}
}

func (c BreakerConfig) Validate() error {
	return cache.AsConfigError(validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.OpTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ConsecutiveFailures, validation.Required),
		validation.Field(&c.OpenTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.HalfOpenRequests, validation.Required),
	))
}

// BreakerBackend stops calling an unreachable backend after repeated
// failures, so a cache outage costs a fast error instead of a timeout on
// every request. All errors it returns are *cache.CacheUnavailableError.
type BreakerBackend struct {
	next    cache.Backend
	cb      *gobreaker.CircuitBreaker[any]
	timeout time.Duration
}

var _ cache.Backend = (*BreakerBackend)(nil)

func NewBreakerBackend(next cache.Backend, cfg BreakerConfig, logger zerolog.Logger) (*BreakerBackend, error) {
	if next == nil {
		return nil, cache.ErrNoBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerState(name, float64(to))
			metrics.RecordBreakerTransition(name, from.String(), to.String())
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("cache circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	metrics.RecordBreakerState(cfg.Name, float64(gobreaker.StateClosed))

	return &BreakerBackend{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[any](settings),
		timeout: cfg.OpTimeout,
	}, nil
}

// State exposes the breaker state for health reporting.
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerBackend) run(ctx context.Context, op, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	res, err := b.cb.Execute(func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return fn(cctx)
	})
	if err != nil {
		return nil, cache.Unavailable(op, key, err)
	}
	return res, nil
}

type getResult struct {
	value []byte
	ok    bool
}

func (b *BreakerBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := b.run(ctx, "get", key, func(ctx context.Context) (any, error) {
		v, ok, err := b.next.Get(ctx, key)
		return getResult{value: v, ok: ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := res.(getResult)
	return r.value, r.ok, nil
}

func (b *BreakerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.run(ctx, "set", key, func(ctx context.Context) (any, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	return err
}

func (b *BreakerBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	res, err := b.run(ctx, "setnx", key, func(ctx context.Context) (any, error) {
		return b.next.SetNX(ctx, key, value, ttl)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *BreakerBackend) Delete(ctx context.Context, keys ...string) error {
	var first string
	if len(keys) > 0 {
		first = keys[0]
	}
	_, err := b.run(ctx, "delete", first, func(ctx context.Context) (any, error) {
		return nil, b.next.Delete(ctx, keys...)
	})
	return err
}

func (b *BreakerBackend) Incr(ctx context.Context, key string) (int64, error) {
	res, err := b.run(ctx, "incr", key, func(ctx context.Context) (any, error) {
		return b.next.Incr(ctx, key)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}
