package cacheinfra

import (
	"context"
	"time"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/internal/metrics"
)

// InstrumentedBackend records the outcome and latency of every call.
type InstrumentedBackend struct {
	next cache.Backend
}

var _ cache.Backend = (*InstrumentedBackend)(nil)

func NewInstrumentedBackend(next cache.Backend) *InstrumentedBackend {
	return &InstrumentedBackend{next: next}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (i *InstrumentedBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	v, ok, err := i.next.Get(ctx, key)
	res := result(err)
	if err == nil {
		res = "miss"
		if ok {
			res = "hit"
		}
	}
	metrics.RecordCacheOperation("get", res, time.Since(start))
	return v, ok, err
}

func (i *InstrumentedBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value, ttl)
	metrics.RecordCacheOperation("set", result(err), time.Since(start))
	return err
}

func (i *InstrumentedBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	start := time.Now()
	stored, err := i.next.SetNX(ctx, key, value, ttl)
	metrics.RecordCacheOperation("setnx", result(err), time.Since(start))
	return stored, err
}

func (i *InstrumentedBackend) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := i.next.Delete(ctx, keys...)
	metrics.RecordCacheOperation("delete", result(err), time.Since(start))
	return err
}

func (i *InstrumentedBackend) Incr(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := i.next.Incr(ctx, key)
	metrics.RecordCacheOperation("incr", result(err), time.Since(start))
	return n, err
}
