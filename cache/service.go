package cache

import (
	"context"
	"errors"
	"time"
)

// Backend is the shared key-value store behind every cache read. All
// processes writing the catalog must share the same Backend, or
// invalidations will not be seen by the other processes.
//
// Get reports a miss with ok == false and a nil error. Incr must be atomic
// across processes and treat a missing key as zero. Counters written with
// Incr are readable through Get as decimal text and never expire.
//
// SetNX stores value only when key is absent and reports whether it did.
// It must be atomic against concurrent SetNX calls on the same key.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// FetchFn loads a value from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// ErrorHandler observes backend failures that were swallowed by a fail-open
// read. op names the failed step ("get", "set", "encode", "decode").
type ErrorHandler func(op, key string, err error)

// GetOrFetch reads key from the backend and falls back to fetch on a miss,
// storing the fetched value for ttl. Backend and decode failures are handed
// to onErr and never returned: the caller always gets the fetched value.
// Only fetch errors are returned.
func GetOrFetch[T any](ctx context.Context, b Backend, codec Codec, key string, ttl time.Duration, fetch FetchFn[T], onErr ErrorHandler) (T, error) {
	if onErr == nil {
		onErr = func(string, string, error) {}
	}

	raw, ok, err := b.Get(ctx, key)
	switch {
	case err != nil:
		onErr("get", key, Unavailable("get", key, err))
		return fetch(ctx)
	case ok:
		var out T
		derr := codec.Decode(raw, &out)
		if derr == nil {
			return out, nil
		}
		onErr("decode", key, derr)
	}

	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	data, err := codec.Encode(value)
	if err != nil {
		onErr("encode", key, err)
		return value, nil
	}
	if err := b.Set(ctx, key, data, ttl); err != nil {
		onErr("set", key, Unavailable("set", key, err))
	}
	return value, nil
}

// ErrNoBackend is returned by constructors that require a backend.
var ErrNoBackend = errors.New("cache: backend is required")
