// Package cache defines the backend contract and key derivation used by the
// catalog query cache.
//
// # Keys
//
// Two kinds of keys live in a Backend:
//
//   - direct detail keys such as "music:detail:{id}", deleted by id when the
//     entity changes
//   - query keys "q:{scope}:g{generation}:{hash}", derived from a scope, the
//     scope's current generation, a canonical filter signature and a page
//
// A generation is a counter stored under "gen:{scope}". Bumping it with the
// backend's atomic Incr makes every query key of the old generation
// unreachable at once. Orphaned entries are left to expire through their TTL;
// nothing ever enumerates or pattern-deletes keys.
//
// # Signatures
//
// FilterSignature serializes a filter map with the canonical KeySerializer:
// keys are sorted, slice elements are sorted, and nil or empty values are
// dropped. Two requests with the same effective filters always share a key.
//
//	sig := cache.FilterSignature(map[string]any{"genre_id": "g1", "ordering": "-streams_count"})
//	key, err := gens.KeyFor(ctx, cache.ScopeMusicList, sig, page)
//
// # Failure handling
//
// Backend failures are reported as *CacheUnavailableError. GetOrFetch never
// returns them: a failed read falls through to the fetch function and a
// failed write is reported to the ErrorHandler and dropped.
//
// Backend implementations live in internal/cacheinfra; the read-through
// adapter built on top of this package is querycache.
package cache
