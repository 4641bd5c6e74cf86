// Package cacheinfra provides the cache.Backend implementations.
//
// MemoryBackend keeps values in a sturdyc client and generation counters in
// an xsync map of atomic integers. It is only correct when a single process
// writes the catalog. RedisBackend is the shared production backend; its
// counters use INCR, so concurrent bumps from any number of writers never
// lose an update.
//
// BreakerBackend and InstrumentedBackend wrap either one. Open assembles the
// stack from Config:
//
//	redis:  Instrumented -> Breaker -> Redis
//	memory: Instrumented -> Memory
package cacheinfra
