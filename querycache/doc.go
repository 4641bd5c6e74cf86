// Package querycache wraps catalog reads with a read-through cache.
//
// List and aggregate results are stored under
//
//	q:{scope}:g{generation}:{hash(signature, page)}
//
// where the generation is read from the backend at read time. Writes never
// touch cached values: they bump the scope's generation through the
// invalidation coordinator and the next read repopulates. Single rows of
// music, artists, genres and playlists use direct detail keys instead,
// which the coordinator deletes by id.
//
// Every read is fail-open. A backend that times out or is unreachable
// degrades to a direct store read and the error is only logged.
package querycache
