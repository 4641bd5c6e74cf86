// Package invalidation turns content store mutations into cache
// invalidations.
//
// A static Graph maps each entity type to the direct keys it deletes and
// the generation scopes it bumps, including the aggregates of its parents
// and, for music, every playlist that contains the track. Scopes are bumped
// with one atomic Incr each, so concurrent writers never lose a bump and
// previously derived query keys become unreachable without any prefix or
// wildcard deletion.
//
// Coordinator.OnMutation is fail-open: an unreachable backend is logged and
// counted but never reported to the writer. Stale entries then live at most
// one TTL.
package invalidation
