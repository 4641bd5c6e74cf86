// Package repositorycache provides a cached decorator for go-repository-bun
// repositories of catalog entities.
//
// # Overview
//
// CachedRepository wraps a base repository. Reads go through the query
// cache under the entity's list scope, so every committed write to an
// entity of the same type retires them by bumping a generation. Writes go
// to the base repository first and, when they succeed, are reported to a
// catalog.MutationListener (normally the invalidation coordinator). The
// cache is never patched in place.
//
// # Basic Usage
//
//	coordinator, _ := invalidation.New(backend, store)
//	adapter, _ := querycache.New(backend, store, querycache.WithInvalidator(coordinator))
//
//	artists, _ := repositorycache.New[*Artist](base, adapter, coordinator, catalog.EntityArtist)
//
//	a, err := artists.GetByID(ctx, "artist-1")
//
// # Cached vs Pass-through Operations
//
// ## Cached Operations
//
//   - Get, GetByID, GetByIdentifier
//   - List, Count
//
// Criteria are functions and cannot be compared, so a read with criteria is
// only cached when the context describes it:
//
//	ctx = repositorycache.WithQueryFilters(ctx, map[string]any{"genre_id": id})
//	rows, total, err := artists.List(ctx, repository.SelectBy("genre_id", "=", id))
//
// Reads with criteria and no filters in the context go straight to the base.
//
// ## Pass-through Operations
//
//   - Transaction reads (GetTx, ListTx, ...)
//   - Raw and RawTx
//   - Handlers
//
// ## Invalidating Writes
//
// Create*, Update*, Upsert*, Delete* and ForceDelete* emit one
// MutationEvent per record. Parent references come from, in order:
// WithParentRefs on the context, the WithRefs option, or a Refs() method on
// the record. Updates that move a record to another parent should pass the
// old references with WithPreviousRefs.
//
// DeleteMany and DeleteWhere do not know which rows they removed; they bump
// every collection scope of the entity type instead.
//
// ## Transactions
//
// A write on a caller's transaction must not invalidate before the commit,
// or a concurrent read can cache the old rows again. Run the transaction
// through RunInTx and pass its context to the *Tx methods:
//
//	err := repositorycache.RunInTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
//		_, err := artists.CreateTx(ctx, tx, a)
//		return err
//	})
//
// Events are built during the transaction and delivered once it commits; a
// rollback discards them. *Tx writes made outside RunInTx emit immediately.
//
// # Failure Behavior
//
// Cache failures never fail a read: the base repository is queried
// directly. Errors from the base repository are returned unchanged and are
// never cached.
package repositorycache
