package repositorycache

import (
	"context"

	"github.com/goliatone/go-catalog-cache/catalog"
)

type queryFiltersContextKey struct{}

type parentRefsContextKey struct{}

type previousRefsContextKey struct{}

// WithQueryFilters describes the criteria of the next read, making it
// cacheable. Two reads with equal filters share a cache entry, so the
// filters must capture everything the criteria select on.
func WithQueryFilters(ctx context.Context, filters map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	copied := make(map[string]any, len(filters))
	for k, v := range filters {
		copied[k] = v
	}
	return context.WithValue(ctx, queryFiltersContextKey{}, copied)
}

func queryFiltersFromContext(ctx context.Context) (map[string]any, bool) {
	if ctx == nil {
		return nil, false
	}
	filters, ok := ctx.Value(queryFiltersContextKey{}).(map[string]any)
	return filters, ok
}

// WithParentRefs sets the parent references reported for the next write,
// overriding whatever the record carries.
func WithParentRefs(ctx context.Context, refs catalog.ParentRefs) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, parentRefsContextKey{}, refs)
}

func parentRefsFromContext(ctx context.Context) (catalog.ParentRefs, bool) {
	if ctx == nil {
		return catalog.ParentRefs{}, false
	}
	refs, ok := ctx.Value(parentRefsContextKey{}).(catalog.ParentRefs)
	return refs, ok
}

// WithPreviousRefs records the references an updated record had before the
// write, so aggregates of the old parents are retired too.
func WithPreviousRefs(ctx context.Context, refs catalog.ParentRefs) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, previousRefsContextKey{}, refs)
}

func previousRefsFromContext(ctx context.Context) catalog.ParentRefs {
	if ctx == nil {
		return catalog.ParentRefs{}
	}
	refs, _ := ctx.Value(previousRefsContextKey{}).(catalog.ParentRefs)
	return refs
}
