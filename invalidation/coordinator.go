package invalidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
	"github.com/goliatone/go-catalog-cache/internal/metrics"
)

// Relations answers the relationship and reference lookups the coordinator
// needs. catalog.Store satisfies it.
type Relations interface {
	PlaylistsContaining(ctx context.Context, musicID string) ([]string, error)
	Music(ctx context.Context, id string) (*catalog.Music, error)
	Album(ctx context.Context, id string) (*catalog.Album, error)
	Artist(ctx context.Context, id string) (*catalog.Artist, error)
	Genre(ctx context.Context, id string) (*catalog.Genre, error)
}

// Plan is the closed, duplicate free set of work for one mutation.
type Plan struct {
	Delete []string
	Bump   []cache.Scope
}

type planBuilder struct {
	seen map[string]struct{}
	plan Plan
}

func (b *planBuilder) del(keys ...string) {
	for _, k := range keys {
		if _, ok := b.seen["k:"+k]; ok {
			continue
		}
		b.seen["k:"+k] = struct{}{}
		b.plan.Delete = append(b.plan.Delete, k)
	}
}

func (b *planBuilder) bump(scopes ...cache.Scope) {
	for _, s := range scopes {
		if _, ok := b.seen["s:"+string(s)]; ok {
			continue
		}
		b.seen["s:"+string(s)] = struct{}{}
		b.plan.Bump = append(b.plan.Bump, s)
	}
}

// Coordinator turns mutation events into cache invalidations.
type Coordinator struct {
	graph     Graph
	gens      *cache.Generations
	backend   cache.Backend
	relations Relations
	logger    zerolog.Logger
	now       func() time.Time
}

var _ catalog.MutationListener = (*Coordinator)(nil)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGraph replaces the default fan-out graph.
func WithGraph(g Graph) Option {
	return func(c *Coordinator) { c.graph = g }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a coordinator. relations may be nil, in which case playlist
// fan-out relies on the event's Related ids and Invalidate cannot resolve
// parents.
func New(backend cache.Backend, relations Relations, opts ...Option) (*Coordinator, error) {
	if backend == nil {
		return nil, cache.ErrNoBackend
	}
	c := &Coordinator{
		graph:     DefaultGraph(),
		gens:      cache.NewGenerations(backend),
		backend:   backend,
		relations: relations,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Plan computes the keys and scopes touched by ev. An error means the plan
// is partial (a relationship lookup failed); the returned plan is still
// usable.
func (c *Coordinator) Plan(ctx context.Context, ev catalog.MutationEvent) (Plan, error) {
	rule, ok := c.graph[ev.Type]
	if !ok {
		return Plan{}, fmt.Errorf("invalidation: no rule for entity type %q", ev.Type)
	}

	b := &planBuilder{seen: map[string]struct{}{}}
	if rule.DetailKeys != nil {
		b.del(rule.DetailKeys(ev)...)
	}
	b.bump(rule.Collections...)
	for _, fn := range rule.Scopes {
		b.bump(fn(ev)...)
	}

	if !rule.ContainingPlaylists || ev.Op == catalog.OpCreated {
		return b.plan, nil
	}

	// Deletes carry the playlist ids captured before the rows were removed.
	playlists := ev.Related
	var err error
	if ev.Op != catalog.OpDeleted && c.relations != nil {
		playlists, err = c.relations.PlaylistsContaining(ctx, ev.ID)
		if err != nil {
			err = fmt.Errorf("invalidation: playlists containing %s: %w", ev.ID, err)
		}
	}
	for _, id := range playlists {
		b.bump(cache.PlaylistDetailScope(id))
	}
	return b.plan, err
}

// OnMutation executes the plan of ev. It never fails the writer: backend
// errors are logged, counted and skipped, and each remaining step still
// runs. Every scope is bumped with exactly one atomic increment.
func (c *Coordinator) OnMutation(ctx context.Context, ev catalog.MutationEvent) {
	plan, err := c.Plan(ctx, ev)
	log := c.logger.With().
		Str("entity", string(ev.Type)).
		Str("id", ev.ID).
		Str("op", string(ev.Op)).
		Logger()

	if err != nil {
		metrics.RecordInvalidationFailure("plan")
		log.Warn().Err(err).Msg("invalidation plan incomplete")
	}

	c.execute(ctx, plan, log)
}

// Execute runs a precomputed plan and returns the steps that failed.
func (c *Coordinator) Execute(ctx context.Context, plan Plan) error {
	return c.execute(ctx, plan, c.logger)
}

func (c *Coordinator) execute(ctx context.Context, plan Plan, log zerolog.Logger) error {
	var errs []error

	if len(plan.Delete) > 0 {
		if err := c.backend.Delete(ctx, plan.Delete...); err != nil {
			metrics.RecordInvalidationFailure("delete")
			log.Error().Err(err).Strs("keys", plan.Delete).Msg("detail key delete failed; entries expire by ttl")
			errs = append(errs, err)
		} else {
			metrics.RecordDetailDeletes(len(plan.Delete))
		}
	}

	for _, scope := range plan.Bump {
		gen, err := c.gens.Bump(ctx, scope)
		if err != nil {
			metrics.RecordInvalidationFailure("bump")
			log.Error().Err(err).Str("scope", string(scope)).Msg("generation bump failed")
			errs = append(errs, err)
			continue
		}
		metrics.RecordGenerationBump(string(scope))
		log.Debug().Str("scope", string(scope)).Int64("generation", gen).Msg("generation bumped")
	}

	return errors.Join(errs...)
}

// Invalidate is the entry point for callers that only know the type and id
// of the changed entity. Parent references are resolved from the store on
// a best-effort basis; a missing row is treated as a delete.
func (c *Coordinator) Invalidate(ctx context.Context, entity catalog.EntityType, id string) {
	ev := catalog.MutationEvent{Type: entity, ID: id, Op: catalog.OpUpdated, At: c.now()}

	if c.relations != nil {
		refs, err := c.resolve(ctx, entity, id)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			ev.Op = catalog.OpDeleted
		case err != nil:
			c.logger.Warn().Err(err).Str("entity", string(entity)).Str("id", id).Msg("parent refs unresolved")
		default:
			ev.Parents = refs
		}
	}

	c.OnMutation(ctx, ev)
}

func (c *Coordinator) resolve(ctx context.Context, entity catalog.EntityType, id string) (catalog.ParentRefs, error) {
	switch entity {
	case catalog.EntityMusic:
		m, err := c.relations.Music(ctx, id)
		if err != nil {
			return catalog.ParentRefs{}, err
		}
		return m.Refs(), nil
	case catalog.EntityAlbum:
		a, err := c.relations.Album(ctx, id)
		if err != nil {
			return catalog.ParentRefs{}, err
		}
		return a.Refs(), nil
	case catalog.EntityArtist:
		a, err := c.relations.Artist(ctx, id)
		if err != nil {
			return catalog.ParentRefs{}, err
		}
		return a.Refs(), nil
	case catalog.EntityGenre:
		g, err := c.relations.Genre(ctx, id)
		if err != nil {
			return catalog.ParentRefs{}, err
		}
		return g.Refs(), nil
	}
	return catalog.ParentRefs{}, nil
}

// Flush retires every cached list by bumping all collection scopes. Direct
// detail keys and per-entity aggregates are left to their TTL.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.logger.Info().Msg("flushing collection scopes")
	return c.execute(ctx, Plan{Bump: cache.CollectionScopes()}, c.logger)
}
