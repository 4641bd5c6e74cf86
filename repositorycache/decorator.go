package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
	"github.com/goliatone/go-catalog-cache/invalidation"
	"github.com/goliatone/go-catalog-cache/querycache"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `json:"records" msgpack:"records"`
	Total   int `json:"total" msgpack:"total"`
}

// CachedRepository decorates a base repository: reads go through the query
// cache under the entity's list scope, writes go to the base and then to the
// invalidation listener as mutation events.
type CachedRepository[T any] struct {
	base          repository.Repository[T]
	adapter       *querycache.Adapter
	listener      catalog.MutationListener
	gens          *cache.Generations
	keySerializer cache.KeySerializer
	entity        catalog.EntityType
	scope         cache.Scope
	collections   []cache.Scope
	namespace     string
	refs          func(T) catalog.ParentRefs
	logger        zerolog.Logger
	now           func() time.Time
}

// Option configures a CachedRepository.
type Option[T any] func(*CachedRepository[T])

// WithRefs sets how parent references are read from a record. Without it
// records implementing Refs() catalog.ParentRefs are used, and anything
// else has no parents unless the context carries them.
func WithRefs[T any](fn func(T) catalog.ParentRefs) Option[T] {
	return func(c *CachedRepository[T]) { c.refs = fn }
}

// WithLogger sets the logger.
func WithLogger[T any](l zerolog.Logger) Option[T] {
	return func(c *CachedRepository[T]) { c.logger = l }
}

// WithKeySerializer replaces the serializer used for read signatures.
func WithKeySerializer[T any](s cache.KeySerializer) Option[T] {
	return func(c *CachedRepository[T]) { c.keySerializer = s }
}

// New wraps base. listener is usually the invalidation coordinator.
func New[T any](base repository.Repository[T], adapter *querycache.Adapter, listener catalog.MutationListener, entity catalog.EntityType, opts ...Option[T]) (*CachedRepository[T], error) {
	if base == nil || adapter == nil || listener == nil {
		return nil, errors.New("repositorycache: base, adapter and listener are required")
	}
	rule, ok := invalidation.DefaultGraph()[entity]
	if !ok || len(rule.Collections) == 0 {
		return nil, fmt.Errorf("repositorycache: unknown entity type %q", entity)
	}

	var zero T
	c := &CachedRepository[T]{
		base:          base,
		adapter:       adapter,
		listener:      listener,
		gens:          cache.NewGenerations(adapter.Backend()),
		keySerializer: cache.NewCanonicalKeySerializer(),
		entity:        entity,
		scope:         rule.Collections[0],
		collections:   rule.Collections,
		namespace:     "repo:" + toSnake(typeName(reflect.TypeOf(&zero).Elem())),
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Scope returns the generation scope the repository caches under.
func (c *CachedRepository[T]) Scope() cache.Scope {
	return c.scope
}

// signature names a read. Criteria are functions and cannot be compared,
// so reads with criteria are only cached when the context describes them
// with WithQueryFilters.
func (c *CachedRepository[T]) signature(ctx context.Context, method string, criteria int, args ...any) (string, bool) {
	filters, named := queryFiltersFromContext(ctx)
	if criteria > 0 && !named {
		return "", false
	}
	args = append(args, cache.FilterSignature(filters))
	return c.keySerializer.SerializeKey(c.namespace+"."+method, args...), true
}

func (c *CachedRepository[T]) ttl(tier cache.Tier) time.Duration {
	return c.adapter.TTL().For(tier)
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	sig, ok := c.signature(ctx, "Get", len(criteria))
	if !ok {
		return c.base.Get(ctx, criteria...)
	}
	return querycache.Read(ctx, c.adapter, c.scope, sig, 1, c.ttl(cache.TierDetail), func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	sig, ok := c.signature(ctx, "GetByID", len(criteria), id)
	if !ok {
		return c.base.GetByID(ctx, id, criteria...)
	}
	return querycache.Read(ctx, c.adapter, c.scope, sig, 1, c.ttl(cache.TierDetail), func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	sig, ok := c.signature(ctx, "List", len(criteria))
	if !ok {
		return c.base.List(ctx, criteria...)
	}
	res, err := querycache.Read(ctx, c.adapter, c.scope, sig, 1, c.ttl(cache.TierList), func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	sig, ok := c.signature(ctx, "Count", len(criteria))
	if !ok {
		return c.base.Count(ctx, criteria...)
	}
	return querycache.Read(ctx, c.adapter, c.scope, sig, 1, c.ttl(cache.TierAggregate), func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	sig, ok := c.signature(ctx, "GetByIdentifier", len(criteria), identifier)
	if !ok {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	return querycache.Read(ctx, c.adapter, c.scope, sig, 1, c.ttl(cache.TierDetail), func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
}

// Create creates a new record. Write operations pass through to base repository
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.emit(ctx, catalog.OpCreated, result)
	}
	return result, err
}

// CreateTx creates a new record within a transaction. Inside RunInTx the
// event waits for the commit; otherwise it is emitted immediately.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.emitTx(ctx, catalog.OpCreated, result)
	}
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.emitAll(ctx, catalog.OpCreated, result)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.emitAllTx(ctx, catalog.OpCreated, result)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.emit(ctx, catalog.OpCreated, result)
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.emitTx(ctx, catalog.OpCreated, result)
	}
	return result, err
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.emit(ctx, catalog.OpUpdated, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.emitTx(ctx, catalog.OpUpdated, result)
	}
	return result, err
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.emitAll(ctx, catalog.OpUpdated, result)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.emitAllTx(ctx, catalog.OpUpdated, result)
	}
	return result, err
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.emit(ctx, catalog.OpUpdated, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.emitTx(ctx, catalog.OpUpdated, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.emitAll(ctx, catalog.OpUpdated, result)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.emitAllTx(ctx, catalog.OpUpdated, result)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.emit(ctx, catalog.OpDeleted, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.emitTx(ctx, catalog.OpDeleted, record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.bumpCollections(ctx)
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		afterCommit(ctx, c.bumpCollections)
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.bumpCollections(ctx)
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		afterCommit(ctx, c.bumpCollections)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.emit(ctx, catalog.OpDeleted, record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.emitTx(ctx, catalog.OpDeleted, record)
	}
	return err
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// event builds the mutation event of record. It reports false when the
// record has no readable ID.
func (c *CachedRepository[T]) event(ctx context.Context, op catalog.Op, record T) (catalog.MutationEvent, bool) {
	id, err := extractID(record)
	if err != nil {
		c.logger.Warn().Err(err).Str("entity", string(c.entity)).Msg("cannot identify written record, bumping collections")
		return catalog.MutationEvent{}, false
	}

	ev := catalog.MutationEvent{
		Type:    c.entity,
		ID:      id,
		Op:      op,
		Parents: c.parentRefs(ctx, record),
	}
	if op == catalog.OpUpdated {
		ev.Previous = previousRefsFromContext(ctx)
	}
	return ev, true
}

// emit hands a committed write to the listener. Records without a readable
// ID fall back to retiring the entity's collections.
func (c *CachedRepository[T]) emit(ctx context.Context, op catalog.Op, record T) {
	ev, ok := c.event(ctx, op, record)
	c.deliver(ev, ok)(ctx)
}

func (c *CachedRepository[T]) emitAll(ctx context.Context, op catalog.Op, records []T) {
	for _, r := range records {
		c.emit(ctx, op, r)
	}
}

// emitTx is emit for a write on a caller's transaction. The event is built
// from ctx now and delivered after the commit.
func (c *CachedRepository[T]) emitTx(ctx context.Context, op catalog.Op, record T) {
	ev, ok := c.event(ctx, op, record)
	afterCommit(ctx, c.deliver(ev, ok))
}

func (c *CachedRepository[T]) emitAllTx(ctx context.Context, op catalog.Op, records []T) {
	for _, r := range records {
		c.emitTx(ctx, op, r)
	}
}

func (c *CachedRepository[T]) deliver(ev catalog.MutationEvent, ok bool) func(context.Context) {
	return func(ctx context.Context) {
		if !ok {
			c.bumpCollections(ctx)
			return
		}
		ev.At = c.now()
		c.listener.OnMutation(ctx, ev)
	}
}

// bumpCollections retires every list of the entity type. Used when the
// affected rows are unknown.
func (c *CachedRepository[T]) bumpCollections(ctx context.Context) {
	for _, scope := range c.collections {
		if _, err := c.gens.Bump(ctx, scope); err != nil {
			c.logger.Warn().Err(err).Str("scope", string(scope)).Msg("generation bump failed")
		}
	}
}

func (c *CachedRepository[T]) parentRefs(ctx context.Context, record T) catalog.ParentRefs {
	if refs, ok := parentRefsFromContext(ctx); ok {
		return refs
	}
	if c.refs != nil {
		return c.refs(record)
	}
	if r, ok := any(record).(interface{ Refs() catalog.ParentRefs }); ok && !isNilRecord(record) {
		return r.Refs()
	}
	return catalog.ParentRefs{}
}

// extractID attempts to extract an ID field from a record using reflection
func extractID[T any](record T) (string, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", errors.New("nil record")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("record of kind %s has no ID field", v.Kind())
	}

	for _, fieldName := range []string{"ID", "Id"} {
		field := v.FieldByName(fieldName)
		if !field.IsValid() || !field.CanInterface() {
			continue
		}
		id := fmt.Sprintf("%v", field.Interface())
		if id == "" {
			return "", errors.New("empty ID")
		}
		return id, nil
	}
	return "", fmt.Errorf("no ID field found in record")
}

func isNilRecord[T any](record T) bool {
	v := reflect.ValueOf(record)
	return !v.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil())
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
