package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
	"github.com/goliatone/go-catalog-cache/ingest"
	"github.com/goliatone/go-catalog-cache/internal/cacheinfra"
	"github.com/goliatone/go-catalog-cache/internal/logging"
	"github.com/goliatone/go-catalog-cache/internal/mediainfra"
	"github.com/goliatone/go-catalog-cache/internal/store"
	"github.com/goliatone/go-catalog-cache/invalidation"
	"github.com/goliatone/go-catalog-cache/pkg/config"
	"github.com/goliatone/go-catalog-cache/querycache"
	"github.com/goliatone/go-catalog-cache/repositorycache"
)

// queueBuffer is the per subscriber buffer of the in-process queue.
const queueBuffer = 256

// Container wires the catalog subsystem from configuration: content store,
// cache backend, invalidation coordinator, query cache and the ingestion
// queue with its worker.
type Container struct {
	config      config.Config
	logger      zerolog.Logger
	store       *store.Store
	backend     cache.Backend
	coordinator *invalidation.Coordinator
	adapter     *querycache.Adapter
	queue       *gochannel.GoChannel
	dispatcher  *ingest.Dispatcher
	worker      *ingest.Worker
	closers     []func() error
}

// Option overrides a dependency the container would otherwise build.
type Option func(*options)

type options struct {
	logger        *zerolog.Logger
	backend       cache.Backend
	prober        ingest.Prober
	transcoder    ingest.Transcoder
	workerOptions []ingest.WorkerOption
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithBackend replaces the configured cache backend.
func WithBackend(b cache.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithMedia replaces the taglib prober and ffmpeg transcoder.
func WithMedia(p ingest.Prober, t ingest.Transcoder) Option {
	return func(o *options) { o.prober, o.transcoder = p, t }
}

func WithWorkerOptions(opts ...ingest.WorkerOption) Option {
	return func(o *options) { o.workerOptions = append(o.workerOptions, opts...) }
}

// NewContainer builds every component. The store schema is migrated. The
// worker is built but not started; writes made before it runs are not
// queued for ingestion.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (c *Container, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c = &Container{config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if o.logger != nil {
		c.logger = *o.logger
	} else {
		c.logger = logging.New(cfg.Logging)
	}

	db, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	c.store = store.New(db, store.WithLogger(logging.Component(c.logger, "store")))
	c.closers = append(c.closers, c.store.Close)
	if err = c.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	if o.backend != nil {
		c.backend = o.backend
	} else {
		var closeBackend func() error
		c.backend, closeBackend, err = cacheinfra.Open(cfg.Cache, logging.Component(c.logger, "cache"))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, closeBackend)
	}

	c.coordinator, err = invalidation.New(c.backend, c.store,
		invalidation.WithLogger(logging.Component(c.logger, "invalidation")))
	if err != nil {
		return nil, err
	}
	c.adapter, err = querycache.New(c.backend, c.store,
		querycache.WithTTL(cfg.TTL),
		querycache.WithInvalidator(c.coordinator),
		querycache.WithLogger(logging.Component(c.logger, "querycache")))
	if err != nil {
		return nil, err
	}
	c.store.Subscribe(c.coordinator)

	if err = c.buildIngest(o); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) buildIngest(o *options) error {
	log := logging.Component(c.logger, "ingest")

	prober, transcoder := o.prober, o.transcoder
	if prober == nil {
		prober = mediainfra.NewTaglibProber()
	}
	if transcoder == nil {
		t, err := mediainfra.NewFFmpegTranscoder(c.config.Media, log)
		if err != nil {
			return err
		}
		transcoder = t
	}

	pipeline, err := ingest.NewPipeline(c.store, prober, transcoder, c.config.Ingest, ingest.WithLogger(log))
	if err != nil {
		return err
	}

	c.queue = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: queueBuffer}, logging.Watermill(log))
	c.closers = append(c.closers, c.queue.Close)

	claims, err := ingest.NewClaimRepository(c.backend, c.config.Ingest, log)
	if err != nil {
		return err
	}
	c.worker, err = ingest.NewWorker(pipeline, c.queue, c.queue, claims, c.config.Ingest, log, o.workerOptions...)
	if err != nil {
		return err
	}

	c.dispatcher, err = ingest.NewDispatcher(c.store, c.queue, c.config.Ingest.Topic, log)
	if err != nil {
		return err
	}
	c.store.Subscribe(c.dispatcher)
	return nil
}

// NewContainerWithDefaults builds a container from config.Default().
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, config.Default(), opts...)
}

func (c *Container) Config() config.Config {
	return c.config
}

func (c *Container) Logger() zerolog.Logger {
	return c.logger
}

// Store returns the content store. Writes go through it so that every
// commit reaches the coordinator and the dispatcher.
func (c *Container) Store() catalog.Store {
	return c.store
}

func (c *Container) Backend() cache.Backend {
	return c.backend
}

func (c *Container) Coordinator() *invalidation.Coordinator {
	return c.coordinator
}

func (c *Container) QueryCache() *querycache.Adapter {
	return c.adapter
}

func (c *Container) Dispatcher() *ingest.Dispatcher {
	return c.dispatcher
}

func (c *Container) Worker() *ingest.Worker {
	return c.worker
}

// Close releases resources in reverse order of creation.
func (c *Container) Close() error {
	var errs []error
	if c.worker != nil {
		errs = append(errs, c.worker.Close())
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// NewCachedRepository wraps a go-repository-bun repository of entity so its
// reads go through the query cache and its writes reach the coordinator.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[*catalog.Artist](container, artists, catalog.EntityArtist)
func NewCachedRepository[T any](c *Container, base repository.Repository[T], entity catalog.EntityType, opts ...repositorycache.Option[T]) (*repositorycache.CachedRepository[T], error) {
	opts = append([]repositorycache.Option[T]{
		repositorycache.WithLogger[T](logging.Component(c.logger, "repository")),
	}, opts...)
	return repositorycache.New(base, c.adapter, c.coordinator, entity, opts...)
}
