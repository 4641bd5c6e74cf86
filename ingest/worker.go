package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/goliatone/go-catalog-cache/internal/logging"
)

// Observer is told about every job a worker finished, successfully or not.
type Observer func(job Job, out Outcome, err error)

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithObserver registers fn for finished jobs.
func WithObserver(fn Observer) WorkerOption {
	return func(w *Worker) { w.observe = fn }
}

// Worker consumes ingestion jobs. Middleware, outermost first: poison
// queue, claim on the job's idempotency key, retry with exponential
// backoff, panic recovery.
type Worker struct {
	router   *message.Router
	pipeline *Pipeline
	claims   Claims
	logger   zerolog.Logger
	observe  Observer
}

// NewWorker builds the router. claims decides which deliveries are
// duplicates; sub and poison usually share one in-process pub/sub.
func NewWorker(
	pipeline *Pipeline,
	sub message.Subscriber,
	poison message.Publisher,
	claims Claims,
	cfg Config,
	logger zerolog.Logger,
	opts ...WorkerOption,
) (*Worker, error) {
	if pipeline == nil || sub == nil || poison == nil || claims == nil {
		return nil, errors.New("ingest: worker needs a pipeline, subscriber, poison publisher and claim repository")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	wmLogger := logging.Watermill(logger)
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	poisonQueue, err := middleware.PoisonQueue(poison, cfg.PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue middleware: %w", err)
	}
	retry := middleware.Retry{
		MaxRetries:      cfg.HandlerRetries,
		InitialInterval: cfg.InitialBackoff,
		MaxInterval:     cfg.MaxBackoff,
		Multiplier:      2,
		Logger:          wmLogger,
	}

	w := &Worker{
		router:   router,
		pipeline: pipeline,
		claims:   claims,
		logger:   logger,
	}
	router.AddMiddleware(poisonQueue, w.claim, retry.Middleware, middleware.Recoverer)
	for _, opt := range opts {
		opt(w)
	}

	for i := 0; i < cfg.Workers; i++ {
		router.AddConsumerHandler("ingest-"+strconv.Itoa(i), cfg.Topic, sub, w.handle)
	}
	return w, nil
}

// claim checksums the upload and runs h only if the job's idempotency key
// is free. A failed run releases the key, so a replay of the same job is
// processed again; a successful one marks it done.
func (w *Worker) claim(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		job, err := DecodeJob(msg.Payload)
		if err != nil {
			return h(msg)
		}
		if job.FileRef == "" {
			return h(msg)
		}
		sum, err := Checksum(job.FileRef)
		if err != nil {
			w.logger.Warn().Err(err).Str("music_id", job.MusicID).Msg("checksum unavailable, processing without claim")
			return h(msg)
		}

		key := job.KeyFor(sum)
		msg.Metadata.Set(MetadataChecksum, sum)
		msg.Metadata.Set(MetadataKey, key)

		ctx := msg.Context()
		if !w.claims.Claim(ctx, key) {
			w.logger.Debug().Str("music_id", job.MusicID).Str("key", key).Msg("duplicate delivery dropped")
			return nil, nil
		}

		produced, err := h(msg)
		if err != nil {
			w.claims.Release(ctx, key)
			return produced, err
		}
		w.claims.Complete(ctx, key)
		return produced, nil
	}
}

func (w *Worker) handle(msg *message.Message) error {
	job, err := DecodeJob(msg.Payload)
	if err != nil {
		return err
	}
	job.Checksum = msg.Metadata.Get(MetadataChecksum)
	job.Key = msg.Metadata.Get(MetadataKey)

	out, err := w.pipeline.Process(msg.Context(), job.MusicID)
	if w.observe != nil {
		w.observe(job, out, err)
	}
	if errors.Is(err, ErrAssetGone) {
		w.logger.Info().Str("music_id", job.MusicID).Str("key", job.Key).Msg("asset deleted, job dropped")
		return nil
	}
	return err
}

// Run starts the router and blocks until ctx is cancelled or Close is
// called. A worker runs at most once.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Serve implements suture.Service. A router cannot be restarted, so a
// worker that stops on its own takes the supervisor tree down with it.
func (w *Worker) Serve(ctx context.Context) error {
	err := w.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		w.logger.Error().Err(err).Msg("ingest router stopped")
		return suture.ErrTerminateSupervisorTree
	}
	return suture.ErrDoNotRestart
}

// Running is closed once every handler is subscribed.
func (w *Worker) Running() <-chan struct{} {
	return w.router.Running()
}

// Close stops the router, waiting for in-flight jobs up to the close
// timeout.
func (w *Worker) Close() error {
	return w.router.Close()
}

func (w *Worker) String() string { return "ingest-worker" }
