package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/catalog"
)

// Dispatcher turns uploads into ingestion jobs on the queue.
type Dispatcher struct {
	store     MediaStore
	publisher message.Publisher
	topic     string
	logger    zerolog.Logger
	now       func() time.Time
}

var _ catalog.MutationListener = (*Dispatcher)(nil)

func NewDispatcher(store MediaStore, publisher message.Publisher, topic string, logger zerolog.Logger) (*Dispatcher, error) {
	if store == nil || publisher == nil {
		return nil, errors.New("ingest: dispatcher needs a store and a publisher")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// OnMutation enqueues newly created tracks that carry a file and no
// duration. Every other event is ignored, including the media writes made
// by the pipeline itself.
func (d *Dispatcher) OnMutation(ctx context.Context, ev catalog.MutationEvent) {
	if ev.Type != catalog.EntityMusic || ev.Op != catalog.OpCreated {
		return
	}
	if err := d.OnMusicUploaded(ctx, ev.ID); err != nil {
		d.logger.Error().Err(err).Str("music_id", ev.ID).Msg("failed to enqueue ingestion")
	}
}

// OnMusicUploaded enqueues musicID if it still needs ingestion.
func (d *Dispatcher) OnMusicUploaded(ctx context.Context, musicID string) error {
	m, err := d.store.Music(ctx, musicID)
	if err != nil {
		return fmt.Errorf("load music %s: %w", musicID, err)
	}
	if !m.NeedsIngestion() {
		return nil
	}
	return d.enqueue(m, false)
}

// Reprocess clears the duration of musicID, resets it to pending and
// enqueues it under a fresh idempotency key. The transcode state is kept,
// so an asset is never compressed twice.
func (d *Dispatcher) Reprocess(ctx context.Context, musicID string) error {
	pending := catalog.StatusPending
	err := d.store.UpdateMusicMedia(ctx, musicID, catalog.MediaPatch{ClearDuration: true, Status: &pending})
	if err != nil {
		return fmt.Errorf("reset music %s: %w", musicID, err)
	}
	m, err := d.store.Music(ctx, musicID)
	if err != nil {
		return fmt.Errorf("load music %s: %w", musicID, err)
	}
	if m.FileRef == "" {
		return nil
	}
	return d.enqueue(m, true)
}

// enqueue publishes the job without touching the file; the checksum is
// computed by the worker.
func (d *Dispatcher) enqueue(m *catalog.Music, reprocess bool) error {
	job := Job{
		MusicID:    m.ID,
		FileRef:    m.FileRef,
		Reprocess:  reprocess,
		EnqueuedAt: d.now().UTC(),
	}
	if reprocess {
		job.Nonce = uuid.NewString()
	}

	payload, err := job.Encode()
	if err != nil {
		return err
	}
	msg := message.NewMessage(uuid.NewString(), payload)

	if err := d.publisher.Publish(d.topic, msg); err != nil {
		return fmt.Errorf("publish job for music %s: %w", m.ID, err)
	}
	d.logger.Debug().Str("music_id", m.ID).Bool("reprocess", reprocess).Msg("ingestion enqueued")
	return nil
}
