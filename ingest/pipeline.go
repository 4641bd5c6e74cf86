package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/catalog"
	"github.com/goliatone/go-catalog-cache/internal/metrics"
)

// Prober reads the duration of an audio file in whole seconds.
type Prober interface {
	Probe(ctx context.Context, path string) (int, error)
}

// Transcoder re-encodes path at bitrate and returns the path of the new
// file. The input is left in place.
type Transcoder interface {
	Transcode(ctx context.Context, path string, bitrate catalog.Bitrate) (string, error)
}

// MediaStore is the part of the content store the pipeline touches.
type MediaStore interface {
	Music(ctx context.Context, id string) (*catalog.Music, error)
	UpdateMusicMedia(ctx context.Context, id string, patch catalog.MediaPatch) error
}

// State is a step of the pipeline a job went through.
type State string

const (
	StateUploaded             State = "uploaded"
	StateDurationProbed       State = "duration_probed"
	StateCompressionSkipped   State = "compression_skipped"
	StateCompressionSucceeded State = "compression_succeeded"
	StateCompressionFailed    State = "compression_failed"
	StateFinalized            State = "finalized"
)

// Outcome describes one Process call.
type Outcome struct {
	MusicID string
	States  []State
	// Compression is one of the three compression states, empty when the
	// pipeline did not get that far.
	Compression State
	// Replaced reports that the transcoded file took the original's place.
	Replaced bool
	Duration *int
	Status   catalog.ProcessingStatus
	// Noop is set when the row needed no work.
	Noop bool

	ProbeErr     error
	TranscodeErr error
}

func (o *Outcome) advance(s State) {
	o.States = append(o.States, s)
	switch s {
	case StateCompressionSkipped, StateCompressionSucceeded, StateCompressionFailed:
		o.Compression = s
	}
}

// Pipeline probes, optionally compresses and finalizes uploaded tracks.
type Pipeline struct {
	store      MediaStore
	prober     Prober
	transcoder Transcoder
	cfg        Config
	bitrate    catalog.Bitrate
	logger     zerolog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline validates cfg and builds a pipeline.
func NewPipeline(store MediaStore, prober Prober, transcoder Transcoder, cfg Config, opts ...PipelineOption) (*Pipeline, error) {
	if store == nil || prober == nil || transcoder == nil {
		return nil, errors.New("ingest: store, prober and transcoder are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		store:      store,
		prober:     prober,
		transcoder: transcoder,
		cfg:        cfg,
		bitrate:    cfg.Bitrate(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs the pipeline for musicID. Rows that already reached a
// terminal status are left alone, so redelivered jobs are harmless.
func (p *Pipeline) Process(ctx context.Context, musicID string) (Outcome, error) {
	out, err := p.process(ctx, musicID)
	switch {
	case errors.Is(err, ErrAssetGone):
		metrics.RecordIngestJob("gone")
	case err != nil:
		metrics.RecordIngestJob("error")
	case out.Noop:
		metrics.RecordIngestJob("noop")
	default:
		metrics.RecordIngestJob(string(out.Status))
	}
	return out, err
}

func (p *Pipeline) process(ctx context.Context, musicID string) (Outcome, error) {
	out := Outcome{MusicID: musicID}
	log := p.logger.With().Str("music_id", musicID).Logger()

	m, err := p.store.Music(ctx, musicID)
	if errors.Is(err, catalog.ErrNotFound) {
		return out, ErrAssetGone
	}
	if err != nil {
		return out, fmt.Errorf("load music %s: %w", musicID, err)
	}
	out.Duration = m.Duration
	out.Status = m.Status
	if m.FileRef == "" || m.Status.Terminal() {
		out.Noop = true
		return out, nil
	}
	out.advance(StateUploaded)

	if m.Duration == nil {
		if err := p.write(ctx, musicID, catalog.MediaPatch{Status: statusPtr(catalog.StatusProbing)}); err != nil {
			return out, err
		}
		d, err := p.probe(ctx, m, log)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.ProbeErr = err
			log.Warn().Err(err).Msg("duration unknown after probing")
		} else {
			if err := p.write(ctx, musicID, catalog.MediaPatch{Duration: &d}); err != nil {
				return out, err
			}
			m.Duration = &d
			out.Duration = &d
			out.advance(StateDurationProbed)
		}
	} else {
		out.advance(StateDurationProbed)
	}

	if err := p.compress(ctx, m, &out, log); err != nil {
		return out, err
	}

	status := catalog.StatusDone
	if m.Duration == nil {
		status = catalog.StatusFailed
	}
	if err := p.write(ctx, musicID, catalog.MediaPatch{Status: &status}); err != nil {
		return out, err
	}
	out.Status = status
	out.advance(StateFinalized)

	log.Info().
		Str("status", string(status)).
		Str("compression", string(out.Compression)).
		Bool("replaced", out.Replaced).
		Msg("ingestion finished")
	return out, nil
}

func (p *Pipeline) probe(ctx context.Context, m *catalog.Music, log zerolog.Logger) (int, error) {
	var duration int
	attempts, err := p.retry(ctx, "probe", p.cfg.ProbeAttempts, log, func(ctx context.Context) error {
		d, err := p.prober.Probe(ctx, m.FileRef)
		if err != nil {
			return err
		}
		if d < 0 {
			return backoff.Permanent(fmt.Errorf("negative duration %d", d))
		}
		duration = d
		return nil
	})
	if err != nil {
		return 0, &ProbeError{MusicID: m.ID, Path: m.FileRef, Attempts: attempts, Err: err}
	}
	return duration, nil
}

func (p *Pipeline) compress(ctx context.Context, m *catalog.Music, out *Outcome, log zerolog.Logger) error {
	if m.Transcode.Attempted() {
		out.advance(StateCompressionSkipped)
		return nil
	}
	info, err := os.Stat(m.FileRef)
	if err != nil {
		log.Warn().Err(err).Str("path", m.FileRef).Msg("cannot stat upload, compression skipped")
		out.advance(StateCompressionSkipped)
		return nil
	}
	if info.Size() <= p.cfg.SizeThreshold {
		out.advance(StateCompressionSkipped)
		return nil
	}

	if err := p.write(ctx, m.ID, catalog.MediaPatch{Status: statusPtr(catalog.StatusTranscoding)}); err != nil {
		return err
	}

	var output string
	attempts, err := p.retry(ctx, "transcode", p.cfg.TranscodeAttempts, log, func(ctx context.Context) error {
		o, err := p.transcoder.Transcode(ctx, m.FileRef, p.bitrate)
		if err != nil {
			return err
		}
		output = o
		return nil
	})
	if err == nil {
		var outInfo os.FileInfo
		if outInfo, err = os.Stat(output); err == nil {
			return p.replace(ctx, m, info.Size(), output, outInfo.Size(), out, log)
		}
	}
	if ctx.Err() != nil {
		removeQuietly(output, log)
		return ctx.Err()
	}

	removeQuietly(output, log)
	terr := &TranscodeError{MusicID: m.ID, Path: m.FileRef, Attempts: attempts, Err: err}
	out.TranscodeErr = terr
	log.Error().Err(terr).Msg("compression failed, original kept")

	failed := catalog.TranscodeFailed
	if err := p.write(ctx, m.ID, catalog.MediaPatch{Transcode: &failed}); err != nil {
		return err
	}
	m.Transcode = failed
	out.advance(StateCompressionFailed)
	return nil
}

// replace swaps the original for the transcoded output when the output is
// strictly smaller. The transcode state becomes done either way.
func (p *Pipeline) replace(ctx context.Context, m *catalog.Music, origSize int64, output string, outSize int64, out *Outcome, log zerolog.Logger) error {
	done := catalog.TranscodeDone

	if outSize >= origSize {
		removeQuietly(output, log)
		log.Info().Int64("original", origSize).Int64("output", outSize).Msg("transcoded file not smaller, original kept")
		if err := p.write(ctx, m.ID, catalog.MediaPatch{Transcode: &done}); err != nil {
			return err
		}
		m.Transcode = done
		out.advance(StateCompressionSucceeded)
		return nil
	}

	if _, err := p.store.Music(ctx, m.ID); err != nil {
		removeQuietly(output, log)
		if errors.Is(err, catalog.ErrNotFound) {
			return ErrAssetGone
		}
		return fmt.Errorf("reload music %s: %w", m.ID, err)
	}

	original := m.FileRef
	err := p.write(ctx, m.ID, catalog.MediaPatch{FileRef: &output, FileSize: &outSize, Transcode: &done})
	if err != nil {
		removeQuietly(output, log)
		return err
	}
	removeQuietly(original, log)

	m.FileRef, m.FileSize, m.Transcode = output, outSize, done
	out.Replaced = true
	out.advance(StateCompressionSucceeded)
	log.Info().Int64("original", origSize).Int64("output", outSize).Msg("upload compressed")
	return nil
}

// retry runs op with exponential backoff, at most attempts times. Missing
// files are not retried.
func (p *Pipeline) retry(ctx context.Context, step string, attempts int, log zerolog.Logger, op func(context.Context) error) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	tries := 0
	err := backoff.RetryNotify(func() error {
		tries++
		stepCtx, cancel := context.WithTimeout(ctx, p.cfg.StepTimeout)
		defer cancel()

		start := time.Now()
		err := op(stepCtx)
		metrics.RecordIngestStep(step, time.Since(start), err)
		if errors.Is(err, fs.ErrNotExist) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx), func(err error, wait time.Duration) {
		metrics.RecordIngestRetry(step)
		log.Debug().Err(err).Str("step", step).Dur("wait", wait).Msg("retrying")
	})
	return tries, err
}

// write applies a media patch. A missing row means the asset was deleted
// while the job ran.
func (p *Pipeline) write(ctx context.Context, id string, patch catalog.MediaPatch) error {
	err := p.store.UpdateMusicMedia(ctx, id, patch)
	if errors.Is(err, catalog.ErrNotFound) {
		return ErrAssetGone
	}
	if err != nil {
		return fmt.Errorf("update media %s: %w", id, err)
	}
	return nil
}

func removeQuietly(path string, log zerolog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove file")
	}
}

func statusPtr(s catalog.ProcessingStatus) *catalog.ProcessingStatus { return &s }
