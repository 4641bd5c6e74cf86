package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/cache"
)

const (
	claimRunning = "running"
	claimDone    = "done"
)

// Claims tracks idempotency keys across deliveries.
type Claims interface {
	// Claim reports whether the caller may run the job for key.
	Claim(ctx context.Context, key string) bool
	// Release frees a claim after a failed run so a replay can take it.
	Release(ctx context.Context, key string)
	// Complete marks key as done; later deliveries are duplicates.
	Complete(ctx context.Context, key string)
}

// ClaimRepository keeps claims in the cache backend. A claim is a SetNX
// with ClaimTTL, so a worker that dies mid-job blocks its key only until
// the TTL passes. Finished keys are kept for DoneTTL.
type ClaimRepository struct {
	backend  cache.Backend
	claimTTL time.Duration
	doneTTL  time.Duration
	logger   zerolog.Logger
}

var _ Claims = (*ClaimRepository)(nil)

func NewClaimRepository(backend cache.Backend, cfg Config, logger zerolog.Logger) (*ClaimRepository, error) {
	if backend == nil {
		return nil, cache.ErrNoBackend
	}
	if cfg.ClaimTTL <= 0 || cfg.DoneTTL <= 0 {
		return nil, errors.New("ingest: claim and done TTLs must be positive")
	}
	return &ClaimRepository{
		backend:  backend,
		claimTTL: cfg.ClaimTTL,
		doneTTL:  cfg.DoneTTL,
		logger:   logger,
	}, nil
}

func claimKey(key string) string { return "claim:" + key }

// Claim takes key. When the backend is down every delivery is processed;
// the pipeline tolerates repeats.
func (r *ClaimRepository) Claim(ctx context.Context, key string) bool {
	stored, err := r.backend.SetNX(ctx, claimKey(key), []byte(claimRunning), r.claimTTL)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("claim unavailable, processing anyway")
		return true
	}
	return stored
}

func (r *ClaimRepository) Release(ctx context.Context, key string) {
	if err := r.backend.Delete(context.WithoutCancel(ctx), claimKey(key)); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to release claim")
	}
}

func (r *ClaimRepository) Complete(ctx context.Context, key string) {
	if err := r.backend.Set(context.WithoutCancel(ctx), claimKey(key), []byte(claimDone), r.doneTTL); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to mark job done")
	}
}
