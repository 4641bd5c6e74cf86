package querycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
)

// Warm loads the first page of every hot list into the cache. Failing
// lists are reported together; the others are still warmed.
func (a *Adapter) Warm(ctx context.Context) error {
	first := catalog.Query{Page: 1}
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"music_list", func(ctx context.Context) error { _, err := a.MusicList(ctx, first); return err }},
		{"music_trending", func(ctx context.Context) error { _, err := a.TrendingMusic(ctx); return err }},
		{"music_popular", func(ctx context.Context) error { _, err := a.PopularMusic(ctx); return err }},
		{"music_featured", func(ctx context.Context) error { _, err := a.FeaturedMusic(ctx, first); return err }},
		{"artist_list", func(ctx context.Context) error { _, err := a.ArtistList(ctx, first); return err }},
		{"artist_active", func(ctx context.Context) error { _, err := a.ActiveArtists(ctx, first); return err }},
		{"album_list", func(ctx context.Context) error { _, err := a.AlbumList(ctx, first); return err }},
		{"album_featured", func(ctx context.Context) error { _, err := a.FeaturedAlbums(ctx, first); return err }},
		{"genre_list", func(ctx context.Context) error { _, err := a.GenreList(ctx, first); return err }},
		{"playlist_list", func(ctx context.Context) error { _, err := a.PlaylistList(ctx, first); return err }},
		{"playlist_active", func(ctx context.Context) error { _, err := a.ActivePlaylists(ctx, first); return err }},
	}

	var errs []error
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", s.name, err))
			continue
		}
		a.logger.Debug().Str("list", s.name).Msg("cache warmed")
	}
	return errors.Join(errs...)
}

// Status is the result of a backend health check.
type Status struct {
	Healthy     bool                  `json:"healthy"`
	Latency     time.Duration         `json:"latency"`
	Error       string                `json:"error,omitempty"`
	Generations map[cache.Scope]int64 `json:"generations,omitempty"`
}

// Check round-trips a probe value through the backend and reports the
// current generation of every collection scope.
func (a *Adapter) Check(ctx context.Context) Status {
	start := time.Now()
	key := "health:" + uuid.NewString()
	want := []byte("ok")

	fail := func(err error) Status {
		return Status{Latency: time.Since(start), Error: err.Error()}
	}

	if err := a.backend.Set(ctx, key, want, time.Minute); err != nil {
		return fail(cache.Unavailable("set", key, err))
	}
	got, ok, err := a.backend.Get(ctx, key)
	if err != nil {
		return fail(cache.Unavailable("get", key, err))
	}
	if !ok || !bytes.Equal(got, want) {
		return fail(fmt.Errorf("health probe %s: read back %q", key, got))
	}
	if err := a.backend.Delete(ctx, key); err != nil {
		return fail(cache.Unavailable("delete", key, err))
	}

	st := Status{Healthy: true, Latency: time.Since(start), Generations: map[cache.Scope]int64{}}
	for _, scope := range cache.CollectionScopes() {
		gen, err := a.gens.Current(ctx, scope)
		if err != nil {
			return fail(err)
		}
		st.Generations[scope] = gen
	}
	return st
}
