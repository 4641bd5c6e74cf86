package invalidation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
	"github.com/goliatone/go-catalog-cache/internal/cacheinfra"
	"github.com/goliatone/go-catalog-cache/internal/metrics"
)

// mockRelations serves fixed rows and tracks relationship lookups.
type mockRelations struct {
	mu           sync.Mutex
	playlists    map[string][]string
	music        map[string]*catalog.Music
	albums       map[string]*catalog.Album
	playlistErr  error
	playlistHits int
}

func (m *mockRelations) PlaylistsContaining(ctx context.Context, musicID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlistHits++
	if m.playlistErr != nil {
		return nil, m.playlistErr
	}
	return m.playlists[musicID], nil
}

func (m *mockRelations) Music(ctx context.Context, id string) (*catalog.Music, error) {
	if v, ok := m.music[id]; ok {
		return v, nil
	}
	return nil, catalog.ErrNotFound
}

func (m *mockRelations) Album(ctx context.Context, id string) (*catalog.Album, error) {
	if v, ok := m.albums[id]; ok {
		return v, nil
	}
	return nil, catalog.ErrNotFound
}

func (m *mockRelations) Artist(ctx context.Context, id string) (*catalog.Artist, error) {
	return nil, catalog.ErrNotFound
}

func (m *mockRelations) Genre(ctx context.Context, id string) (*catalog.Genre, error) {
	return nil, catalog.ErrNotFound
}

// brokenBackend fails every call.
type brokenBackend struct {
	mu      sync.Mutex
	incrs   int
	deletes int
}

func (b *brokenBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}

func (b *brokenBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("down")
}

func (b *brokenBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return false, errors.New("down")
}

func (b *brokenBackend) Delete(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	b.deletes++
	b.mu.Unlock()
	return errors.New("down")
}

func (b *brokenBackend) Incr(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	b.incrs++
	b.mu.Unlock()
	return 0, errors.New("down")
}

func newBackend(t *testing.T) cache.Backend {
	t.Helper()
	b, err := cacheinfra.NewMemoryBackend(cacheinfra.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("NewMemoryBackend: %v", err)
	}
	return b
}

func newRelations() *mockRelations {
	return &mockRelations{
		playlists: map[string][]string{"m1": {"p1", "p2"}},
		music: map[string]*catalog.Music{
			"m1": {ID: "m1", ArtistID: "a1", AlbumID: catalog.StringPtr("al1"), GenreID: catalog.StringPtr("g1")},
		},
		albums: map[string]*catalog.Album{"al1": {ID: "al1", ArtistID: "a1"}},
	}
}

func scopes(ss ...cache.Scope) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	sort.Strings(out)
	return out
}

func assertScopes(t *testing.T, got []cache.Scope, want ...cache.Scope) {
	t.Helper()
	g, w := scopes(got...), scopes(want...)
	if len(g) != len(w) {
		t.Fatalf("bumped scopes = %v, want %v", g, w)
	}
	for i := range w {
		if g[i] != w[i] {
			t.Fatalf("bumped scopes = %v, want %v", g, w)
		}
	}
}

func TestPlan_Music(t *testing.T) {
	musicRefs := catalog.ParentRefs{ArtistID: "a1", AlbumID: "al1", GenreID: "g1"}
	tests := []struct {
		name       string
		event      catalog.MutationEvent
		wantScopes []cache.Scope
		wantLookup bool
	}{
		{
			name:  "title update skips genre",
			event: catalog.MutationEvent{Type: catalog.EntityMusic, ID: "m1", Op: catalog.OpUpdated, Parents: musicRefs, Changed: []string{"title"}},
			wantScopes: []cache.Scope{
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
				cache.ArtistStatsScope("a1"), cache.AlbumDetailScope("al1"),
				cache.PlaylistDetailScope("p1"), cache.PlaylistDetailScope("p2"),
			},
			wantLookup: true,
		},
		{
			name:  "create bumps genre and skips playlists",
			event: catalog.MutationEvent{Type: catalog.EntityMusic, ID: "m9", Op: catalog.OpCreated, Parents: musicRefs},
			wantScopes: []cache.Scope{
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
				cache.ArtistStatsScope("a1"), cache.AlbumDetailScope("al1"), cache.GenreCompleteScope("g1"),
			},
		},
		{
			name: "genre move bumps both genres",
			event: catalog.MutationEvent{
				Type: catalog.EntityMusic, ID: "m1", Op: catalog.OpUpdated,
				Parents:  catalog.ParentRefs{ArtistID: "a1", AlbumID: "al1", GenreID: "g2"},
				Previous: musicRefs,
				Changed:  []string{"genre_id"},
			},
			wantScopes: []cache.Scope{
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
				cache.ArtistStatsScope("a1"), cache.AlbumDetailScope("al1"),
				cache.GenreCompleteScope("g2"), cache.GenreCompleteScope("g1"),
				cache.PlaylistDetailScope("p1"), cache.PlaylistDetailScope("p2"),
			},
			wantLookup: true,
		},
		{
			name: "delete uses captured playlists",
			event: catalog.MutationEvent{
				Type: catalog.EntityMusic, ID: "m1", Op: catalog.OpDeleted,
				Parents: musicRefs, Related: []string{"p7"},
			},
			wantScopes: []cache.Scope{
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
				cache.ArtistStatsScope("a1"), cache.AlbumDetailScope("al1"), cache.GenreCompleteScope("g1"),
				cache.PlaylistDetailScope("p7"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := newRelations()
			c, err := New(newBackend(t), rel)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			plan, err := c.Plan(context.Background(), tt.event)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if len(plan.Delete) != 1 || plan.Delete[0] != "music:detail:"+tt.event.ID {
				t.Errorf("Delete = %v", plan.Delete)
			}
			assertScopes(t, plan.Bump, tt.wantScopes...)
			if (rel.playlistHits > 0) != tt.wantLookup {
				t.Errorf("playlist lookups = %d, want lookup %v", rel.playlistHits, tt.wantLookup)
			}
		})
	}
}

func TestPlan_OtherEntities(t *testing.T) {
	tests := []struct {
		name       string
		event      catalog.MutationEvent
		wantDelete []string
		wantScopes []cache.Scope
	}{
		{
			name:  "album feature toggle",
			event: catalog.MutationEvent{Type: catalog.EntityAlbum, ID: "al1", Op: catalog.OpUpdated, Parents: catalog.ParentRefs{ArtistID: "a1"}, Changed: []string{"featured"}},
			wantScopes: []cache.Scope{
				cache.AlbumDetailScope("al1"), cache.ScopeAlbumList, cache.ScopeAlbumFeatured,
				cache.ArtistStatsScope("a1"), cache.ArtistDetailScope("a1"),
			},
		},
		{
			name:  "album rename reaches music lists",
			event: catalog.MutationEvent{Type: catalog.EntityAlbum, ID: "al1", Op: catalog.OpUpdated, Parents: catalog.ParentRefs{ArtistID: "a1"}, Changed: []string{"name"}},
			wantScopes: []cache.Scope{
				cache.AlbumDetailScope("al1"), cache.ScopeAlbumList, cache.ScopeAlbumFeatured,
				cache.ArtistStatsScope("a1"), cache.ArtistDetailScope("a1"),
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
			},
		},
		{
			name:       "artist created",
			event:      catalog.MutationEvent{Type: catalog.EntityArtist, ID: "a1", Op: catalog.OpCreated, Parents: catalog.ParentRefs{GenreID: "g1"}},
			wantDelete: []string{"artist:detail:a1"},
			wantScopes: []cache.Scope{
				cache.ScopeArtistList, cache.ScopeArtistActive,
				cache.ArtistDetailScope("a1"), cache.ArtistStatsScope("a1"), cache.GenreCompleteScope("g1"),
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
			},
		},
		{
			name:       "artist followers",
			event:      catalog.MutationEvent{Type: catalog.EntityArtist, ID: "a1", Op: catalog.OpUpdated, Parents: catalog.ParentRefs{GenreID: "g1"}, Changed: []string{"followers_count"}},
			wantDelete: []string{"artist:detail:a1"},
			wantScopes: []cache.Scope{
				cache.ScopeArtistList, cache.ScopeArtistActive,
				cache.ArtistDetailScope("a1"), cache.ArtistStatsScope("a1"),
			},
		},
		{
			name:       "subgenre",
			event:      catalog.MutationEvent{Type: catalog.EntityGenre, ID: "g2", Op: catalog.OpUpdated, Parents: catalog.ParentRefs{ParentGenreID: "g1"}},
			wantDelete: []string{"genre:detail:g2"},
			wantScopes: []cache.Scope{
				cache.ScopeGenreList, cache.GenreCompleteScope("g2"), cache.GenreCompleteScope("g1"),
			},
		},
		{
			name:       "artist deleted reaches album and music lists",
			event:      catalog.MutationEvent{Type: catalog.EntityArtist, ID: "a1", Op: catalog.OpDeleted, Parents: catalog.ParentRefs{GenreID: "g1"}},
			wantDelete: []string{"artist:detail:a1"},
			wantScopes: []cache.Scope{
				cache.ScopeArtistList, cache.ScopeArtistActive,
				cache.ArtistDetailScope("a1"), cache.ArtistStatsScope("a1"), cache.GenreCompleteScope("g1"),
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
				cache.ScopeAlbumList, cache.ScopeAlbumFeatured,
			},
		},
		{
			name:  "album deleted",
			event: catalog.MutationEvent{Type: catalog.EntityAlbum, ID: "al1", Op: catalog.OpDeleted, Parents: catalog.ParentRefs{ArtistID: "a1"}},
			wantScopes: []cache.Scope{
				cache.AlbumDetailScope("al1"), cache.ScopeAlbumList, cache.ScopeAlbumFeatured,
				cache.ArtistStatsScope("a1"), cache.ArtistDetailScope("a1"),
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
			},
		},
		{
			name:       "genre deleted reaches artist and music lists",
			event:      catalog.MutationEvent{Type: catalog.EntityGenre, ID: "g2", Op: catalog.OpDeleted, Parents: catalog.ParentRefs{ParentGenreID: "g1"}},
			wantDelete: []string{"genre:detail:g2"},
			wantScopes: []cache.Scope{
				cache.ScopeGenreList, cache.GenreCompleteScope("g2"), cache.GenreCompleteScope("g1"),
				cache.ScopeArtistList, cache.ScopeArtistActive,
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
			},
		},
		{
			name:       "track detached from deleted album",
			event:      catalog.Detached(catalog.EntityMusic, "m1", catalog.ParentRefs{ArtistID: "a1", AlbumID: "al1"}, catalog.ParentRefs{ArtistID: "a1"}, "album_id"),
			wantDelete: []string{"music:detail:m1"},
			wantScopes: []cache.Scope{
				cache.ScopeMusicList, cache.ScopeMusicTrending, cache.ScopeMusicPopular, cache.ScopeMusicFeatured,
				cache.ArtistStatsScope("a1"), cache.AlbumDetailScope("al1"),
				cache.PlaylistDetailScope("p1"), cache.PlaylistDetailScope("p2"),
			},
		},
		{
			name:       "playlist",
			event:      catalog.MutationEvent{Type: catalog.EntityPlaylist, ID: "p1", Op: catalog.OpUpdated},
			wantDelete: []string{"playlist:detail:p1"},
			wantScopes: []cache.Scope{
				cache.ScopePlaylistList, cache.ScopePlaylistActive, cache.PlaylistDetailScope("p1"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := New(newBackend(t), newRelations())
			plan, err := c.Plan(context.Background(), tt.event)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if len(plan.Delete) != len(tt.wantDelete) {
				t.Fatalf("Delete = %v, want %v", plan.Delete, tt.wantDelete)
			}
			for i := range tt.wantDelete {
				if plan.Delete[i] != tt.wantDelete[i] {
					t.Errorf("Delete = %v, want %v", plan.Delete, tt.wantDelete)
				}
			}
			assertScopes(t, plan.Bump, tt.wantScopes...)
		})
	}
}

func TestPlan_UnknownType(t *testing.T) {
	c, _ := New(newBackend(t), nil)
	if _, err := c.Plan(context.Background(), catalog.MutationEvent{Type: "user", ID: "u1"}); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestPlan_RelationFailureKeepsRest(t *testing.T) {
	rel := newRelations()
	rel.playlistErr = errors.New("db timeout")
	c, _ := New(newBackend(t), rel)

	plan, err := c.Plan(context.Background(), catalog.MutationEvent{
		Type: catalog.EntityMusic, ID: "m1", Op: catalog.OpUpdated,
		Parents: catalog.ParentRefs{ArtistID: "a1"},
	})
	if err == nil {
		t.Fatal("expected relation error")
	}
	if len(plan.Bump) == 0 || len(plan.Delete) != 1 {
		t.Errorf("partial plan should keep static work, got %+v", plan)
	}
}

func TestOnMutation_BumpsEachScopeOnce(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	gens := cache.NewGenerations(backend)
	c, _ := New(backend, newRelations())

	_ = backend.Set(ctx, "music:detail:m1", []byte("stale"), time.Minute)

	ev := catalog.MutationEvent{
		Type: catalog.EntityMusic, ID: "m1", Op: catalog.OpUpdated,
		Parents:  catalog.ParentRefs{ArtistID: "a1", AlbumID: "al1"},
		Previous: catalog.ParentRefs{ArtistID: "a1", AlbumID: "al1"},
	}
	c.OnMutation(ctx, ev)

	if _, ok, _ := backend.Get(ctx, "music:detail:m1"); ok {
		t.Error("detail key should be deleted")
	}
	for _, s := range []cache.Scope{cache.ScopeMusicList, cache.ArtistStatsScope("a1"), cache.PlaylistDetailScope("p2")} {
		if gen, _ := gens.Current(ctx, s); gen != 1 {
			t.Errorf("%s generation = %d, want 1", s, gen)
		}
	}
	if gen, _ := gens.Current(ctx, cache.ScopeAlbumList); gen != 0 {
		t.Errorf("album_list must not move on music events, got %d", gen)
	}
}

func TestOnMutation_StaleListIsUnreachable(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	gens := cache.NewGenerations(backend)
	c, _ := New(backend, newRelations())
	sig := cache.FilterSignature(map[string]any{"genre_id": "g1"})

	oldKey, _ := gens.KeyFor(ctx, cache.ScopeMusicList, sig, 1)
	_ = backend.Set(ctx, oldKey, []byte("old page"), time.Minute)

	c.OnMutation(ctx, catalog.MutationEvent{Type: catalog.EntityMusic, ID: "m2", Op: catalog.OpCreated})

	newKey, _ := gens.KeyFor(ctx, cache.ScopeMusicList, sig, 1)
	if newKey == oldKey {
		t.Fatal("key should move to the new generation")
	}
	if _, ok, _ := backend.Get(ctx, newKey); ok {
		t.Error("new generation must start empty")
	}
}

func TestOnMutation_FailOpen(t *testing.T) {
	backend := &brokenBackend{}
	c, _ := New(backend, newRelations())
	before := testutil.ToFloat64(metrics.InvalidationFailures.WithLabelValues("bump"))

	c.OnMutation(context.Background(), catalog.MutationEvent{Type: catalog.EntityPlaylist, ID: "p1", Op: catalog.OpUpdated})

	if backend.deletes != 1 {
		t.Errorf("expected one delete attempt, got %d", backend.deletes)
	}
	if backend.incrs != 3 {
		t.Errorf("every scope should still be attempted, got %d incrs", backend.incrs)
	}
	if got := testutil.ToFloat64(metrics.InvalidationFailures.WithLabelValues("bump")) - before; got != 3 {
		t.Errorf("expected 3 bump failures recorded, got %v", got)
	}
}

func TestInvalidate_ResolvesParents(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	gens := cache.NewGenerations(backend)
	c, _ := New(backend, newRelations())

	c.Invalidate(ctx, catalog.EntityMusic, "m1")

	for _, s := range []cache.Scope{cache.ArtistStatsScope("a1"), cache.AlbumDetailScope("al1"), cache.GenreCompleteScope("g1")} {
		if gen, _ := gens.Current(ctx, s); gen != 1 {
			t.Errorf("%s generation = %d, want 1", s, gen)
		}
	}

	c.Invalidate(ctx, catalog.EntityAlbum, "al1")
	if gen, _ := gens.Current(ctx, cache.ArtistDetailScope("a1")); gen != 1 {
		t.Errorf("album invalidation should reach its artist, got %d", gen)
	}
}

func TestInvalidate_MissingRowIsDelete(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	rel := newRelations()
	c, _ := New(backend, rel)

	c.Invalidate(ctx, catalog.EntityMusic, "gone")

	if rel.playlistHits != 0 {
		t.Error("deleted rows must not trigger relationship lookups")
	}
	if gen, _ := cache.NewGenerations(backend).Current(ctx, cache.ScopeMusicList); gen != 1 {
		t.Errorf("music_list generation = %d, want 1", gen)
	}
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	gens := cache.NewGenerations(backend)
	c, _ := New(backend, nil)

	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	for _, s := range cache.CollectionScopes() {
		if gen, _ := gens.Current(ctx, s); gen != 1 {
			t.Errorf("%s generation = %d, want 1", s, gen)
		}
	}

	broken, _ := New(&brokenBackend{}, nil)
	if err := broken.Flush(ctx); !cache.IsUnavailable(err) {
		t.Errorf("Flush should report unavailable backend, got %v", err)
	}
}

func TestNew_RequiresBackend(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, cache.ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}
