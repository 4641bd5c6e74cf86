package querycache

import (
	"context"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
)

func listSignature(q catalog.Query) (string, int) {
	n := q.Normalize()
	return cache.FilterSignature(n.Filters()), n.Page
}

func boolPtr(b bool) *bool { return &b }

// Music reads a single track through its direct detail key.
func (a *Adapter) Music(ctx context.Context, id string) (*catalog.Music, error) {
	return ReadDetail(ctx, a, catalog.EntityMusic, id, func(ctx context.Context) (*catalog.Music, error) {
		return a.store.Music(ctx, id)
	})
}

func (a *Adapter) MusicList(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Music], error) {
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopeMusicList, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Music], error) {
		return a.store.ListMusic(ctx, q)
	})
}

// TrendingMusic returns the top tracks created within the trending window.
// The window is evaluated when the list is loaded; the trending TTL bounds
// how far it can drift.
func (a *Adapter) TrendingMusic(ctx context.Context) ([]catalog.Music, error) {
	sig := cache.FilterSignature(map[string]any{"list": "trending", "limit": catalog.HighlightLimit})
	return Read(ctx, a, cache.ScopeMusicTrending, sig, 1, a.ttl.Trending, func(ctx context.Context) ([]catalog.Music, error) {
		page, err := a.store.ListMusic(ctx, catalog.Query{
			CreatedAfter: a.now().Add(-catalog.TrendingWindow),
			StreamsOver:  catalog.TrendingMinStreams,
			Ordering:     "-streams_count",
			PageSize:     catalog.HighlightLimit,
		})
		return page.Items, err
	})
}

func (a *Adapter) PopularMusic(ctx context.Context) ([]catalog.Music, error) {
	sig := cache.FilterSignature(map[string]any{"list": "popular", "limit": catalog.HighlightLimit})
	return Read(ctx, a, cache.ScopeMusicPopular, sig, 1, a.ttl.Popular, func(ctx context.Context) ([]catalog.Music, error) {
		page, err := a.store.ListMusic(ctx, catalog.Query{
			StreamsOver: catalog.PopularMinStreams,
			Ordering:    "-streams_count",
			PageSize:    catalog.HighlightLimit,
		})
		return page.Items, err
	})
}

func (a *Adapter) FeaturedMusic(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Music], error) {
	q.Featured = boolPtr(true)
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopeMusicFeatured, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Music], error) {
		return a.store.ListMusic(ctx, q)
	})
}

func (a *Adapter) Artist(ctx context.Context, id string) (*catalog.Artist, error) {
	return ReadDetail(ctx, a, catalog.EntityArtist, id, func(ctx context.Context) (*catalog.Artist, error) {
		return a.store.Artist(ctx, id)
	})
}

func (a *Adapter) ArtistList(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Artist], error) {
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopeArtistList, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Artist], error) {
		return a.store.ListArtists(ctx, q)
	})
}

func (a *Adapter) ActiveArtists(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Artist], error) {
	q.Active = boolPtr(true)
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopeArtistActive, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Artist], error) {
		return a.store.ListArtists(ctx, q)
	})
}

// ArtistStats reads the engagement totals of an artist.
func (a *Adapter) ArtistStats(ctx context.Context, artistID string) (catalog.ArtistStats, error) {
	return Read(ctx, a, cache.ArtistStatsScope(artistID), "stats", 1, a.ttl.Aggregate, func(ctx context.Context) (catalog.ArtistStats, error) {
		return a.store.ArtistStats(ctx, artistID)
	})
}

// ArtistAlbums lists the albums of an artist under the artist's detail
// scope, which every album write bumps.
func (a *Adapter) ArtistAlbums(ctx context.Context, artistID string, q catalog.Query) (catalog.Page[catalog.Album], error) {
	q.ArtistID = artistID
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ArtistDetailScope(artistID), sig, page, a.ttl.Detail, func(ctx context.Context) (catalog.Page[catalog.Album], error) {
		return a.store.ListAlbums(ctx, q)
	})
}

// Album reads a single album row. Albums have no direct key; the row lives
// under the album's detail scope next to AlbumDetail.
func (a *Adapter) Album(ctx context.Context, id string) (*catalog.Album, error) {
	return Read(ctx, a, cache.AlbumDetailScope(id), "row", 1, a.ttl.Detail, func(ctx context.Context) (*catalog.Album, error) {
		return a.store.Album(ctx, id)
	})
}

// AlbumDetail reads an album with its tracks and totals.
func (a *Adapter) AlbumDetail(ctx context.Context, id string) (catalog.AlbumDetail, error) {
	return Read(ctx, a, cache.AlbumDetailScope(id), "detail", 1, a.ttl.Detail, func(ctx context.Context) (catalog.AlbumDetail, error) {
		album, err := a.store.Album(ctx, id)
		if err != nil {
			return catalog.AlbumDetail{}, err
		}
		tracks, err := a.store.AlbumTracks(ctx, id)
		if err != nil {
			return catalog.AlbumDetail{}, err
		}
		return catalog.NewAlbumDetail(*album, tracks), nil
	})
}

func (a *Adapter) AlbumList(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Album], error) {
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopeAlbumList, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Album], error) {
		return a.store.ListAlbums(ctx, q)
	})
}

func (a *Adapter) FeaturedAlbums(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Album], error) {
	q.Featured = boolPtr(true)
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopeAlbumFeatured, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Album], error) {
		return a.store.ListAlbums(ctx, q)
	})
}

func (a *Adapter) Playlist(ctx context.Context, id string) (*catalog.Playlist, error) {
	return ReadDetail(ctx, a, catalog.EntityPlaylist, id, func(ctx context.Context) (*catalog.Playlist, error) {
		return a.store.Playlist(ctx, id)
	})
}

// PlaylistDetail reads a playlist with its tracks and totals. Membership
// changes and writes to any contained track bump the playlist's scope.
func (a *Adapter) PlaylistDetail(ctx context.Context, id string) (catalog.PlaylistDetail, error) {
	return Read(ctx, a, cache.PlaylistDetailScope(id), "detail", 1, a.ttl.Detail, func(ctx context.Context) (catalog.PlaylistDetail, error) {
		p, err := a.store.Playlist(ctx, id)
		if err != nil {
			return catalog.PlaylistDetail{}, err
		}
		tracks, err := a.store.PlaylistTracks(ctx, id)
		if err != nil {
			return catalog.PlaylistDetail{}, err
		}
		return catalog.NewPlaylistDetail(*p, tracks), nil
	})
}

func (a *Adapter) PlaylistList(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Playlist], error) {
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopePlaylistList, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Playlist], error) {
		return a.store.ListPlaylists(ctx, q)
	})
}

func (a *Adapter) ActivePlaylists(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Playlist], error) {
	q.Active = boolPtr(true)
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopePlaylistActive, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Playlist], error) {
		return a.store.ListPlaylists(ctx, q)
	})
}

func (a *Adapter) Genre(ctx context.Context, id string) (*catalog.Genre, error) {
	return ReadDetail(ctx, a, catalog.EntityGenre, id, func(ctx context.Context) (*catalog.Genre, error) {
		return a.store.Genre(ctx, id)
	})
}

func (a *Adapter) GenreList(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Genre], error) {
	sig, page := listSignature(q)
	return Read(ctx, a, cache.ScopeGenreList, sig, page, a.ttl.List, func(ctx context.Context) (catalog.Page[catalog.Genre], error) {
		return a.store.ListGenres(ctx, q)
	})
}

// GenreComplete reads a genre with live song and artist counts and its
// direct subgenres.
func (a *Adapter) GenreComplete(ctx context.Context, id string) (catalog.GenreComplete, error) {
	return Read(ctx, a, cache.GenreCompleteScope(id), "complete", 1, a.ttl.Aggregate, func(ctx context.Context) (catalog.GenreComplete, error) {
		g, err := a.store.Genre(ctx, id)
		if err != nil {
			return catalog.GenreComplete{}, err
		}
		songs, artists, err := a.store.GenreCounts(ctx, id)
		if err != nil {
			return catalog.GenreComplete{}, err
		}
		subs, err := a.store.Subgenres(ctx, id)
		if err != nil {
			return catalog.GenreComplete{}, err
		}
		return catalog.GenreComplete{Genre: *g, SongCount: songs, ArtistCount: artists, Subgenres: subs}, nil
	})
}
