package cache

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Scope names a generation counter. Every cached query result is keyed under
// exactly one scope; bumping the scope's generation retires all of them.
type Scope string

// Collection scopes cover list and ranking queries.
const (
	ScopeMusicList      Scope = "music_list"
	ScopeMusicTrending  Scope = "music_trending"
	ScopeMusicPopular   Scope = "music_popular"
	ScopeMusicFeatured  Scope = "music_featured"
	ScopeAlbumList      Scope = "album_list"
	ScopeAlbumFeatured  Scope = "album_featured"
	ScopeArtistList     Scope = "artist_list"
	ScopeArtistActive   Scope = "artist_active"
	ScopeGenreList      Scope = "genre_list"
	ScopePlaylistList   Scope = "playlist_list"
	ScopePlaylistActive Scope = "playlist_active"
)

// CollectionScopes lists every collection scope.
func CollectionScopes() []Scope {
	return []Scope{
		ScopeMusicList, ScopeMusicTrending, ScopeMusicPopular, ScopeMusicFeatured,
		ScopeAlbumList, ScopeAlbumFeatured,
		ScopeArtistList, ScopeArtistActive,
		ScopeGenreList,
		ScopePlaylistList, ScopePlaylistActive,
	}
}

// Per-entity aggregate scopes.

func ArtistStatsScope(artistID string) Scope { return Scope("artist:stats:" + artistID) }

func ArtistDetailScope(artistID string) Scope { return Scope("artist:detail:" + artistID) }

func AlbumDetailScope(albumID string) Scope { return Scope("album:detail:" + albumID) }

func PlaylistDetailScope(playlistID string) Scope { return Scope("playlist:detail:" + playlistID) }

func GenreCompleteScope(genreID string) Scope { return Scope("genre:complete:" + genreID) }

const (
	generationPrefix = "gen:"
	queryPrefix      = "q:"
)

// GenerationKey is the backend key holding the counter of scope.
func GenerationKey(scope Scope) string {
	return generationPrefix + string(scope)
}

// DetailKey is the direct key of a single entity, deleted by id on mutation.
func DetailKey(entity, id string) string {
	return entity + ":detail:" + id
}

// Key derives the query cache key for a page of results under the given
// generation. The signature and page are hashed, so the key length does not
// depend on the filters.
func Key(scope Scope, generation int64, signature string, page int) string {
	h := xxhash.New()
	_, _ = h.WriteString(signature)
	_, _ = h.WriteString(KeySeparator)
	_, _ = h.WriteString(strconv.Itoa(page))

	return queryPrefix + string(scope) + ":g" + strconv.FormatInt(generation, 10) + ":" + strconv.FormatUint(h.Sum64(), 16)
}
