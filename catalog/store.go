package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by store reads and writes on a missing row.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalidCounter is returned when incrementing an unknown counter.
	ErrInvalidCounter = errors.New("catalog: invalid counter")
	// ErrInvalidOrder is returned when a reorder is not a permutation of the
	// playlist's tracks.
	ErrInvalidOrder = errors.New("catalog: order must list every playlist track once")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Query filters and pages a list read. Fields that do not apply to the
// listed entity are ignored.
type Query struct {
	Search   string
	Ordering string
	ArtistID string
	AlbumID  string
	GenreID  string
	Featured *bool
	Active   *bool
	// StreamsOver keeps rows with strictly more streams. Zero disables it.
	StreamsOver  int64
	CreatedAfter time.Time
	Page         int
	PageSize     int
}

// Normalize clamps paging to sane values.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Offset is the row offset of the normalized page.
func (q Query) Offset() int {
	n := q.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Filters returns the query parameters that shape the result set, minus
// the page number. Zero values are omitted.
func (q Query) Filters() map[string]any {
	n := q.Normalize()
	f := map[string]any{"page_size": n.PageSize}
	put := func(k, v string) {
		if v != "" {
			f[k] = v
		}
	}
	put("search", q.Search)
	put("ordering", q.Ordering)
	put("artist_id", q.ArtistID)
	put("album_id", q.AlbumID)
	put("genre_id", q.GenreID)
	if q.Featured != nil {
		f["featured"] = *q.Featured
	}
	if q.Active != nil {
		f["active"] = *q.Active
	}
	if q.StreamsOver > 0 {
		f["streams_over"] = q.StreamsOver
	}
	if !q.CreatedAfter.IsZero() {
		f["created_after"] = q.CreatedAfter.UTC().Unix()
	}
	return f
}

// Page is one page of a list read.
type Page[T any] struct {
	Items    []T `json:"items" msgpack:"items"`
	Total    int `json:"total" msgpack:"total"`
	Page     int `json:"page" msgpack:"page"`
	PageSize int `json:"page_size" msgpack:"page_size"`
}

// MediaPatch is the narrow write used by the ingestion pipeline. Only set
// fields are written and the write never schedules ingestion again.
type MediaPatch struct {
	Duration *int
	// ClearDuration resets the duration to unknown. Only reprocessing uses it.
	ClearDuration bool
	FileRef       *string
	FileSize      *int64
	Transcode     *TranscodeState
	Status        *ProcessingStatus
}

// Fields lists the columns the patch writes.
func (p MediaPatch) Fields() []string {
	var out []string
	if p.Duration != nil || p.ClearDuration {
		out = append(out, "duration")
	}
	if p.FileRef != nil {
		out = append(out, "file_ref")
	}
	if p.FileSize != nil {
		out = append(out, "file_size")
	}
	if p.Transcode != nil {
		out = append(out, "transcode")
	}
	if p.Status != nil {
		out = append(out, "processing_status")
	}
	return out
}

// Apply writes the patch onto m.
func (p MediaPatch) Apply(m *Music) {
	if p.ClearDuration {
		m.Duration = nil
	}
	if p.Duration != nil {
		d := *p.Duration
		m.Duration = &d
	}
	if p.FileRef != nil {
		m.FileRef = *p.FileRef
	}
	if p.FileSize != nil {
		m.FileSize = *p.FileSize
	}
	if p.Transcode != nil {
		m.Transcode = *p.Transcode
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
}

// Reorder validates that order is a permutation of current and returns it.
func Reorder(current, order []string) ([]string, error) {
	if len(order) != len(current) {
		return nil, ErrInvalidOrder
	}
	seen := make(map[string]int, len(current))
	for _, id := range current {
		seen[id]++
	}
	for _, id := range order {
		if seen[id] == 0 {
			return nil, ErrInvalidOrder
		}
		seen[id]--
	}
	return append([]string(nil), order...), nil
}

// Reader is the read side of the content store.
type Reader interface {
	Artist(ctx context.Context, id string) (*Artist, error)
	Album(ctx context.Context, id string) (*Album, error)
	Genre(ctx context.Context, id string) (*Genre, error)
	Music(ctx context.Context, id string) (*Music, error)
	Playlist(ctx context.Context, id string) (*Playlist, error)

	ListArtists(ctx context.Context, q Query) (Page[Artist], error)
	ListAlbums(ctx context.Context, q Query) (Page[Album], error)
	ListGenres(ctx context.Context, q Query) (Page[Genre], error)
	ListMusic(ctx context.Context, q Query) (Page[Music], error)
	ListPlaylists(ctx context.Context, q Query) (Page[Playlist], error)

	AlbumTracks(ctx context.Context, albumID string) ([]Music, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]Music, error)
	ArtistStats(ctx context.Context, artistID string) (ArtistStats, error)
	GenreCounts(ctx context.Context, genreID string) (songs int, artists int, err error)
	Subgenres(ctx context.Context, genreID string) ([]Genre, error)

	// PlaylistsContaining returns the ids of every playlist holding musicID.
	PlaylistsContaining(ctx context.Context, musicID string) ([]string, error)
}

// Writer is the write side of the content store. Every successful write
// emits exactly one MutationEvent after commit.
type Writer interface {
	CreateArtist(ctx context.Context, a *Artist) error
	UpdateArtist(ctx context.Context, a *Artist) error
	DeleteArtist(ctx context.Context, id string) error

	CreateAlbum(ctx context.Context, a *Album) error
	UpdateAlbum(ctx context.Context, a *Album) error
	DeleteAlbum(ctx context.Context, id string) error

	CreateGenre(ctx context.Context, g *Genre) error
	UpdateGenre(ctx context.Context, g *Genre) error
	DeleteGenre(ctx context.Context, id string) error

	CreateMusic(ctx context.Context, m *Music) error
	UpdateMusic(ctx context.Context, m *Music) error
	DeleteMusic(ctx context.Context, id string) error
	IncrementMusicCounter(ctx context.Context, id string, c Counter) (int64, error)
	UpdateMusicMedia(ctx context.Context, id string, patch MediaPatch) error

	CreatePlaylist(ctx context.Context, p *Playlist) error
	UpdatePlaylist(ctx context.Context, p *Playlist) error
	DeletePlaylist(ctx context.Context, id string) error
	AddToPlaylist(ctx context.Context, playlistID string, musicIDs ...string) error
	RemoveFromPlaylist(ctx context.Context, playlistID string, musicIDs ...string) error
	ReorderPlaylist(ctx context.Context, playlistID string, musicIDs []string) error
}

// Store is the content store contract.
type Store interface {
	Reader
	Writer
	Subscribe(l MutationListener)
}
