package store

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-cache/catalog"
)

type artistRow struct {
	bun.BaseModel `bun:"table:artists,alias:ar"`

	ID               string    `bun:"id,pk"`
	StageName        string    `bun:"stage_name,notnull"`
	GenreID          *string   `bun:"genre_id"`
	FollowersCount   int64     `bun:"followers_count,notnull"`
	MonthlyListeners int64     `bun:"monthly_listeners,notnull"`
	IsActive         bool      `bun:"is_active,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
}

func newArtistRow(a *catalog.Artist) *artistRow {
	return &artistRow{
		ID:               a.ID,
		StageName:        a.StageName,
		GenreID:          a.GenreID,
		FollowersCount:   a.FollowersCount,
		MonthlyListeners: a.MonthlyListeners,
		IsActive:         a.IsActive,
		CreatedAt:        a.CreatedAt,
	}
}

func (r *artistRow) model() catalog.Artist {
	return catalog.Artist{
		ID:               r.ID,
		StageName:        r.StageName,
		GenreID:          r.GenreID,
		FollowersCount:   r.FollowersCount,
		MonthlyListeners: r.MonthlyListeners,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt,
	}
}

type albumRow struct {
	bun.BaseModel `bun:"table:albums,alias:al"`

	ID          string    `bun:"id,pk"`
	ArtistID    string    `bun:"artist_id,notnull"`
	Name        string    `bun:"name,notnull"`
	Featured    bool      `bun:"featured,notnull"`
	ReleaseDate time.Time `bun:"release_date"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

func newAlbumRow(a *catalog.Album) *albumRow {
	return &albumRow{
		ID:          a.ID,
		ArtistID:    a.ArtistID,
		Name:        a.Name,
		Featured:    a.Featured,
		ReleaseDate: a.ReleaseDate,
		CreatedAt:   a.CreatedAt,
	}
}

func (r *albumRow) model() catalog.Album {
	return catalog.Album{
		ID:          r.ID,
		ArtistID:    r.ArtistID,
		Name:        r.Name,
		Featured:    r.Featured,
		ReleaseDate: r.ReleaseDate,
		CreatedAt:   r.CreatedAt,
	}
}

type genreRow struct {
	bun.BaseModel `bun:"table:genres,alias:g"`

	ID       string  `bun:"id,pk"`
	Name     string  `bun:"name,notnull"`
	Slug     string  `bun:"slug,notnull"`
	ParentID *string `bun:"parent_id"`
	IsActive bool    `bun:"is_active,notnull"`
}

func newGenreRow(g *catalog.Genre) *genreRow {
	return &genreRow{ID: g.ID, Name: g.Name, Slug: g.Slug, ParentID: g.ParentID, IsActive: g.IsActive}
}

func (r *genreRow) model() catalog.Genre {
	return catalog.Genre{ID: r.ID, Name: r.Name, Slug: r.Slug, ParentID: r.ParentID, IsActive: r.IsActive}
}

type musicRow struct {
	bun.BaseModel `bun:"table:music,alias:m"`

	ID             string    `bun:"id,pk"`
	ArtistID       string    `bun:"artist_id,notnull"`
	AlbumID        *string   `bun:"album_id"`
	GenreID        *string   `bun:"genre_id"`
	Title          string    `bun:"title,notnull"`
	Duration       *int      `bun:"duration"`
	FileRef        string    `bun:"file_ref,notnull"`
	FileSize       int64     `bun:"file_size,notnull"`
	Transcode      string    `bun:"transcode,notnull"`
	Status         string    `bun:"processing_status,notnull"`
	StreamsCount   int64     `bun:"streams_count,notnull"`
	DownloadsCount int64     `bun:"downloads_count,notnull"`
	LikesCount     int64     `bun:"likes_count,notnull"`
	IsFeatured     bool      `bun:"is_featured,notnull"`
	IsActive       bool      `bun:"is_active,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

// mediaColumns are owned by the ingestion pipeline. Regular updates leave
// them alone.
var mediaColumns = []string{"duration", "file_ref", "file_size", "transcode", "processing_status"}

func newMusicRow(m *catalog.Music) *musicRow {
	return &musicRow{
		ID:             m.ID,
		ArtistID:       m.ArtistID,
		AlbumID:        m.AlbumID,
		GenreID:        m.GenreID,
		Title:          m.Title,
		Duration:       m.Duration,
		FileRef:        m.FileRef,
		FileSize:       m.FileSize,
		Transcode:      string(m.Transcode),
		Status:         string(m.Status),
		StreamsCount:   m.StreamsCount,
		DownloadsCount: m.DownloadsCount,
		LikesCount:     m.LikesCount,
		IsFeatured:     m.IsFeatured,
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
	}
}

func (r *musicRow) model() catalog.Music {
	return catalog.Music{
		ID:             r.ID,
		ArtistID:       r.ArtistID,
		AlbumID:        r.AlbumID,
		GenreID:        r.GenreID,
		Title:          r.Title,
		Duration:       r.Duration,
		FileRef:        r.FileRef,
		FileSize:       r.FileSize,
		Transcode:      catalog.TranscodeState(r.Transcode),
		Status:         catalog.ProcessingStatus(r.Status),
		StreamsCount:   r.StreamsCount,
		DownloadsCount: r.DownloadsCount,
		LikesCount:     r.LikesCount,
		IsFeatured:     r.IsFeatured,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
	}
}

type playlistRow struct {
	bun.BaseModel `bun:"table:playlists,alias:p"`

	ID         string    `bun:"id,pk"`
	Name       string    `bun:"name,notnull"`
	IsFeatured bool      `bun:"is_featured,notnull"`
	IsActive   bool      `bun:"is_active,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func newPlaylistRow(p *catalog.Playlist) *playlistRow {
	return &playlistRow{ID: p.ID, Name: p.Name, IsFeatured: p.IsFeatured, IsActive: p.IsActive, CreatedAt: p.CreatedAt}
}

func (r *playlistRow) model(musicIDs []string) catalog.Playlist {
	if musicIDs == nil {
		musicIDs = []string{}
	}
	return catalog.Playlist{
		ID:         r.ID,
		Name:       r.Name,
		MusicIDs:   musicIDs,
		IsFeatured: r.IsFeatured,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
	}
}

// playlistTrackRow keeps playlist order. Positions are dense from zero.
type playlistTrackRow struct {
	bun.BaseModel `bun:"table:playlist_tracks,alias:pt"`

	PlaylistID string `bun:"playlist_id,pk"`
	MusicID    string `bun:"music_id,pk"`
	Position   int    `bun:"position,notnull"`
}

func models() []any {
	return []any{
		(*artistRow)(nil),
		(*albumRow)(nil),
		(*genreRow)(nil),
		(*musicRow)(nil),
		(*playlistRow)(nil),
		(*playlistTrackRow)(nil),
	}
}
