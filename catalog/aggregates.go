package catalog

import (
	"fmt"
	"time"
)

const (
	// TrendingWindow bounds how recent a trending track must be.
	TrendingWindow = 7 * 24 * time.Hour
	// TrendingMinStreams is the exclusive stream threshold for trending tracks.
	TrendingMinStreams = 100
	// PopularMinStreams is the exclusive stream threshold for popular tracks.
	PopularMinStreams = 1000
	// HighlightLimit caps trending and popular lists.
	HighlightLimit = 20
)

// AlbumDetail is an album with figures recomputed from its current tracks.
type AlbumDetail struct {
	Album         Album   `json:"album" msgpack:"album"`
	Tracks        []Music `json:"tracks" msgpack:"tracks"`
	TrackCount    int     `json:"track_count" msgpack:"track_count"`
	TotalDuration int     `json:"total_duration" msgpack:"total_duration"`
}

// PlaylistDetail is a playlist with its tracks and derived totals.
type PlaylistDetail struct {
	Playlist      Playlist `json:"playlist" msgpack:"playlist"`
	Tracks        []Music  `json:"tracks" msgpack:"tracks"`
	TrackCount    int      `json:"track_count" msgpack:"track_count"`
	TotalDuration int      `json:"total_duration" msgpack:"total_duration"`
}

// DurationLabel formats the playlist total, using hours when needed.
func (p PlaylistDetail) DurationLabel() string {
	return FormatLongDuration(p.TotalDuration)
}

// ArtistStats aggregates engagement across an artist's catalog.
type ArtistStats struct {
	ArtistID       string `json:"artist_id" msgpack:"artist_id"`
	TrackCount     int    `json:"track_count" msgpack:"track_count"`
	AlbumCount     int    `json:"album_count" msgpack:"album_count"`
	TotalStreams   int64  `json:"total_streams" msgpack:"total_streams"`
	TotalDownloads int64  `json:"total_downloads" msgpack:"total_downloads"`
	TotalLikes     int64  `json:"total_likes" msgpack:"total_likes"`
}

// GenreComplete is a genre with live song and artist counts.
type GenreComplete struct {
	Genre       Genre   `json:"genre" msgpack:"genre"`
	SongCount   int     `json:"song_count" msgpack:"song_count"`
	ArtistCount int     `json:"artist_count" msgpack:"artist_count"`
	Subgenres   []Genre `json:"subgenres" msgpack:"subgenres"`
}

// NewAlbumDetail recomputes the album figures from tracks.
func NewAlbumDetail(album Album, tracks []Music) AlbumDetail {
	return AlbumDetail{
		Album:         album,
		Tracks:        tracks,
		TrackCount:    len(tracks),
		TotalDuration: TotalDuration(tracks),
	}
}

// NewPlaylistDetail recomputes the playlist figures from tracks.
func NewPlaylistDetail(playlist Playlist, tracks []Music) PlaylistDetail {
	return PlaylistDetail{
		Playlist:      playlist,
		Tracks:        tracks,
		TrackCount:    len(tracks),
		TotalDuration: TotalDuration(tracks),
	}
}

// TotalDuration sums known durations; unknown durations count as zero.
func TotalDuration(tracks []Music) int {
	total := 0
	for _, t := range tracks {
		if t.Duration != nil {
			total += *t.Duration
		}
	}
	return total
}

// FormatDuration renders seconds as M:SS without rolling minutes into hours,
// so 3661 becomes "61:01".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatLongDuration renders seconds as H:MM:SS once an hour is reached and
// as M:SS otherwise.
func FormatLongDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	if hours == 0 {
		return FormatDuration(seconds)
	}
	rem := seconds % 3600
	return fmt.Sprintf("%d:%02d:%02d", hours, rem/60, rem%60)
}
