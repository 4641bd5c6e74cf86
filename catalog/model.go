package catalog

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
)

// EntityType names a cacheable entity of the content graph.
type EntityType string

const (
	EntityArtist   EntityType = "artist"
	EntityAlbum    EntityType = "album"
	EntityGenre    EntityType = "genre"
	EntityMusic    EntityType = "music"
	EntityPlaylist EntityType = "playlist"
)

// EntityTypes lists every entity type in fan-out order.
func EntityTypes() []EntityType {
	return []EntityType{EntityArtist, EntityAlbum, EntityGenre, EntityMusic, EntityPlaylist}
}

// ProcessingStatus tracks a Music row through the ingestion pipeline.
type ProcessingStatus string

const (
	StatusPending     ProcessingStatus = "pending"
	StatusProbing     ProcessingStatus = "probing"
	StatusTranscoding ProcessingStatus = "transcoding"
	StatusDone        ProcessingStatus = "done"
	StatusFailed      ProcessingStatus = "failed"
)

// Terminal reports whether the pipeline has finished with the asset.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// TranscodeState is the at-most-once guard for compression.
// Anything other than TranscodeNone means automatic ingestion must not
// submit the asset to the transcoder again.
type TranscodeState string

const (
	TranscodeNone   TranscodeState = "none"
	TranscodeDone   TranscodeState = "done"
	TranscodeFailed TranscodeState = "failed"
)

// Attempted reports whether a transcode already ran for the asset.
func (t TranscodeState) Attempted() bool {
	return t == TranscodeDone || t == TranscodeFailed
}

// Bitrate is a transcode target.
type Bitrate string

const (
	BitrateLow    Bitrate = "128k"
	BitrateMedium Bitrate = "192k"
	BitrateHigh   Bitrate = "320k"
)

// DefaultBitrate is used when no quality is configured.
const DefaultBitrate = BitrateMedium

// ParseBitrate accepts either a quality name (low, medium, high) or the
// bitrate itself. An empty string yields the default.
func ParseBitrate(s string) (Bitrate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultBitrate, nil
	case "low", string(BitrateLow):
		return BitrateLow, nil
	case "medium", string(BitrateMedium):
		return BitrateMedium, nil
	case "high", string(BitrateHigh):
		return BitrateHigh, nil
	}
	return "", fmt.Errorf("unknown bitrate %q", s)
}

// Artist owns albums and music.
type Artist struct {
	ID               string    `json:"id" msgpack:"id"`
	StageName        string    `json:"stage_name" msgpack:"stage_name"`
	GenreID          *string   `json:"genre_id,omitempty" msgpack:"genre_id"`
	FollowersCount   int64     `json:"followers_count" msgpack:"followers_count"`
	MonthlyListeners int64     `json:"monthly_listeners" msgpack:"monthly_listeners"`
	IsActive         bool      `json:"is_active" msgpack:"is_active"`
	CreatedAt        time.Time `json:"created_at" msgpack:"created_at"`
}

// Refs returns the parent references of the artist.
func (a *Artist) Refs() ParentRefs {
	return ParentRefs{GenreID: deref(a.GenreID)}
}

// ChangedFields lists the columns that differ between old and a.
func (a *Artist) ChangedFields(old *Artist) []string {
	out := []string{}
	if old.StageName != a.StageName {
		out = append(out, "stage_name")
	}
	if deref(old.GenreID) != deref(a.GenreID) {
		out = append(out, "genre_id")
	}
	if old.FollowersCount != a.FollowersCount {
		out = append(out, "followers_count")
	}
	if old.MonthlyListeners != a.MonthlyListeners {
		out = append(out, "monthly_listeners")
	}
	if old.IsActive != a.IsActive {
		out = append(out, "is_active")
	}
	return out
}

// Album belongs to an artist. Duration and track count are derived.
type Album struct {
	ID          string    `json:"id" msgpack:"id"`
	ArtistID    string    `json:"artist_id" msgpack:"artist_id"`
	Name        string    `json:"name" msgpack:"name"`
	Featured    bool      `json:"featured" msgpack:"featured"`
	ReleaseDate time.Time `json:"release_date" msgpack:"release_date"`
	CreatedAt   time.Time `json:"created_at" msgpack:"created_at"`
}

// Refs returns the parent references of the album.
func (a *Album) Refs() ParentRefs {
	return ParentRefs{ArtistID: a.ArtistID}
}

// ChangedFields lists the columns that differ between old and a.
func (a *Album) ChangedFields(old *Album) []string {
	out := []string{}
	if old.ArtistID != a.ArtistID {
		out = append(out, "artist_id")
	}
	if old.Name != a.Name {
		out = append(out, "name")
	}
	if old.Featured != a.Featured {
		out = append(out, "featured")
	}
	if !old.ReleaseDate.Equal(a.ReleaseDate) {
		out = append(out, "release_date")
	}
	return out
}

// Genre may nest under a parent genre.
type Genre struct {
	ID       string  `json:"id" msgpack:"id"`
	Name     string  `json:"name" msgpack:"name"`
	Slug     string  `json:"slug" msgpack:"slug"`
	ParentID *string `json:"parent_id,omitempty" msgpack:"parent_id"`
	IsActive bool    `json:"is_active" msgpack:"is_active"`
}

// Refs returns the parent references of the genre.
func (g *Genre) Refs() ParentRefs {
	return ParentRefs{ParentGenreID: deref(g.ParentID)}
}

// ChangedFields lists the columns that differ between old and g.
func (g *Genre) ChangedFields(old *Genre) []string {
	out := []string{}
	if old.Name != g.Name {
		out = append(out, "name")
	}
	if old.Slug != g.Slug {
		out = append(out, "slug")
	}
	if deref(old.ParentID) != deref(g.ParentID) {
		out = append(out, "parent_id")
	}
	if old.IsActive != g.IsActive {
		out = append(out, "is_active")
	}
	return out
}

// Music is a single track. Duration is nil until the probe step completes.
type Music struct {
	ID             string           `json:"id" msgpack:"id"`
	ArtistID       string           `json:"artist_id" msgpack:"artist_id"`
	AlbumID        *string          `json:"album_id,omitempty" msgpack:"album_id"`
	GenreID        *string          `json:"genre_id,omitempty" msgpack:"genre_id"`
	Title          string           `json:"title" msgpack:"title"`
	Duration       *int             `json:"duration" msgpack:"duration"`
	FileRef        string           `json:"file_ref" msgpack:"file_ref"`
	FileSize       int64            `json:"file_size" msgpack:"file_size"`
	Transcode      TranscodeState   `json:"transcode" msgpack:"transcode"`
	Status         ProcessingStatus `json:"processing_status" msgpack:"processing_status"`
	StreamsCount   int64            `json:"streams_count" msgpack:"streams_count"`
	DownloadsCount int64            `json:"downloads_count" msgpack:"downloads_count"`
	LikesCount     int64            `json:"likes_count" msgpack:"likes_count"`
	IsFeatured     bool             `json:"is_featured" msgpack:"is_featured"`
	IsActive       bool             `json:"is_active" msgpack:"is_active"`
	CreatedAt      time.Time        `json:"created_at" msgpack:"created_at"`
}

// DurationLabel formats the duration as M:SS, or "" when it is unknown.
func (m *Music) DurationLabel() string {
	if m == nil || m.Duration == nil {
		return ""
	}
	return FormatDuration(*m.Duration)
}

// NeedsIngestion reports whether a freshly created row must go through the
// ingestion pipeline.
func (m *Music) NeedsIngestion() bool {
	return m != nil && m.FileRef != "" && m.Duration == nil
}

// IsPopular mirrors the catalog rule of more than 1000 streams.
func (m *Music) IsPopular() bool {
	return m.StreamsCount > PopularMinStreams
}

// IsTrending reports a track created within the trending window with more
// than TrendingMinStreams streams.
func (m *Music) IsTrending(now time.Time) bool {
	return !m.CreatedAt.Before(now.Add(-TrendingWindow)) && m.StreamsCount > TrendingMinStreams
}

// Refs returns the parent references of the track.
func (m *Music) Refs() ParentRefs {
	return ParentRefs{ArtistID: m.ArtistID, AlbumID: deref(m.AlbumID), GenreID: deref(m.GenreID)}
}

// PrepareNew resets the columns owned by the ingestion pipeline on a row
// about to be created. Durations are never user supplied.
func (m *Music) PrepareNew() {
	m.Duration = nil
	m.Transcode = TranscodeNone
	if m.FileRef != "" {
		m.Status = StatusPending
	} else {
		m.Status = StatusDone
	}
}

// KeepMedia copies the pipeline owned columns of stored onto m, so a
// regular update cannot overwrite them.
func (m *Music) KeepMedia(stored *Music) {
	m.Duration = stored.Duration
	m.FileRef = stored.FileRef
	m.FileSize = stored.FileSize
	m.Transcode = stored.Transcode
	m.Status = stored.Status
}

// ChangedFields lists the columns that differ between old and m.
func (m *Music) ChangedFields(old *Music) []string {
	out := []string{}
	add := func(diff bool, name string) {
		if diff {
			out = append(out, name)
		}
	}
	add(old.Title != m.Title, "title")
	add(old.ArtistID != m.ArtistID, "artist_id")
	add(deref(old.AlbumID) != deref(m.AlbumID), "album_id")
	add(deref(old.GenreID) != deref(m.GenreID), "genre_id")
	add(!sameInt(old.Duration, m.Duration), "duration")
	add(old.FileRef != m.FileRef, "file_ref")
	add(old.FileSize != m.FileSize, "file_size")
	add(old.Transcode != m.Transcode, "transcode")
	add(old.Status != m.Status, "processing_status")
	add(old.StreamsCount != m.StreamsCount, string(CounterStreams))
	add(old.DownloadsCount != m.DownloadsCount, string(CounterDownloads))
	add(old.LikesCount != m.LikesCount, string(CounterLikes))
	add(old.IsFeatured != m.IsFeatured, "is_featured")
	add(old.IsActive != m.IsActive, "is_active")
	return out
}

// Playlist keeps an ordered set of music ids.
type Playlist struct {
	ID         string    `json:"id" msgpack:"id"`
	Name       string    `json:"name" msgpack:"name"`
	MusicIDs   []string  `json:"music_ids" msgpack:"music_ids"`
	IsFeatured bool      `json:"is_featured" msgpack:"is_featured"`
	IsActive   bool      `json:"is_active" msgpack:"is_active"`
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
}

// ChangedFields lists the columns that differ between old and p.
func (p *Playlist) ChangedFields(old *Playlist) []string {
	out := []string{}
	if old.Name != p.Name {
		out = append(out, "name")
	}
	if !slices.Equal(old.MusicIDs, p.MusicIDs) {
		out = append(out, "music_ids")
	}
	if old.IsFeatured != p.IsFeatured {
		out = append(out, "is_featured")
	}
	if old.IsActive != p.IsActive {
		out = append(out, "is_active")
	}
	return out
}

// Counter names a per-track engagement counter.
type Counter string

const (
	CounterStreams   Counter = "streams_count"
	CounterDownloads Counter = "downloads_count"
	CounterLikes     Counter = "likes_count"
)

// Valid reports whether c is a known counter column.
func (c Counter) Valid() bool {
	switch c {
	case CounterStreams, CounterDownloads, CounterLikes:
		return true
	}
	return false
}

// Slugify derives a genre slug from its name.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
