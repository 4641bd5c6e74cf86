package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-cache/catalog"
)

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
// The path is relative to the test package directory.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// TempAudio writes a file of exactly size bytes under the test's temp dir
// and returns its path. The content is deterministic, so equal sizes give
// equal checksums.
func TempAudio(t *testing.T, name string, size int64) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create audio fixture: %v", err)
	}
	defer f.Close()

	chunk := make([]byte, 64*1024)
	for i := range chunk {
		chunk[i] = byte(i % 251)
	}
	for remaining := size; remaining > 0; {
		n := min(remaining, int64(len(chunk)))
		if _, err := f.Write(chunk[:n]); err != nil {
			t.Fatalf("failed to write audio fixture: %v", err)
		}
		remaining -= n
	}
	return path
}

// FixedClock returns a clock frozen at ts.
func FixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

// Seed holds the ids created by SeedCatalog.
type Seed struct {
	GenreID    string
	SubgenreID string
	ArtistID   string
	AlbumID    string
	PlaylistID string
	// MusicIDs are two album tracks (180s, 294s) and a single (474s).
	MusicIDs []string
}

// SeedCatalog writes a small connected catalog: a genre with one subgenre,
// an artist with one album of two tracks plus a single, and a playlist
// holding the first album track and the single.
func SeedCatalog(t testing.TB, w catalog.Writer) Seed {
	t.Helper()
	ctx := context.Background()

	s := Seed{
		GenreID:    "genre-rock",
		SubgenreID: "genre-indie",
		ArtistID:   "artist-1",
		AlbumID:    "album-1",
		PlaylistID: "playlist-1",
		MusicIDs:   []string{"music-1", "music-2", "music-3"},
	}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}

	must(w.CreateGenre(ctx, &catalog.Genre{ID: s.GenreID, Name: "Rock", IsActive: true}))
	must(w.CreateGenre(ctx, &catalog.Genre{ID: s.SubgenreID, Name: "Indie Rock", ParentID: catalog.StringPtr(s.GenreID), IsActive: true}))
	must(w.CreateArtist(ctx, &catalog.Artist{ID: s.ArtistID, StageName: "The Examples", GenreID: catalog.StringPtr(s.GenreID), IsActive: true}))
	must(w.CreateAlbum(ctx, &catalog.Album{ID: s.AlbumID, ArtistID: s.ArtistID, Name: "First", Featured: true}))

	tracks := []struct {
		music    catalog.Music
		duration int
	}{
		{catalog.Music{ID: s.MusicIDs[0], ArtistID: s.ArtistID, AlbumID: catalog.StringPtr(s.AlbumID), GenreID: catalog.StringPtr(s.GenreID), Title: "Opening", StreamsCount: 1500, IsActive: true, IsFeatured: true}, 180},
		{catalog.Music{ID: s.MusicIDs[1], ArtistID: s.ArtistID, AlbumID: catalog.StringPtr(s.AlbumID), GenreID: catalog.StringPtr(s.GenreID), Title: "Second", StreamsCount: 150, IsActive: true}, 294},
		{catalog.Music{ID: s.MusicIDs[2], ArtistID: s.ArtistID, GenreID: catalog.StringPtr(s.SubgenreID), Title: "Single", StreamsCount: 10, IsActive: true}, 474},
	}
	for _, tr := range tracks {
		m := tr.music
		must(w.CreateMusic(ctx, &m))
		done := catalog.StatusDone
		must(w.UpdateMusicMedia(ctx, m.ID, catalog.MediaPatch{Duration: catalog.IntPtr(tr.duration), Status: &done}))
	}

	must(w.CreatePlaylist(ctx, &catalog.Playlist{
		ID: s.PlaylistID, Name: "Mix", IsActive: true,
		MusicIDs: []string{s.MusicIDs[0], s.MusicIDs[2]},
	}))
	return s
}
