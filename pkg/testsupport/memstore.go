package testsupport

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-catalog-cache/catalog"
)

// MemoryStore is an in-memory catalog.Store. It follows the same write
// rules as the SQL store and emits one event per committed write, which
// makes it a drop-in content store for cache and ingestion tests.
type MemoryStore struct {
	mu        sync.RWMutex
	artists   map[string]catalog.Artist
	albums    map[string]catalog.Album
	genres    map[string]catalog.Genre
	music     map[string]catalog.Music
	playlists map[string]catalog.Playlist

	calls   map[string]int
	readErr error

	bus catalog.Bus
	Now func() time.Time
}

var _ catalog.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artists:   map[string]catalog.Artist{},
		albums:    map[string]catalog.Album{},
		genres:    map[string]catalog.Genre{},
		music:     map[string]catalog.Music{},
		playlists: map[string]catalog.Playlist{},
		calls:     map[string]int{},
		Now:       time.Now,
	}
}

func (s *MemoryStore) Subscribe(l catalog.MutationListener) {
	s.bus.Subscribe(l)
}

// Calls returns how many times the read method name was invoked.
func (s *MemoryStore) Calls(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[name]
}

// ResetCalls clears the read counters.
func (s *MemoryStore) ResetCalls() {
	s.mu.Lock()
	s.calls = map[string]int{}
	s.mu.Unlock()
}

// FailReads makes every read return err until it is called with nil.
func (s *MemoryStore) FailReads(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

func (s *MemoryStore) read(name string) error {
	s.calls[name]++
	return s.readErr
}

func (s *MemoryStore) emit(ctx context.Context, ev catalog.MutationEvent) {
	ev.At = s.Now()
	s.bus.Emit(ctx, ev)
}

func (s *MemoryStore) emitAll(ctx context.Context, evs []catalog.MutationEvent) {
	for _, ev := range evs {
		s.emit(ctx, ev)
	}
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// Reads.

func (s *MemoryStore) Artist(ctx context.Context, id string) (*catalog.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("Artist"); err != nil {
		return nil, err
	}
	a, ok := s.artists[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) Album(ctx context.Context, id string) (*catalog.Album, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("Album"); err != nil {
		return nil, err
	}
	a, ok := s.albums[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) Genre(ctx context.Context, id string) (*catalog.Genre, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("Genre"); err != nil {
		return nil, err
	}
	g, ok := s.genres[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &g, nil
}

func (s *MemoryStore) Music(ctx context.Context, id string) (*catalog.Music, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("Music"); err != nil {
		return nil, err
	}
	m, ok := s.music[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) Playlist(ctx context.Context, id string) (*catalog.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("Playlist"); err != nil {
		return nil, err
	}
	p, ok := s.playlists[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	p.MusicIDs = slices.Clone(p.MusicIDs)
	return &p, nil
}

func (s *MemoryStore) ListArtists(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Artist], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("ListArtists"); err != nil {
		return catalog.Page[catalog.Artist]{}, err
	}
	var rows []catalog.Artist
	for _, a := range s.artists {
		if q.GenreID != "" && q.GenreID != deref(a.GenreID) {
			continue
		}
		if q.Active != nil && *q.Active != a.IsActive {
			continue
		}
		if !matches(q.Search, a.StageName) {
			continue
		}
		rows = append(rows, a)
	}
	sortRows(rows, q.Ordering, func(a catalog.Artist) sortKey {
		return sortKey{id: a.ID, name: a.StageName, created: a.CreatedAt, followers: a.FollowersCount}
	})
	return paginate(rows, q), nil
}

func (s *MemoryStore) ListAlbums(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Album], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("ListAlbums"); err != nil {
		return catalog.Page[catalog.Album]{}, err
	}
	var rows []catalog.Album
	for _, a := range s.albums {
		if q.ArtistID != "" && q.ArtistID != a.ArtistID {
			continue
		}
		if q.Featured != nil && *q.Featured != a.Featured {
			continue
		}
		if !matches(q.Search, a.Name) {
			continue
		}
		rows = append(rows, a)
	}
	sortRows(rows, q.Ordering, func(a catalog.Album) sortKey {
		return sortKey{id: a.ID, name: a.Name, created: a.CreatedAt, released: a.ReleaseDate}
	})
	return paginate(rows, q), nil
}

func (s *MemoryStore) ListGenres(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Genre], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("ListGenres"); err != nil {
		return catalog.Page[catalog.Genre]{}, err
	}
	var rows []catalog.Genre
	for _, g := range s.genres {
		if q.Active != nil && *q.Active != g.IsActive {
			continue
		}
		if !matches(q.Search, g.Name) {
			continue
		}
		rows = append(rows, g)
	}
	if q.Ordering == "" {
		q.Ordering = "name"
	}
	sortRows(rows, q.Ordering, func(g catalog.Genre) sortKey {
		return sortKey{id: g.ID, name: g.Name}
	})
	return paginate(rows, q), nil
}

func (s *MemoryStore) ListMusic(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Music], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("ListMusic"); err != nil {
		return catalog.Page[catalog.Music]{}, err
	}
	var rows []catalog.Music
	for _, m := range s.music {
		if q.ArtistID != "" && q.ArtistID != m.ArtistID {
			continue
		}
		if q.AlbumID != "" && q.AlbumID != deref(m.AlbumID) {
			continue
		}
		if q.GenreID != "" && q.GenreID != deref(m.GenreID) {
			continue
		}
		if q.Featured != nil && *q.Featured != m.IsFeatured {
			continue
		}
		if q.Active != nil && *q.Active != m.IsActive {
			continue
		}
		if q.StreamsOver > 0 && m.StreamsCount <= q.StreamsOver {
			continue
		}
		if !q.CreatedAfter.IsZero() && m.CreatedAt.Before(q.CreatedAfter) {
			continue
		}
		if !matches(q.Search, m.Title) {
			continue
		}
		rows = append(rows, m)
	}
	sortRows(rows, q.Ordering, func(m catalog.Music) sortKey {
		return sortKey{id: m.ID, name: m.Title, created: m.CreatedAt, streams: m.StreamsCount}
	})
	return paginate(rows, q), nil
}

func (s *MemoryStore) ListPlaylists(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Playlist], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("ListPlaylists"); err != nil {
		return catalog.Page[catalog.Playlist]{}, err
	}
	var rows []catalog.Playlist
	for _, p := range s.playlists {
		if q.Featured != nil && *q.Featured != p.IsFeatured {
			continue
		}
		if q.Active != nil && *q.Active != p.IsActive {
			continue
		}
		if !matches(q.Search, p.Name) {
			continue
		}
		p.MusicIDs = slices.Clone(p.MusicIDs)
		rows = append(rows, p)
	}
	sortRows(rows, q.Ordering, func(p catalog.Playlist) sortKey {
		return sortKey{id: p.ID, name: p.Name, created: p.CreatedAt}
	})
	return paginate(rows, q), nil
}

func (s *MemoryStore) AlbumTracks(ctx context.Context, albumID string) ([]catalog.Music, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("AlbumTracks"); err != nil {
		return nil, err
	}
	var out []catalog.Music
	for _, m := range s.music {
		if deref(m.AlbumID) == albumID {
			out = append(out, m)
		}
	}
	sortRows(out, "created_at", func(m catalog.Music) sortKey {
		return sortKey{id: m.ID, created: m.CreatedAt}
	})
	return out, nil
}

func (s *MemoryStore) PlaylistTracks(ctx context.Context, playlistID string) ([]catalog.Music, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("PlaylistTracks"); err != nil {
		return nil, err
	}
	p, ok := s.playlists[playlistID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	out := make([]catalog.Music, 0, len(p.MusicIDs))
	for _, id := range p.MusicIDs {
		if m, ok := s.music[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) ArtistStats(ctx context.Context, artistID string) (catalog.ArtistStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("ArtistStats"); err != nil {
		return catalog.ArtistStats{}, err
	}
	if _, ok := s.artists[artistID]; !ok {
		return catalog.ArtistStats{}, catalog.ErrNotFound
	}
	st := catalog.ArtistStats{ArtistID: artistID}
	for _, m := range s.music {
		if m.ArtistID != artistID {
			continue
		}
		st.TrackCount++
		st.TotalStreams += m.StreamsCount
		st.TotalDownloads += m.DownloadsCount
		st.TotalLikes += m.LikesCount
	}
	for _, a := range s.albums {
		if a.ArtistID == artistID {
			st.AlbumCount++
		}
	}
	return st, nil
}

func (s *MemoryStore) GenreCounts(ctx context.Context, genreID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("GenreCounts"); err != nil {
		return 0, 0, err
	}
	songs, artists := 0, 0
	for _, m := range s.music {
		if deref(m.GenreID) == genreID {
			songs++
		}
	}
	for _, a := range s.artists {
		if deref(a.GenreID) == genreID {
			artists++
		}
	}
	return songs, artists, nil
}

func (s *MemoryStore) Subgenres(ctx context.Context, genreID string) ([]catalog.Genre, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("Subgenres"); err != nil {
		return nil, err
	}
	var out []catalog.Genre
	for _, g := range s.genres {
		if deref(g.ParentID) == genreID {
			out = append(out, g)
		}
	}
	sortRows(out, "name", func(g catalog.Genre) sortKey { return sortKey{id: g.ID, name: g.Name} })
	return out, nil
}

func (s *MemoryStore) PlaylistsContaining(ctx context.Context, musicID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read("PlaylistsContaining"); err != nil {
		return nil, err
	}
	return s.playlistsContaining(musicID), nil
}

func (s *MemoryStore) playlistsContaining(musicID string) []string {
	var out []string
	for id, p := range s.playlists {
		if slices.Contains(p.MusicIDs, musicID) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Writes.

func (s *MemoryStore) CreateArtist(ctx context.Context, a *catalog.Artist) error {
	s.mu.Lock()
	a.ID = newID(a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.Now()
	}
	s.artists[a.ID] = *a
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityArtist, ID: a.ID, Op: catalog.OpCreated, Parents: a.Refs()})
	return nil
}

func (s *MemoryStore) UpdateArtist(ctx context.Context, a *catalog.Artist) error {
	s.mu.Lock()
	old, ok := s.artists[a.ID]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	a.CreatedAt = old.CreatedAt
	s.artists[a.ID] = *a
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{
		Type: catalog.EntityArtist, ID: a.ID, Op: catalog.OpUpdated,
		Parents: a.Refs(), Previous: old.Refs(), Changed: a.ChangedFields(&old),
	})
	return nil
}

// DeleteArtist removes the artist with its albums and tracks.
func (s *MemoryStore) DeleteArtist(ctx context.Context, id string) error {
	s.mu.Lock()
	old, ok := s.artists[id]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	var deps []catalog.MutationEvent
	for _, mid := range s.sortedMusic(func(m catalog.Music) bool { return m.ArtistID == id }) {
		deps = append(deps, s.deleteMusicLocked(mid))
	}
	for _, aid := range sortedKeys(s.albums) {
		a := s.albums[aid]
		if a.ArtistID != id {
			continue
		}
		delete(s.albums, aid)
		deps = append(deps, catalog.MutationEvent{Type: catalog.EntityAlbum, ID: aid, Op: catalog.OpDeleted, Parents: a.Refs()})
	}
	delete(s.artists, id)
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityArtist, ID: id, Op: catalog.OpDeleted, Parents: old.Refs()})
	s.emitAll(ctx, deps)
	return nil
}

func (s *MemoryStore) CreateAlbum(ctx context.Context, a *catalog.Album) error {
	s.mu.Lock()
	a.ID = newID(a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.Now()
	}
	s.albums[a.ID] = *a
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityAlbum, ID: a.ID, Op: catalog.OpCreated, Parents: a.Refs()})
	return nil
}

func (s *MemoryStore) UpdateAlbum(ctx context.Context, a *catalog.Album) error {
	s.mu.Lock()
	old, ok := s.albums[a.ID]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	a.CreatedAt = old.CreatedAt
	s.albums[a.ID] = *a
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{
		Type: catalog.EntityAlbum, ID: a.ID, Op: catalog.OpUpdated,
		Parents: a.Refs(), Previous: old.Refs(), Changed: a.ChangedFields(&old),
	})
	return nil
}

// DeleteAlbum removes the album. Its tracks stay as singles.
func (s *MemoryStore) DeleteAlbum(ctx context.Context, id string) error {
	s.mu.Lock()
	old, ok := s.albums[id]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	var deps []catalog.MutationEvent
	for _, mid := range s.sortedMusic(func(m catalog.Music) bool { return m.AlbumID != nil && *m.AlbumID == id }) {
		before := s.music[mid]
		after := before
		after.AlbumID = nil
		s.music[mid] = after
		deps = append(deps, catalog.Detached(catalog.EntityMusic, mid, before.Refs(), after.Refs(), "album_id"))
	}
	delete(s.albums, id)
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityAlbum, ID: id, Op: catalog.OpDeleted, Parents: old.Refs()})
	s.emitAll(ctx, deps)
	return nil
}

func (s *MemoryStore) CreateGenre(ctx context.Context, g *catalog.Genre) error {
	s.mu.Lock()
	g.ID = newID(g.ID)
	if g.Slug == "" {
		g.Slug = catalog.Slugify(g.Name)
	}
	s.genres[g.ID] = *g
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityGenre, ID: g.ID, Op: catalog.OpCreated, Parents: g.Refs()})
	return nil
}

func (s *MemoryStore) UpdateGenre(ctx context.Context, g *catalog.Genre) error {
	s.mu.Lock()
	old, ok := s.genres[g.ID]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	if g.Slug == "" {
		g.Slug = catalog.Slugify(g.Name)
	}
	s.genres[g.ID] = *g
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{
		Type: catalog.EntityGenre, ID: g.ID, Op: catalog.OpUpdated,
		Parents: g.Refs(), Previous: old.Refs(), Changed: g.ChangedFields(&old),
	})
	return nil
}

// DeleteGenre removes the genre and its subgenres. Tracks and artists of
// any removed genre lose their genre.
func (s *MemoryStore) DeleteGenre(ctx context.Context, id string) error {
	s.mu.Lock()
	old, ok := s.genres[id]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}

	removed := map[string]bool{id: true}
	var subgenres []string
	for frontier := []string{id}; len(frontier) > 0; {
		var next []string
		for _, gid := range sortedKeys(s.genres) {
			g := s.genres[gid]
			if g.ParentID != nil && slices.Contains(frontier, *g.ParentID) && !removed[gid] {
				removed[gid] = true
				next = append(next, gid)
			}
		}
		subgenres = append(subgenres, next...)
		frontier = next
	}

	var deps []catalog.MutationEvent
	for _, mid := range s.sortedMusic(func(m catalog.Music) bool { return m.GenreID != nil && removed[*m.GenreID] }) {
		before := s.music[mid]
		after := before
		after.GenreID = nil
		s.music[mid] = after
		deps = append(deps, catalog.Detached(catalog.EntityMusic, mid, before.Refs(), after.Refs(), "genre_id"))
	}
	for _, aid := range sortedKeys(s.artists) {
		before := s.artists[aid]
		if before.GenreID == nil || !removed[*before.GenreID] {
			continue
		}
		after := before
		after.GenreID = nil
		s.artists[aid] = after
		deps = append(deps, catalog.Detached(catalog.EntityArtist, aid, before.Refs(), after.Refs(), "genre_id"))
	}
	for _, gid := range subgenres {
		g := s.genres[gid]
		delete(s.genres, gid)
		deps = append(deps, catalog.MutationEvent{Type: catalog.EntityGenre, ID: gid, Op: catalog.OpDeleted, Parents: g.Refs()})
	}
	delete(s.genres, id)
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityGenre, ID: id, Op: catalog.OpDeleted, Parents: old.Refs()})
	s.emitAll(ctx, deps)
	return nil
}

func (s *MemoryStore) CreateMusic(ctx context.Context, m *catalog.Music) error {
	s.mu.Lock()
	m.ID = newID(m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.Now()
	}
	m.PrepareNew()
	s.music[m.ID] = *m
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityMusic, ID: m.ID, Op: catalog.OpCreated, Parents: m.Refs()})
	return nil
}

func (s *MemoryStore) UpdateMusic(ctx context.Context, m *catalog.Music) error {
	s.mu.Lock()
	old, ok := s.music[m.ID]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	m.CreatedAt = old.CreatedAt
	m.KeepMedia(&old)
	s.music[m.ID] = *m
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{
		Type: catalog.EntityMusic, ID: m.ID, Op: catalog.OpUpdated,
		Parents: m.Refs(), Previous: old.Refs(), Changed: m.ChangedFields(&old),
	})
	return nil
}

func (s *MemoryStore) DeleteMusic(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.music[id]; !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	ev := s.deleteMusicLocked(id)
	s.mu.Unlock()

	s.emit(ctx, ev)
	return nil
}

// deleteMusicLocked removes a track and its playlist memberships.
func (s *MemoryStore) deleteMusicLocked(id string) catalog.MutationEvent {
	old := s.music[id]
	related := s.playlistsContaining(id)
	for _, pid := range related {
		p := s.playlists[pid]
		p.MusicIDs = slices.DeleteFunc(slices.Clone(p.MusicIDs), func(v string) bool { return v == id })
		s.playlists[pid] = p
	}
	delete(s.music, id)
	return catalog.MutationEvent{
		Type: catalog.EntityMusic, ID: id, Op: catalog.OpDeleted,
		Parents: old.Refs(), Related: related,
	}
}

func (s *MemoryStore) sortedMusic(match func(catalog.Music) bool) []string {
	var ids []string
	for id, m := range s.music {
		if match(m) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *MemoryStore) IncrementMusicCounter(ctx context.Context, id string, c catalog.Counter) (int64, error) {
	if !c.Valid() {
		return 0, catalog.ErrInvalidCounter
	}
	s.mu.Lock()
	m, ok := s.music[id]
	if !ok {
		s.mu.Unlock()
		return 0, catalog.ErrNotFound
	}
	var n int64
	switch c {
	case catalog.CounterStreams:
		m.StreamsCount++
		n = m.StreamsCount
	case catalog.CounterDownloads:
		m.DownloadsCount++
		n = m.DownloadsCount
	case catalog.CounterLikes:
		m.LikesCount++
		n = m.LikesCount
	}
	s.music[id] = m
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{
		Type: catalog.EntityMusic, ID: id, Op: catalog.OpUpdated,
		Parents: m.Refs(), Previous: m.Refs(), Changed: []string{string(c)},
	})
	return n, nil
}

func (s *MemoryStore) UpdateMusicMedia(ctx context.Context, id string, patch catalog.MediaPatch) error {
	s.mu.Lock()
	m, ok := s.music[id]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	patch.Apply(&m)
	s.music[id] = m
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{
		Type: catalog.EntityMusic, ID: id, Op: catalog.OpUpdated,
		Parents: m.Refs(), Previous: m.Refs(), Changed: patch.Fields(),
	})
	return nil
}

func (s *MemoryStore) CreatePlaylist(ctx context.Context, p *catalog.Playlist) error {
	s.mu.Lock()
	p.ID = newID(p.ID)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.Now()
	}
	p.MusicIDs = slices.Clone(p.MusicIDs)
	s.playlists[p.ID] = *p
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityPlaylist, ID: p.ID, Op: catalog.OpCreated, Related: p.MusicIDs})
	return nil
}

func (s *MemoryStore) UpdatePlaylist(ctx context.Context, p *catalog.Playlist) error {
	s.mu.Lock()
	old, ok := s.playlists[p.ID]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	p.CreatedAt = old.CreatedAt
	p.MusicIDs = slices.Clone(p.MusicIDs)
	s.playlists[p.ID] = *p
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{
		Type: catalog.EntityPlaylist, ID: p.ID, Op: catalog.OpUpdated, Changed: p.ChangedFields(&old),
	})
	return nil
}

func (s *MemoryStore) DeletePlaylist(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.playlists[id]; !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	delete(s.playlists, id)
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{Type: catalog.EntityPlaylist, ID: id, Op: catalog.OpDeleted})
	return nil
}

func (s *MemoryStore) AddToPlaylist(ctx context.Context, playlistID string, musicIDs ...string) error {
	return s.editPlaylist(ctx, playlistID, musicIDs, func(ids []string) ([]string, error) {
		for _, id := range musicIDs {
			if _, ok := s.music[id]; !ok {
				return nil, catalog.ErrNotFound
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		return ids, nil
	})
}

func (s *MemoryStore) RemoveFromPlaylist(ctx context.Context, playlistID string, musicIDs ...string) error {
	return s.editPlaylist(ctx, playlistID, musicIDs, func(ids []string) ([]string, error) {
		return slices.DeleteFunc(ids, func(v string) bool { return slices.Contains(musicIDs, v) }), nil
	})
}

func (s *MemoryStore) ReorderPlaylist(ctx context.Context, playlistID string, musicIDs []string) error {
	return s.editPlaylist(ctx, playlistID, musicIDs, func(ids []string) ([]string, error) {
		return catalog.Reorder(ids, musicIDs)
	})
}

func (s *MemoryStore) editPlaylist(ctx context.Context, playlistID string, related []string, edit func([]string) ([]string, error)) error {
	s.mu.Lock()
	p, ok := s.playlists[playlistID]
	if !ok {
		s.mu.Unlock()
		return catalog.ErrNotFound
	}
	ids, err := edit(slices.Clone(p.MusicIDs))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	p.MusicIDs = ids
	s.playlists[playlistID] = p
	s.mu.Unlock()

	s.emit(ctx, catalog.MutationEvent{
		Type: catalog.EntityPlaylist, ID: playlistID, Op: catalog.OpUpdated,
		Changed: []string{"music_ids"}, Related: slices.Clone(related),
	})
	return nil
}

type sortKey struct {
	id        string
	name      string
	created   time.Time
	released  time.Time
	streams   int64
	followers int64
}

// sortRows orders rows by a catalog ordering such as "-streams_count".
// Unknown orderings sort newest first. Ties break on id.
func sortRows[T any](rows []T, ordering string, key func(T) sortKey) {
	desc := strings.HasPrefix(ordering, "-")
	field := strings.TrimPrefix(ordering, "-")
	if field == "" {
		field, desc = "created_at", true
	}

	less := func(a, b sortKey) int {
		switch field {
		case "name", "title", "stage_name":
			return strings.Compare(strings.ToLower(a.name), strings.ToLower(b.name))
		case "streams_count":
			return cmpInt(a.streams, b.streams)
		case "followers_count":
			return cmpInt(a.followers, b.followers)
		case "release_date":
			return a.released.Compare(b.released)
		default:
			return a.created.Compare(b.created)
		}
	}

	slices.SortStableFunc(rows, func(x, y T) int {
		a, b := key(x), key(y)
		c := less(a, b)
		if desc {
			c = -c
		}
		if c == 0 {
			return strings.Compare(a.id, b.id)
		}
		return c
	})
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func paginate[T any](rows []T, q catalog.Query) catalog.Page[T] {
	n := q.Normalize()
	page := catalog.Page[T]{Items: []T{}, Total: len(rows), Page: n.Page, PageSize: n.PageSize}
	start := n.Offset()
	if start >= len(rows) {
		return page
	}
	end := min(start+n.PageSize, len(rows))
	page.Items = append(page.Items, rows[start:end]...)
	return page
}

func matches(search, value string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(search))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
