package store

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-cache/catalog"
)

func (s *Store) Artist(ctx context.Context, id string) (*catalog.Artist, error) {
	row := new(artistRow)
	if err := s.db.NewSelect().Model(row).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	a := row.model()
	return &a, nil
}

func (s *Store) Album(ctx context.Context, id string) (*catalog.Album, error) {
	row := new(albumRow)
	if err := s.db.NewSelect().Model(row).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	a := row.model()
	return &a, nil
}

func (s *Store) Genre(ctx context.Context, id string) (*catalog.Genre, error) {
	row := new(genreRow)
	if err := s.db.NewSelect().Model(row).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	g := row.model()
	return &g, nil
}

func (s *Store) Music(ctx context.Context, id string) (*catalog.Music, error) {
	m, err := loadMusic(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	out := m.model()
	return &out, nil
}

func (s *Store) Playlist(ctx context.Context, id string) (*catalog.Playlist, error) {
	row, ids, err := loadPlaylist(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	p := row.model(ids)
	return &p, nil
}

func (s *Store) ListArtists(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Artist], error) {
	var rows []artistRow
	sel := s.db.NewSelect().Model(&rows)
	if q.GenreID != "" {
		sel = sel.Where("?TableAlias.genre_id = ?", q.GenreID)
	}
	if q.Active != nil {
		sel = sel.Where("?TableAlias.is_active = ?", *q.Active)
	}
	sel = search(sel, "stage_name", q.Search)
	sel = orderBy(sel, q.Ordering, "stage_name", "created_at", "followers_count")

	total, err := paged(sel, q).ScanAndCount(ctx)
	if err != nil {
		return catalog.Page[catalog.Artist]{}, err
	}
	items := make([]catalog.Artist, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].model())
	}
	return newPage(items, total, q), nil
}

func (s *Store) ListAlbums(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Album], error) {
	var rows []albumRow
	sel := s.db.NewSelect().Model(&rows)
	if q.ArtistID != "" {
		sel = sel.Where("?TableAlias.artist_id = ?", q.ArtistID)
	}
	if q.Featured != nil {
		sel = sel.Where("?TableAlias.featured = ?", *q.Featured)
	}
	sel = search(sel, "name", q.Search)
	sel = orderBy(sel, q.Ordering, "name", "created_at", "release_date")

	total, err := paged(sel, q).ScanAndCount(ctx)
	if err != nil {
		return catalog.Page[catalog.Album]{}, err
	}
	items := make([]catalog.Album, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].model())
	}
	return newPage(items, total, q), nil
}

func (s *Store) ListGenres(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Genre], error) {
	var rows []genreRow
	sel := s.db.NewSelect().Model(&rows)
	if q.Active != nil {
		sel = sel.Where("?TableAlias.is_active = ?", *q.Active)
	}
	sel = search(sel, "name", q.Search)
	ordering := q.Ordering
	if ordering == "" {
		ordering = "name"
	}
	sel = orderBy(sel, ordering, "name")

	total, err := paged(sel, q).ScanAndCount(ctx)
	if err != nil {
		return catalog.Page[catalog.Genre]{}, err
	}
	items := make([]catalog.Genre, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].model())
	}
	return newPage(items, total, q), nil
}

func (s *Store) ListMusic(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Music], error) {
	var rows []musicRow
	sel := s.db.NewSelect().Model(&rows)
	if q.ArtistID != "" {
		sel = sel.Where("?TableAlias.artist_id = ?", q.ArtistID)
	}
	if q.AlbumID != "" {
		sel = sel.Where("?TableAlias.album_id = ?", q.AlbumID)
	}
	if q.GenreID != "" {
		sel = sel.Where("?TableAlias.genre_id = ?", q.GenreID)
	}
	if q.Featured != nil {
		sel = sel.Where("?TableAlias.is_featured = ?", *q.Featured)
	}
	if q.Active != nil {
		sel = sel.Where("?TableAlias.is_active = ?", *q.Active)
	}
	if q.StreamsOver > 0 {
		sel = sel.Where("?TableAlias.streams_count > ?", q.StreamsOver)
	}
	if !q.CreatedAfter.IsZero() {
		sel = sel.Where("?TableAlias.created_at >= ?", q.CreatedAfter.UTC())
	}
	sel = search(sel, "title", q.Search)
	sel = orderBy(sel, q.Ordering, "title", "created_at", "streams_count")

	total, err := paged(sel, q).ScanAndCount(ctx)
	if err != nil {
		return catalog.Page[catalog.Music]{}, err
	}
	return newPage(musicModels(rows), total, q), nil
}

func (s *Store) ListPlaylists(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Playlist], error) {
	var rows []playlistRow
	sel := s.db.NewSelect().Model(&rows)
	if q.Featured != nil {
		sel = sel.Where("?TableAlias.is_featured = ?", *q.Featured)
	}
	if q.Active != nil {
		sel = sel.Where("?TableAlias.is_active = ?", *q.Active)
	}
	sel = search(sel, "name", q.Search)
	sel = orderBy(sel, q.Ordering, "name", "created_at")

	total, err := paged(sel, q).ScanAndCount(ctx)
	if err != nil {
		return catalog.Page[catalog.Playlist]{}, err
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	members, err := playlistMembers(ctx, s.db, ids...)
	if err != nil {
		return catalog.Page[catalog.Playlist]{}, err
	}
	items := make([]catalog.Playlist, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].model(members[rows[i].ID]))
	}
	return newPage(items, total, q), nil
}

func (s *Store) AlbumTracks(ctx context.Context, albumID string) ([]catalog.Music, error) {
	var rows []musicRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.album_id = ?", albumID).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return musicModels(rows), nil
}

func (s *Store) PlaylistTracks(ctx context.Context, playlistID string) ([]catalog.Music, error) {
	exists, err := s.db.NewSelect().Model((*playlistRow)(nil)).Where("?TableAlias.id = ?", playlistID).Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, catalog.ErrNotFound
	}

	var rows []musicRow
	err = s.db.NewSelect().
		Model(&rows).
		Join("JOIN playlist_tracks AS pt ON pt.music_id = m.id").
		Where("pt.playlist_id = ?", playlistID).
		OrderExpr("pt.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return musicModels(rows), nil
}

func (s *Store) ArtistStats(ctx context.Context, artistID string) (catalog.ArtistStats, error) {
	if _, err := s.Artist(ctx, artistID); err != nil {
		return catalog.ArtistStats{}, err
	}

	st := catalog.ArtistStats{ArtistID: artistID}
	err := s.db.NewSelect().
		Model((*musicRow)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("COALESCE(SUM(?TableAlias.streams_count), 0)").
		ColumnExpr("COALESCE(SUM(?TableAlias.downloads_count), 0)").
		ColumnExpr("COALESCE(SUM(?TableAlias.likes_count), 0)").
		Where("?TableAlias.artist_id = ?", artistID).
		Scan(ctx, &st.TrackCount, &st.TotalStreams, &st.TotalDownloads, &st.TotalLikes)
	if err != nil {
		return catalog.ArtistStats{}, err
	}

	st.AlbumCount, err = s.db.NewSelect().Model((*albumRow)(nil)).Where("?TableAlias.artist_id = ?", artistID).Count(ctx)
	if err != nil {
		return catalog.ArtistStats{}, err
	}
	return st, nil
}

func (s *Store) GenreCounts(ctx context.Context, genreID string) (int, int, error) {
	songs, err := s.db.NewSelect().Model((*musicRow)(nil)).Where("?TableAlias.genre_id = ?", genreID).Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	artists, err := s.db.NewSelect().Model((*artistRow)(nil)).Where("?TableAlias.genre_id = ?", genreID).Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return songs, artists, nil
}

func (s *Store) Subgenres(ctx context.Context, genreID string) ([]catalog.Genre, error) {
	var rows []genreRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.parent_id = ?", genreID).
		OrderExpr("LOWER(?TableAlias.name) ASC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Genre, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

func (s *Store) PlaylistsContaining(ctx context.Context, musicID string) ([]string, error) {
	return playlistsContaining(ctx, s.db, musicID)
}

func loadMusic(ctx context.Context, db bun.IDB, id string) (*musicRow, error) {
	row := new(musicRow)
	if err := db.NewSelect().Model(row).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return row, nil
}

func loadPlaylist(ctx context.Context, db bun.IDB, id string) (*playlistRow, []string, error) {
	row := new(playlistRow)
	if err := db.NewSelect().Model(row).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, nil, notFound(err)
	}
	members, err := playlistMembers(ctx, db, id)
	if err != nil {
		return nil, nil, err
	}
	return row, members[id], nil
}

// playlistMembers returns the ordered music ids of each playlist.
func playlistMembers(ctx context.Context, db bun.IDB, playlistIDs ...string) (map[string][]string, error) {
	out := make(map[string][]string, len(playlistIDs))
	if len(playlistIDs) == 0 {
		return out, nil
	}
	var rows []playlistTrackRow
	err := db.NewSelect().
		Model(&rows).
		Where("?TableAlias.playlist_id IN (?)", bun.In(playlistIDs)).
		OrderExpr("?TableAlias.playlist_id ASC, ?TableAlias.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.PlaylistID] = append(out[r.PlaylistID], r.MusicID)
	}
	return out, nil
}

func playlistsContaining(ctx context.Context, db bun.IDB, musicID string) ([]string, error) {
	var ids []string
	err := db.NewSelect().
		Model((*playlistTrackRow)(nil)).
		Column("playlist_id").
		Where("?TableAlias.music_id = ?", musicID).
		OrderExpr("?TableAlias.playlist_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func musicModels(rows []musicRow) []catalog.Music {
	out := make([]catalog.Music, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out
}
