package store

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-cache/catalog"
)

// tx runs fn in a transaction and emits ev only after a successful
// commit. fn may fill in the event.
func (s *Store) tx(ctx context.Context, ev *catalog.MutationEvent, fn func(ctx context.Context, tx bun.Tx) error) error {
	if err := s.db.RunInTx(ctx, &sql.TxOptions{}, fn); err != nil {
		return err
	}
	s.emit(ctx, *ev)
	return nil
}

// cascadeTx is tx for deletes that also remove or detach dependent rows.
// The events fn records for those rows are emitted after ev.
func (s *Store) cascadeTx(ctx context.Context, ev *catalog.MutationEvent, fn func(ctx context.Context, tx bun.Tx, deps *[]catalog.MutationEvent) error) error {
	var deps []catalog.MutationEvent
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		deps = deps[:0]
		return fn(ctx, tx, &deps)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, *ev)
	for _, dep := range deps {
		s.emit(ctx, dep)
	}
	return nil
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return t.UTC()
}

// Artists.

func (s *Store) CreateArtist(ctx context.Context, a *catalog.Artist) error {
	a.ID = newID(a.ID)
	a.CreatedAt = s.stamp(a.CreatedAt)

	ev := catalog.MutationEvent{Type: catalog.EntityArtist, ID: a.ID, Op: catalog.OpCreated, Parents: a.Refs()}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(newArtistRow(a)).Exec(ctx)
		return err
	})
}

func (s *Store) UpdateArtist(ctx context.Context, a *catalog.Artist) error {
	ev := catalog.MutationEvent{Type: catalog.EntityArtist, ID: a.ID, Op: catalog.OpUpdated}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		stored := new(artistRow)
		if err := tx.NewSelect().Model(stored).Where("?TableAlias.id = ?", a.ID).Scan(ctx); err != nil {
			return notFound(err)
		}
		old := stored.model()
		a.CreatedAt = old.CreatedAt

		if _, err := tx.NewUpdate().Model(newArtistRow(a)).WherePK().Exec(ctx); err != nil {
			return err
		}
		ev.Parents, ev.Previous, ev.Changed = a.Refs(), old.Refs(), a.ChangedFields(&old)
		return nil
	})
}

// DeleteArtist removes the artist with its albums and tracks.
func (s *Store) DeleteArtist(ctx context.Context, id string) error {
	ev := catalog.MutationEvent{Type: catalog.EntityArtist, ID: id, Op: catalog.OpDeleted}
	return s.cascadeTx(ctx, &ev, func(ctx context.Context, tx bun.Tx, deps *[]catalog.MutationEvent) error {
		stored := new(artistRow)
		if err := tx.NewSelect().Model(stored).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
			return notFound(err)
		}

		var tracks []musicRow
		err := tx.NewSelect().Model(&tracks).Where("?TableAlias.artist_id = ?", id).OrderExpr("?TableAlias.id ASC").Scan(ctx)
		if err != nil {
			return err
		}
		for i := range tracks {
			dep, err := deleteMusic(ctx, tx, &tracks[i])
			if err != nil {
				return err
			}
			*deps = append(*deps, dep)
		}

		var albums []albumRow
		err = tx.NewSelect().Model(&albums).Where("?TableAlias.artist_id = ?", id).OrderExpr("?TableAlias.id ASC").Scan(ctx)
		if err != nil {
			return err
		}
		if len(albums) > 0 {
			if _, err := tx.NewDelete().Model((*albumRow)(nil)).Where("artist_id = ?", id).Exec(ctx); err != nil {
				return err
			}
		}
		for i := range albums {
			a := albums[i].model()
			*deps = append(*deps, catalog.MutationEvent{Type: catalog.EntityAlbum, ID: a.ID, Op: catalog.OpDeleted, Parents: a.Refs()})
		}

		if _, err := tx.NewDelete().Model(stored).WherePK().Exec(ctx); err != nil {
			return err
		}
		old := stored.model()
		ev.Parents = old.Refs()
		return nil
	})
}

// Albums.

func (s *Store) CreateAlbum(ctx context.Context, a *catalog.Album) error {
	a.ID = newID(a.ID)
	a.CreatedAt = s.stamp(a.CreatedAt)

	ev := catalog.MutationEvent{Type: catalog.EntityAlbum, ID: a.ID, Op: catalog.OpCreated, Parents: a.Refs()}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(newAlbumRow(a)).Exec(ctx)
		return err
	})
}

func (s *Store) UpdateAlbum(ctx context.Context, a *catalog.Album) error {
	ev := catalog.MutationEvent{Type: catalog.EntityAlbum, ID: a.ID, Op: catalog.OpUpdated}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		stored := new(albumRow)
		if err := tx.NewSelect().Model(stored).Where("?TableAlias.id = ?", a.ID).Scan(ctx); err != nil {
			return notFound(err)
		}
		old := stored.model()
		a.CreatedAt = old.CreatedAt

		if _, err := tx.NewUpdate().Model(newAlbumRow(a)).WherePK().Exec(ctx); err != nil {
			return err
		}
		ev.Parents, ev.Previous, ev.Changed = a.Refs(), old.Refs(), a.ChangedFields(&old)
		return nil
	})
}

// DeleteAlbum removes the album. Its tracks stay as singles.
func (s *Store) DeleteAlbum(ctx context.Context, id string) error {
	ev := catalog.MutationEvent{Type: catalog.EntityAlbum, ID: id, Op: catalog.OpDeleted}
	return s.cascadeTx(ctx, &ev, func(ctx context.Context, tx bun.Tx, deps *[]catalog.MutationEvent) error {
		stored := new(albumRow)
		if err := tx.NewSelect().Model(stored).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
			return notFound(err)
		}

		detached, err := detachMusic(ctx, tx, "album_id", []string{id})
		if err != nil {
			return err
		}
		*deps = append(*deps, detached...)

		if _, err := tx.NewDelete().Model(stored).WherePK().Exec(ctx); err != nil {
			return err
		}
		old := stored.model()
		ev.Parents = old.Refs()
		return nil
	})
}

// detachMusic clears column on the tracks pointing at one of ids.
func detachMusic(ctx context.Context, tx bun.Tx, column string, ids []string) ([]catalog.MutationEvent, error) {
	var tracks []musicRow
	err := tx.NewSelect().
		Model(&tracks).
		Where("?TableAlias.? IN (?)", bun.Ident(column), bun.In(ids)).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil || len(tracks) == 0 {
		return nil, err
	}
	_, err = tx.NewUpdate().
		Model((*musicRow)(nil)).
		Set("? = NULL", bun.Ident(column)).
		Where("? IN (?)", bun.Ident(column), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]catalog.MutationEvent, 0, len(tracks))
	for i := range tracks {
		before := tracks[i].model()
		after := before
		switch column {
		case "album_id":
			after.AlbumID = nil
		case "genre_id":
			after.GenreID = nil
		}
		out = append(out, catalog.Detached(catalog.EntityMusic, before.ID, before.Refs(), after.Refs(), column))
	}
	return out, nil
}

// Genres.

func (s *Store) CreateGenre(ctx context.Context, g *catalog.Genre) error {
	g.ID = newID(g.ID)
	if g.Slug == "" {
		g.Slug = catalog.Slugify(g.Name)
	}

	ev := catalog.MutationEvent{Type: catalog.EntityGenre, ID: g.ID, Op: catalog.OpCreated, Parents: g.Refs()}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(newGenreRow(g)).Exec(ctx)
		return err
	})
}

func (s *Store) UpdateGenre(ctx context.Context, g *catalog.Genre) error {
	if g.Slug == "" {
		g.Slug = catalog.Slugify(g.Name)
	}

	ev := catalog.MutationEvent{Type: catalog.EntityGenre, ID: g.ID, Op: catalog.OpUpdated}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		stored := new(genreRow)
		if err := tx.NewSelect().Model(stored).Where("?TableAlias.id = ?", g.ID).Scan(ctx); err != nil {
			return notFound(err)
		}
		old := stored.model()

		if _, err := tx.NewUpdate().Model(newGenreRow(g)).WherePK().Exec(ctx); err != nil {
			return err
		}
		ev.Parents, ev.Previous, ev.Changed = g.Refs(), old.Refs(), g.ChangedFields(&old)
		return nil
	})
}

// DeleteGenre removes the genre and its subgenres. Tracks and artists of
// any removed genre lose their genre.
func (s *Store) DeleteGenre(ctx context.Context, id string) error {
	ev := catalog.MutationEvent{Type: catalog.EntityGenre, ID: id, Op: catalog.OpDeleted}
	return s.cascadeTx(ctx, &ev, func(ctx context.Context, tx bun.Tx, deps *[]catalog.MutationEvent) error {
		stored := new(genreRow)
		if err := tx.NewSelect().Model(stored).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
			return notFound(err)
		}

		var subgenres []genreRow
		ids := []string{id}
		seen := map[string]bool{id: true}
		for frontier := []string{id}; len(frontier) > 0; {
			var children []genreRow
			err := tx.NewSelect().
				Model(&children).
				Where("?TableAlias.parent_id IN (?)", bun.In(frontier)).
				OrderExpr("?TableAlias.id ASC").
				Scan(ctx)
			if err != nil {
				return err
			}
			frontier = nil
			for _, c := range children {
				if seen[c.ID] {
					continue
				}
				seen[c.ID] = true
				frontier = append(frontier, c.ID)
				subgenres = append(subgenres, c)
			}
			ids = append(ids, frontier...)
		}

		detached, err := detachMusic(ctx, tx, "genre_id", ids)
		if err != nil {
			return err
		}
		*deps = append(*deps, detached...)

		var artists []artistRow
		err = tx.NewSelect().Model(&artists).Where("?TableAlias.genre_id IN (?)", bun.In(ids)).OrderExpr("?TableAlias.id ASC").Scan(ctx)
		if err != nil {
			return err
		}
		if len(artists) > 0 {
			_, err = tx.NewUpdate().Model((*artistRow)(nil)).Set("genre_id = NULL").Where("genre_id IN (?)", bun.In(ids)).Exec(ctx)
			if err != nil {
				return err
			}
		}
		for i := range artists {
			before := artists[i].model()
			after := before
			after.GenreID = nil
			*deps = append(*deps, catalog.Detached(catalog.EntityArtist, before.ID, before.Refs(), after.Refs(), "genre_id"))
		}

		if _, err := tx.NewDelete().Model((*genreRow)(nil)).Where("id IN (?)", bun.In(ids)).Exec(ctx); err != nil {
			return err
		}
		for i := range subgenres {
			g := subgenres[i].model()
			*deps = append(*deps, catalog.MutationEvent{Type: catalog.EntityGenre, ID: g.ID, Op: catalog.OpDeleted, Parents: g.Refs()})
		}
		old := stored.model()
		ev.Parents = old.Refs()
		return nil
	})
}

// Music.

// CreateMusic inserts a track. Pipeline columns are reset: durations are
// never user supplied and an uploaded file starts pending.
func (s *Store) CreateMusic(ctx context.Context, m *catalog.Music) error {
	m.ID = newID(m.ID)
	m.CreatedAt = s.stamp(m.CreatedAt)
	m.PrepareNew()

	ev := catalog.MutationEvent{Type: catalog.EntityMusic, ID: m.ID, Op: catalog.OpCreated, Parents: m.Refs()}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(newMusicRow(m)).Exec(ctx)
		return err
	})
}

// UpdateMusic writes the user editable columns. The pipeline columns keep
// their stored values and are copied back onto m.
func (s *Store) UpdateMusic(ctx context.Context, m *catalog.Music) error {
	ev := catalog.MutationEvent{Type: catalog.EntityMusic, ID: m.ID, Op: catalog.OpUpdated}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		stored, err := loadMusic(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		old := stored.model()
		m.CreatedAt = old.CreatedAt
		m.KeepMedia(&old)

		_, err = tx.NewUpdate().
			Model(newMusicRow(m)).
			ExcludeColumn(append([]string{"created_at"}, mediaColumns...)...).
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		ev.Parents, ev.Previous, ev.Changed = m.Refs(), old.Refs(), m.ChangedFields(&old)
		return nil
	})
}

func (s *Store) DeleteMusic(ctx context.Context, id string) error {
	ev := catalog.MutationEvent{Type: catalog.EntityMusic, ID: id, Op: catalog.OpDeleted}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		stored, err := loadMusic(ctx, tx, id)
		if err != nil {
			return err
		}
		ev, err = deleteMusic(ctx, tx, stored)
		return err
	})
}

// deleteMusic removes a track and its playlist memberships. The returned
// event lists the playlists that held it.
func deleteMusic(ctx context.Context, tx bun.Tx, stored *musicRow) (catalog.MutationEvent, error) {
	id := stored.ID
	related, err := playlistsContaining(ctx, tx, id)
	if err != nil {
		return catalog.MutationEvent{}, err
	}
	for _, pid := range related {
		members, err := playlistMembers(ctx, tx, pid)
		if err != nil {
			return catalog.MutationEvent{}, err
		}
		ids := slices.DeleteFunc(members[pid], func(v string) bool { return v == id })
		if err := writeMembers(ctx, tx, pid, ids); err != nil {
			return catalog.MutationEvent{}, err
		}
	}
	if _, err := tx.NewDelete().Model(stored).WherePK().Exec(ctx); err != nil {
		return catalog.MutationEvent{}, err
	}
	old := stored.model()
	return catalog.MutationEvent{Type: catalog.EntityMusic, ID: id, Op: catalog.OpDeleted, Parents: old.Refs(), Related: related}, nil
}

func (s *Store) IncrementMusicCounter(ctx context.Context, id string, c catalog.Counter) (int64, error) {
	if !c.Valid() {
		return 0, catalog.ErrInvalidCounter
	}

	var n int64
	ev := catalog.MutationEvent{Type: catalog.EntityMusic, ID: id, Op: catalog.OpUpdated, Changed: []string{string(c)}}
	err := s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		col := bun.Ident(string(c))
		err := requireAffected(tx.NewUpdate().
			Model((*musicRow)(nil)).
			Set("? = ? + 1", col, col).
			Where("id = ?", id).
			Exec(ctx))
		if err != nil {
			return err
		}

		stored, err := loadMusic(ctx, tx, id)
		if err != nil {
			return err
		}
		m := stored.model()
		switch c {
		case catalog.CounterStreams:
			n = m.StreamsCount
		case catalog.CounterDownloads:
			n = m.DownloadsCount
		case catalog.CounterLikes:
			n = m.LikesCount
		}
		ev.Parents, ev.Previous = m.Refs(), m.Refs()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateMusicMedia writes only the patched pipeline columns.
func (s *Store) UpdateMusicMedia(ctx context.Context, id string, patch catalog.MediaPatch) error {
	fields := patch.Fields()
	ev := catalog.MutationEvent{Type: catalog.EntityMusic, ID: id, Op: catalog.OpUpdated, Changed: fields}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		stored, err := loadMusic(ctx, tx, id)
		if err != nil {
			return err
		}
		m := stored.model()
		patch.Apply(&m)

		if len(fields) > 0 {
			_, err = tx.NewUpdate().Model(newMusicRow(&m)).Column(fields...).WherePK().Exec(ctx)
			if err != nil {
				return err
			}
		}
		ev.Parents, ev.Previous = m.Refs(), m.Refs()
		return nil
	})
}

// Playlists.

func (s *Store) CreatePlaylist(ctx context.Context, p *catalog.Playlist) error {
	p.ID = newID(p.ID)
	p.CreatedAt = s.stamp(p.CreatedAt)
	p.MusicIDs = slices.Clone(p.MusicIDs)

	ev := catalog.MutationEvent{Type: catalog.EntityPlaylist, ID: p.ID, Op: catalog.OpCreated, Related: p.MusicIDs}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(newPlaylistRow(p)).Exec(ctx); err != nil {
			return err
		}
		return writeMembers(ctx, tx, p.ID, p.MusicIDs)
	})
}

func (s *Store) UpdatePlaylist(ctx context.Context, p *catalog.Playlist) error {
	p.MusicIDs = slices.Clone(p.MusicIDs)

	ev := catalog.MutationEvent{Type: catalog.EntityPlaylist, ID: p.ID, Op: catalog.OpUpdated}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		stored, ids, err := loadPlaylist(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		old := stored.model(ids)
		p.CreatedAt = old.CreatedAt

		if _, err := tx.NewUpdate().Model(newPlaylistRow(p)).WherePK().Exec(ctx); err != nil {
			return err
		}
		if !slices.Equal(old.MusicIDs, p.MusicIDs) {
			if err := writeMembers(ctx, tx, p.ID, p.MusicIDs); err != nil {
				return err
			}
		}
		ev.Changed = p.ChangedFields(&old)
		return nil
	})
}

func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	ev := catalog.MutationEvent{Type: catalog.EntityPlaylist, ID: id, Op: catalog.OpDeleted}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		err := requireAffected(tx.NewDelete().Model((*playlistRow)(nil)).Where("id = ?", id).Exec(ctx))
		if err != nil {
			return err
		}
		return writeMembers(ctx, tx, id, nil)
	})
}

func (s *Store) AddToPlaylist(ctx context.Context, playlistID string, musicIDs ...string) error {
	return s.editPlaylist(ctx, playlistID, musicIDs, func(ctx context.Context, tx bun.Tx, ids []string) ([]string, error) {
		if len(musicIDs) > 0 {
			found, err := tx.NewSelect().
				Model((*musicRow)(nil)).
				Where("?TableAlias.id IN (?)", bun.In(musicIDs)).
				Count(ctx)
			if err != nil {
				return nil, err
			}
			if found != len(uniq(musicIDs)) {
				return nil, catalog.ErrNotFound
			}
		}
		for _, id := range musicIDs {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		return ids, nil
	})
}

func (s *Store) RemoveFromPlaylist(ctx context.Context, playlistID string, musicIDs ...string) error {
	return s.editPlaylist(ctx, playlistID, musicIDs, func(ctx context.Context, tx bun.Tx, ids []string) ([]string, error) {
		return slices.DeleteFunc(ids, func(v string) bool { return slices.Contains(musicIDs, v) }), nil
	})
}

func (s *Store) ReorderPlaylist(ctx context.Context, playlistID string, musicIDs []string) error {
	return s.editPlaylist(ctx, playlistID, musicIDs, func(ctx context.Context, tx bun.Tx, ids []string) ([]string, error) {
		return catalog.Reorder(ids, musicIDs)
	})
}

func (s *Store) editPlaylist(ctx context.Context, playlistID string, related []string, edit func(context.Context, bun.Tx, []string) ([]string, error)) error {
	ev := catalog.MutationEvent{
		Type: catalog.EntityPlaylist, ID: playlistID, Op: catalog.OpUpdated,
		Changed: []string{"music_ids"}, Related: slices.Clone(related),
	}
	return s.tx(ctx, &ev, func(ctx context.Context, tx bun.Tx) error {
		_, ids, err := loadPlaylist(ctx, tx, playlistID)
		if err != nil {
			return err
		}
		ids, err = edit(ctx, tx, slices.Clone(ids))
		if err != nil {
			return err
		}
		return writeMembers(ctx, tx, playlistID, ids)
	})
}

// writeMembers replaces the membership rows of a playlist.
func writeMembers(ctx context.Context, db bun.IDB, playlistID string, musicIDs []string) error {
	_, err := db.NewDelete().Model((*playlistTrackRow)(nil)).Where("playlist_id = ?", playlistID).Exec(ctx)
	if err != nil {
		return err
	}
	if len(musicIDs) == 0 {
		return nil
	}

	rows := make([]playlistTrackRow, 0, len(musicIDs))
	for i, id := range musicIDs {
		rows = append(rows, playlistTrackRow{PlaylistID: playlistID, MusicID: id, Position: i})
	}
	_, err = db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func uniq(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
