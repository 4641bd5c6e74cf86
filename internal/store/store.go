package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-catalog-cache/catalog"
)

// Store is the bun backed catalog.Store.
type Store struct {
	db     *bun.DB
	bus    catalog.Bus
	logger zerolog.Logger
	now    func() time.Time
}

var _ catalog.Store = (*Store)(nil)

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock used for created_at and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying connection, e.g. for repositories.
func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) Subscribe(l catalog.MutationListener) {
	s.bus.Subscribe(l)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the catalog tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, model := range models() {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model  any
		name   string
		column string
	}{
		{(*artistRow)(nil), "artists_genre_id_idx", "genre_id"},
		{(*albumRow)(nil), "albums_artist_id_idx", "artist_id"},
		{(*genreRow)(nil), "genres_parent_id_idx", "parent_id"},
		{(*musicRow)(nil), "music_artist_id_idx", "artist_id"},
		{(*musicRow)(nil), "music_album_id_idx", "album_id"},
		{(*musicRow)(nil), "music_genre_id_idx", "genre_id"},
		{(*playlistTrackRow)(nil), "playlist_tracks_music_id_idx", "music_id"},
	}
	for _, idx := range indexes {
		_, err := s.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (s *Store) emit(ctx context.Context, ev catalog.MutationEvent) {
	ev.At = s.now()
	s.logger.Debug().
		Str("entity", string(ev.Type)).
		Str("id", ev.ID).
		Str("op", string(ev.Op)).
		Msg("mutation committed")
	s.bus.Emit(ctx, ev)
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// notFound maps a missing row to catalog.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ErrNotFound
	}
	return err
}

// requireAffected reports catalog.ErrNotFound when a write touched no row.
func requireAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// orderBy applies a catalog ordering such as "-streams_count". Only
// whitelisted columns are accepted; anything else sorts newest first.
// Ties break on id.
func orderBy(q *bun.SelectQuery, ordering string, columns ...string) *bun.SelectQuery {
	desc := strings.HasPrefix(ordering, "-")
	field := strings.TrimPrefix(ordering, "-")

	known := false
	for _, c := range columns {
		if c == field {
			known = true
			break
		}
	}
	if !known {
		field, desc = "created_at", true
	}

	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch field {
	case "name", "title", "stage_name":
		q = q.OrderExpr("LOWER(?TableAlias.?) "+dir, bun.Ident(field))
	default:
		q = q.OrderExpr("?TableAlias.? "+dir, bun.Ident(field))
	}
	return q.OrderExpr("?TableAlias.id ASC")
}

func search(q *bun.SelectQuery, column, term string) *bun.SelectQuery {
	if term == "" {
		return q
	}
	return q.Where("LOWER(?TableAlias.?) LIKE ?", bun.Ident(column), "%"+strings.ToLower(term)+"%")
}

func paged(q *bun.SelectQuery, query catalog.Query) *bun.SelectQuery {
	n := query.Normalize()
	return q.Limit(n.PageSize).Offset(n.Offset())
}

func newPage[T any](items []T, total int, q catalog.Query) catalog.Page[T] {
	n := q.Normalize()
	if items == nil {
		items = []T{}
	}
	return catalog.Page[T]{Items: items, Total: total, Page: n.Page, PageSize: n.PageSize}
}
