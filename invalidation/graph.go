package invalidation

import (
	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
)

// KeyFunc returns direct keys to delete for an event.
type KeyFunc func(ev catalog.MutationEvent) []string

// ScopeFunc returns per-entity scopes to bump for an event.
type ScopeFunc func(ev catalog.MutationEvent) []cache.Scope

// Rule is the fan-out of one entity type.
type Rule struct {
	// DetailKeys are deleted by id.
	DetailKeys KeyFunc
	// Collections are bumped on every event of the type.
	Collections []cache.Scope
	// Scopes derive the entity's own and its parents' aggregate scopes.
	Scopes []ScopeFunc
	// ContainingPlaylists bumps the detail scope of every playlist holding
	// the entity. Only music uses it.
	ContainingPlaylists bool
}

// Graph maps each entity type to its rule. The graph is static: it is built
// once and only read afterwards.
type Graph map[catalog.EntityType]Rule

var musicCollections = []cache.Scope{
	cache.ScopeMusicList,
	cache.ScopeMusicTrending,
	cache.ScopeMusicPopular,
	cache.ScopeMusicFeatured,
}

// DefaultGraph returns the catalog fan-out.
func DefaultGraph() Graph {
	return Graph{
		catalog.EntityMusic: {
			DetailKeys:  selfDetailKey(catalog.EntityMusic),
			Collections: musicCollections,
			Scopes: []ScopeFunc{
				parents(func(r catalog.ParentRefs) string { return r.ArtistID }, cache.ArtistStatsScope),
				parents(func(r catalog.ParentRefs) string { return r.AlbumID }, cache.AlbumDetailScope),
				when(membershipChanged("genre_id", "is_active"),
					parents(func(r catalog.ParentRefs) string { return r.GenreID }, cache.GenreCompleteScope)),
			},
			ContainingPlaylists: true,
		},
		catalog.EntityAlbum: {
			Collections: []cache.Scope{cache.ScopeAlbumList, cache.ScopeAlbumFeatured},
			Scopes: []ScopeFunc{
				self(cache.AlbumDetailScope),
				parents(func(r catalog.ParentRefs) string { return r.ArtistID }, cache.ArtistStatsScope),
				parents(func(r catalog.ParentRefs) string { return r.ArtistID }, cache.ArtistDetailScope),
				when(changed("name"), fixed(musicCollections...)),
			},
		},
		catalog.EntityArtist: {
			DetailKeys:  selfDetailKey(catalog.EntityArtist),
			Collections: []cache.Scope{cache.ScopeArtistList, cache.ScopeArtistActive},
			Scopes: []ScopeFunc{
				self(cache.ArtistDetailScope),
				self(cache.ArtistStatsScope),
				when(membershipChanged("genre_id", "is_active"),
					parents(func(r catalog.ParentRefs) string { return r.GenreID }, cache.GenreCompleteScope)),
				when(changed("stage_name"), fixed(musicCollections...)),
				when(deleted, fixed(cache.ScopeAlbumList, cache.ScopeAlbumFeatured)),
			},
		},
		catalog.EntityGenre: {
			DetailKeys:  selfDetailKey(catalog.EntityGenre),
			Collections: []cache.Scope{cache.ScopeGenreList},
			Scopes: []ScopeFunc{
				self(cache.GenreCompleteScope),
				parents(func(r catalog.ParentRefs) string { return r.ParentGenreID }, cache.GenreCompleteScope),
				when(deleted, fixed(append([]cache.Scope{cache.ScopeArtistList, cache.ScopeArtistActive}, musicCollections...)...)),
			},
		},
		catalog.EntityPlaylist: {
			DetailKeys:  selfDetailKey(catalog.EntityPlaylist),
			Collections: []cache.Scope{cache.ScopePlaylistList, cache.ScopePlaylistActive},
			Scopes: []ScopeFunc{
				self(cache.PlaylistDetailScope),
			},
		},
	}
}

func selfDetailKey(t catalog.EntityType) KeyFunc {
	return func(ev catalog.MutationEvent) []string {
		return []string{cache.DetailKey(string(t), ev.ID)}
	}
}

func self(scope func(string) cache.Scope) ScopeFunc {
	return func(ev catalog.MutationEvent) []cache.Scope {
		return []cache.Scope{scope(ev.ID)}
	}
}

func fixed(scopes ...cache.Scope) ScopeFunc {
	return func(catalog.MutationEvent) []cache.Scope {
		return scopes
	}
}

// parents returns the scope of the current reference and, when an update
// moved the entity, of the previous one too.
func parents(ref func(catalog.ParentRefs) string, scope func(string) cache.Scope) ScopeFunc {
	return func(ev catalog.MutationEvent) []cache.Scope {
		var out []cache.Scope
		if id := ref(ev.Parents); id != "" {
			out = append(out, scope(id))
		}
		if id := ref(ev.Previous); id != "" && id != ref(ev.Parents) {
			out = append(out, scope(id))
		}
		return out
	}
}

func when(pred func(catalog.MutationEvent) bool, fn ScopeFunc) ScopeFunc {
	return func(ev catalog.MutationEvent) []cache.Scope {
		if !pred(ev) {
			return nil
		}
		return fn(ev)
	}
}

func changed(fields ...string) func(catalog.MutationEvent) bool {
	return func(ev catalog.MutationEvent) bool {
		return ev.ChangedAny(fields...)
	}
}

// deleted matches deletes, whose dependent rows were removed or detached
// by the same write.
func deleted(ev catalog.MutationEvent) bool {
	return ev.Op == catalog.OpDeleted
}

// membershipChanged matches events that change which aggregate the entity
// is counted in: creates, deletes, reference moves and the given fields.
func membershipChanged(fields ...string) func(catalog.MutationEvent) bool {
	return func(ev catalog.MutationEvent) bool {
		return ev.RefsChanged() || ev.ChangedAny(fields...)
	}
}
