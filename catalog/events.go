package catalog

import (
	"context"
	"time"
)

// Op is the kind of committed write.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// ParentRefs are the graph edges of an entity at the time of the write.
// Empty strings mean "no reference".
type ParentRefs struct {
	ArtistID      string `json:"artist_id,omitempty"`
	AlbumID       string `json:"album_id,omitempty"`
	GenreID       string `json:"genre_id,omitempty"`
	ParentGenreID string `json:"parent_genre_id,omitempty"`
}

// IsZero reports whether no reference is set.
func (p ParentRefs) IsZero() bool {
	return p == ParentRefs{}
}

// MutationEvent describes one committed write to the content store.
type MutationEvent struct {
	Type EntityType
	ID   string
	Op   Op
	// Parents holds the references after the write (before it, for deletes).
	Parents ParentRefs
	// Previous holds the references before an update. Zero for creates and
	// deletes.
	Previous ParentRefs
	// Changed lists the columns touched by an update. Nil means unknown,
	// which listeners must treat as "everything".
	Changed []string
	// Related carries ids affected alongside the entity, such as the music
	// ids added to or removed from a playlist.
	Related []string
	At      time.Time
}

// ChangedAny reports whether the update touched any of fields. It returns
// true for creates, deletes and updates with an unknown change set.
func (e MutationEvent) ChangedAny(fields ...string) bool {
	if e.Op != OpUpdated || e.Changed == nil {
		return true
	}
	for _, c := range e.Changed {
		for _, f := range fields {
			if c == f {
				return true
			}
		}
	}
	return false
}

// RefsChanged reports whether an update moved the entity to other parents.
func (e MutationEvent) RefsChanged() bool {
	return e.Op == OpUpdated && !e.Previous.IsZero() && e.Previous != e.Parents
}

// Detached is the update event of a row whose reference to a deleted parent
// was cleared by the same write.
func Detached(t EntityType, id string, before, after ParentRefs, field string) MutationEvent {
	return MutationEvent{Type: t, ID: id, Op: OpUpdated, Parents: after, Previous: before, Changed: []string{field}}
}

// MutationListener receives events after the write has committed.
type MutationListener interface {
	OnMutation(ctx context.Context, ev MutationEvent)
}

// ListenerFunc adapts a function to MutationListener.
type ListenerFunc func(ctx context.Context, ev MutationEvent)

func (f ListenerFunc) OnMutation(ctx context.Context, ev MutationEvent) {
	f(ctx, ev)
}
