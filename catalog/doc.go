// Package catalog holds the content graph types shared by the cache and
// ingestion layers: artists, albums, genres, music and playlists, the
// mutation events a content store emits after each committed write, and the
// store contract itself.
//
// Derived figures such as album duration or track counts are never stored.
// They are recomputed from the current rows by the aggregate constructors
// (NewAlbumDetail, NewPlaylistDetail) so a stale copy can only exist in a
// cache, where generation scopes retire it.
package catalog
