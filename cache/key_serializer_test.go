package cache

import (
	"strings"
	"testing"
	"time"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func TestDefaultKeySerializer(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	value := 42

	type Criteria struct {
		ArtistID string
		Limit    int
		internal string
	}

	tests := []struct {
		name   string
		method string
		args   []any
		want   string
	}{
		{
			name:   "no args",
			method: "List",
			args:   []any{},
			want:   "List",
		},
		{
			name:   "basic types",
			method: "Get",
			args:   []any{1, "hello", true, 3.14},
			want:   joinWithSeparator("Get", "1", "hello", "true", "3.14"),
		},
		{
			name:   "slice keeps order",
			method: "GetByIDs",
			args:   []any{[]string{"b", "a"}},
			want:   joinWithSeparator("GetByIDs", "slice[2]:{b,a}"),
		},
		{
			name:   "nil slice",
			method: "GetByIDs",
			args:   []any{[]string(nil)},
			want:   joinWithSeparator("GetByIDs", "slice:nil"),
		},
		{
			name:   "array",
			method: "GetPair",
			args:   []any{[2]int{7, 3}},
			want:   joinWithSeparator("GetPair", "array[2]:{7,3}"),
		},
		{
			name:   "map sorted by key",
			method: "GetByFilters",
			args:   []any{map[string]int{"count": 10, "age": 25}},
			want:   joinWithSeparator("GetByFilters", "map[2]:{age=25,count=10}"),
		},
		{
			name:   "struct skips unexported",
			method: "Find",
			args:   []any{Criteria{ArtistID: "a1", Limit: 5, internal: "x"}},
			want:   joinWithSeparator("Find", "struct:{ArtistID:a1,Limit:5}"),
		},
		{
			name:   "pointers are dereferenced",
			method: "GetByPtr",
			args:   []any{&value, (*int)(nil)},
			want:   joinWithSeparator("GetByPtr", "42", "nil"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.method, tt.args...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_FunctionsAreStableInProcess(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	fn := func() {}

	key1 := serializer.SerializeKey("List", fn)
	key2 := serializer.SerializeKey("List", fn)
	if key1 != key2 {
		t.Errorf("function serialization should be stable: %v != %v", key1, key2)
	}
	if !strings.HasPrefix(key1, joinWithSeparator("List", "func:")) {
		t.Errorf("expected func: prefix, got %v", key1)
	}
}

func TestCanonicalKeySerializer(t *testing.T) {
	serializer := NewCanonicalKeySerializer()

	tests := []struct {
		name string
		a    any
		b    any
	}{
		{
			name: "slice order",
			a:    []string{"rock", "jazz"},
			b:    []string{"jazz", "rock"},
		},
		{
			name: "empty map values",
			a:    map[string]any{"genre": "rock", "search": "", "tags": []string{}, "artist": nil},
			b:    map[string]any{"genre": "rock"},
		},
		{
			name: "nested maps",
			a:    map[string]any{"f": map[string]any{"x": 1, "y": []int{2, 1}}},
			b:    map[string]any{"f": map[string]any{"y": []int{1, 2}, "x": 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := serializer.SerializeKey("q", tt.a)
			kb := serializer.SerializeKey("q", tt.b)
			if ka != kb {
				t.Errorf("expected equal keys, got %v and %v", ka, kb)
			}
		})
	}
}

func TestCanonicalKeySerializer_KeepsFalseAndZero(t *testing.T) {
	serializer := NewCanonicalKeySerializer()

	unset := serializer.SerializeKey("q", map[string]any{})
	falsy := serializer.SerializeKey("q", map[string]any{"featured": false})
	zero := serializer.SerializeKey("q", map[string]any{"min": 0})

	if unset == falsy || unset == zero {
		t.Errorf("false and 0 are real filter values: %v %v %v", unset, falsy, zero)
	}
}

func TestDefaultKeySerializer_Time(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	got := serializer.SerializeKey("Since", ts)
	want := joinWithSeparator("Since", ts.String())
	if got != want {
		t.Errorf("SerializeKey() = %v, want %v", got, want)
	}
}

func BenchmarkCanonicalKeySerializer(b *testing.B) {
	serializer := NewCanonicalKeySerializer()
	filters := map[string]any{"genre_id": "g1", "ordering": "-streams_count", "ids": []string{"c", "a", "b"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serializer.SerializeKey("filters", filters)
	}
}
