package catalog

import (
	"context"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{60, "1:00"},
		{474, "7:54"},
		{3599, "59:59"},
		{3661, "61:01"},
		{-3, "0:00"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatLongDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{474, "7:54"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3661, "1:01:01"},
		{36125, "10:02:05"},
	}

	for _, tt := range tests {
		if got := FormatLongDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatLongDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestMusicDurationLabel(t *testing.T) {
	m := &Music{}
	if got := m.DurationLabel(); got != "" {
		t.Errorf("unknown duration label = %q, want empty", got)
	}
	m.Duration = IntPtr(474)
	if got := m.DurationLabel(); got != "7:54" {
		t.Errorf("label = %q, want 7:54", got)
	}
}

func TestAggregatesIgnoreUnknownDurations(t *testing.T) {
	tracks := []Music{
		{ID: "a", Duration: IntPtr(100)},
		{ID: "b"},
		{ID: "c", Duration: IntPtr(50)},
	}

	album := NewAlbumDetail(Album{ID: "al"}, tracks)
	if album.TrackCount != 3 || album.TotalDuration != 150 {
		t.Errorf("album detail = %d tracks / %ds, want 3 / 150s", album.TrackCount, album.TotalDuration)
	}

	pl := NewPlaylistDetail(Playlist{ID: "p"}, append(tracks, Music{Duration: IntPtr(3600)}))
	if got := pl.DurationLabel(); got != "1:02:30" {
		t.Errorf("playlist label = %q, want 1:02:30", got)
	}
}

func TestPopularity(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		music    Music
		popular  bool
		trending bool
	}{
		{"fresh and busy", Music{StreamsCount: 101, CreatedAt: now.Add(-time.Hour)}, false, true},
		{"fresh at threshold", Music{StreamsCount: 100, CreatedAt: now}, false, false},
		{"old and busy", Music{StreamsCount: 5000, CreatedAt: now.Add(-8 * 24 * time.Hour)}, true, false},
		{"popular boundary", Music{StreamsCount: 1000, CreatedAt: now}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.music.IsPopular(); got != tt.popular {
				t.Errorf("IsPopular() = %v, want %v", got, tt.popular)
			}
			if got := tt.music.IsTrending(now); got != tt.trending {
				t.Errorf("IsTrending() = %v, want %v", got, tt.trending)
			}
		})
	}
}

func TestParseBitrate(t *testing.T) {
	tests := []struct {
		in      string
		want    Bitrate
		wantErr bool
	}{
		{"", BitrateMedium, false},
		{"low", BitrateLow, false},
		{"HIGH", BitrateHigh, false},
		{"192k", BitrateMedium, false},
		{"96k", "", true},
	}

	for _, tt := range tests {
		got, err := ParseBitrate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseBitrate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseBitrate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Hip Hop":         "hip-hop",
		"  Drum & Bass  ": "drum-bass",
		"R&B":             "r-b",
		"Música Popular":  "música-popular",
		"lo-fi":           "lo-fi",
		"!!!":             "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQueryFiltersAreStable(t *testing.T) {
	featured := true
	q := Query{GenreID: "g1", Featured: &featured, Page: 3}
	f := q.Filters()

	if _, ok := f["page"]; ok {
		t.Error("page must not be part of the filters")
	}
	if f["page_size"] != DefaultPageSize {
		t.Errorf("page_size = %v, want %d", f["page_size"], DefaultPageSize)
	}
	if f["genre_id"] != "g1" || f["featured"] != true {
		t.Errorf("unexpected filters %v", f)
	}
	if _, ok := f["search"]; ok {
		t.Error("empty search must be omitted")
	}

	if off := (Query{Page: 3, PageSize: 10}).Offset(); off != 20 {
		t.Errorf("Offset() = %d, want 20", off)
	}
	if n := (Query{PageSize: 1000}).Normalize(); n.PageSize != MaxPageSize || n.Page != 1 {
		t.Errorf("Normalize() = %+v", n)
	}
}

func TestMediaPatch(t *testing.T) {
	m := &Music{Duration: IntPtr(10), Status: StatusPending}
	state := TranscodeDone
	status := StatusDone
	p := MediaPatch{ClearDuration: true, Transcode: &state, Status: &status}
	p.Apply(m)

	if m.Duration != nil {
		t.Error("duration should be cleared")
	}
	if m.Transcode != TranscodeDone || m.Status != StatusDone {
		t.Errorf("patch not applied: %+v", m)
	}

	fields := p.Fields()
	want := []string{"duration", "transcode", "processing_status"}
	if len(fields) != len(want) {
		t.Fatalf("Fields() = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("Fields()[%d] = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestMutationEventChangedAny(t *testing.T) {
	created := MutationEvent{Op: OpCreated}
	if !created.ChangedAny("title") {
		t.Error("creates count as changing everything")
	}

	unknown := MutationEvent{Op: OpUpdated}
	if !unknown.ChangedAny("title") {
		t.Error("unknown change set counts as changing everything")
	}

	narrow := MutationEvent{Op: OpUpdated, Changed: []string{"duration"}}
	if narrow.ChangedAny("title", "genre_id") {
		t.Error("duration-only update should not match title/genre_id")
	}
	if !narrow.ChangedAny("duration") {
		t.Error("duration-only update should match duration")
	}
}

func TestMutationEventRefsChanged(t *testing.T) {
	ev := MutationEvent{
		Op:       OpUpdated,
		Parents:  ParentRefs{ArtistID: "a", GenreID: "g2"},
		Previous: ParentRefs{ArtistID: "a", GenreID: "g1"},
	}
	if !ev.RefsChanged() {
		t.Error("genre move should be detected")
	}
	ev.Previous = ev.Parents
	if ev.RefsChanged() {
		t.Error("identical refs should not count as changed")
	}
}

func TestBusEmitsInOrder(t *testing.T) {
	var bus Bus
	var got []string
	bus.Subscribe(ListenerFunc(func(_ context.Context, ev MutationEvent) {
		got = append(got, "first:"+ev.ID)
	}))
	bus.Subscribe(nil)
	bus.Subscribe(ListenerFunc(func(_ context.Context, ev MutationEvent) {
		got = append(got, "second:"+ev.ID)
	}))

	bus.Emit(context.Background(), MutationEvent{ID: "m1"})

	if len(got) != 2 || got[0] != "first:m1" || got[1] != "second:m1" {
		t.Errorf("emit order = %v", got)
	}
}
