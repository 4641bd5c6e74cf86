package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestScopeFamily(t *testing.T) {
	tests := map[string]string{
		"music_list":         "music_list",
		"artist:stats:42":    "artist:stats",
		"playlist:detail:p1": "playlist:detail",
		"":                   "",
	}
	for in, want := range tests {
		if got := ScopeFamily(in); got != want {
			t.Errorf("ScopeFamily(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordQueryRead(t *testing.T) {
	before := testutil.ToFloat64(QueryCacheReads.WithLabelValues("genre:complete", "hit"))

	RecordQueryRead("genre:complete:g1", "hit")
	RecordQueryRead("genre:complete:g2", "hit")

	after := testutil.ToFloat64(QueryCacheReads.WithLabelValues("genre:complete", "hit"))
	if after-before != 2 {
		t.Errorf("expected 2 hits recorded under the family label, got %v", after-before)
	}
}

func TestRecordIngestStep(t *testing.T) {
	RecordIngestStep("probe", 10*time.Millisecond, nil)
	RecordIngestStep("probe", 10*time.Millisecond, errors.New("boom"))

	if got := testutil.CollectAndCount(IngestStepDuration); got < 2 {
		t.Errorf("expected ok and error series, got %d", got)
	}
}

func TestRecordCounters(t *testing.T) {
	tests := []struct {
		name   string
		record func()
		value  func() float64
	}{
		{
			name:   "generation bump",
			record: func() { RecordGenerationBump("album:detail:a1") },
			value:  func() float64 { return testutil.ToFloat64(GenerationBumps.WithLabelValues("album:detail")) },
		},
		{
			name:   "invalidation failure",
			record: func() { RecordInvalidationFailure("bump") },
			value:  func() float64 { return testutil.ToFloat64(InvalidationFailures.WithLabelValues("bump")) },
		},
		{
			name:   "ingest job",
			record: func() { RecordIngestJob("done") },
			value:  func() float64 { return testutil.ToFloat64(IngestJobs.WithLabelValues("done")) },
		},
		{
			name:   "cache operation",
			record: func() { RecordCacheOperation("get", "hit", time.Millisecond) },
			value:  func() float64 { return testutil.ToFloat64(CacheOperations.WithLabelValues("get", "hit")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.value()
			tt.record()
			if got := tt.value() - before; got != 1 {
				t.Errorf("expected counter to grow by 1, grew by %v", got)
			}
		})
	}
}
