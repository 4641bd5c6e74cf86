package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-cache/catalog"
	"github.com/goliatone/go-catalog-cache/pkg/testsupport"
)

const testThreshold = 1000

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SizeThreshold = testThreshold
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.StepTimeout = 5 * time.Second
	cfg.CloseTimeout = time.Second
	return cfg
}

// upload stores a track whose file is size bytes long.
func upload(t *testing.T, store *testsupport.MemoryStore, size int64) (*catalog.Music, string) {
	t.Helper()
	path := testsupport.TempAudio(t, "upload.mp3", size)
	m := &catalog.Music{ArtistID: "artist-1", Title: "Upload", FileRef: path, FileSize: size, IsActive: true}
	if err := store.CreateMusic(context.Background(), m); err != nil {
		t.Fatalf("CreateMusic: %v", err)
	}
	return m, path
}

func newPipeline(t *testing.T, store MediaStore, p Prober, tr Transcoder, cfg Config) *Pipeline {
	t.Helper()
	pipeline, err := NewPipeline(store, p, tr, cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return pipeline
}

func stored(t *testing.T, store *testsupport.MemoryStore, id string) *catalog.Music {
	t.Helper()
	m, err := store.Music(context.Background(), id)
	if err != nil {
		t.Fatalf("Music(%s): %v", id, err)
	}
	return m
}

func assertGone(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected %s to be removed, stat err = %v", path, err)
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	store := testsupport.NewMemoryStore()
	if _, err := NewPipeline(nil, &testsupport.FakeProber{}, &testsupport.FakeTranscoder{}, testConfig()); err == nil {
		t.Error("expected error for nil store")
	}
	bad := testConfig()
	bad.ProbeAttempts = 0
	if _, err := NewPipeline(store, &testsupport.FakeProber{}, &testsupport.FakeTranscoder{}, bad); err == nil {
		t.Error("expected config error")
	}
}

func TestProcess_SmallFileSkipsCompression(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, path := upload(t, store, testThreshold)
	prober := &testsupport.FakeProber{Default: 245}
	transcoder := &testsupport.FakeTranscoder{OutputSize: 10}

	out, err := newPipeline(t, store, prober, transcoder, testConfig()).Process(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := []State{StateUploaded, StateDurationProbed, StateCompressionSkipped, StateFinalized}
	if !slices.Equal(out.States, want) {
		t.Errorf("States = %v, want %v", out.States, want)
	}
	if transcoder.Calls() != 0 {
		t.Errorf("a file of exactly the threshold must not be transcoded")
	}

	got := stored(t, store, m.ID)
	if got.Duration == nil || *got.Duration != 245 || got.Status != catalog.StatusDone {
		t.Errorf("unexpected row %+v", got)
	}
	if got.FileRef != path || got.Transcode != catalog.TranscodeNone {
		t.Errorf("file must be untouched: %+v", got)
	}
}

func TestProcess_CompressionReplacesSmallerOutput(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, path := upload(t, store, testThreshold+1)
	transcoder := &testsupport.FakeTranscoder{OutputSize: 400}

	out, err := newPipeline(t, store, &testsupport.FakeProber{Default: 300}, transcoder, testConfig()).Process(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Compression != StateCompressionSucceeded || !out.Replaced {
		t.Errorf("unexpected outcome %+v", out)
	}
	if b := transcoder.Bitrates(); len(b) != 1 || b[0] != catalog.BitrateMedium {
		t.Errorf("Bitrates = %v", b)
	}

	got := stored(t, store, m.ID)
	if got.FileRef == path || got.FileSize != 400 || got.Transcode != catalog.TranscodeDone {
		t.Errorf("row not pointed at the output: %+v", got)
	}
	if info, err := os.Stat(got.FileRef); err != nil || info.Size() != 400 {
		t.Errorf("output missing: %v", err)
	}
	assertGone(t, path)
}

func TestProcess_CompressionKeepsOriginalWhenNotSmaller(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, path := upload(t, store, 2000)
	transcoder := &testsupport.FakeTranscoder{OutputSize: 2000}

	out, err := newPipeline(t, store, &testsupport.FakeProber{Default: 300}, transcoder, testConfig()).Process(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Compression != StateCompressionSucceeded || out.Replaced {
		t.Errorf("unexpected outcome %+v", out)
	}

	got := stored(t, store, m.ID)
	if got.FileRef != path || got.Transcode != catalog.TranscodeDone {
		t.Errorf("original must be kept: %+v", got)
	}
	assertGone(t, path+".1.192k.mp3")
}

func TestProcess_TranscodeFailure(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, path := upload(t, store, 2000)
	transcoder := &testsupport.FakeTranscoder{FailTimes: -1}

	out, err := newPipeline(t, store, &testsupport.FakeProber{Default: 300}, transcoder, testConfig()).Process(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("transcode failures must not fail the job: %v", err)
	}

	var te *TranscodeError
	if !errors.As(out.TranscodeErr, &te) || te.Attempts != 2 || !errors.Is(te, testsupport.ErrFake) {
		t.Errorf("TranscodeErr = %v", out.TranscodeErr)
	}
	if transcoder.Calls() != 2 {
		t.Errorf("expected 2 attempts, got %d", transcoder.Calls())
	}

	got := stored(t, store, m.ID)
	if got.Transcode != catalog.TranscodeFailed || got.FileRef != path || got.Status != catalog.StatusDone {
		t.Errorf("unexpected row %+v", got)
	}
	if out.Compression != StateCompressionFailed {
		t.Errorf("Compression = %s", out.Compression)
	}
}

func TestProcess_ProbeRetries(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, _ := upload(t, store, 10)
	prober := &testsupport.FakeProber{Default: 61, FailTimes: 2}

	out, err := newPipeline(t, store, prober, &testsupport.FakeTranscoder{}, testConfig()).Process(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if prober.Calls() != 3 || out.ProbeErr != nil {
		t.Errorf("calls = %d, ProbeErr = %v", prober.Calls(), out.ProbeErr)
	}
	if got := stored(t, store, m.ID); got.DurationLabel() != "1:01" {
		t.Errorf("duration label = %q", got.DurationLabel())
	}
}

func TestProcess_ProbeFailureLeavesDurationUnknown(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, _ := upload(t, store, 2000)
	prober := &testsupport.FakeProber{FailTimes: -1}
	transcoder := &testsupport.FakeTranscoder{OutputSize: 100}

	out, err := newPipeline(t, store, prober, transcoder, testConfig()).Process(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	var pe *ProbeError
	if !errors.As(out.ProbeErr, &pe) || pe.Attempts != 3 {
		t.Errorf("ProbeErr = %v", out.ProbeErr)
	}
	if slices.Contains(out.States, StateDurationProbed) {
		t.Errorf("States = %v", out.States)
	}
	if transcoder.Calls() != 1 {
		t.Error("compression still runs when the duration is unknown")
	}

	got := stored(t, store, m.ID)
	if got.Duration != nil || got.Status != catalog.StatusFailed {
		t.Errorf("unexpected row %+v", got)
	}
}

func TestProcess_MissingFileIsNotRetried(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, path := upload(t, store, 10)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	prober := &testsupport.FakeProber{FailTimes: -1, Err: fs.ErrNotExist}

	out, err := newPipeline(t, store, prober, &testsupport.FakeTranscoder{}, testConfig()).Process(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if prober.Calls() != 1 {
		t.Errorf("expected a single probe, got %d", prober.Calls())
	}
	if out.Compression != StateCompressionSkipped || out.Status != catalog.StatusFailed {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, _ := upload(t, store, 10)
	prober := &testsupport.FakeProber{Default: 90}
	p := newPipeline(t, store, prober, &testsupport.FakeTranscoder{}, testConfig())

	if _, err := p.Process(context.Background(), m.ID); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	out, err := p.Process(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if !out.Noop || prober.Calls() != 1 {
		t.Errorf("redelivery must be a no-op: %+v, probes %d", out, prober.Calls())
	}
}

func TestProcess_NoFileIsNoop(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m := &catalog.Music{ArtistID: "artist-1", Title: "Metadata only"}
	_ = store.CreateMusic(context.Background(), m)

	out, err := newPipeline(t, store, &testsupport.FakeProber{}, &testsupport.FakeTranscoder{}, testConfig()).Process(context.Background(), m.ID)
	if err != nil || !out.Noop {
		t.Errorf("expected noop, got %+v, %v", out, err)
	}
}

func TestProcess_AssetGone(t *testing.T) {
	store := testsupport.NewMemoryStore()
	p := newPipeline(t, store, &testsupport.FakeProber{}, &testsupport.FakeTranscoder{}, testConfig())

	if _, err := p.Process(context.Background(), "missing"); !errors.Is(err, ErrAssetGone) {
		t.Errorf("expected ErrAssetGone, got %v", err)
	}
}

func TestProcess_DeletedDuringTranscode(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, path := upload(t, store, 2000)
	transcoder := &testsupport.FakeTranscoder{
		OutputSize: 100,
		Before: func(string) {
			_ = store.DeleteMusic(context.Background(), m.ID)
		},
	}

	_, err := newPipeline(t, store, &testsupport.FakeProber{Default: 30}, transcoder, testConfig()).Process(context.Background(), m.ID)
	if !errors.Is(err, ErrAssetGone) {
		t.Fatalf("expected ErrAssetGone, got %v", err)
	}
	assertGone(t, path+".1.192k.mp3")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("original must not be touched by a discarded job: %v", err)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	store := testsupport.NewMemoryStore()
	m, _ := upload(t, store, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prober := &testsupport.FakeProber{FailTimes: -1, Err: context.Canceled}

	if _, err := newPipeline(t, store, prober, &testsupport.FakeTranscoder{}, testConfig()).Process(ctx, m.ID); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if got := stored(t, store, m.ID); got.Status.Terminal() {
		t.Errorf("cancelled job must not finalize, status %s", got.Status)
	}
}
