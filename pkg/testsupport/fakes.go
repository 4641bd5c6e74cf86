package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/goliatone/go-catalog-cache/catalog"
)

// ErrFake is the default error injected by the fakes.
var ErrFake = errors.New("fake failure")

// FakeProber returns a fixed duration per path.
type FakeProber struct {
	mu sync.Mutex
	// Durations by path; Default is used for unknown paths.
	Durations map[string]int
	Default   int
	// FailTimes makes the first N calls fail with Err (ErrFake when nil).
	FailTimes int
	Err       error
	calls     []string
}

func (p *FakeProber) Probe(ctx context.Context, path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, path)

	if p.FailTimes > 0 {
		p.FailTimes--
		return 0, p.failure()
	}
	if p.FailTimes < 0 {
		return 0, p.failure()
	}
	if d, ok := p.Durations[path]; ok {
		return d, nil
	}
	return p.Default, nil
}

func (p *FakeProber) failure() error {
	if p.Err != nil {
		return p.Err
	}
	return ErrFake
}

// Calls returns the number of Probe calls.
func (p *FakeProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// FakeTranscoder writes an output file of OutputSize bytes next to the
// input.
type FakeTranscoder struct {
	mu         sync.Mutex
	OutputSize int64
	// FailTimes makes the first N calls fail; a negative value fails every
	// call.
	FailTimes int
	Err       error
	// Before runs at the start of every call, e.g. to delete the row
	// mid-flight.
	Before   func(path string)
	calls    int
	bitrates []catalog.Bitrate
}

func (f *FakeTranscoder) Transcode(ctx context.Context, path string, bitrate catalog.Bitrate) (string, error) {
	f.mu.Lock()
	f.calls++
	f.bitrates = append(f.bitrates, bitrate)
	fail := f.FailTimes != 0
	if f.FailTimes > 0 {
		f.FailTimes--
	}
	before := f.Before
	size := f.OutputSize
	f.mu.Unlock()

	if before != nil {
		before(path)
	}
	if fail {
		if f.Err != nil {
			return "", f.Err
		}
		return "", ErrFake
	}

	out := fmt.Sprintf("%s.%d.%s.mp3", path, f.Calls(), bitrate)
	if err := os.WriteFile(out, make([]byte, size), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

// Calls returns the number of Transcode calls.
func (f *FakeTranscoder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Bitrates returns the requested bitrates in call order.
func (f *FakeTranscoder) Bitrates() []catalog.Bitrate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.Bitrate(nil), f.bitrates...)
}
