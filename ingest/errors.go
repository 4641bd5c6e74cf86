package ingest

import (
	"errors"
	"fmt"
)

// ErrAssetGone means the Music row was deleted before or during processing.
// The job is dropped without retry.
var ErrAssetGone = errors.New("ingest: asset no longer exists")

// ProbeError reports that the duration could not be read after every
// attempt. The duration stays unknown.
type ProbeError struct {
	MusicID  string
	Path     string
	Attempts int
	Err      error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s (%s) failed after %d attempts: %v", e.MusicID, e.Path, e.Attempts, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TranscodeError reports that compression failed after every attempt. The
// original file is kept.
type TranscodeError struct {
	MusicID  string
	Path     string
	Attempts int
	Err      error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s (%s) failed after %d attempts: %v", e.MusicID, e.Path, e.Attempts, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }
