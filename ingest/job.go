package ingest

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

const (
	// MetadataKey is the message metadata entry carrying the idempotency
	// key, set by the worker once the checksum is known.
	MetadataKey = "idempotency_key"
	// MetadataChecksum carries the content checksum.
	MetadataChecksum = "checksum"
)

// Job asks the worker to run the pipeline for one Music row. The dispatcher
// fills the cheap fields; Checksum and Key are computed by the worker.
type Job struct {
	MusicID   string `json:"music_id"`
	FileRef   string `json:"file_ref,omitempty"`
	Reprocess bool   `json:"reprocess,omitempty"`
	// Nonce makes a reprocess job distinct from every earlier job.
	Nonce      string    `json:"nonce,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Key        string    `json:"key,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// IdempotencyKey identifies one piece of work. Redelivering the same upload
// yields the same key.
func IdempotencyKey(musicID, checksum string) string {
	return "ingest:" + musicID + ":" + checksum
}

// KeyFor returns the idempotency key of j for a content checksum.
func (j Job) KeyFor(checksum string) string {
	key := IdempotencyKey(j.MusicID, checksum)
	if j.Nonce != "" {
		key += ":r" + j.Nonce
	}
	return key
}

// Checksum returns the xxhash64 of the file content as hex.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// Encode serializes the job as a message payload.
func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob parses a message payload.
func DecodeJob(payload []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(payload, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if j.MusicID == "" {
		return Job{}, fmt.Errorf("decode job: missing music_id")
	}
	return j, nil
}
