package mediainfra

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
)

// Config locates the ffmpeg binary.
type Config struct {
	FFmpegPath string `koanf:"ffmpeg_path"`
	// Codec is the ffmpeg audio encoder.
	Codec string `koanf:"codec"`
}

func DefaultConfig() Config {
	return Config{FFmpegPath: "ffmpeg", Codec: "libmp3lame"}
}

func (c Config) Validate() error {
	return cache.AsConfigError(validation.ValidateStruct(&c,
		validation.Field(&c.FFmpegPath, validation.Required),
		validation.Field(&c.Codec, validation.Required),
	))
}

const (
	stderrTail = 2048
	waitDelay  = 2 * time.Second
)

// FFmpegTranscoder re-encodes audio with an ffmpeg child process. The
// process is killed when the context is cancelled.
type FFmpegTranscoder struct {
	binary string
	codec  string
	logger zerolog.Logger
}

// NewFFmpegTranscoder resolves the binary on PATH.
func NewFFmpegTranscoder(cfg Config, logger zerolog.Logger) (*FFmpegTranscoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("locate ffmpeg: %w", err)
	}
	return &FFmpegTranscoder{binary: bin, codec: cfg.Codec, logger: logger}, nil
}

// OutputPath is where a transcode of path at bitrate is written. It always
// differs from path.
func OutputPath(path string, bitrate catalog.Bitrate) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return fmt.Sprintf("%s.%s.mp3", base, bitrate)
}

// Transcode writes path re-encoded at bitrate to OutputPath. ffmpeg writes
// to a fresh file in the same directory, renamed into place on success, so
// the input and any earlier output are never opened for writing.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, path string, bitrate catalog.Bitrate) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	out := OutputPath(path, bitrate)

	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*.mp3")
	if err != nil {
		return "", fmt.Errorf("ffmpeg %s: %w", filepath.Base(path), err)
	}
	partial := tmp.Name()
	tmp.Close()
	defer os.Remove(partial)

	cmd := exec.CommandContext(ctx, t.binary,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", path,
		"-vn",
		"-codec:a", t.codec,
		"-b:a", string(bitrate),
		partial,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	t.logger.Debug().Str("input", path).Str("bitrate", string(bitrate)).Msg("transcoding")
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("ffmpeg %s: %w: %s", filepath.Base(path), err, tail(stderr.String()))
	}

	info, err := os.Stat(partial)
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("ffmpeg %s: no output written", filepath.Base(path))
	}
	if err := os.Rename(partial, out); err != nil {
		return "", fmt.Errorf("ffmpeg %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}
