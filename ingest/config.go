package ingest

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-catalog-cache/cache"
	"github.com/goliatone/go-catalog-cache/catalog"
)

const (
	// DefaultSizeThreshold is the size above which files are compressed.
	DefaultSizeThreshold = 10 << 20

	DefaultTopic       = "catalog.ingest"
	DefaultPoisonTopic = "catalog.ingest.poison"
)

// Config holds ingestion pipeline and worker configuration.
type Config struct {
	// SizeThreshold in bytes. Files strictly larger are transcoded.
	SizeThreshold int64 `koanf:"size_threshold"`

	// Quality is low, medium or high (or a bitrate such as 192k).
	// Default: medium
	Quality string `koanf:"quality"`

	ProbeAttempts     int `koanf:"probe_attempts"`
	TranscodeAttempts int `koanf:"transcode_attempts"`

	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`

	// StepTimeout bounds a single probe or transcode call.
	StepTimeout time.Duration `koanf:"step_timeout"`

	Topic       string `koanf:"topic"`
	PoisonTopic string `koanf:"poison_topic"`

	// HandlerRetries is the number of redeliveries of a failed job before
	// it goes to the poison topic.
	HandlerRetries int           `koanf:"handler_retries"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`

	// Workers is the number of competing handlers on the topic.
	Workers int `koanf:"workers"`

	// ClaimTTL bounds how long a crashed job keeps its idempotency key
	// locked. It should outlast the slowest job.
	ClaimTTL time.Duration `koanf:"claim_ttl"`
	// DoneTTL is how long a finished key rejects redeliveries.
	DoneTTL time.Duration `koanf:"done_ttl"`
}

// DefaultConfig returns the default ingestion configuration.
func DefaultConfig() Config {
	return Config{
		SizeThreshold:     DefaultSizeThreshold,
		Quality:           "medium",
		ProbeAttempts:     3,
		TranscodeAttempts: 2,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		StepTimeout:       10 * time.Minute,
		Topic:             DefaultTopic,
		PoisonTopic:       DefaultPoisonTopic,
		HandlerRetries:    3,
		CloseTimeout:      30 * time.Second,
		Workers:           1,
		ClaimTTL:          time.Hour,
		DoneTTL:           24 * time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return cache.AsConfigError(validation.ValidateStruct(&c,
		validation.Field(&c.SizeThreshold, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.Quality, validation.By(func(any) error {
			_, err := catalog.ParseBitrate(c.Quality)
			return err
		})),
		validation.Field(&c.ProbeAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.TranscodeAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.InitialBackoff, validation.Required),
		validation.Field(&c.MaxBackoff, validation.Required, validation.Min(c.InitialBackoff)),
		validation.Field(&c.StepTimeout, validation.Required),
		validation.Field(&c.Topic, validation.Required),
		validation.Field(&c.PoisonTopic, validation.Required),
		validation.Field(&c.HandlerRetries, validation.Min(0)),
		validation.Field(&c.CloseTimeout, validation.Required),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.ClaimTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.DoneTTL, validation.Required, validation.Min(c.ClaimTTL)),
	))
}

// Bitrate returns the configured transcode target.
func (c Config) Bitrate() catalog.Bitrate {
	b, err := catalog.ParseBitrate(c.Quality)
	if err != nil {
		return catalog.DefaultBitrate
	}
	return b
}
