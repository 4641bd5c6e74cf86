package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Tier groups cached reads by how long they may stay fresh.
type Tier string

const (
	TierDetail    Tier = "detail"
	TierList      Tier = "list"
	TierAggregate Tier = "aggregate"
	TierTrending  Tier = "trending"
	TierPopular   Tier = "popular"
)

// TTLConfig holds the expiry of each tier. Invalidation does not depend on
// these values; they only bound how long an orphaned key occupies memory and
// how stale a direct detail key can get after a lost delete.
type TTLConfig struct {
	Detail    time.Duration `koanf:"detail"`
	List      time.Duration `koanf:"list"`
	Aggregate time.Duration `koanf:"aggregate"`
	Trending  time.Duration `koanf:"trending"`
	Popular   time.Duration `koanf:"popular"`
}

// DefaultTTLConfig returns the production expiries.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Detail:    30 * time.Minute,
		List:      15 * time.Minute,
		Aggregate: 20 * time.Minute,
		Trending:  30 * time.Minute,
		Popular:   60 * time.Minute,
	}
}

// Validate checks every tier has a positive expiry.
func (c TTLConfig) Validate() error {
	return AsConfigError(validation.ValidateStruct(&c,
		validation.Field(&c.Detail, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.List, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Aggregate, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Trending, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Popular, validation.Required, validation.Min(time.Second)),
	))
}

// For returns the expiry of tier, falling back to the list expiry.
func (c TTLConfig) For(tier Tier) time.Duration {
	switch tier {
	case TierDetail:
		return c.Detail
	case TierAggregate:
		return c.Aggregate
	case TierTrending:
		return c.Trending
	case TierPopular:
		return c.Popular
	}
	return c.List
}
