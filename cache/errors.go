package cache

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrInvalidationRace names the lost-update hazard of read-modify-write
// generation bumps. Generations only move through Backend.Incr, so nothing
// in this module returns it; it exists for backends that cannot offer an
// atomic increment and must refuse the bump instead.
var ErrInvalidationRace = errors.New("cache: concurrent generation bump lost")

// CacheUnavailableError reports that the backend could not serve an
// operation. Callers treat it as a miss on reads and log it on writes.
type CacheUnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheUnavailableError) Error() string {
	msg := "cache unavailable: " + e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CacheUnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a CacheUnavailableError. A nil err stays nil.
func Unavailable(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var cu *CacheUnavailableError
	if errors.As(err, &cu) {
		return err
	}
	return &CacheUnavailableError{Op: op, Key: key, Err: err}
}

// IsUnavailable reports whether err is, or wraps, a CacheUnavailableError.
func IsUnavailable(err error) bool {
	var cu *CacheUnavailableError
	return errors.As(err, &cu)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return "config error in field " + e.Field + ": " + e.Message
}

// AsConfigError converts the result of an ozzo-validation call into a
// ConfigError naming the first offending field in alphabetical order.
func AsConfigError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return &ConfigError{Message: err.Error()}
	}

	fields := make([]string, 0, len(verrs))
	for f, e := range verrs {
		if e != nil {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)

	first := fields[0]
	return &ConfigError{Field: first, Message: verrs[first].Error()}
}
