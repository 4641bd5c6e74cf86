// Package logging builds the zerolog loggers injected into every component
// and adapts them to the logger interfaces of watermill and log/slog.
//
// Use structured fields instead of string formatting:
//
//	logger.Info().Str("scope", s).Int64("generation", g).Msg("generation bumped")
package logging
