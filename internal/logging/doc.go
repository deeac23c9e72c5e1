// Package logging builds the slog loggers used by the parley binaries.
//
// Components never construct handlers themselves; they receive a
// *slog.Logger and tag it with logger.With("component", ...).
package logging
