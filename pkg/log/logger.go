// Package log builds the service's slog loggers and typed attributes
package log

import (
	"log/slog"
	"os"
)

// New returns an info-level JSON logger tagged with the service identity
func New(service, env, version string) *slog.Logger {
	return NewWithLevel(service, env, version, slog.LevelInfo)
}

// NewWithLevel returns a JSON logger at the given level. Every record
// carries the service, env, and version attributes
func NewWithLevel(
	service, env, version string, lvl slog.Level,
) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lvl}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	return logger.With(
		slog.String("service", service),
		slog.String("env", env),
		slog.String("version", version))
}
