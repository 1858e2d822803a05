package rdfstore

import (
	"context"
	"time"

	eve "eve.evalgo.org/common"
	"github.com/sirupsen/logrus"
)

// NewLogger builds the engine's structured logger, reusing the teacher's
// LoggerConfig/NewLogger so rdfstore logs the same way every other eve
// service does (JSON in production, text in development).
func NewLogger(level, format, version string) *logrus.Logger {
	return eve.NewLogger(eve.LoggerConfig{
		Level:      eve.LogLevel(level),
		Format:     format,
		Service:    "rdfstore",
		Version:    version,
		TimeFormat: time.RFC3339,
	})
}

// opLogger returns a ContextLogger annotated with standard database-
// operation fields, used by code paths that want structured per-call
// logging beyond the bare backend-error wrapping in errors.go.
func opLogger(logger *logrus.Logger, operation, table string, rowsAffected int64, duration time.Duration) *eve.ContextLogger {
	return eve.NewContextLogger(logger, eve.DatabaseFields(operation, table, rowsAffected, duration))
}

// withRequestContext attaches request/trace fields carried on ctx, when
// present, matching the teacher's request-scoped logging convention.
func withRequestContext(ctx context.Context, cl *eve.ContextLogger) *eve.ContextLogger {
	return cl.WithContext(ctx)
}
