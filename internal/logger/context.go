package logger

import (
	"context"

	"github.com/google/uuid"
)

type runKey struct{}

// NewRunID returns a fresh correlation ID for one pipeline run.
func NewRunID() string {
	return uuid.NewString()
}

// WithRun attaches a run ID to ctx. An empty id generates a new one.
func WithRun(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewRunID()
	}
	return context.WithValue(ctx, runKey{}, id)
}

// RunID returns the run ID carried by ctx, or "" if none is set.
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runKey{}).(string)
	return id
}

// FromContext returns the global logger prefixed with the run ID carried by
// ctx, so concurrent runs stay distinguishable in a shared log file.
func FromContext(ctx context.Context) *Logger {
	l := Global()
	if id := RunID(ctx); id != "" {
		return l.WithPrefix(shortID(id))
	}
	return l
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
