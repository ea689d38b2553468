package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const runIDKey contextKey = "run_id"

// NewRunID returns a short identifier for one report run.
func NewRunID() string {
	return uuid.New().String()[:8]
}

// ContextWithRunID stores a run ID on ctx.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run ID stored on ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger tagged with the run ID found on ctx.
func Ctx(ctx context.Context) zerolog.Logger {
	l := Logger()
	if id := RunIDFromContext(ctx); id != "" {
		return l.With().Str("run_id", id).Logger()
	}
	return l
}
