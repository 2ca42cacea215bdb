// Package requestctx carries per-request values (logger, trace and buyer session) through
// context.Context.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

// key is a distinct context key per stored type.
type key[T any] struct{}

func with[T any](ctx context.Context, value T) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key[T]{}, value)
}

func get[T any](ctx context.Context) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	value, ok := ctx.Value(key[T]{}).(T)
	return value, ok
}

var noopLogger = zap.NewNop()

// TraceInfo is the Cloud Trace context of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// sessionID distinguishes the buyer session from other string values.
type sessionID string

// WithLogger stores a request-scoped logger. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return with(ctx, logger)
}

// Logger returns the request-scoped logger, or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := get[*zap.Logger](ctx); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger is the shared fallback logger.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores trace metadata.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return with(ctx, info)
}

// Trace returns trace metadata when present.
func Trace(ctx context.Context) (TraceInfo, bool) {
	return get[TraceInfo](ctx)
}

// TraceID returns the trace id or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithSessionID stores the buyer session id used to remember destinations between quotes.
func WithSessionID(ctx context.Context, id string) context.Context {
	return with(ctx, sessionID(id))
}

// SessionID returns the buyer session id or "".
func SessionID(ctx context.Context) string {
	id, _ := get[sessionID](ctx)
	return string(id)
}
