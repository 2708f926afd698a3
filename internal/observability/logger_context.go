package observability

import (
	"context"
	"log/slog"
)

type ctxKeyLogger struct{}

type ctxKeyRequestID struct{}

// ContextWithLogger attaches a logger to the context. Handlers store a
// request-scoped logger here; the query pipeline layers session
// attributes on top of it.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if ctx == nil || lg == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyLogger{}, lg)
}

// LoggerFromContext returns the request-scoped logger. Off the HTTP
// path (cvindex, tests) no logger is stored; the fallback still carries
// the request_id when one is present so pipeline logs stay correlated.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if lg, ok := ctx.Value(ctxKeyLogger{}).(*slog.Logger); ok && lg != nil {
		return lg
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		return slog.Default().With(slog.String("request_id", rid))
	}
	return slog.Default()
}

// ContextWithRequestID stores a non-empty request_id in the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID{}, requestID)
}

// RequestIDFromContext retrieves the request_id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if rid, ok := ctx.Value(ctxKeyRequestID{}).(string); ok {
		return rid
	}
	return ""
}
