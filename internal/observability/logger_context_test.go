package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/observability"
)

func TestLoggerRoundTrip(t *testing.T) {
	t.Parallel()

	lg := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := observability.ContextWithLogger(context.Background(), lg)
	assert.Same(t, lg, observability.LoggerFromContext(ctx))

	// Nil logger leaves the context untouched.
	assert.Same(t, ctx, observability.ContextWithLogger(ctx, nil))
}

func TestLoggerFromContextDefault(t *testing.T) {
	t.Parallel()

	assert.Same(t, slog.Default(), observability.LoggerFromContext(context.Background()))
	assert.Same(t, slog.Default(), observability.LoggerFromContext(nil)) //nolint:staticcheck
}

func TestLoggerFallbackCarriesRequestID(t *testing.T) {
	// Swaps the process default logger, so no t.Parallel.
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := observability.ContextWithRequestID(context.Background(), "req_123")
	observability.LoggerFromContext(ctx).Info("pipeline stage")

	require.Contains(t, buf.String(), "request_id=req_123")
}

func TestRequestIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := observability.ContextWithRequestID(context.Background(), "req_abc")
	assert.Equal(t, "req_abc", observability.RequestIDFromContext(ctx))
	assert.Empty(t, observability.RequestIDFromContext(context.Background()))

	// Empty ids are not stored.
	assert.Equal(t, "req_abc", observability.RequestIDFromContext(observability.ContextWithRequestID(ctx, "")))
}
