package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := GlobalLogger
	buf := &bytes.Buffer{}
	SetGlobalLogger(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { GlobalLogger = prev })
	return buf
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	id := GenerateCorrelationID()
	require.NotEmpty(t, id)
	assert.NotEqual(t, id, GenerateCorrelationID())

	ctx := WithCorrelationID(context.Background(), id)
	assert.Equal(t, id, ExtractCorrelationID(ctx))
	assert.Empty(t, ExtractCorrelationID(context.Background()))
}

func TestLogAsyncOperationError(t *testing.T) {
	buf := captureLogs(t)
	ctx := WithCorrelationID(context.Background(), "corr-1")

	LogAsyncOperationError(ctx, "feed.fetch", errors.New("boom"), map[string]interface{}{"page": 2})

	var logged map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logged))
	assert.Equal(t, "async operation failed", logged["msg"])
	assert.Equal(t, "feed.fetch", logged["operation"])
	assert.Equal(t, "boom", logged["error"])
	assert.Equal(t, "corr-1", logged["correlation_id"])
	assert.EqualValues(t, 2, logged["page"])
}

func TestRepoLoggerRespectsConfig(t *testing.T) {
	buf := captureLogs(t)
	prev := Config
	t.Cleanup(func() { Config = prev })

	Config.EnableRepoLogging = false
	NewRepoLogger("posts").LogCreate(context.Background(), nil)
	assert.Zero(t, buf.Len())

	Config.EnableRepoLogging = true
	NewRepoLogger("posts").LogCreate(context.Background(), map[string]interface{}{"id": "p1"})
	assert.Contains(t, buf.String(), `"table":"posts"`)
}

func TestSpanWithoutProviderIsSafe(t *testing.T) {
	span, ctx := NewSpan(context.Background(), "test")
	require.NotNil(t, ctx)
	span.SetError(errors.New("x"))
	span.SetError(nil)
	span.End()
}
