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

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestLoggerAddsContextAttributes(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug, true)

	ctx := WithCorrelationID(context.Background(), "corr-1")
	ctx = WithSession(ctx, "sess-1", "viewer-1")
	fl := &FeedLogger{logger: logger}
	fl.LogPageLoaded(ctx, "initial", 0, 10, true)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "feed page loaded", rec["msg"])
	assert.Equal(t, "corr-1", rec["correlation_id"])
	assert.Equal(t, "sess-1", rec["session_id"])
	assert.Equal(t, "viewer-1", rec["viewer_id"])
	assert.Equal(t, "initial", rec["kind"])
	assert.Equal(t, true, rec["has_more"])
}

func TestLogMutationLevels(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	fl := &FeedLogger{logger: NewLogger(&buf, slog.LevelInfo, true)}

	fl.LogMutation(context.Background(), "like", "p1", OutcomeRolledBack, errors.New("boom"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "p1", rec["post_id"])
}

func TestEnsureCorrelationID(t *testing.T) {
	t.Parallel()
	ctx := EnsureCorrelationID(context.Background())
	id := ExtractCorrelationID(ctx)
	assert.Len(t, id, 36)

	same := EnsureCorrelationID(ctx)
	assert.Equal(t, id, ExtractCorrelationID(same))
	assert.Empty(t, ExtractCorrelationID(context.Background()))
}

func TestRecoverAndReportSwallowsPanic(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		defer RecoverAndReport(context.Background(), "test")
		panic("boom")
	})
}
