package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{in: "debug", want: slog.LevelDebug, ok: true},
		{in: " WARN ", want: slog.LevelWarn, ok: true},
		{in: "error", want: slog.LevelError, ok: true},
		{in: "trace", want: slog.LevelInfo, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestNewLogger_JSONWithRootField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Format: "json", Output: &buf})

	logger.WithRequestID("req-7").WithRootField("mutation", "createMovies").Debug("executing statement")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "executing statement", record["msg"])
	assert.Equal(t, "req-7", record["request_id"])
	assert.Equal(t, "mutation", record["operation"])
	assert.Equal(t, "createMovies", record["field"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Format: "text", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFanout(t *testing.T) {
	var debug, errs bytes.Buffer
	handler := fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	logger := slog.New(handler).With(slog.String("component", "engine"))

	assert.True(t, handler.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("compile")
	logger.Error("statement failed")

	assert.Contains(t, debug.String(), "compile")
	assert.Contains(t, debug.String(), "component=engine")
	assert.NotContains(t, errs.String(), "compile")
	assert.Contains(t, errs.String(), "statement failed")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.NotNil(t, FromContext(ctx).Logger)

	logger := NewLogger(Config{Output: &bytes.Buffer{}})
	ctx = WithLogger(WithRequestIDContext(ctx, "req-1"), logger)
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Same(t, logger, FromContext(ctx))
}
