package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/jobctl/internal/config"
)

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "json",
	}

	logger := NewLoggerWithWriter(cfg, &buf)
	logger.Info("test message", slog.String("key", "value"))

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, `"key":"value"`)

	var parsed map[string]any
	err := json.Unmarshal([]byte(output), &parsed)
	require.NoError(t, err)
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
	}

	logger := NewLoggerWithWriter(cfg, &buf)
	logger.Info("test message", slog.String("key", "value"))

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"error+2", slog.LevelError + 2},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewLogger_LevelGate(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_TimeFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.DateOnly,
	}, &buf)
	logger.Info("dated")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	ts, ok := parsed["time"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.DateOnly, ts)
	assert.NoError(t, err)
}

func TestNewLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Info("connecting",
		slog.String("dsn", "postgres://user:hunter2@db/jobs"),
		slog.String("token", "abc123secret"),
		slog.String("host", "db"),
	)

	output := buf.String()
	assert.NotContains(t, output, "hunter2")
	assert.NotContains(t, output, "abc123secret")
	assert.Contains(t, output, `"host":"db"`)
}

func TestWithItem(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	itemLogger := WithCorrelationID(WithItem(logger, 3, "/media/a.mov"), "corr-1")
	itemLogger = WithJobID(itemLogger, "job-42")
	itemLogger.Info("submitted")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, float64(3), parsed["item_index"])
	assert.Equal(t, "/media/a.mov", parsed["input"])
	assert.Equal(t, "corr-1", parsed["correlation_id"])
	assert.Equal(t, "job-42", parsed["job_id"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	assert.Same(t, logger, WithError(logger, nil))

	WithError(logger, errors.New("boom")).Info("failed")
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestWithAppAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	WithComponent(WithApp(logger, "jobctl"), "poller").Info("tick")

	output := buf.String()
	assert.Contains(t, output, "app=jobctl")
	assert.Contains(t, output, "component=poller")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationIDFromContext(ctx))

	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, fallback, LoggerFromContextOr(ctx, fallback))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx = ContextWithLogger(ctx, logger)
	ctx = ContextWithCorrelationID(ctx, "corr-9")

	assert.Same(t, logger, LoggerFromContextOr(ctx, fallback))
	assert.Equal(t, "corr-9", CorrelationIDFromContext(ctx))
}

func TestTimedOperationWithError(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

		var err error
		done := TimedOperationWithError(context.Background(), logger, "launch", &err)
		done()

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "operation started")
		assert.Contains(t, lines[1], "operation completed")
		assert.Contains(t, lines[1], `"operation":"launch"`)
	})

	t.Run("failure set after start", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

		var err error
		done := TimedOperationWithError(context.Background(), logger, "launch", &err)
		err = errors.New("engine down")
		done()

		assert.Contains(t, buf.String(), "operation failed")
		assert.Contains(t, buf.String(), "engine down")
	})
}
