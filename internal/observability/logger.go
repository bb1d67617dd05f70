// Package observability builds the process logger and carries per-request
// and per-item logging context.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/jmylchreest/jobctl/internal/config"
)

// redactedFields are attribute keys whose values never reach the log sink.
var redactedFields = []string{
	"password",
	"token",
	"secret",
	"authorization",
	"dsn",
	"api_key",
}

// NewLoggerWithWriter builds a JSON or text logger writing to w.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: replaceAttr(cfg.TimeFormat),
	}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func replaceAttr(timeFormat string) func([]string, slog.Attr) slog.Attr {
	opts := make([]masq.Option, len(redactedFields))
	for i, field := range redactedFields {
		opts[i] = masq.WithFieldName(field)
	}
	redact := masq.New(opts...)

	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.TimeKey {
			if timeFormat != "" && a.Value.Kind() == slog.KindTime {
				return slog.String(slog.TimeKey, a.Value.Time().Format(timeFormat))
			}
			return a
		}
		return redact(groups, a)
	}
}

// ParseLevel accepts the slog level names in any case, plus "warning".
// Anything else is info.
func ParseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// TimedOperationWithError logs the start of operation now, and its end with
// the duration when the returned function runs. errPtr is read at that
// point, so an error assigned after the call is reported:
//
//	var err error
//	done := observability.TimedOperationWithError(ctx, logger, "launch", &err)
//	defer done()
//	err = doSomething()
func TimedOperationWithError(ctx context.Context, logger *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	logger = logger.With(slog.String("operation", operation))
	logger.InfoContext(ctx, "operation started")

	return func() {
		elapsed := slog.Duration("duration", time.Since(start))
		if errPtr != nil && *errPtr != nil {
			logger.ErrorContext(ctx, "operation failed", elapsed, slog.String("error", (*errPtr).Error()))
			return
		}
		logger.InfoContext(ctx, "operation completed", elapsed)
	}
}
