package observability

import (
	"context"
	"log/slog"
)

type (
	correlationIDKey struct{}
	loggerKey        struct{}
)

// ContextWithCorrelationID stores the correlation id of a request or item.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext returns the stored correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// ContextWithLogger stores a logger, usually one already tagged with item
// attributes, for code further down the call chain.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContextOr returns the stored logger, or fallback.
func LoggerFromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return fallback
}

func WithApp(logger *slog.Logger, app string) *slog.Logger {
	return logger.With(slog.String("app", app))
}

func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

func WithCorrelationID(logger *slog.Logger, id string) *slog.Logger {
	return logger.With(slog.String("correlation_id", id))
}

// WithItem tags records with the identity of one input item, so output from
// concurrently processed items can be collated per item.
func WithItem(logger *slog.Logger, index int, input string) *slog.Logger {
	return logger.With(slog.Int("item_index", index), slog.String("input", input))
}

func WithJobID(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With(slog.String("job_id", jobID))
}

// WithError adds err as an attribute; a nil err returns logger unchanged.
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}
