package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	slowQueryThreshold = 500 * time.Millisecond
	maxSQLLogLength    = 200
)

var gormLevels = map[string]logger.LogLevel{
	"silent": logger.Silent,
	"error":  logger.Error,
	"warn":   logger.Warn,
	"info":   logger.Info,
}

// gormLogLevel maps a configured level name; unknown names mean warn.
func gormLogLevel(name string) logger.LogLevel {
	if lvl, ok := gormLevels[strings.ToLower(name)]; ok {
		return lvl
	}
	return logger.Warn
}

// gormLogger sends GORM's log output to slog. Query errors log at error,
// slow queries at warn and every other query at debug, each gated by the
// configured GORM level. Record-not-found is an expected lookup miss and is
// not logged.
type gormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

func newGormLogger(l *slog.Logger, level string) *gormLogger {
	return &gormLogger{logger: l.With(slog.String("component", "database")), level: gormLogLevel(level)}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{logger: g.logger, level: level}
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	g.printf(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	g.printf(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	g.printf(ctx, logger.Error, slog.LevelError, msg, args)
}

func (g *gormLogger) printf(ctx context.Context, min logger.LogLevel, level slog.Level, msg string, args []any) {
	if g.level >= min {
		g.logger.Log(ctx, level, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	var (
		level slog.Level
		msg   string
	)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		level, msg = slog.LevelError, "database error"
	case elapsed > slowQueryThreshold && g.level >= logger.Warn:
		level, msg = slog.LevelWarn, "slow query"
	case g.level >= logger.Info:
		level, msg = slog.LevelDebug, "database query"
	default:
		return
	}
	// fc renders the statement with its arguments; skip it when nothing
	// would be written.
	if !g.logger.Enabled(ctx, level) {
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", truncateSQL(sql)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if level == slog.LevelError {
		attrs = append(attrs, slog.String("error_type", errorType(err)), slog.String("error", err.Error()))
	}
	g.logger.LogAttrs(ctx, level, msg, attrs...)
}

// errorType gives query errors a stable label for log filtering.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CONTEXT_CANCELED"
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "NOT_FOUND"
	case strings.Contains(err.Error(), "database is locked"):
		return "SQLITE_BUSY"
	default:
		return "OTHER"
	}
}

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLLogLength {
		return sql
	}
	return sql[:maxSQLLogLength] + "... (truncated)"
}
