package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

// QueryLogger is a bun.QueryHook that logs every query with slog.
type QueryLogger struct {
	logger *slog.Logger
}

var _ bun.QueryHook = (*QueryLogger)(nil)

// NewQueryLogger creates a hook writing to logger.
func NewQueryLogger(logger *slog.Logger) *QueryLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryLogger{logger: logger}
}

func (h *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	attrs := []any{
		"operation", event.Operation(),
		"query", event.Query,
		"duration", time.Since(event.StartTime),
	}
	if event.Err != nil {
		h.logger.WarnContext(ctx, "storage.query", append(attrs, "error", event.Err)...)
		return
	}
	h.logger.DebugContext(ctx, "storage.query", attrs...)
}
