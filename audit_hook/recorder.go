package audithook

import (
	"context"
	"log/slog"
)

// SlogRecorder writes audit events as structured log records.
type SlogRecorder struct {
	logger *slog.Logger
}

var _ Recorder = (*SlogRecorder)(nil)

// NewSlogRecorder creates a recorder that logs to l. A nil logger uses
// slog.Default().
func NewSlogRecorder(l *slog.Logger) *SlogRecorder {
	if l == nil {
		l = slog.Default()
	}
	return &SlogRecorder{logger: l}
}

// Record implements Recorder. Critical events are logged at error level,
// warnings at warn level and everything else at info level.
func (r *SlogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("action", evt.Action),
		slog.String("resource", evt.Resource),
		slog.String("resource_id", evt.ResourceID),
		slog.String("category", evt.Category),
		slog.String("outcome", evt.Outcome),
	}
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	if len(evt.Metadata) > 0 {
		meta := make([]any, 0, len(evt.Metadata))
		for k, v := range evt.Metadata {
			meta = append(meta, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	r.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}
