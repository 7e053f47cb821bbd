package middleware

import (
	"log/slog"
	"time"
)

// Deps carries what the default chain needs.
type Deps struct {
	Logger *slog.Logger

	// ToolTimeout bounds attempts whose job has no Timeout of its own.
	// Zero leaves them unbounded.
	ToolTimeout time.Duration
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
