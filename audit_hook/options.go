package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithActions limits the trail to the listed actions. Names that match no
// action are ignored.
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// WithMinSeverity drops events below severity. SeverityWarning keeps
// retries, cancellations and failures.
func WithMinSeverity(severity string) Option {
	return func(e *Extension) { e.minRank = severityRank(severity) }
}

// WithLogger sets the logger used to report recorder failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}
