package job

import "context"

// Definition binds a job name to a typed body. T is the payload: the
// artifact handles and immutable settings the body needs, captured when
// the job is declared and JSON-encoded into the store.
type Definition[T any] struct {
	Name    string
	Handler func(ctx context.Context, jc *Context, payload T) error
	// Opts are the defaults every Spec of this definition starts from.
	Opts Options
}

// NewDefinition returns a Definition with DefaultOptions adjusted by opts.
func NewDefinition[T any](name string, handler func(ctx context.Context, jc *Context, payload T) error, opts ...Option) *Definition[T] {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Definition[T]{Name: name, Handler: handler, Opts: o}
}
