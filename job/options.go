package job

import (
	"time"

	"github.com/xraph/jobgraph/id"
)

// Options configures per-job behavior such as retries and resources.
type Options struct {
	// MaxRetries is the number of times a failed job is re-run before it
	// is marked failed. A job is attempted at most MaxRetries+1 times.
	MaxRetries int

	// Timeout is a hard deadline for one attempt. Zero means unbounded.
	Timeout time.Duration

	// Resources is the advisory admission request.
	Resources Resources

	// Inputs are artifacts that must be sealed before the job becomes
	// runnable.
	Inputs []id.ArtifactID
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 1,
		Resources: Resources{
			Cores:  1,
			Memory: 2 << 30,
			Disk:   2 << 30,
		},
	}
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		if n < 0 {
			n = 0
		}
		o.MaxRetries = n
	}
}

// WithTimeout sets a hard per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithCores sets the requested core count.
func WithCores(n int) Option {
	return func(o *Options) {
		o.Resources.Cores = n
	}
}

// WithMemory sets the requested memory in bytes.
func WithMemory(bytes int64) Option {
	return func(o *Options) {
		o.Resources.Memory = bytes
	}
}

// WithDisk sets the requested scratch disk in bytes.
func WithDisk(bytes int64) Option {
	return func(o *Options) {
		o.Resources.Disk = bytes
	}
}

// WithResources replaces the whole resource request.
func WithResources(r Resources) Option {
	return func(o *Options) {
		o.Resources = r
	}
}

// WithInputs declares artifacts the job reads. The job is not scheduled
// until every one of them is sealed.
func WithInputs(ids ...id.ArtifactID) Option {
	return func(o *Options) {
		o.Inputs = append(o.Inputs, ids...)
	}
}
