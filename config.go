package jobgraph

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config holds configuration for the Coordinator.
type Config struct {
	// Concurrency is the number of work-stealing worker goroutines.
	Concurrency int

	// Cores, Memory and Disk are the admission capacity shared by all
	// workers. Job resource requests larger than the capacity are clamped
	// to it so that an oversized job still runs, alone.
	Cores  int
	Memory int64
	Disk   int64

	// WorkRoot is the directory under which per-attempt working
	// directories are created.
	WorkRoot string

	// KeepWorkDirs leaves attempt directories in place after a job
	// finishes. Useful when debugging a wrapped tool.
	KeepWorkDirs bool

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// PollInterval is how often idle workers re-check for stealable work.
	PollInterval time.Duration
}

// DefaultConfig returns a Config sized to the local machine.
func DefaultConfig() Config {
	return Config{
		Concurrency:     runtime.NumCPU(),
		Cores:           runtime.NumCPU(),
		Memory:          8 << 30,
		Disk:            100 << 30,
		WorkRoot:        filepath.Join(os.TempDir(), "jobgraph"),
		ShutdownTimeout: 30 * time.Second,
		PollInterval:    250 * time.Millisecond,
	}
}
