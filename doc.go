// Package jobgraph provides a durable job-graph execution engine for batch
// pipelines. A unit of work may dynamically spawn child jobs, which run
// independently of each other, and at most one follow-on job, which runs
// only after the spawning job and everything it transitively spawned have
// succeeded. Jobs exchange data exclusively through a content-addressed
// artifact store that survives worker restarts.
//
// jobgraph is designed as a library. Import it, configure a store, register
// job definitions as ordinary Go functions, and submit a root job.
//
// # Quick Start
//
//	c, err := jobgraph.New(
//	    jobgraph.WithStore(memory.New()),
//	    jobgraph.WithConcurrency(8),
//	)
//	eng, err := engine.Build(c)
//	engine.Register(eng, fetchDef)
//	h, err := eng.Submit(ctx, "batch", rootSpec)
//	res, err := eng.Run(ctx, h)
//
// # Architecture
//
// Each subsystem (job, artifact) defines its own store interface and a
// single backend implements all of them. The engine package wires the
// registry, middleware, worker pool and artifact manager together.
//
// Errors returned by job bodies are classified by the taxonomy in this
// package ([ConfigError], [EnvironmentError], [TransferError], [ToolError])
// so the scheduler can decide mechanically between retrying and giving up.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package jobgraph
