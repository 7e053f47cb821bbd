// Package engine wires all jobgraph subsystems together and provides the
// primary application-level API for registering job definitions and
// running job graphs.
//
// The engine package exists to break a fundamental import cycle: the root
// jobgraph package defines Entity and the error taxonomy (imported by job,
// artifact, worker, etc.) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	c, err := jobgraph.New(
//	    jobgraph.WithStore(memory.New()),
//	    jobgraph.WithConcurrency(8),
//	    jobgraph.WithCapacity(16, 64<<30, 500<<30),
//	)
//
//	eng, err := engine.Build(c,
//	    engine.WithExtension(audithook.New(audithook.NewSlogRecorder(logger))),
//	    engine.WithBackoff(backoff.NewExponential(time.Second, time.Minute)),
//	    engine.WithToolTimeout(6*time.Hour),
//	)
//
// # Registering Work
//
//	engine.Register(eng, Align)
//	engine.Register(eng, CallVariants)
//
// # Running a Graph
//
// A graph is submitted as a single root job. Job bodies grow the graph
// through job.Context: AddChild declares a job that runs after its parent
// succeeds, AddFollowOn declares the one job that runs after the parent
// and every job transitively reachable through its children resolved.
//
//	h, err := eng.Submit(ctx, "sample-42", job.MustSpec(Align, AlignInput{Sample: "42"}))
//	res, err := eng.Run(ctx, h)
//	if err := res.Err(); err != nil {
//	    // inspect res.Failed
//	}
//
// A job that fails permanently does not stop unrelated branches; only the
// follow-ons of its ancestors are cancelled. A configuration error (see
// jobgraph.ConfigError) cancels the whole graph.
//
// # Resuming
//
// Every state change is persisted. After a restart, [Engine.ResumeAll]
// reloads graphs recorded as running and continues them.
//
// # Options
//
//   - [WithExtension] register a lifecycle extension
//   - [WithMiddleware] add a middleware to the execution chain
//   - [WithBackoff] set the retry backoff strategy
//   - [WithQueueConfig] configure per-job-name rate limits and concurrency
//   - [WithArtifactBackend] choose where artifact bytes live
//   - [WithToolTimeout] bound attempts that set no timeout of their own
//   - [WithTracerProvider], [WithMeterProvider] override OTel providers
package engine
