// Package job defines the job node entity, the graph entity, typed
// definitions, the per-attempt execution context and the store interface.
//
// # Job Entity
//
// A [Job] is a node of a dynamic job graph. It progresses through a state
// machine:
//
//	pending → runnable → running → succeeded
//	pending → runnable → running → runnable → ... (retry)
//	pending → runnable → running → failed
//	pending | runnable → cancelled
//
// A child becomes runnable as soon as its declared inputs are sealed. A
// follow-on additionally waits until its parent and the parent's whole
// subtree have succeeded.
//
// # Defining a Job
//
// Use [Definition] with a typed handler. The payload is JSON-serialized
// when the job is declared and deserialized before the handler runs:
//
//	var Fetch = job.NewDefinition("fetch",
//	    func(ctx context.Context, jc *job.Context, in FetchInput) error {
//	        return client.Download(ctx, in.URL, jc.Path("input.bam"), nil)
//	    },
//	    job.WithMaxRetries(2),
//	)
//
// # Spawning
//
// A running body declares more work through its [Context]:
//
//	job.Child(jc, Fetch, FetchInput{URL: u})
//	job.FollowOn(jc, Analyze, AnalyzeInput{Inputs: ids})
//
// Spawned jobs are recorded transactionally with the parent's completion.
package job
