// Package pipeline builds the sample-processing graphs that jobgraph was
// written for: somatic copy-number calling with ADTEx (coverage and
// zygosity variants) and somatic SNV calling with MuSE.
//
// Every pipeline has the same outer shape. A root job stages the shared
// reference files, downloading remote ones in child jobs, and its
// follow-on spawns one job per manifest sample once every reference is
// sealed. Per-sample jobs fetch their inputs (SSE-C encrypted when a
// master key is configured), run the tool container against the job
// working directory, package the result, copy it to the output directory
// and, when a destination is set, upload it in a child job.
//
// A Runner owns the job definitions and wires them to an engine, a
// transfer client and a container invoker:
//
//	r := pipeline.NewRunner(eng, transfers, tools)
//	cfg := pipeline.Config{Samples: samples, Whitelist: "white.bed"}
//	res, err := r.Run(ctx, pipeline.AdtexCoverage, cfg)
//
// Payloads carry the whole run configuration except the master key, so a
// graph resumed by a new process only needs the same key again.
package pipeline
