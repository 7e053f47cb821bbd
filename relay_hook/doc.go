// Package relayhook publishes jobgraph lifecycle events to NATS. When
// registered as an extension it emits an envelope on a subject named after
// the event (jobgraph.job.completed, jobgraph.graph.failed, etc.) at every
// lifecycle point, so dashboards and downstream systems can follow a run
// without polling the store. Envelopes are JSON unless WithCodec selects
// MessagePack.
//
// Usage:
//
//	nc, _ := relayhook.Connect(nats.DefaultURL)
//	defer nc.Drain()
//
//	hook := relayhook.New(nc)
//	engine.WithExtension(hook)
//
// To restrict which events are published:
//
//	hook := relayhook.New(nc,
//	    relayhook.WithEvents(
//	        relayhook.EventJobFailed,
//	        relayhook.EventGraphCompleted,
//	    ),
//	)
package relayhook
