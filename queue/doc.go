// Package queue admits jobs by definition name, on top of the pool's
// resource admission.
//
// A [Config] caps concurrency and start rate for one job name, or for a
// family of names with a trailing "*":
//
//	queue.Config{Name: "download*", MaxConcurrency: 4}   // bound network load
//	queue.Config{Name: "muse", MaxConcurrency: 1}        // one caller at a time
//	queue.Config{Name: "upload", RateLimit: 2, RateBurst: 4}
//
// Pass configs when building the engine:
//
//	engine.Build(c, engine.WithQueueConfig(configs...))
//
// [Manager] uses a token-bucket limiter (golang.org/x/time/rate) and an
// active-count gate. The pool calls Acquire before starting a job and
// Release when it finishes; a job that is not admitted stays in its deque.
package queue
