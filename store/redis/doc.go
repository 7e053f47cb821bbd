// Package redis implements store.Store on Redis. Graphs, jobs and
// artifacts are stored as JSON values, graphs are indexed per state in
// Sorted Sets scored by creation time, and each graph keeps a List of its
// job IDs in creation order. CommitJob runs as a single Lua script so a
// job and the jobs it spawned are written together.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
