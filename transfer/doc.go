// Package transfer moves bytes between remote object storage and local
// files, optionally under SSE-C style server-side encryption where the
// client supplies a per-object key in request headers.
//
// The per-object key is derived deterministically from a 32-byte master
// key and the object URL:
//
//	key = sha256(masterKey || url)
//
// so the same master key addresses every object without ever being sent
// over the wire. Downloads shell out to curl and uploads to s3am, both
// through a process.Runner.
package transfer
