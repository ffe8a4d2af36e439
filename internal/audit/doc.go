// Package audit is the append-only activity trail: who did what, to
// which resource, from where, and whether it worked.
//
// Writes go through the Recorder — a buffered channel drained by a
// background goroutine — so a slow disk never stalls a login. Recording
// is deliberately lossy under pressure: a full buffer drops the event
// with a process-log warning rather than blocking the request path.
// Telemetry ingest events are sampled; security-relevant events are
// always recorded.
package audit
