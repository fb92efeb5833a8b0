// Package sink implements the durable event transports the orchestrator
// writes to: a LogSink for LogEntry objects and a ProgressSink for
// ProgressUpdate objects. Sinks are best-effort by contract: a
// sink error is logged internally and never fails the run.
//
// Composite fans one sink out to many, Redacting scrubs secret-shaped
// values before passing through, and the in-memory implementations in
// memory.go back tests. The filesystem JSONL implementations live in
// jsonl.go.
package sink

import "github.com/trevorwieland/rentl/internal/model"

// LogSink accepts structured log entries. Append must never block the
// caller for long and must never panic; implementations that hit an I/O
// error should swallow it after recording it internally (JSONLLog reports
// it to its attached logger) rather than propagating it up into the
// orchestrator.
type LogSink interface {
	Append(entry model.LogEntry)
}

// ProgressSink accepts progress events. Unlike LogSink, a ProgressSink
// enforces the monotonic-sequence-number invariant on ProgressUpdate
// and so Append can fail: a caller producing an out-of-order
// update is a bug in the orchestrator, not a transport failure, and is
// reported rather than silently dropped.
type ProgressSink interface {
	Append(update model.ProgressUpdate) error
}
