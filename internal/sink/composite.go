package sink

import "github.com/trevorwieland/rentl/internal/model"

// CompositeLog fans a LogEntry out to every wrapped LogSink. A sink that
// cannot accept an entry (it has none to report: Append has no return
// value) simply does its own internal error handling; CompositeLog never
// intervenes.
type CompositeLog struct {
	sinks []LogSink
}

// NewCompositeLog returns a LogSink that fans out to every sink in sinks.
func NewCompositeLog(sinks ...LogSink) *CompositeLog {
	return &CompositeLog{sinks: sinks}
}

// Append forwards entry to every wrapped sink in order.
func (c *CompositeLog) Append(entry model.LogEntry) {
	for _, s := range c.sinks {
		s.Append(entry)
	}
}

// CompositeProgress fans a ProgressUpdate out to every wrapped
// ProgressSink. The first sink to reject the update (out-of-order sequence
// number) short-circuits the fan-out and its error is returned; callers
// should treat this as a bug in the orchestrator, not a transient failure.
type CompositeProgress struct {
	sinks []ProgressSink
}

// NewCompositeProgress returns a ProgressSink that fans out to every sink in
// sinks.
func NewCompositeProgress(sinks ...ProgressSink) *CompositeProgress {
	return &CompositeProgress{sinks: sinks}
}

// Append forwards update to every wrapped sink in order, stopping at the
// first error.
func (c *CompositeProgress) Append(update model.ProgressUpdate) error {
	for _, s := range c.sinks {
		if err := s.Append(update); err != nil {
			return err
		}
	}
	return nil
}
