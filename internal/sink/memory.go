package sink

import (
	"fmt"
	"sync"

	"github.com/trevorwieland/rentl/internal/model"
)

// MemoryLog is an in-memory LogSink for tests. Entries is safe to read after
// the run under test has finished; Append is safe for concurrent use.
type MemoryLog struct {
	mu      sync.Mutex
	Entries []model.LogEntry
}

// NewMemoryLog returns an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append records entry.
func (m *MemoryLog) Append(entry model.LogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
}

// Snapshot returns a copy of the entries recorded so far.
func (m *MemoryLog) Snapshot() []model.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.LogEntry, len(m.Entries))
	copy(out, m.Entries)
	return out
}

// seriesKey identifies one (run, phase, language) progress series.
type seriesKey struct {
	runID    string
	phase    model.PhaseName
	language string
}

// MemoryProgress is an in-memory ProgressSink for tests. It enforces the
// same monotonic-sequence-number invariant the filesystem sink enforces, so
// tests written against MemoryProgress exercise the real contract.
type MemoryProgress struct {
	mu      sync.Mutex
	Updates []model.ProgressUpdate
	lastSeq map[seriesKey]int64
}

// NewMemoryProgress returns an empty MemoryProgress.
func NewMemoryProgress() *MemoryProgress {
	return &MemoryProgress{lastSeq: make(map[seriesKey]int64)}
}

// Append records update, rejecting it if its sequence number does not
// strictly increase within its (run, phase, language) series.
func (m *MemoryProgress) Append(update model.ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := seriesKey{runID: update.RunID, phase: update.Phase, language: update.TargetLanguage}
	last, seen := m.lastSeq[key]
	if seen && update.SequenceNumber <= last {
		return fmt.Errorf("progress sink: out-of-order sequence_number %d for run %q phase %q (last was %d)",
			update.SequenceNumber, update.RunID, update.Phase, last)
	}
	m.lastSeq[key] = update.SequenceNumber
	m.Updates = append(m.Updates, update)
	return nil
}

// Snapshot returns a copy of the updates recorded so far.
func (m *MemoryProgress) Snapshot() []model.ProgressUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ProgressUpdate, len(m.Updates))
	copy(out, m.Updates)
	return out
}
