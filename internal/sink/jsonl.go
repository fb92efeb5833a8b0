package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/trevorwieland/rentl/internal/model"
)

// JSONLLog appends one LogEntry per line to a per-run log file
// (`<logs_dir>/<run_id>.jsonl`). Writes are best-effort: an I/O
// failure is reported to the attached logger and swallowed, matching the
// sink contract that a transport error never fails the run.
type JSONLLog struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

// NewJSONLLog creates path's parent directory if necessary; the log file
// itself is opened, and created if absent, on each Append. logger may be
// nil, in which case write failures are silently dropped.
func NewJSONLLog(path string, logger *log.Logger) (*JSONLLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sink: create log directory for %q: %w", path, err)
	}
	return &JSONLLog{path: path, logger: logger}, nil
}

// Append serializes entry as one JSON line and appends it to the log file.
func (j *JSONLLog) Append(entry model.LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		j.warn("marshal log entry", err)
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		j.warn("open log file", err)
		return
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(line); err != nil {
		j.warn("write log entry", err)
	}
}

func (j *JSONLLog) warn(step string, err error) {
	if j.logger == nil {
		return
	}
	j.logger.Warn("sink write failed", "step", step, "path", j.path, "error", err)
}

// JSONLProgress appends one ProgressUpdate per line to a per-run progress
// file (`<logs_dir>/progress/<run_id>.jsonl`), enforcing the same
// monotonic-sequence-number invariant as MemoryProgress.
type JSONLProgress struct {
	mu      sync.Mutex
	path    string
	logger  *log.Logger
	lastSeq map[seriesKey]int64
}

// NewJSONLProgress creates path's parent directory if necessary; the
// progress file itself is opened, and created if absent, on each Append.
func NewJSONLProgress(path string, logger *log.Logger) (*JSONLProgress, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sink: create progress directory for %q: %w", path, err)
	}
	return &JSONLProgress{path: path, logger: logger, lastSeq: make(map[seriesKey]int64)}, nil
}

// Append serializes update as one JSON line and appends it to the progress
// file, after checking its sequence number strictly increases within its
// series. A sequencing violation is returned to the caller (it indicates an
// orchestrator bug) rather than swallowed like an I/O failure.
func (j *JSONLProgress) Append(update model.ProgressUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := seriesKey{runID: update.RunID, phase: update.Phase, language: update.TargetLanguage}
	last, seen := j.lastSeq[key]
	if seen && update.SequenceNumber <= last {
		return fmt.Errorf("progress sink: out-of-order sequence_number %d for run %q phase %q (last was %d)",
			update.SequenceNumber, update.RunID, update.Phase, last)
	}

	line, err := json.Marshal(update)
	if err != nil {
		j.warn("marshal progress update", err)
		return nil
	}
	line = append(line, '\n')

	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		j.warn("open progress file", err)
		return nil
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(line); err != nil {
		j.warn("write progress update", err)
		return nil
	}

	j.lastSeq[key] = update.SequenceNumber
	return nil
}

func (j *JSONLProgress) warn(step string, err error) {
	if j.logger == nil {
		return
	}
	j.logger.Warn("sink write failed", "step", step, "path", j.path, "error", err)
}
