// Package store implements durable, atomic persistence of RunState
// snapshots and phase artifacts under a workspace root:
//
//	.rentl/run_state/runs/<run_id>.json    - latest snapshot
//	.rentl/run_state/index/<run_id>.json   - summary for listing
//	.rentl/artifacts/<run_id>/artifact-<n>.{json,jsonl} - artifact bodies
//	.rentl/artifacts/<run_id>/index.jsonl  - artifact index
//
// Every write goes to a temp file in the same directory, then an atomic
// os.Rename: no reader ever observes a half-written file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trevorwieland/rentl/internal/model"
)

// RunSummary is the fast, separate listing index entry for one run.
type RunSummary struct {
	RunID     string           `json:"run_id"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Status    model.RunStatus  `json:"status"`
}

// RunFilter narrows list_runs results. A zero value matches every run.
type RunFilter struct {
	Status model.RunStatus
}

func (f RunFilter) matches(s RunSummary) bool {
	if f.Status == "" {
		return true
	}
	return f.Status == s.Status
}

// RunStateStore persists RunState snapshots.
type RunStateStore struct {
	root string
	mu   sync.Mutex
}

// NewRunStateStore creates a RunStateStore rooted at workspaceDir (the
// `.rentl` directory, or equivalent, holding run_state/ and artifacts/).
func NewRunStateStore(workspaceDir string) *RunStateStore {
	return &RunStateStore{root: workspaceDir}
}

func (s *RunStateStore) runsDir() string  { return filepath.Join(s.root, "run_state", "runs") }
func (s *RunStateStore) indexDir() string { return filepath.Join(s.root, "run_state", "index") }

// SaveRunState atomically writes state's snapshot and index summary,
// overwriting any prior snapshot for the same run_id.
func (s *RunStateStore) SaveRunState(state model.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomicJSON(filepath.Join(s.runsDir(), state.RunID+".json"), state); err != nil {
		return fmt.Errorf("store: save run state %q: %w", state.RunID, err)
	}

	summary := RunSummary{RunID: state.RunID, CreatedAt: state.CreatedAt, UpdatedAt: state.UpdatedAt, Status: state.Status}
	if err := writeAtomicJSON(filepath.Join(s.indexDir(), state.RunID+".json"), summary); err != nil {
		return fmt.Errorf("store: save run index %q: %w", state.RunID, err)
	}
	return nil
}

// LoadRunState returns the latest snapshot for runID, or (zero, false) if no
// snapshot has ever been written for that run.
func (s *RunStateStore) LoadRunState(runID string) (model.RunState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state model.RunState
	ok, err := readJSON(filepath.Join(s.runsDir(), runID+".json"), &state)
	if err != nil {
		return model.RunState{}, false, fmt.Errorf("store: load run state %q: %w", runID, err)
	}
	return state, ok, nil
}

// ListRuns returns every run summary matching filter, most-recently-created
// first.
func (s *RunStateStore) ListRuns(filter RunFilter) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.indexDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list runs: %w", err)
	}

	var summaries []RunSummary
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var summary RunSummary
		ok, err := readJSON(filepath.Join(s.indexDir(), entry.Name()), &summary)
		if err != nil {
			return nil, fmt.Errorf("store: list runs: read %q: %w", entry.Name(), err)
		}
		if !ok || !filter.matches(summary) {
			continue
		}
		summaries = append(summaries, summary)
	}

	sortRunSummariesNewestFirst(summaries)
	return summaries, nil
}

func sortRunSummariesNewestFirst(summaries []RunSummary) {
	for i := 1; i < len(summaries); i++ {
		for j := i; j > 0 && summaries[j].CreatedAt.After(summaries[j-1].CreatedAt); j-- {
			summaries[j], summaries[j-1] = summaries[j-1], summaries[j]
		}
	}
}

// writeAtomicJSON marshals v as JSON and writes it to path via a temp file
// in the same directory followed by os.Rename, so no reader ever observes a
// partially written file.
func writeAtomicJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("write temp file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("rename %q to %q: %w", tmp, path, err)
	}
	return nil
}

// readJSON reads and unmarshals path into v. It returns (false, nil) if the
// file does not exist.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", path, err)
	}
	return true, nil
}
