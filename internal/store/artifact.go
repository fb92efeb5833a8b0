package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/trevorwieland/rentl/internal/model"
)

// secretLikeInArtifact matches API-key-shaped substrings inside a stored
// artifact body so they can be scrubbed before the body ever reaches disk.
var secretLikeInArtifact = regexp.MustCompile(`(?i)(bearer\s+[a-z0-9._-]+|sk-[a-z0-9]{10,})`)

const redactedArtifactPlaceholder = "[REDACTED]"

// artifactIndexEntry is one line of a run's index.jsonl.
type artifactIndexEntry struct {
	ArtifactRef    string    `json:"artifact_ref"`
	Phase          string    `json:"phase"`
	Language       string    `json:"language,omitempty"`
	Revision       int       `json:"revision"`
	Format         string    `json:"format"`
	SizeBytes      int       `json:"size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
}

// ArtifactStore persists immutable phase output bodies. A body is rejected
// outright if an artifact already exists for the same (phase, language,
// revision): artifacts are append-only and never overwritten.
type ArtifactStore struct {
	root string
	mu   sync.Mutex
	seen map[string]map[string]bool // run_id -> (phase|language|revision) -> exists
}

// NewArtifactStore creates an ArtifactStore rooted at workspaceDir.
func NewArtifactStore(workspaceDir string) *ArtifactStore {
	return &ArtifactStore{root: workspaceDir, seen: make(map[string]map[string]bool)}
}

func (s *ArtifactStore) runDir(runID string) string {
	return filepath.Join(s.root, "artifacts", runID)
}

func artifactKey(phase model.PhaseName, language string, revision int) string {
	return fmt.Sprintf("%s|%s|%d", phase, language, revision)
}

// SaveArtifact persists body as a new artifact for (runID, phase, language,
// revision) and returns its stable ref. format is "json" or "jsonl". It
// returns an error if an artifact already exists for the same
// (phase, language, revision): re-running an already-completed phase
// revision is a programming error, not a legitimate overwrite.
func (s *ArtifactStore) SaveArtifact(runID string, phase model.PhaseName, language string, revision int, format string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := artifactKey(phase, language, revision)
	if s.seen[runID] == nil {
		if err := s.loadSeen(runID); err != nil {
			return "", err
		}
	}
	if s.seen[runID][key] {
		return "", fmt.Errorf("store: artifact already exists for run %q phase %q language %q revision %d", runID, phase, language, revision)
	}

	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create artifact directory: %w", err)
	}

	n := len(s.seen[runID]) + 1
	ref := fmt.Sprintf("artifact-%d", n)
	filename := fmt.Sprintf("%s.%s", ref, format)
	path := filepath.Join(dir, filename)

	scrubbed := secretLikeInArtifact.ReplaceAll(body, []byte(redactedArtifactPlaceholder))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, scrubbed, 0o644); err != nil {
		return "", fmt.Errorf("store: write artifact %q: %w", ref, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", fmt.Errorf("store: finalize artifact %q: %w", ref, err)
	}

	entry := artifactIndexEntry{
		ArtifactRef: ref,
		Phase:       string(phase),
		Language:    language,
		Revision:    revision,
		Format:      format,
		SizeBytes:   len(scrubbed),
		CreatedAt:   time.Now().UTC(),
	}
	if err := appendIndexLine(filepath.Join(dir, "index.jsonl"), entry); err != nil {
		return "", fmt.Errorf("store: append artifact index: %w", err)
	}

	s.seen[runID][key] = true
	return ref, nil
}

// LoadArtifact returns the body of the artifact identified by ref within
// runID, or (nil, false) if it does not exist. format must match the one
// passed to SaveArtifact.
func (s *ArtifactStore) LoadArtifact(runID, ref, format string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.runDir(runID), fmt.Sprintf("%s.%s", ref, format))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: load artifact %q: %w", ref, err)
	}
	return data, true, nil
}

// ListArtifacts returns the index entries recorded for runID, in the order
// they were written.
func (s *ArtifactStore) ListArtifacts(runID string) ([]artifactIndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex(runID)
}

// loadSeen populates s.seen[runID] from the existing index file, so a
// reopened ArtifactStore (resume) still rejects duplicate
// (phase,language,revision) writes. Callers must hold s.mu.
func (s *ArtifactStore) loadSeen(runID string) error {
	entries, err := s.readIndex(runID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[artifactKey(model.PhaseName(e.Phase), e.Language, e.Revision)] = true
	}
	s.seen[runID] = seen
	return nil
}

func (s *ArtifactStore) readIndex(runID string) ([]artifactIndexEntry, error) {
	path := filepath.Join(s.runDir(runID), "index.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read artifact index: %w", err)
	}

	var entries []artifactIndexEntry
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			if i > start {
				var entry artifactIndexEntry
				if err := json.Unmarshal(data[start:i], &entry); err != nil {
					return nil, fmt.Errorf("store: decode artifact index line: %w", err)
				}
				entries = append(entries, entry)
			}
			start = i + 1
		}
	}
	return entries, nil
}

func appendIndexLine(path string, entry artifactIndexEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode index entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write index line: %w", err)
	}
	return nil
}
