// Package model defines the data entities that flow through a localization
// run: the ingested source, every phase's output, the persisted run
// snapshot, and the event envelopes emitted to the log and progress sinks.
//
// These are plain structs with JSON tags; the orchestrator owns mutation of
// RunState and PhaseRunRecord, agents see read-only views of upstream
// outputs, and the store owns Artifact bodies once written. See each type's
// doc comment for its invariant.
package model

import "time"

// PhaseName identifies one stage of the pipeline. Phases run in a fixed
// canonical order; PhaseOrder is the source of truth for that order.
type PhaseName string

const (
	PhaseIngest        PhaseName = "ingest"
	PhaseContext       PhaseName = "context"
	PhasePretranslation PhaseName = "pretranslation"
	PhaseTranslate     PhaseName = "translate"
	PhaseQA            PhaseName = "qa"
	PhaseEdit          PhaseName = "edit"
	PhaseExport        PhaseName = "export"
)

// PhaseOrder is the canonical position of every phase. Phases not present in
// a plan are simply skipped; the relative order of the ones present never
// changes.
var PhaseOrder = []PhaseName{
	PhaseIngest,
	PhaseContext,
	PhasePretranslation,
	PhaseTranslate,
	PhaseQA,
	PhaseEdit,
	PhaseExport,
}

// LanguageScoped reports whether records for phase carry a target_language.
// Ingest and context run once per run; every later phase runs once per
// target language.
func (p PhaseName) LanguageScoped() bool {
	return p != PhaseIngest && p != PhaseContext
}

// SourceLine is one atomic unit of text to translate, as produced by
// ingest. Once ingest completes, the set of SourceLines for a run is
// immutable: later phases only ever read it.
type SourceLine struct {
	LineID        string         `json:"line_id"`
	SceneID       string         `json:"scene_id,omitempty"`
	RouteID       string         `json:"route_id,omitempty"`
	Speaker       string         `json:"speaker,omitempty"`
	Text          string         `json:"text"`
	SourceColumns map[string]any `json:"source_columns,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ItemID implements agentpool.Identified, keyed by line_id.
func (s SourceLine) ItemID() string { return s.LineID }

// TranslatedLine is one translated unit for one target language. At most
// one TranslatedLine exists per (line_id, target language, phase revision);
// LineID and SourceText are carried over from the SourceLine unchanged.
type TranslatedLine struct {
	LineID     string         `json:"line_id"`
	SceneID    string         `json:"scene_id,omitempty"`
	RouteID    string         `json:"route_id,omitempty"`
	Speaker    string         `json:"speaker,omitempty"`
	SourceText string         `json:"source_text"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ItemID implements agentpool.Identified, keyed by line_id.
func (t TranslatedLine) ItemID() string { return t.LineID }

// SceneSummary is per-scene context produced by the context phase. Exactly
// one summary exists per (scene_id, context revision).
type SceneSummary struct {
	SceneID    string   `json:"scene_id"`
	Summary    string   `json:"summary"`
	Characters []string `json:"characters,omitempty"`
}

// ItemID implements agentpool.Identified, keyed by scene_id.
func (s SceneSummary) ItemID() string { return s.SceneID }

// Annotation is a per-line pretranslation note. Multiple annotations per
// line are allowed; LineID must reference an existing SourceLine.
type Annotation struct {
	LineID      string `json:"line_id"`
	Category    string `json:"category"`
	Explanation string `json:"explanation"`
	Hint        string `json:"hint,omitempty"`
}

// ItemID implements agentpool.Identified, keyed by line_id. Multiple
// annotations may share a line_id; alignment checks for this phase run in
// AlignmentSubset mode.
func (a Annotation) ItemID() string { return a.LineID }

// QaIssue severities, ordered from least to most severe.
const (
	SeverityMinor    = "minor"
	SeverityMajor    = "major"
	SeverityCritical = "critical"
)

// QaIssue is one finding raised by the qa phase against a translated line.
// IssueID is monotonic and unique within one phase run.
type QaIssue struct {
	IssueID    int            `json:"issue_id"`
	LineID     string         `json:"line_id"`
	Category   string         `json:"category"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	Suggestion string         `json:"suggestion,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ItemID implements agentpool.Identified, keyed by line_id. A line may have
// zero or several issues; alignment checks for this phase run in
// AlignmentSubset mode.
func (q QaIssue) ItemID() string { return q.LineID }

// RunStatus is the terminal or in-flight status of a RunState.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// PhaseStatus is the outcome of one PhaseRunRecord.
type PhaseStatus string

const (
	PhaseStatusCompleted PhaseStatus = "completed"
	PhaseStatusFailed    PhaseStatus = "failed"
	PhaseStatusBlocked   PhaseStatus = "blocked"
	PhaseStatusStale     PhaseStatus = "stale"
)

// Dependency records that a PhaseRunRecord consumed a specific upstream
// (phase, language, revision). UpstreamLanguage is empty for run-scoped
// upstream phases (ingest, context).
type Dependency struct {
	UpstreamPhase    PhaseName `json:"upstream_phase"`
	UpstreamLanguage string    `json:"upstream_language,omitempty"`
	UpstreamRevision int       `json:"upstream_revision"`
}

// PhaseError is the structured error attached to a failed PhaseRunRecord.
// Code mirrors rentlerr.Code as a string so RunState remains a plain,
// JSON-serializable snapshot independent of the error package's types.
type PhaseError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	NextAction string         `json:"next_action,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// PhaseRunRecord is an immutable record of one phase execution. Once a
// record's Status is completed or failed it is never mutated; a later
// upstream rerun may flip Stale to true, but Dependencies, ArtifactRefs, and
// Summary remain exactly as recorded at completion time.
type PhaseRunRecord struct {
	Phase             PhaseName      `json:"phase"`
	TargetLanguage    string         `json:"target_language,omitempty"`
	Revision          int            `json:"revision"`
	Status            PhaseStatus    `json:"status"`
	StartedAt         time.Time      `json:"started_at"`
	EndedAt           time.Time      `json:"ended_at"`
	Dependencies      []Dependency   `json:"dependencies,omitempty"`
	ArtifactRefs      []string       `json:"artifact_refs,omitempty"`
	Summary           map[string]any `json:"summary,omitempty"`
	Error             *PhaseError    `json:"error,omitempty"`
	Stale             bool           `json:"stale,omitempty"`
	ConfigFingerprint string         `json:"config_fingerprint"`
}

// Key identifies the (phase, language) series a record belongs to.
func (r PhaseRunRecord) Key() PhaseLanguageKey {
	return PhaseLanguageKey{Phase: r.Phase, Language: r.TargetLanguage}
}

// PhaseLanguageKey identifies one (phase, language) execution series within
// a run. Language is empty for run-scoped phases.
type PhaseLanguageKey struct {
	Phase    PhaseName
	Language string
}

// RunState is the authoritative snapshot of a run: its identity, config
// fingerprint, full phase history, and current status. Snapshots are
// written atomically by the store; a later snapshot is always consistent
// with every artifact write it references.
type RunState struct {
	RunID             string           `json:"run_id"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	ConfigFingerprint string           `json:"config_fingerprint"`
	Phases            []PhaseRunRecord `json:"phases"`
	Status            RunStatus        `json:"status"`
	FailedLanguages   []string         `json:"failed_languages,omitempty"`
}

// Latest returns the most recent PhaseRunRecord for key, or (zero, false) if
// no record for that series has been created yet. Records are scanned in
// append order, so the last match is the most recent revision.
func (s *RunState) Latest(key PhaseLanguageKey) (PhaseRunRecord, bool) {
	var found PhaseRunRecord
	ok := false
	for _, rec := range s.Phases {
		if rec.Key() == key {
			found = rec
			ok = true
		}
	}
	return found, ok
}

// LatestNonStale returns the most recent non-stale PhaseRunRecord for key.
func (s *RunState) LatestNonStale(key PhaseLanguageKey) (PhaseRunRecord, bool) {
	var found PhaseRunRecord
	ok := false
	for _, rec := range s.Phases {
		if rec.Key() == key && !rec.Stale {
			found = rec
			ok = true
		}
	}
	return found, ok
}

// Artifact is one persisted phase output body. Body holds either a single
// JSON object or a line-delimited sequence, matching the schema expected by
// the phase that produced it; the store treats Body as an opaque blob.
type Artifact struct {
	Ref            string    `json:"ref"`
	RunID          string    `json:"run_id"`
	Phase          PhaseName `json:"phase"`
	TargetLanguage string    `json:"target_language,omitempty"`
	Revision       int       `json:"revision"`
	Status         string    `json:"status,omitempty"`
	Body           []byte    `json:"-"`
}

// ProgressEvent is the event kind carried by a ProgressUpdate.
type ProgressEvent string

const (
	EventRunStarted        ProgressEvent = "run_started"
	EventRunCompleted      ProgressEvent = "run_completed"
	EventRunFailed         ProgressEvent = "run_failed"
	EventPhaseStarted      ProgressEvent = "phase_started"
	EventPhaseProgress     ProgressEvent = "phase_progress"
	EventPhaseCompleted    ProgressEvent = "phase_completed"
	EventPhaseFailed       ProgressEvent = "phase_failed"
	EventPhaseBlocked      ProgressEvent = "phase_blocked"
	EventPhaseInvalidated  ProgressEvent = "phase_invalidated"
)

// ProgressUpdate is one progress event in a (run_id, phase, language)
// series. Within a single series, SequenceNumber strictly increases and
// PercentComplete is non-decreasing between phase_started and
// phase_completed, unless the series is explicitly invalidated.
type ProgressUpdate struct {
	RunID          string            `json:"run_id"`
	Phase          PhaseName         `json:"phase,omitempty"`
	TargetLanguage string            `json:"target_language,omitempty"`
	Event          ProgressEvent     `json:"event"`
	SequenceNumber int64             `json:"sequence_number"`
	PercentComplete *float64         `json:"percent_complete,omitempty"`
	Metrics        map[string]Metric `json:"metrics,omitempty"`
	ETA            *time.Time        `json:"eta,omitempty"`
	Error          *PhaseError       `json:"error,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Metric is one named counter with a unit, used in ProgressUpdate.Metrics
// (e.g. {Value: 7, Unit: "lines"}).
type Metric struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// LogLevel mirrors the handful of levels the log sink understands.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one structured log line. Entries are always written as a
// single JSON object per line; callers must not embed raw newlines in
// Message or Data values that will be serialized to JSONL.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Event     string         `json:"event"`
	RunID     string         `json:"run_id"`
	Phase     PhaseName      `json:"phase,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}
