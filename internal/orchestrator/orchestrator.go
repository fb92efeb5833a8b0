// Package orchestrator drives one localization run end to end: it resolves
// which phases apply, checks hard/soft dependencies and staleness before
// running each one, dispatches to the phase package, persists the resulting
// RunState and artifacts, and emits log/progress events throughout. It never
// talks to an LLM or a filesystem adapter directly; those are supplied by
// the caller through ports and wired in via Plan.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/trevorwieland/rentl/internal/agentpool"
	"github.com/trevorwieland/rentl/internal/config"
	"github.com/trevorwieland/rentl/internal/ids"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/phase"
	"github.com/trevorwieland/rentl/internal/ports"
	"github.com/trevorwieland/rentl/internal/rentlerr"
	"github.com/trevorwieland/rentl/internal/sink"
	"github.com/trevorwieland/rentl/internal/staleness"
	"github.com/trevorwieland/rentl/internal/store"
)

// Plan is everything one Run needs beyond persisted state: the resolved
// config, the concrete ingest/export adapters, and one PhaseAgent per
// agent-driven phase, keyed by model.PhaseName.
type Plan struct {
	Config        *config.Config
	IngestPath    string
	IngestFormat  string
	ExportFormat  string
	ExportPathFor func(language string) string
	IngestAdapter ports.IngestAdapter
	ExportAdapter ports.ExportAdapter
	Agents        map[model.PhaseName]ports.PhaseAgent
}

// Orchestrator drives runs against a fixed RunStateStore/ArtifactStore pair.
// One Orchestrator can drive many runs concurrently; each call to Run or
// Resume operates on its own RunState snapshot.
type Orchestrator struct {
	runs      *store.RunStateStore
	artifacts *store.ArtifactStore
	logs      sink.LogSink
	progress  sink.ProgressSink
	logger    *log.Logger

	seqMu sync.Mutex
	seq   map[seriesKey]int64
}

type seriesKey struct {
	runID    string
	phase    model.PhaseName
	language string
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogSink overrides the default no-op LogSink.
func WithLogSink(s sink.LogSink) Option { return func(o *Orchestrator) { o.logs = s } }

// WithProgressSink overrides the default no-op ProgressSink.
func WithProgressSink(s sink.ProgressSink) Option { return func(o *Orchestrator) { o.progress = s } }

// WithLogger overrides the default charmbracelet/log logger used for
// operator-facing messages (distinct from the structured LogSink, which
// records a durable per-run audit trail).
func WithLogger(l *log.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// New builds an Orchestrator persisting to runs/artifacts.
func New(runs *store.RunStateStore, artifacts *store.ArtifactStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runs:      runs,
		artifacts: artifacts,
		logs:      noopLogSink{},
		progress:  noopProgressSink{},
		logger:    log.Default(),
		seq:       make(map[seriesKey]int64),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type noopLogSink struct{}

func (noopLogSink) Append(model.LogEntry) {}

type noopProgressSink struct{}

func (noopProgressSink) Append(model.ProgressUpdate) error { return nil }

// Run starts a brand-new run against plan and drives it to completion or
// cancellation, checkpointing the RunState after every phase.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*model.RunState, error) {
	fingerprints, err := computeFingerprints(plan.Config)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state := &model.RunState{
		RunID:             ids.NewRunID(),
		CreatedAt:         now,
		UpdatedAt:         now,
		ConfigFingerprint: fingerprints[string(model.PhaseIngest)],
		Status:            model.RunRunning,
	}

	return o.drive(ctx, plan, state, fingerprints)
}

// Resume continues a previously started run: it reloads its RunState,
// recomputes staleness against plan's current fingerprints (flipping any
// now-stale records so they are re-run rather than skipped), and drives the
// run forward, skipping every phase whose latest record is already
// completed and non-stale.
func (o *Orchestrator) Resume(ctx context.Context, runID string, plan Plan) (*model.RunState, error) {
	loaded, ok, err := o.runs.LoadRunState(runID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resume %q: %w", runID, err)
	}
	if !ok {
		return nil, rentlerr.New(rentlerr.CodeOrchestration, fmt.Sprintf("no run state found for run %q", runID))
	}

	fingerprints, err := computeFingerprints(plan.Config)
	if err != nil {
		return nil, err
	}

	state := loaded
	state.Status = model.RunRunning
	o.invalidateStale(&state, fingerprints)

	return o.drive(ctx, plan, &state, fingerprints)
}

func computeFingerprints(cfg *config.Config) (map[string]string, error) {
	out := make(map[string]string, len(model.PhaseOrder))
	for _, name := range model.PhaseOrder {
		fp, err := config.Fingerprint(cfg, string(name))
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		out[string(name)] = fp
	}
	return out, nil
}

// invalidateStale flips Stale to true on every record staleness.Compute
// names, without mutating any other field, and logs a phase_invalidated
// event for each one.
func (o *Orchestrator) invalidateStale(state *model.RunState, fingerprints map[string]string) {
	for _, inv := range staleness.Compute(state, fingerprints) {
		for i, rec := range state.Phases {
			if rec.Key() == inv.Key && !rec.Stale {
				state.Phases[i].Stale = true
			}
		}
		o.emitProgress(state.RunID, inv.Key.Phase, inv.Key.Language, model.EventPhaseInvalidated, nil, nil)
		o.log(state.RunID, inv.Key.Phase, model.LogInfo, "phase invalidated", map[string]any{
			"target_language": inv.Key.Language,
			"reason":          inv.Reason,
		})
	}
}

// drive runs every enabled phase of plan against state in canonical order.
// Cancellation is checked between phases: a context error stops the loop
// immediately, leaves whatever phases haven't started unrecorded, and marks
// the run cancelled rather than failed.
func (o *Orchestrator) drive(ctx context.Context, plan Plan, state *model.RunState, fingerprints map[string]string) (*model.RunState, error) {
	o.emitProgress(state.RunID, "", "", model.EventRunStarted, nil, nil)
	enabled := enabledSet(plan.Config)

	if ctx.Err() != nil {
		return o.cancelRun(state, ctx.Err())
	}

	var lines []model.SourceLine
	if enabled[model.PhaseIngest] {
		ingested, err := o.runIngest(ctx, plan, state, fingerprints)
		if err != nil {
			return o.failRun(state, err)
		}
		lines = ingested
	}

	if ctx.Err() != nil {
		return o.cancelRun(state, ctx.Err())
	}

	var sceneSummaries []model.SceneSummary
	if enabled[model.PhaseContext] {
		summaries, err := o.runContext(ctx, plan, state, fingerprints, lines)
		if err != nil {
			o.log(state.RunID, model.PhaseContext, model.LogWarn, "context phase failed; continuing without scene context", map[string]any{"error": err.Error()})
		} else {
			sceneSummaries = summaries
		}
	}

	for _, language := range plan.Config.Languages.Targets {
		if ctx.Err() != nil {
			return o.cancelRun(state, ctx.Err())
		}
		o.runLanguage(ctx, plan, state, fingerprints, enabled, language, lines, sceneSummaries)
	}

	return o.finishRun(state, len(plan.Config.Languages.Targets))
}

// runIngest reads and validates the source, or reloads an already-completed
// non-stale ingest artifact on resume. Ingest failure is fatal to the whole
// run: nothing downstream has any input without it.
func (o *Orchestrator) runIngest(ctx context.Context, plan Plan, state *model.RunState, fingerprints map[string]string) ([]model.SourceLine, error) {
	key := model.PhaseLanguageKey{Phase: model.PhaseIngest}
	if rec, ok := state.LatestNonStale(key); ok && rec.Status == model.PhaseStatusCompleted {
		return loadArtifactSlice[model.SourceLine](o, state.RunID, rec.ArtifactRefs, model.PhaseIngest)
	}

	rev := nextRevision(state, key)
	started := time.Now().UTC()
	o.emitProgress(state.RunID, model.PhaseIngest, "", model.EventPhaseStarted, nil, nil)

	result, err := phase.Ingest(ctx, plan.IngestAdapter, plan.IngestPath, plan.IngestFormat, plan.Config.Parameters(string(model.PhaseIngest)))
	if err != nil {
		o.recordFailure(state, model.PhaseIngest, "", rev, started, fingerprints, nil, err)
		return nil, err
	}

	ref, err := saveArtifactJSON(o, state.RunID, model.PhaseIngest, "", rev, result.Lines)
	if err != nil {
		o.recordFailure(state, model.PhaseIngest, "", rev, started, fingerprints, nil, err)
		return nil, err
	}

	rec := model.PhaseRunRecord{
		Phase: model.PhaseIngest, Revision: rev, Status: model.PhaseStatusCompleted,
		StartedAt: started, EndedAt: time.Now().UTC(),
		ArtifactRefs: []string{ref}, Summary: result.Summary,
		ConfigFingerprint: fingerprints[string(model.PhaseIngest)],
	}
	o.appendRecord(state, rec, fingerprints)
	if err := o.checkpoint(state); err != nil {
		return nil, err
	}
	o.emitProgress(state.RunID, model.PhaseIngest, "", model.EventPhaseCompleted, result.Summary, nil)
	return result.Lines, nil
}

// runContext runs the context phase over the full line set. It is treated
// as a soft upstream: a context failure is logged and the run proceeds
// without scene summaries rather than failing outright.
func (o *Orchestrator) runContext(ctx context.Context, plan Plan, state *model.RunState, fingerprints map[string]string, lines []model.SourceLine) ([]model.SceneSummary, error) {
	key := model.PhaseLanguageKey{Phase: model.PhaseContext}
	if rec, ok := state.LatestNonStale(key); ok && rec.Status == model.PhaseStatusCompleted {
		return loadArtifactSlice[model.SceneSummary](o, state.RunID, rec.ArtifactRefs, model.PhaseContext)
	}

	agent, ok := plan.Agents[model.PhaseContext]
	if !ok {
		return nil, rentlerr.New(rentlerr.CodeConfig, "no agent configured for phase context")
	}

	rev := nextRevision(state, key)
	started := time.Now().UTC()
	o.emitProgress(state.RunID, model.PhaseContext, "", model.EventPhaseStarted, nil, nil)

	cfg := agentpoolConfigFor(plan.Config, model.PhaseContext)
	params := plan.Config.Parameters(string(model.PhaseContext))
	deps := dependenciesFor(state, []model.PhaseName{model.PhaseIngest}, "")

	out, err := phase.Context(ctx, agent, lines, cfg, params, o.progressCallback(state.RunID, model.PhaseContext, ""))
	if err == nil && !out.Succeeded() {
		err = phase.FailureError(model.PhaseContext, "", out.Failures)
	}
	if err != nil {
		o.recordFailure(state, model.PhaseContext, "", rev, started, fingerprints, deps, err)
		return nil, err
	}

	ref, err := saveArtifactJSON(o, state.RunID, model.PhaseContext, "", rev, out.Merged)
	if err != nil {
		o.recordFailure(state, model.PhaseContext, "", rev, started, fingerprints, deps, err)
		return nil, err
	}

	rec := model.PhaseRunRecord{
		Phase: model.PhaseContext, Revision: rev, Status: model.PhaseStatusCompleted,
		StartedAt: started, EndedAt: time.Now().UTC(), Dependencies: deps,
		ArtifactRefs: []string{ref}, Summary: out.Summary,
		ConfigFingerprint: fingerprints[string(model.PhaseContext)],
	}
	o.appendRecord(state, rec, fingerprints)
	if err := o.checkpoint(state); err != nil {
		return nil, err
	}
	o.emitProgress(state.RunID, model.PhaseContext, "", model.EventPhaseCompleted, out.Summary, nil)
	return out.Merged, nil
}

// runLanguage drives pretranslation through export for one target language.
// pretranslation is a soft upstream for translate, exactly like context is
// for the whole run. translate is the hard dependency for everything else
// in this language: its failure blocks qa, edit, and export outright. qa
// failure blocks only edit (edit has nothing to act on without issues);
// export still runs against translate's output. edit failure is soft: a
// failed edit pass falls back to exporting translate's unedited output.
func (o *Orchestrator) runLanguage(ctx context.Context, plan Plan, state *model.RunState, fingerprints map[string]string, enabled map[model.PhaseName]bool, language string, lines []model.SourceLine, sceneSummaries []model.SceneSummary) {
	upstream := map[model.PhaseName]any{}
	if len(sceneSummaries) > 0 {
		upstream[model.PhaseContext] = sceneSummaries
	}

	if enabled[model.PhasePretranslation] {
		anns, err := runLanguagePhase[model.Annotation](o, plan, state, fingerprints, model.PhasePretranslation, language,
			[]model.PhaseName{model.PhaseIngest, model.PhaseContext},
			func(agent ports.PhaseAgent, cfg agentpool.Config, params map[string]any) (phase.Output[model.Annotation], error) {
				return phase.Pretranslation(ctx, agent, lines, language, cfg, upstream, params, o.progressCallback(state.RunID, model.PhasePretranslation, language))
			})
		if err != nil {
			o.log(state.RunID, model.PhasePretranslation, model.LogWarn, "pretranslation failed; continuing without annotations", map[string]any{"target_language": language, "error": err.Error()})
		} else {
			upstream[model.PhasePretranslation] = anns
		}
	}

	if !enabled[model.PhaseTranslate] {
		return
	}
	translated, err := runLanguagePhase[model.TranslatedLine](o, plan, state, fingerprints, model.PhaseTranslate, language,
		[]model.PhaseName{model.PhaseIngest, model.PhaseContext, model.PhasePretranslation},
		func(agent ports.PhaseAgent, cfg agentpool.Config, params map[string]any) (phase.Output[model.TranslatedLine], error) {
			return phase.Translate(ctx, agent, lines, language, cfg, upstream, params, o.progressCallback(state.RunID, model.PhaseTranslate, language))
		})
	if err != nil {
		reason := fmt.Sprintf("upstream translate failed: %v", err)
		if enabled[model.PhaseQA] {
			o.blockPhase(state, model.PhaseQA, language, fingerprints, reason)
		}
		if enabled[model.PhaseEdit] {
			o.blockPhase(state, model.PhaseEdit, language, fingerprints, reason)
		}
		if enabled[model.PhaseExport] {
			o.blockPhase(state, model.PhaseExport, language, fingerprints, reason)
		}
		state.FailedLanguages = appendUnique(state.FailedLanguages, language)
		return
	}
	upstream[model.PhaseTranslate] = translated

	var issues []model.QaIssue
	qaOK := !enabled[model.PhaseQA]
	if enabled[model.PhaseQA] {
		iss, err := runLanguagePhase[model.QaIssue](o, plan, state, fingerprints, model.PhaseQA, language,
			[]model.PhaseName{model.PhaseTranslate},
			func(agent ports.PhaseAgent, cfg agentpool.Config, params map[string]any) (phase.Output[model.QaIssue], error) {
				return phase.QA(ctx, agent, lines, language, cfg, upstream, params, o.progressCallback(state.RunID, model.PhaseQA, language))
			})
		if err != nil {
			if enabled[model.PhaseEdit] {
				o.blockPhase(state, model.PhaseEdit, language, fingerprints, fmt.Sprintf("upstream qa failed: %v", err))
			}
		} else {
			issues = iss
			upstream[model.PhaseQA] = issues
			qaOK = true
		}
	}

	finalLines := translated
	if enabled[model.PhaseEdit] && qaOK {
		edited, err := runLanguagePhase[model.TranslatedLine](o, plan, state, fingerprints, model.PhaseEdit, language,
			[]model.PhaseName{model.PhaseQA, model.PhaseTranslate},
			func(agent ports.PhaseAgent, cfg agentpool.Config, params map[string]any) (phase.Output[model.TranslatedLine], error) {
				return phase.Edit(ctx, agent, lines, issues, language, cfg, upstream, params, o.progressCallback(state.RunID, model.PhaseEdit, language))
			})
		if err != nil {
			o.log(state.RunID, model.PhaseEdit, model.LogWarn, "edit failed; exporting translate output unmodified", map[string]any{"target_language": language, "error": err.Error()})
		} else if len(edited) > 0 {
			finalLines = mergeEdited(translated, edited)
			upstream[model.PhaseEdit] = edited
		}
	}

	if enabled[model.PhaseExport] {
		if err := o.runExport(ctx, plan, state, fingerprints, language, finalLines); err != nil {
			state.FailedLanguages = appendUnique(state.FailedLanguages, language)
		}
	}
}

// runExport writes finalLines to the language's export target.
func (o *Orchestrator) runExport(ctx context.Context, plan Plan, state *model.RunState, fingerprints map[string]string, language string, lines []model.TranslatedLine) error {
	key := model.PhaseLanguageKey{Phase: model.PhaseExport, Language: language}
	if rec, ok := state.LatestNonStale(key); ok && rec.Status == model.PhaseStatusCompleted {
		return nil
	}

	rev := nextRevision(state, key)
	started := time.Now().UTC()
	o.emitProgress(state.RunID, model.PhaseExport, language, model.EventPhaseStarted, nil, nil)

	path := ""
	if plan.ExportPathFor != nil {
		path = plan.ExportPathFor(language)
	}
	deps := dependenciesFor(state, []model.PhaseName{model.PhaseEdit, model.PhaseTranslate}, language)

	result, err := phase.Export(ctx, plan.ExportAdapter, path, plan.ExportFormat, plan.Config.Parameters(string(model.PhaseExport)), lines, language, plan.Config.UntranslatedPolicy)
	if err != nil {
		o.recordFailure(state, model.PhaseExport, language, rev, started, fingerprints, deps, err)
		return err
	}

	rec := model.PhaseRunRecord{
		Phase: model.PhaseExport, TargetLanguage: language, Revision: rev, Status: model.PhaseStatusCompleted,
		StartedAt: started, EndedAt: time.Now().UTC(), Dependencies: deps,
		Summary: result.Summary, ConfigFingerprint: fingerprints[string(model.PhaseExport)],
	}
	o.appendRecord(state, rec, fingerprints)
	if err := o.checkpoint(state); err != nil {
		return err
	}
	o.emitProgress(state.RunID, model.PhaseExport, language, model.EventPhaseCompleted, result.Summary, nil)
	return nil
}

// runLanguagePhase is the shared skip/dispatch/persist path for every
// per-language agent phase (pretranslation, translate, qa, edit). It is a
// free function, not a method, because Go methods cannot carry their own
// type parameters.
func runLanguagePhase[T agentpool.Identified](
	o *Orchestrator,
	plan Plan,
	state *model.RunState,
	fingerprints map[string]string,
	name model.PhaseName,
	language string,
	depPhases []model.PhaseName,
	call func(agent ports.PhaseAgent, cfg agentpool.Config, params map[string]any) (phase.Output[T], error),
) ([]T, error) {
	key := model.PhaseLanguageKey{Phase: name, Language: language}
	if rec, ok := state.LatestNonStale(key); ok && rec.Status == model.PhaseStatusCompleted {
		return loadArtifactSlice[T](o, state.RunID, rec.ArtifactRefs, name)
	}

	agent, ok := plan.Agents[name]
	if !ok {
		return nil, rentlerr.New(rentlerr.CodeConfig, fmt.Sprintf("no agent configured for phase %s", name))
	}

	rev := nextRevision(state, key)
	started := time.Now().UTC()
	o.emitProgress(state.RunID, name, language, model.EventPhaseStarted, nil, nil)

	cfg := agentpoolConfigFor(plan.Config, name)
	params := plan.Config.Parameters(string(name))
	deps := dependenciesFor(state, depPhases, language)

	out, err := call(agent, cfg, params)
	if err == nil && !out.Succeeded() {
		err = phase.FailureError(name, language, out.Failures)
	}
	if err != nil {
		o.recordFailure(state, name, language, rev, started, fingerprints, deps, err)
		return nil, err
	}

	ref, err := saveArtifactJSON(o, state.RunID, name, language, rev, out.Merged)
	if err != nil {
		o.recordFailure(state, name, language, rev, started, fingerprints, deps, err)
		return nil, err
	}

	rec := model.PhaseRunRecord{
		Phase: name, TargetLanguage: language, Revision: rev, Status: model.PhaseStatusCompleted,
		StartedAt: started, EndedAt: time.Now().UTC(), Dependencies: deps,
		ArtifactRefs: []string{ref}, Summary: out.Summary,
		ConfigFingerprint: fingerprints[string(name)],
	}
	o.appendRecord(state, rec, fingerprints)
	if err := o.checkpoint(state); err != nil {
		return nil, err
	}
	o.emitProgress(state.RunID, name, language, model.EventPhaseCompleted, out.Summary, nil)
	return out.Merged, nil
}

// mergeEdited overlays edits onto base by line_id, preserving base's order
// and leaving lines edit didn't touch unchanged.
func mergeEdited(base []model.TranslatedLine, edits []model.TranslatedLine) []model.TranslatedLine {
	byID := make(map[string]model.TranslatedLine, len(edits))
	for _, e := range edits {
		byID[e.LineID] = e
	}
	out := make([]model.TranslatedLine, len(base))
	for i, l := range base {
		if e, ok := byID[l.LineID]; ok {
			out[i] = e
		} else {
			out[i] = l
		}
	}
	return out
}

func loadArtifactSlice[T any](o *Orchestrator, runID string, refs []string, name model.PhaseName) ([]T, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("orchestrator: phase %s has a completed record with no artifact ref", name)
	}
	body, ok, err := o.artifacts.LoadArtifact(runID, refs[len(refs)-1], "json")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load %s artifact: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("orchestrator: %s artifact %q missing from store", name, refs[len(refs)-1])
	}
	var out2 []T
	if err := json.Unmarshal(body, &out2); err != nil {
		return nil, fmt.Errorf("orchestrator: decode %s artifact: %w", name, err)
	}
	return out2, nil
}

func saveArtifactJSON[T any](o *Orchestrator, runID string, phaseName model.PhaseName, language string, revision int, data []T) (string, error) {
	if data == nil {
		data = []T{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("orchestrator: encode %s artifact: %w", phaseName, err)
	}
	ref, err := o.artifacts.SaveArtifact(runID, phaseName, language, revision, "json", body)
	if err != nil {
		return "", rentlerr.Wrap(rentlerr.CodeStorage, "save artifact failed", err).
			WithContext(rentlerr.Context{Phase: string(phaseName), Language: language})
	}
	return ref, nil
}

// nextRevision is one more than the highest revision recorded for key so
// far, across stale and non-stale records alike.
func nextRevision(state *model.RunState, key model.PhaseLanguageKey) int {
	max := 0
	for _, rec := range state.Phases {
		if rec.Key() == key && rec.Revision > max {
			max = rec.Revision
		}
	}
	return max + 1
}

// dependenciesFor builds the Dependency list a new record should carry,
// pointing at the latest recorded revision of each phase in depPhases.
// Run-scoped upstream phases (ingest, context) are always looked up with an
// empty language regardless of language.
func dependenciesFor(state *model.RunState, depPhases []model.PhaseName, language string) []model.Dependency {
	var deps []model.Dependency
	for _, p := range depPhases {
		upstreamLanguage := ""
		if p.LanguageScoped() {
			upstreamLanguage = language
		}
		key := model.PhaseLanguageKey{Phase: p, Language: upstreamLanguage}
		if rec, ok := state.Latest(key); ok {
			deps = append(deps, model.Dependency{UpstreamPhase: p, UpstreamLanguage: upstreamLanguage, UpstreamRevision: rec.Revision})
		}
	}
	return deps
}

func (o *Orchestrator) appendRecord(state *model.RunState, rec model.PhaseRunRecord, fingerprints map[string]string) {
	state.Phases = append(state.Phases, rec)
	state.UpdatedAt = time.Now().UTC()
	if rec.Status == model.PhaseStatusCompleted {
		// A freshly completed phase may have advanced past a revision a
		// downstream phase's record still depends on; re-check staleness now
		// so the next phase in this same pass sees it rather than waiting
		// for a future Resume.
		o.invalidateStale(state, fingerprints)
	}
}

func (o *Orchestrator) checkpoint(state *model.RunState) error {
	if err := o.runs.SaveRunState(*state); err != nil {
		return rentlerr.Wrap(rentlerr.CodeStorage, "checkpoint run state failed", err).
			WithContext(rentlerr.Context{Extra: map[string]any{"run_id": state.RunID}})
	}
	return nil
}

func (o *Orchestrator) recordFailure(state *model.RunState, name model.PhaseName, language string, rev int, started time.Time, fingerprints map[string]string, deps []model.Dependency, err error) {
	perr := toPhaseError(err)
	rec := model.PhaseRunRecord{
		Phase: name, TargetLanguage: language, Revision: rev, Status: model.PhaseStatusFailed,
		StartedAt: started, EndedAt: time.Now().UTC(), Dependencies: deps,
		Error: perr, ConfigFingerprint: fingerprints[string(name)],
	}
	o.appendRecord(state, rec, fingerprints)
	o.checkpoint(state) //nolint:errcheck // the failure itself is already captured in rec; a checkpoint I/O error surfaces on the next save
	o.emitProgress(state.RunID, name, language, model.EventPhaseFailed, nil, perr)
	o.log(state.RunID, name, model.LogError, "phase failed", map[string]any{"target_language": language, "error": err.Error()})
}

// blockPhase records a blocked PhaseRunRecord for a phase that was never
// dispatched because an upstream phase it hard-depends on failed.
func (o *Orchestrator) blockPhase(state *model.RunState, name model.PhaseName, language string, fingerprints map[string]string, reason string) {
	key := model.PhaseLanguageKey{Phase: name, Language: language}
	rev := nextRevision(state, key)
	now := time.Now().UTC()
	perr := &model.PhaseError{Code: string(rentlerr.CodeOrchestration), Message: reason}
	rec := model.PhaseRunRecord{
		Phase: name, TargetLanguage: language, Revision: rev, Status: model.PhaseStatusBlocked,
		StartedAt: now, EndedAt: now, Error: perr, ConfigFingerprint: fingerprints[string(name)],
	}
	o.appendRecord(state, rec, fingerprints)
	o.checkpoint(state) //nolint:errcheck
	o.emitProgress(state.RunID, name, language, model.EventPhaseBlocked, nil, perr)
}

func (o *Orchestrator) failRun(state *model.RunState, err error) (*model.RunState, error) {
	state.Status = model.RunFailed
	state.UpdatedAt = time.Now().UTC()
	o.checkpoint(state) //nolint:errcheck
	o.emitProgress(state.RunID, "", "", model.EventRunFailed, nil, toPhaseError(err))
	return state, err
}

// cancelRun marks state cancelled and returns the partial state plus cause:
// everything already recorded stays recorded, nothing further is attempted.
func (o *Orchestrator) cancelRun(state *model.RunState, cause error) (*model.RunState, error) {
	state.Status = model.RunCancelled
	state.UpdatedAt = time.Now().UTC()
	o.checkpoint(state) //nolint:errcheck
	o.log(state.RunID, "", model.LogWarn, "run cancelled", map[string]any{"cause": cause.Error()})
	return state, cause
}

func (o *Orchestrator) finishRun(state *model.RunState, totalLanguages int) (*model.RunState, error) {
	state.UpdatedAt = time.Now().UTC()
	if totalLanguages > 0 && len(state.FailedLanguages) == totalLanguages {
		state.Status = model.RunFailed
	} else {
		state.Status = model.RunCompleted
	}
	if err := o.checkpoint(state); err != nil {
		return state, err
	}
	if state.Status == model.RunCompleted {
		o.emitProgress(state.RunID, "", "", model.EventRunCompleted, nil, nil)
	} else {
		o.emitProgress(state.RunID, "", "", model.EventRunFailed, nil, nil)
	}
	return state, nil
}

func (o *Orchestrator) emitProgress(runID string, phaseName model.PhaseName, language string, event model.ProgressEvent, summary map[string]any, perr *model.PhaseError) {
	update := model.ProgressUpdate{
		RunID: runID, Phase: phaseName, TargetLanguage: language,
		Event: event, SequenceNumber: o.nextSeq(runID, phaseName, language),
		Timestamp: time.Now().UTC(), Error: perr,
	}
	if len(summary) > 0 {
		update.Metrics = metricsFromSummary(summary)
	}
	if err := o.progress.Append(update); err != nil {
		o.logger.Warn("progress sink rejected update", "run_id", runID, "phase", phaseName, "error", err)
	}
	if phaseName == "" {
		level := model.LogInfo
		if event == model.EventRunFailed {
			level = model.LogError
		}
		o.logs.Append(model.LogEntry{
			Timestamp: update.Timestamp, Level: level, Event: string(event),
			RunID: runID, Message: string(event),
		})
	}
}

// progressCallback returns a phase.Progress that turns each chunk
// completion into a phase_progress ProgressUpdate, so a caller watching the
// progress sink sees milestones as a phase runs rather than only at its end.
func (o *Orchestrator) progressCallback(runID string, phaseName model.PhaseName, language string) phase.Progress {
	return func(chunksCompleted, totalChunks, metricValue int) {
		o.emitChunkProgress(runID, phaseName, language, chunksCompleted, totalChunks, metricValue)
	}
}

func (o *Orchestrator) emitChunkProgress(runID string, phaseName model.PhaseName, language string, chunksCompleted, totalChunks, metricValue int) {
	update := model.ProgressUpdate{
		RunID: runID, Phase: phaseName, TargetLanguage: language,
		Event: model.EventPhaseProgress, SequenceNumber: o.nextSeq(runID, phaseName, language),
		Timestamp: time.Now().UTC(),
		Metrics: map[string]model.Metric{
			"chunks_completed": {Value: float64(chunksCompleted)},
			"chunks_total":     {Value: float64(totalChunks)},
			"items_processed":  {Value: float64(metricValue)},
		},
	}
	if totalChunks > 0 {
		pct := float64(chunksCompleted) / float64(totalChunks) * 100
		update.PercentComplete = &pct
	}
	if err := o.progress.Append(update); err != nil {
		o.logger.Warn("progress sink rejected update", "run_id", runID, "phase", phaseName, "error", err)
	}
}

func (o *Orchestrator) nextSeq(runID string, phaseName model.PhaseName, language string) int64 {
	o.seqMu.Lock()
	defer o.seqMu.Unlock()
	key := seriesKey{runID: runID, phase: phaseName, language: language}
	o.seq[key]++
	return o.seq[key]
}

func (o *Orchestrator) log(runID string, phaseName model.PhaseName, level model.LogLevel, message string, data map[string]any) {
	o.logs.Append(model.LogEntry{
		Timestamp: time.Now().UTC(), Level: level, Event: string(phaseName),
		RunID: runID, Phase: phaseName, Message: message, Data: data,
	})
}

func metricsFromSummary(summary map[string]any) map[string]model.Metric {
	out := make(map[string]model.Metric, len(summary))
	for k, v := range summary {
		if n, ok := toFloat(v); ok {
			out[k] = model.Metric{Value: n}
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toPhaseError(err error) *model.PhaseError {
	var rerr *rentlerr.Error
	if errors.As(err, &rerr) {
		return &model.PhaseError{
			Code: string(rerr.Code), Message: rerr.Message,
			NextAction: rerr.NextAction, Details: rerr.Context.Extra,
		}
	}
	return &model.PhaseError{Code: string(rentlerr.CodeRuntime), Message: err.Error()}
}

func enabledSet(cfg *config.Config) map[model.PhaseName]bool {
	out := make(map[model.PhaseName]bool, len(cfg.Phases.Enabled))
	for _, name := range cfg.Phases.Enabled {
		out[model.PhaseName(name)] = true
	}
	return out
}

func agentpoolConfigFor(cfg *config.Config, name model.PhaseName) agentpool.Config {
	resolved := cfg.Phase(string(name)).Resolve(name == model.PhaseContext)
	return agentpool.Config{
		MaxConcurrentChunks: resolved.MaxConcurrentChunks,
		ChunkSize:           resolved.ChunkSize,
		MaxChunkRetries:     resolved.MaxChunkRetries,
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
