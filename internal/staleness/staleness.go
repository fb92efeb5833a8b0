// Package staleness computes which (phase, language) pairs in a RunState
// are no longer valid as input to downstream phases: an upstream phase
// re-ran at a newer revision, or the config fingerprint for a phase
// changed since its last completed run. It runs synchronously whenever the
// orchestrator appends a new PhaseRunRecord or observes a config change; it
// never re-runs anything itself; the orchestrator consults it on its next
// pass.
package staleness

import "github.com/trevorwieland/rentl/internal/model"

// Invalidated is one newly stale (phase, language) pair, carrying enough
// detail for a phase_invalidated event.
type Invalidated struct {
	Key    model.PhaseLanguageKey
	Reason string
}

// Compute scans state and returns every (phase, language) whose latest
// non-stale record either depends on an upstream revision that is no
// longer current, or was computed under a config fingerprint that no
// longer matches currentFingerprint for that phase. currentFingerprint maps
// phase name to its current fingerprint (config.Fingerprint output).
func Compute(state *model.RunState, currentFingerprint map[string]string) []Invalidated {
	var out []Invalidated

	latestRevision := latestCompletedRevisions(state)

	for _, key := range nonStaleSeriesKeys(state) {
		rec, ok := state.LatestNonStale(key)
		if !ok {
			continue
		}

		if fp, tracked := currentFingerprint[string(key.Phase)]; tracked && fp != rec.ConfigFingerprint {
			out = append(out, Invalidated{Key: key, Reason: "config fingerprint changed"})
			continue
		}

		if reason, stale := staleFromDependencies(rec, latestRevision); stale {
			out = append(out, Invalidated{Key: key, Reason: reason})
		}
	}

	return out
}

// staleFromDependencies reports whether any of rec's recorded dependencies
// now points at a superseded upstream revision.
func staleFromDependencies(rec model.PhaseRunRecord, latestRevision map[model.PhaseLanguageKey]int) (string, bool) {
	for _, dep := range rec.Dependencies {
		upstreamKey := model.PhaseLanguageKey{Phase: dep.UpstreamPhase, Language: dep.UpstreamLanguage}
		latest, ok := latestRevision[upstreamKey]
		if !ok {
			continue
		}
		if latest > dep.UpstreamRevision {
			return "upstream " + string(dep.UpstreamPhase) + " advanced past recorded revision", true
		}
	}
	return "", false
}

// latestCompletedRevisions maps every (phase, language) series to the
// highest revision among its completed, non-stale records.
func latestCompletedRevisions(state *model.RunState) map[model.PhaseLanguageKey]int {
	out := make(map[model.PhaseLanguageKey]int)
	for _, rec := range state.Phases {
		if rec.Status != model.PhaseStatusCompleted || rec.Stale {
			continue
		}
		key := rec.Key()
		if rec.Revision > out[key] {
			out[key] = rec.Revision
		}
	}
	return out
}

// nonStaleSeriesKeys returns the distinct (phase, language) keys present in
// state, in first-seen order.
func nonStaleSeriesKeys(state *model.RunState) []model.PhaseLanguageKey {
	seen := make(map[model.PhaseLanguageKey]bool)
	var keys []model.PhaseLanguageKey
	for _, rec := range state.Phases {
		key := rec.Key()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}
