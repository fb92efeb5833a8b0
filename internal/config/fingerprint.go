package config

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// fingerprintSlice is the canonical, serialized view of the configuration
// slice relevant to one phase's execution. It deliberately excludes storage paths and anything
// secret-shaped; encoding/json sorts map keys when marshaling, so the same
// logical config always produces the same bytes regardless of map
// iteration order.
type fingerprintSlice struct {
	Phase              string                 `json:"phase"`
	Enabled            []string               `json:"enabled"`
	Parameters         map[string]any         `json:"parameters,omitempty"`
	Agent              AgentPhaseConfig       `json:"agent"`
	LanguageSource     string                 `json:"language_source"`
	LanguageTargets    []string               `json:"language_targets"`
	UntranslatedPolicy string                 `json:"untranslated_policy,omitempty"`
	DeterminismSeed    *int64                 `json:"determinism_seed,omitempty"`
}

// Fingerprint computes a stable hash of the configuration slice that
// affects phase's output: which phases are enabled, that phase's parameter
// map and agent dispatch settings, the language plan, and (for export) the
// untranslated-line policy. Storage paths and any future secret-bearing
// fields are never included, so changing where a run writes its artifacts
// never invalidates prior phase revisions.
func Fingerprint(cfg *Config, phase string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config: fingerprint phase %q: nil config", phase)
	}

	enabled := append([]string(nil), cfg.Phases.Enabled...)
	sort.Strings(enabled)

	targets := append([]string(nil), cfg.Languages.Targets...)
	sort.Strings(targets)

	slice := fingerprintSlice{
		Phase:           phase,
		Enabled:         enabled,
		Parameters:      cfg.Parameters(phase),
		Agent:           cfg.Phase(phase),
		LanguageSource:  cfg.Languages.Source,
		LanguageTargets: targets,
		DeterminismSeed: cfg.Determinism.Seed,
	}
	if phase == "export" {
		slice.UntranslatedPolicy = cfg.UntranslatedPolicy
	}

	encoded, err := json.Marshal(slice)
	if err != nil {
		return "", fmt.Errorf("config: fingerprint phase %q: encode: %w", phase, err)
	}

	sum := xxhash.Sum64(encoded)
	return fmt.Sprintf("%016x", sum), nil
}
