package orchestrator

import (
	"fmt"
	"strings"

	"github.com/trevorwieland/rentl/internal/model"
)

// DryRun renders a text report of what Run would do against plan without
// executing anything: which phases are enabled, in what order, how many
// languages they fan out to, and which PhaseAgent (if any) is wired for
// each agent-driven phase. It never touches the store or any adapter.
func (o *Orchestrator) DryRun(plan Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Localization run plan\n")
	fmt.Fprintf(&b, "  source language:  %s\n", plan.Config.Languages.Source)
	fmt.Fprintf(&b, "  target languages: %s\n", strings.Join(plan.Config.Languages.Targets, ", "))

	enabled := enabledSet(plan.Config)
	fmt.Fprintf(&b, "\nPhases:\n")
	for _, name := range model.PhaseOrder {
		if !enabled[name] {
			fmt.Fprintf(&b, "  [skip] %s\n", name)
			continue
		}

		scope := "once per run"
		count := 1
		if name.LanguageScoped() {
			count = len(plan.Config.Languages.Targets)
			scope = fmt.Sprintf("once per target language (x%d)", count)
		}

		agentLine := ""
		if name != model.PhaseIngest && name != model.PhaseExport {
			if _, ok := plan.Agents[name]; ok {
				agentLine = ", agent configured"
			} else {
				agentLine = ", NO AGENT CONFIGURED"
			}
		}

		resolved := plan.Config.Phase(string(name)).Resolve(name == model.PhaseContext)
		fmt.Fprintf(&b, "  [run]  %-15s %s%s (max_concurrent_chunks=%d chunk_size=%d max_chunk_retries=%d)\n",
			name, scope, agentLine, resolved.MaxConcurrentChunks, resolved.ChunkSize, resolved.MaxChunkRetries)
	}

	fmt.Fprintf(&b, "\nFatality:\n")
	fmt.Fprintf(&b, "  ingest failure aborts the entire run\n")
	fmt.Fprintf(&b, "  context failure is logged and skipped; downstream phases proceed without scene summaries\n")
	fmt.Fprintf(&b, "  translate failure blocks qa/edit/export for that language only\n")
	fmt.Fprintf(&b, "  qa failure blocks edit for that language; export still uses translate's output\n")
	fmt.Fprintf(&b, "  edit failure falls back to exporting translate's unedited output\n")
	fmt.Fprintf(&b, "  export failure marks that language failed; other languages are unaffected\n")

	return b.String()
}
