package phase

import (
	"context"
	"fmt"
	"strings"

	"github.com/trevorwieland/rentl/internal/ids"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
	"github.com/trevorwieland/rentl/internal/rentlerr"
)

// IngestResult is the ingest phase's output: the ordered source lines plus
// a summary for the PhaseRunRecord.
type IngestResult struct {
	Lines   []model.SourceLine
	Summary map[string]any
}

// Ingest reads source lines via adapter and validates that every line_id is
// well-formed and unique before handing them to the rest of the pipeline.
// Unlike the agent phases, ingest has no chunking or retries: it is a
// single deterministic read.
func Ingest(ctx context.Context, adapter ports.IngestAdapter, path, format string, options map[string]any) (IngestResult, error) {
	lines, err := adapter.Read(ctx, path, format, options)
	if err != nil {
		return IngestResult{}, rentlerr.Wrap(rentlerr.CodeIngest, "ingest adapter failed", err).
			WithContext(rentlerr.Context{Phase: string(model.PhaseIngest), Extra: map[string]any{"path": path, "format": format}})
	}

	seen := make(map[string]bool, len(lines))
	scenes := make(map[string]bool)
	kept := make([]model.SourceLine, 0, len(lines))
	emptySkipped := 0
	for _, l := range lines {
		if seen[l.LineID] {
			return IngestResult{}, rentlerr.New(rentlerr.CodeValidation, fmt.Sprintf("duplicate line_id %q in ingested source", l.LineID)).
				WithContext(rentlerr.Context{Phase: string(model.PhaseIngest), LineID: l.LineID})
		}
		seen[l.LineID] = true
		if !ids.ValidSlug(l.LineID) {
			return IngestResult{}, rentlerr.New(rentlerr.CodeValidation, fmt.Sprintf("malformed line_id %q in ingested source", l.LineID)).
				WithContext(rentlerr.Context{Phase: string(model.PhaseIngest), LineID: l.LineID})
		}
		if strings.TrimSpace(l.Text) == "" {
			emptySkipped++
			continue
		}
		kept = append(kept, l)
		if l.SceneID != "" {
			scenes[l.SceneID] = true
		}
	}

	return IngestResult{
		Lines: kept,
		Summary: map[string]any{
			"source_lines_count":  len(kept),
			"scene_count":         len(scenes),
			"empty_lines_skipped": emptySkipped,
		},
	}, nil
}
