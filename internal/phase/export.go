package phase

import (
	"context"

	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
	"github.com/trevorwieland/rentl/internal/rentlerr"
)

// ExportResult is the export phase's output for one target language.
type ExportResult struct {
	Summary map[string]any
}

// Export writes translated lines via adapter, passing untranslatedPolicy
// through for the adapter to apply to any line whose Text still equals its
// SourceText. Like ingest, export
// is a single deterministic write with no chunking or retries.
func Export(ctx context.Context, adapter ports.ExportAdapter, path, format string, options map[string]any, lines []model.TranslatedLine, language, untranslatedPolicy string) (ExportResult, error) {
	summary, err := adapter.Write(ctx, path, format, options, lines, untranslatedPolicy)
	if err != nil {
		return ExportResult{}, rentlerr.Wrap(rentlerr.CodeExport, "export adapter failed", err).
			WithContext(rentlerr.Context{Phase: string(model.PhaseExport), Language: language, Extra: map[string]any{"path": path, "format": format}})
	}

	return ExportResult{
		Summary: map[string]any{
			"records_exported":     summary.RecordsWritten,
			"untranslated_records": summary.UntranslatedRecords,
		},
	}, nil
}
