package phase

import (
	"context"

	"github.com/trevorwieland/rentl/internal/agentpool"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
)

// Translate runs the translate phase over lines for one target language.
// Every input line must produce exactly one TranslatedLine (AlignmentExact):
// a partial or duplicated translation is a chunk failure, not a partial
// success.
func Translate(ctx context.Context, agent ports.PhaseAgent, lines []model.SourceLine, language string, cfg agentpool.Config, upstream map[model.PhaseName]any, params map[string]any, onProgress Progress) (Output[model.TranslatedLine], error) {
	cfg.Alignment = agentpool.AlignmentExact
	exec := executorFor[model.TranslatedLine](agent, model.PhaseTranslate, language, upstream, params)

	result, err := agentpool.Run(ctx, lines, cfg, exec, adaptProgress(onProgress))
	if err != nil {
		return Output[model.TranslatedLine]{}, err
	}

	out := Output[model.TranslatedLine]{Merged: result.Merged, Failures: result.Failures}
	if result.Succeeded() {
		out.Summary = map[string]any{
			"lines_translated": len(result.Merged),
			"retried_chunks":   result.RetriedChunks,
		}
	}
	return out, nil
}
