package phase

import (
	"context"

	"github.com/trevorwieland/rentl/internal/agentpool"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
)

// Pretranslation runs the pretranslation phase, producing zero or more
// Annotations per line (idioms, honorifics, wordplay worth flagging before
// translation). AlignmentSubset applies: a line with no annotations is not
// a failure, and a line may legitimately receive several.
func Pretranslation(ctx context.Context, agent ports.PhaseAgent, lines []model.SourceLine, language string, cfg agentpool.Config, upstream map[model.PhaseName]any, params map[string]any, onProgress Progress) (Output[model.Annotation], error) {
	cfg.Alignment = agentpool.AlignmentSubset
	exec := executorFor[model.Annotation](agent, model.PhasePretranslation, language, upstream, params)

	result, err := agentpool.Run(ctx, lines, cfg, exec, adaptProgress(onProgress))
	if err != nil {
		return Output[model.Annotation]{}, err
	}

	out := Output[model.Annotation]{Merged: result.Merged, Failures: result.Failures}
	if result.Succeeded() {
		out.Summary = map[string]any{
			"lines_annotated":   countDistinctLines(result.Merged),
			"annotations_total": len(result.Merged),
		}
	}
	return out, nil
}

func countDistinctLines(annotations []model.Annotation) int {
	seen := make(map[string]bool, len(annotations))
	for _, a := range annotations {
		seen[a.LineID] = true
	}
	return len(seen)
}
