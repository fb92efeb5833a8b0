package phase

import (
	"context"

	"github.com/trevorwieland/rentl/internal/agentpool"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
)

// Edit runs the edit phase: only lines that qa flagged with at least one
// issue are dispatched, and each must come back with exactly one revised
// TranslatedLine (AlignmentExact over that filtered subset — not over every
// source line).
func Edit(ctx context.Context, agent ports.PhaseAgent, lines []model.SourceLine, issues []model.QaIssue, language string, cfg agentpool.Config, upstream map[model.PhaseName]any, params map[string]any, onProgress Progress) (Output[model.TranslatedLine], error) {
	flagged := linesWithIssues(lines, issues)
	if len(flagged) == 0 {
		return Output[model.TranslatedLine]{Merged: nil, Summary: map[string]any{"lines_edited": 0, "issues_resolved": 0}}, nil
	}

	cfg.Alignment = agentpool.AlignmentExact
	exec := executorFor[model.TranslatedLine](agent, model.PhaseEdit, language, upstream, params)

	result, err := agentpool.Run(ctx, flagged, cfg, exec, adaptProgress(onProgress))
	if err != nil {
		return Output[model.TranslatedLine]{}, err
	}

	out := Output[model.TranslatedLine]{Merged: result.Merged, Failures: result.Failures}
	if result.Succeeded() {
		out.Summary = map[string]any{
			"lines_edited":    len(result.Merged),
			"issues_resolved": len(issues),
		}
	}
	return out, nil
}

func linesWithIssues(lines []model.SourceLine, issues []model.QaIssue) []model.SourceLine {
	flaggedIDs := make(map[string]bool, len(issues))
	for _, issue := range issues {
		flaggedIDs[issue.LineID] = true
	}

	var flagged []model.SourceLine
	for _, l := range lines {
		if flaggedIDs[l.LineID] {
			flagged = append(flagged, l)
		}
	}
	return flagged
}
