package phase

import (
	"context"

	"github.com/trevorwieland/rentl/internal/agentpool"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
)

// QA runs the qa phase, producing zero or more QaIssues per translated
// line. AlignmentSubset applies: most lines have no issues. IssueID is
// assigned here, after merge, so it is monotonic across the whole phase run
// regardless of which chunk an issue came from.
func QA(ctx context.Context, agent ports.PhaseAgent, lines []model.SourceLine, language string, cfg agentpool.Config, upstream map[model.PhaseName]any, params map[string]any, onProgress Progress) (Output[model.QaIssue], error) {
	cfg.Alignment = agentpool.AlignmentSubset
	exec := executorFor[model.QaIssue](agent, model.PhaseQA, language, upstream, params)

	result, err := agentpool.Run(ctx, lines, cfg, exec, adaptProgress(onProgress))
	if err != nil {
		return Output[model.QaIssue]{}, err
	}

	out := Output[model.QaIssue]{Failures: result.Failures}
	if !result.Succeeded() {
		return out, nil
	}

	merged := make([]model.QaIssue, len(result.Merged))
	bySeverity := map[string]int{model.SeverityMinor: 0, model.SeverityMajor: 0, model.SeverityCritical: 0}
	for i, issue := range result.Merged {
		issue.IssueID = i + 1
		merged[i] = issue
		bySeverity[issue.Severity]++
	}
	out.Merged = merged
	out.Summary = map[string]any{
		"lines_checked":   len(lines),
		"issues_total":    len(merged),
		"issues_minor":    bySeverity[model.SeverityMinor],
		"issues_major":    bySeverity[model.SeverityMajor],
		"issues_critical": bySeverity[model.SeverityCritical],
	}
	return out, nil
}
