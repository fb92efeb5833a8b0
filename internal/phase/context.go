package phase

import (
	"context"
	"fmt"

	"github.com/trevorwieland/rentl/internal/agentpool"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
	"github.com/trevorwieland/rentl/internal/rentlerr"
)

// Context runs the context phase: lines are grouped into one chunk per
// scene (consecutive lines sharing scene_id), and each chunk must produce
// exactly one SceneSummary for that scene. Scene grouping, not line_id
// alignment, is what's checked here, so the pool's generic ID check is
// disabled (AlignmentNone) and this executor validates the single-summary
// shape itself.
func Context(ctx context.Context, agent ports.PhaseAgent, lines []model.SourceLine, cfg agentpool.Config, params map[string]any, onProgress Progress) (Output[model.SceneSummary], error) {
	cfg.Alignment = agentpool.AlignmentNone
	groups := groupByScene(lines)

	exec := func(ctx context.Context, chunk []model.SourceLine, attempt int, feedback string) ([]model.SceneSummary, error) {
		sceneID := ""
		if len(chunk) > 0 {
			sceneID = chunk[0].SceneID
		}

		p := params
		if feedback != "" {
			p = withFeedback(params, feedback)
		}

		out, err := agent.Run(ctx, ports.PhaseInput{
			Phase:  model.PhaseContext,
			Lines:  chunk,
			Params: p,
		})
		if err != nil {
			return nil, err
		}

		payload, ok := out.Payload.([]model.SceneSummary)
		if !ok {
			return nil, rentlerr.New(rentlerr.CodeValidation, fmt.Sprintf("context agent returned unexpected payload type %T", out.Payload))
		}
		if len(payload) != 1 || payload[0].SceneID != sceneID {
			return nil, rentlerr.New(rentlerr.CodeValidation, fmt.Sprintf("context agent must return exactly one summary for scene %q, got %d", sceneID, len(payload)))
		}
		return payload, nil
	}

	result, err := agentpool.RunChunks(ctx, groups, cfg, exec, adaptProgress(onProgress))
	if err != nil {
		return Output[model.SceneSummary]{}, err
	}

	out := Output[model.SceneSummary]{Merged: result.Merged, Failures: result.Failures}
	if result.Succeeded() {
		out.Summary = map[string]any{
			"scenes_summarized":     len(result.Merged),
			"characters_identified": countDistinctCharacters(result.Merged),
		}
	}
	return out, nil
}

// countDistinctCharacters returns the number of unique character names
// across every scene summary's Characters list.
func countDistinctCharacters(summaries []model.SceneSummary) int {
	seen := make(map[string]bool)
	for _, s := range summaries {
		for _, c := range s.Characters {
			seen[c] = true
		}
	}
	return len(seen)
}

// groupByScene partitions lines into consecutive runs sharing the same
// scene_id, preserving order. Lines with an empty scene_id are each their
// own single-line group.
func groupByScene(lines []model.SourceLine) [][]model.SourceLine {
	var groups [][]model.SourceLine
	var current []model.SourceLine

	for _, l := range lines {
		if len(current) > 0 && l.SceneID != "" && current[len(current)-1].SceneID == l.SceneID {
			current = append(current, l)
			continue
		}
		if len(current) > 0 {
			groups = append(groups, current)
		}
		current = []model.SourceLine{l}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}
