package phase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevorwieland/rentl/internal/agentpool"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/phase"
	"github.com/trevorwieland/rentl/internal/ports"
)

func TestContext_GroupsConsecutiveLinesByScene(t *testing.T) {
	lines := []model.SourceLine{
		{LineID: "a_1", SceneID: "scene_1", Text: "hi"},
		{LineID: "a_2", SceneID: "scene_1", Text: "there"},
		{LineID: "a_3", SceneID: "scene_2", Text: "bye"},
	}
	cfg := agentpool.Config{MaxConcurrentChunks: 2, MaxChunkRetries: 1}

	var groupSizes []int
	agent := &fakeAgent{run: func(_ context.Context, input ports.PhaseInput) (ports.PhaseOutput, error) {
		groupSizes = append(groupSizes, len(input.Lines))
		sceneID := input.Lines[0].SceneID
		characters := []string{"alice"}
		if sceneID == "scene_2" {
			characters = []string{"alice", "bob"}
		}
		return ports.PhaseOutput{Payload: []model.SceneSummary{{SceneID: sceneID, Summary: "summary", Characters: characters}}}, nil
	}}

	out, err := phase.Context(context.Background(), agent, lines, cfg, nil, nil)
	require.NoError(t, err)
	require.True(t, out.Succeeded())
	require.Len(t, out.Merged, 2)
	assert.ElementsMatch(t, []int{2, 1}, groupSizes)
	assert.Equal(t, 2, out.Summary["scenes_summarized"])
	assert.Equal(t, 2, out.Summary["characters_identified"], "alice and bob, deduplicated across scenes")
}

func TestContext_RetriesWhenAgentReturnsWrongSceneOrCount(t *testing.T) {
	lines := []model.SourceLine{
		{LineID: "a_1", SceneID: "scene_1", Text: "hi"},
	}
	cfg := agentpool.Config{MaxConcurrentChunks: 1, MaxChunkRetries: 1}

	attempt := 0
	agent := &fakeAgent{run: func(_ context.Context, input ports.PhaseInput) (ports.PhaseOutput, error) {
		attempt++
		if attempt == 1 {
			return ports.PhaseOutput{Payload: []model.SceneSummary{}}, nil
		}
		return ports.PhaseOutput{Payload: []model.SceneSummary{{SceneID: "scene_1", Summary: "ok"}}}, nil
	}}

	out, err := phase.Context(context.Background(), agent, lines, cfg, nil, nil)
	require.NoError(t, err)
	require.True(t, out.Succeeded())
	require.Len(t, out.Merged, 1)
	assert.Equal(t, 2, attempt)
}
