package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevorwieland/rentl/internal/ids"
)

func TestNewRunID_SortsLexicographicallyByTime(t *testing.T) {
	first := ids.NewRunID()
	second := ids.NewRunID()

	require.NotEqual(t, first, second)
	assert.Less(t, first, second, "run IDs minted later must sort after earlier ones")
}

func TestNewRunID_HasStablePrefix(t *testing.T) {
	id := ids.NewRunID()
	assert.Regexp(t, `^run-\d{20}-[0-9a-f]{8}$`, id)
}

func TestValidSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"simple line id", "a_1", true},
		{"scene id with number", "scene_12", true},
		{"multi-segment", "npc_3_7", true},
		{"empty", "", false},
		{"no numeric segment", "npc_greta", false},
		{"leading digit", "1_a", false},
		{"leading underscore", "_1", false},
		{"uppercase", "A_1", false},
		{"trailing underscore", "a_1_", false},
		{"double underscore", "a__1", false},
		{"spaces", "a 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids.ValidSlug(tt.in))
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already valid", "a_1", "a_1"},
		{"spaces with trailing number", "Scene One 2", "sceneone_2"},
		{"punctuation collapses, digits kept", "npc-greta-07!!", "npcgreta_07"},
		{"leading digit becomes segment", "1 intro", "intro_1"},
		{"empty falls back", "", "line_1"},
		{"only punctuation falls back", "!!!", "line_1"},
		{"no digits at all gets synthetic segment", "hello world", "helloworld_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids.Slugify(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, ids.ValidSlug(got), "slugified output must itself be a valid slug")
		})
	}
}
