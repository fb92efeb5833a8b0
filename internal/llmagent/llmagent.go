// Package llmagent adapts a ports.LLMRuntime into a ports.PhaseAgent: it
// renders a prompt for one chunk, asks the runtime to run it, and decodes
// the first JSON value in the runtime's raw text response into the phase's
// expected output slice via jsonutil. This is the wiring jsonutil's own
// doc comment anticipates ("freeform text output produced by LLM
// runtimes") — a real LLMRuntime implementation is a concrete client
// outside this core's scope, but the decode step between RunPrompt's raw
// string and a typed PhaseOutput.Payload belongs here.
package llmagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trevorwieland/rentl/internal/jsonutil"
	"github.com/trevorwieland/rentl/internal/ports"
)

// PromptFunc renders the prompt for one chunk's PhaseInput.
type PromptFunc func(input ports.PhaseInput) string

// Agent is a generic ports.PhaseAgent backed by an LLMRuntime. Out is the
// phase's output element type (e.g. model.TranslatedLine); the runtime's
// response is expected to contain a JSON array of Out, optionally wrapped
// in prose or a markdown code fence.
type Agent[Out any] struct {
	Runtime  ports.LLMRuntime
	Settings ports.LLMSettings
	Schema   any
	Prompt   PromptFunc
}

// Run implements ports.PhaseAgent.
func (a *Agent[Out]) Run(ctx context.Context, input ports.PhaseInput) (ports.PhaseOutput, error) {
	text, err := a.Runtime.RunPrompt(ctx, a.Prompt(input), a.Schema, a.Settings)
	if err != nil {
		return ports.PhaseOutput{}, fmt.Errorf("llmagent: %s: run prompt: %w", input.Phase, err)
	}

	raw, err := jsonutil.Extract(text)
	if err != nil {
		return ports.PhaseOutput{}, fmt.Errorf("llmagent: %s: extract json from response: %w", input.Phase, err)
	}

	var out []Out
	if err := json.Unmarshal(raw, &out); err != nil {
		return ports.PhaseOutput{}, fmt.Errorf("llmagent: %s: decode response: %w", input.Phase, err)
	}
	return ports.PhaseOutput{Payload: out}, nil
}
