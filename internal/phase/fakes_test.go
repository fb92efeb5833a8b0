package phase_test

import (
	"context"
	"errors"

	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
)

// fakeAgent is a ports.PhaseAgent whose behavior is driven by a callback,
// so each test can script exactly what the "LLM" returns per call.
type fakeAgent struct {
	run func(ctx context.Context, input ports.PhaseInput) (ports.PhaseOutput, error)
}

func (f *fakeAgent) Run(ctx context.Context, input ports.PhaseInput) (ports.PhaseOutput, error) {
	return f.run(ctx, input)
}

func translateEcho(lang string) *fakeAgent {
	return &fakeAgent{run: func(_ context.Context, input ports.PhaseInput) (ports.PhaseOutput, error) {
		out := make([]model.TranslatedLine, len(input.Lines))
		for i, l := range input.Lines {
			out[i] = model.TranslatedLine{LineID: l.LineID, SourceText: l.Text, Text: "[" + lang + "] " + l.Text}
		}
		return ports.PhaseOutput{Payload: out}, nil
	}}
}

type fakeIngestAdapter struct {
	lines []model.SourceLine
	err   error
}

func (f *fakeIngestAdapter) Read(_ context.Context, _, _ string, _ map[string]any) ([]model.SourceLine, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lines, nil
}

type fakeExportAdapter struct {
	summary ports.ExportSummary
	err     error
}

func (f *fakeExportAdapter) Write(_ context.Context, _, _ string, _ map[string]any, _ []model.TranslatedLine, _ string) (ports.ExportSummary, error) {
	if f.err != nil {
		return ports.ExportSummary{}, f.err
	}
	return f.summary, nil
}

var errBoom = errors.New("boom")
