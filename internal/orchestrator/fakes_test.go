package orchestrator_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
)

var errBoom = errors.New("boom")

// fakeIngestAdapter returns a fixed set of lines, or err if set.
type fakeIngestAdapter struct {
	lines []model.SourceLine
	err   error
}

func (a *fakeIngestAdapter) Read(context.Context, string, string, map[string]any) ([]model.SourceLine, error) {
	return a.lines, a.err
}

// fakeExportAdapter records what it was asked to write.
type fakeExportAdapter struct {
	err     error
	written map[string][]model.TranslatedLine
}

func newFakeExportAdapter() *fakeExportAdapter {
	return &fakeExportAdapter{written: make(map[string][]model.TranslatedLine)}
}

func (a *fakeExportAdapter) Write(_ context.Context, _ string, _ string, _ map[string]any, lines []model.TranslatedLine, _ string) (ports.ExportSummary, error) {
	if a.err != nil {
		return ports.ExportSummary{}, a.err
	}
	a.written[lines[0].LineID] = lines // keyed loosely; tests just check RecordsWritten
	return ports.ExportSummary{RecordsWritten: len(lines)}, nil
}

// translateAgent prefixes each line's text with the target language.
type translateAgent struct {
	failAlways      bool
	failForLanguage string
}

func (a *translateAgent) Run(_ context.Context, input ports.PhaseInput) (ports.PhaseOutput, error) {
	if a.failAlways || input.Language == a.failForLanguage {
		return ports.PhaseOutput{}, errBoom
	}
	out := make([]model.TranslatedLine, len(input.Lines))
	for i, l := range input.Lines {
		out[i] = model.TranslatedLine{LineID: l.LineID, SourceText: l.Text, Text: fmt.Sprintf("[%s] %s", input.Language, l.Text)}
	}
	return ports.PhaseOutput{Payload: out}, nil
}

// contextAgent returns one trivial summary per scene chunk.
type contextAgent struct{}

func (contextAgent) Run(_ context.Context, input ports.PhaseInput) (ports.PhaseOutput, error) {
	sceneID := ""
	if len(input.Lines) > 0 {
		sceneID = input.Lines[0].SceneID
	}
	return ports.PhaseOutput{Payload: []model.SceneSummary{{SceneID: sceneID, Summary: "summary"}}}, nil
}

// qaAgent flags every line whose text is exactly "flag me" with one issue.
type qaAgent struct{}

func (qaAgent) Run(_ context.Context, input ports.PhaseInput) (ports.PhaseOutput, error) {
	var issues []model.QaIssue
	for _, l := range input.Lines {
		if l.Text == "flag me" {
			issues = append(issues, model.QaIssue{LineID: l.LineID, Severity: model.SeverityMinor, Message: "flagged"})
		}
	}
	if issues == nil {
		issues = []model.QaIssue{}
	}
	return ports.PhaseOutput{Payload: issues}, nil
}

// emptyAnnotationAgent always returns zero annotations, used for
// pretranslation in tests that don't exercise its content.
type emptyAnnotationAgent struct{}

func (emptyAnnotationAgent) Run(context.Context, ports.PhaseInput) (ports.PhaseOutput, error) {
	return ports.PhaseOutput{Payload: []model.Annotation{}}, nil
}
