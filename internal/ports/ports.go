// Package ports declares the typed contracts the orchestrator core depends
// on but does not implement: ingest/export adapters, phase agents, and the
// LLM runtime. Concrete adapters (CSV readers, a Claude/Gemini-backed
// runtime, …) live outside this core and are supplied by the caller,
// wired into the orchestrator from a CLI or service entrypoint without
// the orchestrator ever importing a specific binding.
package ports

import (
	"context"

	"github.com/trevorwieland/rentl/internal/model"
)

// IngestAdapter reads source lines from an external representation (a CSV
// file, a localization spreadsheet export, …) into the core's SourceLine
// shape. Implementations must return lines in the order they should be
// merged; the orchestrator does not re-sort ingest output.
type IngestAdapter interface {
	Read(ctx context.Context, path, format string, options map[string]any) ([]model.SourceLine, error)
}

// ExportSummary reports what an ExportAdapter actually wrote.
type ExportSummary struct {
	RecordsWritten      int
	UntranslatedRecords int
	Path                string
}

// ExportAdapter writes translated lines to an external representation.
// UntranslatedPolicy controls how a TranslatedLine whose Text still equals
// its SourceText (i.e. translation never happened, or qa/edit cleared it)
// is handled: "error" fails the export, "warn" writes it and logs, "allow"
// writes it silently.
type ExportAdapter interface {
	Write(ctx context.Context, path, format string, options map[string]any, lines []model.TranslatedLine, untranslatedPolicy string) (ExportSummary, error)
}

// PhaseInput is the read-only view a PhaseAgent receives: the chunk of
// SourceLines (or, for later phases, whatever upstream output type that
// phase consumes) plus any upstream context the phase declares a dependency
// on. Concrete phase implementations (internal/phase) narrow Upstream into
// the specific type they expect.
type PhaseInput struct {
	Phase    model.PhaseName
	Language string
	Lines    []model.SourceLine
	Upstream map[model.PhaseName]any
	Params   map[string]any
}

// PhaseOutput is what a PhaseAgent hands back for one chunk. Payload holds
// the phase-specific typed slice (e.g. []model.TranslatedLine for
// translate); the Agent Pool is responsible for merging chunk outputs in
// input order before the orchestrator persists them.
type PhaseOutput struct {
	Payload any
}

// PhaseAgent executes one phase against one chunk of input. Implementations
// may call out to an LLMRuntime, run a deterministic rule (e.g. an identity
// translator for tests), or any other strategy; the Agent Pool only cares
// about the Run contract.
type PhaseAgent interface {
	Run(ctx context.Context, input PhaseInput) (PhaseOutput, error)
}

// LLMSettings configures a single LLM call.
type LLMSettings struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Timeout         int // seconds
	Retries         int
}

// LLMRuntime negotiates a structured response from an LLM for one prompt.
// It owns schema-retry within a single call; the Agent Pool owns the
// higher-level ID-alignment retry across calls.
type LLMRuntime interface {
	RunPrompt(ctx context.Context, prompt string, schema any, settings LLMSettings) (string, error)
}

// Ingest adapter error reasons. Adapters should wrap these with
// rentlerr.CodeIngest / rentlerr.CodeExport via fmt.Errorf("...: %w", ...).
const (
	ReasonPathNotFound    = "path_not_found"
	ReasonFormatInvalid   = "format_invalid"
	ReasonSchemaViolation = "schema_violation"
	ReasonValidationFailed = "validation_failed"
	ReasonIOError         = "io_error"
)
