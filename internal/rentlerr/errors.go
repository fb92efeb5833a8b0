// Package rentlerr defines the error taxonomy shared by every core
// component. Every exported operation that can fail returns (or wraps) an
// *Error so callers, logs, and sinks all see the same stable machine-readable
// code, a human message, a suggested next action, and the phase/language/line
// context where applicable.
package rentlerr

import "fmt"

// Code is a stable, machine-readable error kind. Codes are part of the
// public contract: callers match on them with errors.Is against
// Sentinel(code), not on message text.
type Code string

const (
	// CodeConfig marks invalid or missing configuration. Local to setup;
	// fatal to the run before any phase starts.
	CodeConfig Code = "config_error"

	// CodeValidation marks input that violates a schema or an invariant.
	// Bubbles up as a phase failure or a setup failure depending on where
	// it occurred.
	CodeValidation Code = "validation_error"

	// CodeIngest marks an I/O or format error at the ingest boundary.
	CodeIngest Code = "ingest_error"

	// CodeExport marks an I/O or format error at the export boundary.
	CodeExport Code = "export_error"

	// CodeOrchestration marks an unmet dependency or a violated
	// orchestration invariant (e.g. an agent returned duplicate line_ids
	// that survived retries). Fatal for the affected language's
	// downstream phases.
	CodeOrchestration Code = "orchestration_error"

	// CodeConnection marks an LLM runtime that is unreachable or
	// unauthorized. Retried at the LLM-call layer; surfaced as a chunk
	// failure if persistent.
	CodeConnection Code = "connection_error"

	// CodeStorage marks persistence that failed after retries. Fatal to
	// the run: durability cannot be guaranteed past this point.
	CodeStorage Code = "storage_error"

	// CodeCancelled marks cooperative cancellation. Not a bug.
	CodeCancelled Code = "cancelled"

	// CodeRuntime marks an unexpected error, logged with its chain and
	// converted to a phase failure.
	CodeRuntime Code = "runtime_error"
)

// Context carries the structured location of an error within a run: which
// phase and language it occurred in, and, where applicable, which line or
// scene. Extra carries any other pass-through detail (chunk index, field
// name, byte offset) that does not warrant its own field.
type Context struct {
	Phase    string
	Language string
	LineID   string
	SceneID  string
	Extra    map[string]any
}

// Error is the concrete error type returned by core operations. It
// implements error and supports errors.Is against Sentinel values via Is
// and errors.As, and unwraps to the underlying cause via Unwrap.
type Error struct {
	Code       Code
	Message    string
	NextAction string
	Context    Context
	Cause      error
}

// New constructs an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error that wraps cause. If cause is already an *Error
// and code is empty, the wrapped error's code is inherited.
func Wrap(code Code, message string, cause error) *Error {
	if code == "" {
		if inner, ok := cause.(*Error); ok {
			code = inner.Code
		}
	}
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithNextAction returns a copy of e with NextAction set.
func (e *Error) WithNextAction(action string) *Error {
	cp := *e
	cp.NextAction = action
	return &cp
}

// WithContext returns a copy of e with Context set.
func (e *Error) WithContext(ctx Context) *Error {
	cp := *e
	cp.Context = ctx
	return &cp
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, enabling errors.Is/errors.As to see
// through an *Error to whatever produced it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a Sentinel (an *Error with an empty Message)
// carrying the same Code as e; an *Error target with a non-empty Message
// never matches. This lets callers write
// errors.Is(err, rentlerr.Sentinel(rentlerr.CodeValidation)) to match on the
// code alone.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if other.Message != "" {
		return false
	}
	return e.Code == other.Code
}

// Sentinel returns a zero-message *Error carrying only code, suitable for
// use as an errors.Is comparison target (e.g. errors.Is(err,
// rentlerr.Sentinel(rentlerr.CodeValidation))).
func Sentinel(code Code) *Error {
	return &Error{Code: code}
}
