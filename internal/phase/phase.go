// Package phase wraps the Agent Pool with the per-phase semantics the
// orchestrator needs: which alignment mode applies, how a PhaseAgent's
// generic Payload narrows into a typed output slice, how retry feedback is
// threaded into the next attempt's parameters, and which summary metrics
// get recorded against the run's PhaseRunRecord.
package phase

import (
	"context"
	"fmt"

	"github.com/trevorwieland/rentl/internal/agentpool"
	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/ports"
	"github.com/trevorwieland/rentl/internal/rentlerr"
)

// Progress reports one chunk's completion back to the orchestrator, which
// turns it into a phase_progress ProgressUpdate.
type Progress func(chunksCompleted, totalChunks, metricValue int)

// Output is the generic result of running one phase's input through the
// Agent Pool: the merged typed payload (nil if the phase failed), enough
// detail to build a PhaseError, and the summary to attach to the
// PhaseRunRecord on success.
type Output[T agentpool.Identified] struct {
	Merged   []T
	Failures []agentpool.ChunkFailure
	Summary  map[string]any
}

// Succeeded reports whether every chunk completed within its retry budget.
func (o Output[T]) Succeeded() bool {
	return len(o.Failures) == 0
}

// FailureError converts a phase's chunk failures into a single
// *rentlerr.Error naming the phase and the first failing chunk, suitable for
// a PhaseRunRecord's Error field. It returns nil if failures is empty.
func FailureError(name model.PhaseName, language string, failures []agentpool.ChunkFailure) *rentlerr.Error {
	if len(failures) == 0 {
		return nil
	}
	first := failures[0]
	return rentlerr.New(rentlerr.CodeOrchestration, fmt.Sprintf("phase %s: chunk %d exhausted retries: %v", name, first.ChunkIndex, first.Err)).
		WithContext(rentlerr.Context{Phase: string(name), Language: language, Extra: map[string]any{"failed_chunks": len(failures)}})
}

// executorFor adapts a ports.PhaseAgent into an agentpool.Executor for a
// given phase and output type: each attempt calls the agent once per
// chunk, narrowing PhaseOutput.Payload into []Out and threading retry
// feedback into the next attempt's parameters under "retry_feedback".
func executorFor[Out agentpool.Identified](agent ports.PhaseAgent, name model.PhaseName, language string, upstream map[model.PhaseName]any, params map[string]any) agentpool.Executor[model.SourceLine, Out] {
	return func(ctx context.Context, chunk []model.SourceLine, attempt int, feedback string) ([]Out, error) {
		p := params
		if feedback != "" {
			p = withFeedback(params, feedback)
		}

		out, err := agent.Run(ctx, ports.PhaseInput{
			Phase:    name,
			Language: language,
			Lines:    chunk,
			Upstream: upstream,
			Params:   p,
		})
		if err != nil {
			return nil, err
		}

		payload, ok := out.Payload.([]Out)
		if !ok {
			return nil, rentlerr.New(rentlerr.CodeValidation, fmt.Sprintf("%s agent returned unexpected payload type %T", name, out.Payload))
		}
		return payload, nil
	}
}

func withFeedback(params map[string]any, feedback string) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["retry_feedback"] = feedback
	return out
}

func adaptProgress(p Progress) agentpool.ProgressFunc {
	if p == nil {
		return nil
	}
	return func(completed, total, metricValue int) {
		p(completed, total, metricValue)
	}
}
