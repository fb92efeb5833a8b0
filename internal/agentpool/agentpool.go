// Package agentpool executes one phase's work by dispatching deterministic
// chunks of input to an LLM-backed agent with bounded parallelism,
// per-chunk retries, and strict input/output ID alignment.
package agentpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Identified is implemented by any item chunked through the pool: source
// lines by line_id, scene summaries by scene_id, and so on.
type Identified interface {
	ItemID() string
}

// AlignmentMode controls how a chunk's output IDs are checked against its
// input IDs. Phases differ in whether every input line must produce
// exactly one output record: translate and context do (one translation per
// line, one summary per scene), while qa and pretranslation produce zero or
// more findings per line, so only unrecognized line_ids are an error.
type AlignmentMode int

const (
	// AlignmentExact requires the output ID multiset to equal the input ID
	// set exactly: no missing, no extra, no duplicate.
	AlignmentExact AlignmentMode = iota
	// AlignmentSubset requires every output ID to reference a known input
	// ID; missing inputs and repeated IDs are both allowed.
	AlignmentSubset
	// AlignmentNone skips the ID check entirely. For phases whose output
	// items are keyed in a different ID space than their input items (the
	// context phase groups lines by scene but emits scene_id-keyed
	// summaries), the executor validates its own output shape and returns
	// an error to trigger a retry instead.
	AlignmentNone
)

// Config carries the Agent Pool's dispatch parameters for one phase
// (config.AgentPhaseConfig.Resolve output).
type Config struct {
	MaxConcurrentChunks int
	ChunkSize           int
	MaxChunkRetries     int
	Alignment           AlignmentMode
}

// Executor runs one attempt at one chunk. feedback is empty on the first
// attempt and carries an alignment or schema-repair message on retries.
// Implementations are expected to call out to a ports.LLMRuntime and decode
// its response into Out; schema-retry within a single call is the
// LLMRuntime's concern, not the pool's.
type Executor[In Identified, Out Identified] func(ctx context.Context, chunk []In, attempt int, feedback string) ([]Out, error)

// ProgressFunc reports one chunk's completion. metricValue is the natural
// unit count for that chunk (e.g. lines translated); it is zero on a failed
// chunk.
type ProgressFunc func(chunksCompleted, totalChunks int, metricValue int)

// ChunkFailure describes a chunk that exhausted its retries.
type ChunkFailure struct {
	ChunkIndex int
	ItemIDs    []string
	Err        error
}

// Result is the outcome of running a phase's full input through the pool.
type Result[Out Identified] struct {
	// Merged holds every chunk's output, in input order, but only if every
	// chunk succeeded. It is nil if any chunk failed: a chunk failure fails
	// the whole phase, so nothing is merged into the run output.
	Merged []Out

	// Diagnostics holds the last attempt's raw output for every chunk,
	// successful or not, keyed by chunk index, so a failed phase can still
	// persist partial output for inspection.
	Diagnostics map[int][]Out

	// Failures lists every chunk that exhausted its retries.
	Failures []ChunkFailure

	// ChunksCompleted is the total number of chunks the pool attempted,
	// successful or not.
	ChunksCompleted int

	// RetriedChunks is the number of chunks that needed more than one
	// attempt, whether or not they ultimately succeeded.
	RetriedChunks int
}

// Succeeded reports whether every chunk completed without exhausting
// retries.
func (r Result[Out]) Succeeded() bool {
	return len(r.Failures) == 0
}

// Run partitions items into deterministic chunks of cfg.ChunkSize (in input
// order), executes up to cfg.MaxConcurrentChunks chunks concurrently via
// exec, and merges successful chunk outputs back into input order. Each
// chunk is retried up to cfg.MaxChunkRetries times on an exec error or an
// ID-alignment mismatch; onProgress (may be nil) is called after every
// chunk's final attempt.
func Run[In Identified, Out Identified](ctx context.Context, items []In, cfg Config, exec Executor[In, Out], onProgress ProgressFunc) (Result[Out], error) {
	return RunChunks(ctx, chunkItems(items, cfg.ChunkSize), cfg, exec, onProgress)
}

// RunChunks is Run for a caller that already knows how it wants input
// partitioned (e.g. the context phase, which groups by scene boundaries
// rather than by fixed size). cfg.ChunkSize is ignored; MaxConcurrentChunks
// and MaxChunkRetries still apply per chunk.
//
// Dispatch uses golang.org/x/sync/errgroup with SetLimit to bound
// concurrency: one goroutine per chunk, capped at MaxConcurrentChunks
// in flight at once. A chunk exhausting its retries does not cancel its
// siblings — only context cancellation does — so every chunk's diagnostic
// output is still collected even when the phase as a whole ultimately
// fails.
func RunChunks[In Identified, Out Identified](ctx context.Context, chunks [][]In, cfg Config, exec Executor[In, Out], onProgress ProgressFunc) (Result[Out], error) {
	if len(chunks) == 0 {
		return Result[Out]{Merged: []Out{}, Diagnostics: map[int][]Out{}}, nil
	}

	outcomes := make([]chunkOutcome[Out], len(chunks))
	var (
		mu        sync.Mutex
		completed int
	)

	limit := cfg.MaxConcurrentChunks
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for idx, chunk := range chunks {
		idx, chunk := idx, chunk
		g.Go(func() error {
			outcome := runChunkWithRetry(gctx, idx, chunk, cfg.MaxChunkRetries, cfg.Alignment, exec)

			mu.Lock()
			outcomes[idx] = outcome
			completed++
			n := completed
			mu.Unlock()

			metricValue := 0
			if outcome.err == nil {
				metricValue = len(outcome.output)
			}
			if onProgress != nil {
				onProgress(n, len(chunks), metricValue)
			}

			if ctxFatal(outcome.err) {
				return outcome.err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result[Out]{}, err
	}

	result := Result[Out]{Diagnostics: make(map[int][]Out, len(chunks)), ChunksCompleted: len(chunks)}
	for idx, outcome := range outcomes {
		result.Diagnostics[idx] = outcome.output
		if outcome.attempts > 1 {
			result.RetriedChunks++
		}
		if outcome.err != nil {
			result.Failures = append(result.Failures, ChunkFailure{
				ChunkIndex: idx,
				ItemIDs:    itemIDs(chunks[idx]),
				Err:        outcome.err,
			})
		}
	}

	if len(result.Failures) == 0 {
		merged := make([]Out, 0)
		for _, outcome := range outcomes {
			merged = append(merged, outcome.output...)
		}
		result.Merged = merged
	}

	return result, nil
}

type chunkOutcome[Out Identified] struct {
	output   []Out
	err      error
	attempts int
}

// runChunkWithRetry drives the per-chunk attempt loop: up to maxRetries+1
// total attempts, checking ID alignment after every successful exec call
// and constructing targeted feedback naming missing/extra/duplicate IDs on
// mismatch.
func runChunkWithRetry[In Identified, Out Identified](ctx context.Context, chunkIndex int, chunk []In, maxRetries int, mode AlignmentMode, exec Executor[In, Out]) chunkOutcome[Out] {
	expected := make([]string, len(chunk))
	for i, item := range chunk {
		expected[i] = item.ItemID()
	}

	feedback := ""
	var lastOutput []Out
	var lastErr error

	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return chunkOutcome[Out]{output: lastOutput, err: fmt.Errorf("agentpool: chunk %d: context cancelled: %w", chunkIndex, err), attempts: attempt}
		}

		output, err := exec(ctx, chunk, attempt, feedback)
		if err != nil {
			lastErr = fmt.Errorf("agentpool: chunk %d attempt %d: %w", chunkIndex, attempt, err)
			lastOutput = output
			feedback = fmt.Sprintf("the previous attempt failed: %v. Please retry.", err)
			continue
		}

		actual := make([]string, len(output))
		for i, item := range output {
			actual[i] = item.ItemID()
		}

		mismatch := alignmentMismatch(expected, actual, mode)
		if mismatch == "" {
			return chunkOutcome[Out]{output: output, attempts: attempt}
		}

		lastOutput = output
		lastErr = fmt.Errorf("agentpool: chunk %d attempt %d: id alignment failed: %s", chunkIndex, attempt, mismatch)
		feedback = mismatch
	}

	return chunkOutcome[Out]{output: lastOutput, err: lastErr, attempts: maxRetries + 1}
}

// alignmentMismatch compares expected and actual ID sets and returns a
// feedback message naming missing, extra, and duplicate IDs, or "" if the
// output satisfies mode. AlignmentExact requires exact one-to-one coverage;
// AlignmentSubset only rejects IDs absent from the input, since phases like
// qa and pretranslation may produce zero or several records per line.
func alignmentMismatch(expected, actual []string, mode AlignmentMode) string {
	if mode == AlignmentNone {
		return ""
	}

	expectedSet := make(map[string]bool, len(expected))
	for _, id := range expected {
		expectedSet[id] = true
	}

	actualCount := make(map[string]int, len(actual))
	for _, id := range actual {
		actualCount[id]++
	}

	var missing, extra, duplicate []string
	if mode == AlignmentExact {
		for id := range expectedSet {
			if actualCount[id] == 0 {
				missing = append(missing, id)
			}
		}
	}
	for id, count := range actualCount {
		if !expectedSet[id] {
			extra = append(extra, id)
		} else if mode == AlignmentExact && count > 1 {
			duplicate = append(duplicate, id)
		}
	}

	if len(missing) == 0 && len(extra) == 0 && len(duplicate) == 0 {
		return ""
	}

	msg := "id alignment mismatch:"
	if len(missing) > 0 {
		msg += fmt.Sprintf(" missing=%v", missing)
	}
	if len(extra) > 0 {
		msg += fmt.Sprintf(" extra=%v", extra)
	}
	if len(duplicate) > 0 {
		msg += fmt.Sprintf(" duplicate=%v", duplicate)
	}
	return msg
}

// ctxFatal reports whether err represents context cancellation, which
// should abort the whole pool rather than just failing one chunk.
func ctxFatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func itemIDs[In Identified](chunk []In) []string {
	ids := make([]string, len(chunk))
	for i, item := range chunk {
		ids[i] = item.ItemID()
	}
	return ids
}

// chunkItems partitions items into consecutive slices of size n, preserving
// order. A non-positive n produces a single chunk containing every item.
func chunkItems[In any](items []In, n int) [][]In {
	if len(items) == 0 {
		return nil
	}
	if n <= 0 {
		n = len(items)
	}
	var chunks [][]In
	for start := 0; start < len(items); start += n {
		end := start + n
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
