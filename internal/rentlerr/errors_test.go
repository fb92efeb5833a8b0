package rentlerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevorwieland/rentl/internal/rentlerr"
)

func TestError_Message(t *testing.T) {
	err := rentlerr.New(rentlerr.CodeValidation, "duplicate line_id a_1")
	assert.Equal(t, "validation_error: duplicate line_id a_1", err.Error())
}

func TestError_WrapPreservesChain(t *testing.T) {
	cause := errors.New("disk full")
	err := rentlerr.Wrap(rentlerr.CodeStorage, "write run state", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestError_WrapInheritsCodeFromInnerError(t *testing.T) {
	inner := rentlerr.New(rentlerr.CodeConnection, "dial timeout")
	outer := rentlerr.Wrap("", "translate chunk 3", inner)

	assert.Equal(t, rentlerr.CodeConnection, outer.Code)
}

func TestError_IsMatchesSentinel(t *testing.T) {
	err := rentlerr.New(rentlerr.CodeOrchestration, "duplicate line_ids survived retries")

	assert.True(t, errors.Is(err, rentlerr.Sentinel(rentlerr.CodeOrchestration)))
	assert.False(t, errors.Is(err, rentlerr.Sentinel(rentlerr.CodeValidation)))
}

func TestError_WithNextActionAndContext(t *testing.T) {
	base := rentlerr.New(rentlerr.CodeConnection, "llm runtime unauthorized")
	decorated := base.WithNextAction("run validate-connection").WithContext(rentlerr.Context{
		Phase:    "translate",
		Language: "fr",
	})

	assert.Equal(t, "run validate-connection", decorated.NextAction)
	assert.Equal(t, "translate", decorated.Context.Phase)
	assert.Equal(t, "fr", decorated.Context.Language)
	// Base is untouched.
	assert.Empty(t, base.NextAction)
}

func TestError_FmtErrorfWrapping(t *testing.T) {
	cause := rentlerr.New(rentlerr.CodeIngest, "missing column source_text")
	wrapped := fmt.Errorf("ingest adapter: parse row 4: %w", cause)

	var asErr *rentlerr.Error
	require.True(t, errors.As(wrapped, &asErr))
	assert.Equal(t, rentlerr.CodeIngest, asErr.Code)
}
