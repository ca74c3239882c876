package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{&ConfigError{ModelID: "m", Detail: "unknown"}, ErrConfig},
		{&PlanningError{ModelID: "m", ArtefactTokens: 10, Budget: 5}, ErrPlanning},
		{&ConflictError{ArtefactID: "a", ActiveRun: "r"}, ErrConflict},
		{&TransientError{Op: "generate", Err: errors.New("503")}, ErrTransient},
		{&ParseError{Pass: "draft", Detail: "empty"}, ErrParse},
		{&RunFailedError{RunID: "r", Pass: "draft", Err: errors.New("boom")}, ErrRunFailed},
	}
	for _, tc := range cases {
		assert.True(t, errors.Is(tc.err, tc.sentinel), "%T", tc.err)
		assert.NotEmpty(t, tc.err.Error())
	}
}

func TestErrorsSurviveWrapping(t *testing.T) {
	inner := &ConflictError{ArtefactID: "a", ActiveRun: "r"}
	wrapped := fmt.Errorf("starting run: %w", inner)

	assert.True(t, errors.Is(wrapped, ErrConflict))

	var conflict *ConflictError
	require.True(t, errors.As(wrapped, &conflict))
	assert.Equal(t, "r", conflict.ActiveRun)
}

func TestRunFailedUnwrapsCause(t *testing.T) {
	cause := &ParseError{Pass: "draft", Detail: "empty response"}
	failed := &RunFailedError{RunID: "run1", Pass: "draft", Err: cause}

	assert.True(t, errors.Is(failed, ErrRunFailed))
	assert.True(t, errors.Is(failed, ErrParse))
}

func TestCategoryPriority(t *testing.T) {
	assert.Less(t, CategoryNotes.Priority(), CategorySource.Priority())
	assert.Less(t, CategorySource.Priority(), CategoryCorpus.Priority())
	assert.Less(t, CategoryCorpus.Priority(), CategoryOther.Priority())

	assert.True(t, CategoryNotes.Valid())
	assert.False(t, ResourceCategory("diary").Valid())
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, RunRunning.Terminal())
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.True(t, RunCancelled.Terminal())
}
