package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"inkwright/internal/llm"
	"inkwright/internal/planner"
	"inkwright/internal/store"
	"inkwright/internal/token"
	"inkwright/internal/types"
)

const testModel = "gemini-2.0-flash-exp"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type harness struct {
	store    *store.Store
	project  *types.Project
	artefact *types.Artefact
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	project, err := s.CreateProject(ctx, "field-notes-book", testModel)
	require.NoError(t, err)
	artefact, err := s.EnsureArtefact(ctx, project.ID, "The Expedition")
	require.NoError(t, err)

	return &harness{store: s, project: project, artefact: artefact}
}

func (h *harness) addResource(t *testing.T, cat types.ResourceCategory, label, text string) {
	t.Helper()
	require.NoError(t, h.store.CreateResource(context.Background(), &types.Resource{
		ProjectID: h.project.ID,
		Label:     label,
		Category:  cat,
		Origin:    types.OriginUpload,
		Text:      text,
		Active:    true,
	}))
}

func (h *harness) orchestrator(client llm.Client) *Orchestrator {
	cache := token.NewCache(token.NewHeuristicCounter(), nil)
	chunks := planner.NewStoreChunkProvider(h.store, cache, 8000, nil)
	p := planner.New(cache, chunks, planner.DefaultConfig(), nil)
	return New(h.store, p, client, nil)
}

func (h *harness) versions(t *testing.T) []types.ArtefactVersion {
	t.Helper()
	vs, err := h.store.ListVersions(context.Background(), h.artefact.ID)
	require.NoError(t, err)
	return vs
}

func TestWriter_HappyPath(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategoryNotes, "chapter notes", "the expedition left in may 1970")
	h.addResource(t, types.CategorySource, "archive", "records show a departure on may 3rd, 1970")

	mock := llm.NewMockClient(
		llm.MockResponse{Text: "The expedition left in May 1970."}, // draft
		llm.MockResponse{Text: "NONE"},                             // notes coverage check
		llm.MockResponse{Text: "NONE"},                             // source accuracy check
	)
	orch := h.orchestrator(mock)

	run, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID,
		types.AgentWriter, "write the opening chapter", testModel)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 3, run.IterationCount)
	assert.Equal(t, 3, mock.CallCount())

	vs := h.versions(t)
	require.Len(t, vs, 1)
	assert.Equal(t, types.AuthorWriter, vs[0].CreatedBy)
	assert.Equal(t, "The expedition left in May 1970.", vs[0].Content)
	assert.Contains(t, vs[0].PromptSummary, "write the opening chapter")

	t.Run("draft prompt carries planned context", func(t *testing.T) {
		calls := mock.Calls()
		assert.Contains(t, calls[0].UserPrompt, "## chapter notes")
		assert.Contains(t, calls[0].UserPrompt, "## archive")
		assert.Contains(t, calls[0].UserPrompt, "write the opening chapter")
	})

	t.Run("trail is persisted", func(t *testing.T) {
		runs, err := h.store.ListRuns(context.Background(), h.project.ID)
		require.NoError(t, err)
		require.Len(t, runs, 1)

		logs, err := h.store.RunLogs(context.Background(), runs[0].ID)
		require.NoError(t, err)
		assert.NotEmpty(t, logs)

		var hasPlan, hasAssistant bool
		for _, l := range logs {
			if l.Role == types.RoleSystem && strings.HasPrefix(l.Content, "context plan: ") {
				hasPlan = true
			}
			if l.Role == types.RoleAssistant {
				hasAssistant = true
			}
		}
		assert.True(t, hasPlan)
		assert.True(t, hasAssistant)
	})
}

func TestWriter_ReflectionTriggersRevision(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategoryNotes, "notes", "mention the supply problems")

	mock := llm.NewMockClient(
		llm.MockResponse{Text: "First draft."},
		llm.MockResponse{Text: "Missing: the supply problems are not covered."},
		llm.MockResponse{Text: "First draft, now covering the supply problems."},
		llm.MockResponse{Text: "NONE"},
	)
	orch := h.orchestrator(mock)

	run, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID,
		types.AgentWriter, "", testModel)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 4, mock.CallCount())

	vs := h.versions(t)
	require.Len(t, vs, 1)
	assert.Equal(t, "First draft, now covering the supply problems.", vs[0].Content)
}

func TestWriter_EmptyOutputFailsRunWithoutVersion(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategoryNotes, "notes", "some notes")

	mock := llm.NewMockClient(llm.MockResponse{Text: ""})
	orch := h.orchestrator(mock)

	run, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID,
		types.AgentWriter, "", testModel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRunFailed))
	assert.True(t, errors.Is(err, types.ErrParse))
	assert.Equal(t, types.RunFailed, run.Status)
	// One attempt plus one pass-level retry.
	assert.Equal(t, 2, mock.CallCount())

	assert.Empty(t, h.versions(t))

	t.Run("failed run keeps its trail", func(t *testing.T) {
		logs, err := h.store.RunLogs(context.Background(), run.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, logs)
	})

	t.Run("artefact is free afterwards", func(t *testing.T) {
		_, err := h.store.ActiveRun(context.Background(), h.artefact.ID)
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})
}

// cancellingClient cancels the run's context after its first response.
type cancellingClient struct {
	inner  llm.Client
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingClient) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	c.calls++
	result, err := c.inner.Generate(ctx, req)
	if c.calls == 1 {
		c.cancel()
	}
	return result, err
}

func (c *cancellingClient) CountTokens(ctx context.Context, text, modelID string) (int, error) {
	return c.inner.CountTokens(ctx, text, modelID)
}

func TestRun_CancellationAtPassBoundary(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategoryNotes, "notes", "some notes")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &cancellingClient{
		inner:  llm.NewMockClient(llm.MockResponse{Text: "a draft"}),
		cancel: cancel,
	}
	orch := h.orchestrator(client)

	run, err := orch.Run(ctx, h.project.ID, h.artefact.ID, types.AgentWriter, "", testModel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, types.RunCancelled, run.Status)
	// The draft pass completed; cancellation landed at the next boundary.
	assert.Equal(t, 1, client.calls)

	assert.Empty(t, h.versions(t))

	got, err := h.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCancelled, got.Status)
}

func TestRun_ConflictOnBusyArtefact(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategoryNotes, "notes", "some notes")

	release := make(chan struct{})
	blocking := clientFunc(func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &llm.GenerateResult{Text: "NONE"}, nil
	})
	orch := h.orchestrator(blocking)

	done := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID, types.AgentWriter, "", testModel)
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, busy := orch.ActiveRunID(h.artefact.ID)
		return busy
	}, time.Second, 5*time.Millisecond)

	_, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID, types.AgentStyleEditor, "", testModel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConflict))

	close(release)
	// "NONE" fails draft parsing? No: NONE is valid text for the draft pass,
	// so the first run completes normally.
	require.NoError(t, <-done)

	t.Run("artefact is free after completion", func(t *testing.T) {
		_, busy := orch.ActiveRunID(h.artefact.ID)
		assert.False(t, busy)
	})
}

func TestStyleEditor_ProfileComputedOnceAndCached(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategoryCorpus, "old essays", "I write short. Sharp. Like this.")
	_, err := h.store.CommitVersion(context.Background(), h.artefact.ID,
		types.AuthorWriter, "Initial draft", "A somewhat verbose opening passage.")
	require.NoError(t, err)

	mock := llm.NewMockClient(
		llm.MockResponse{Text: "Voice: terse, declarative, fragmentary."}, // profile
		llm.MockResponse{Text: "A short opening. Sharp."},                 // rewrite
		llm.MockResponse{Text: "NONE"},                                    // loss check
	)
	orch := h.orchestrator(mock)

	run, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID,
		types.AgentStyleEditor, "", testModel)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 3, mock.CallCount())

	profile, err := h.store.StyleProfile(context.Background(), h.project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Voice: terse, declarative, fragmentary.", profile)

	t.Run("second run reuses the cached profile", func(t *testing.T) {
		mock2 := llm.NewMockClient(
			llm.MockResponse{Text: "Even shorter now."},
			llm.MockResponse{Text: "NONE"},
		)
		orch2 := h.orchestrator(mock2)
		run2, err := orch2.Run(context.Background(), h.project.ID, h.artefact.ID,
			types.AgentStyleEditor, "", testModel)
		require.NoError(t, err)
		assert.Equal(t, types.RunCompleted, run2.Status)
		// No profile call this time.
		assert.Equal(t, 2, mock2.CallCount())

		calls := mock2.Calls()
		assert.Contains(t, calls[0].SystemPrompt, "Voice: terse, declarative, fragmentary.")
	})
}

func TestStyleEditor_CorrectiveRetryCapCommitsFlagged(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategoryCorpus, "old essays", "Sample of the author's voice.")
	_, err := h.store.CommitVersion(context.Background(), h.artefact.ID,
		types.AuthorWriter, "Initial draft", "Original draft with three key facts.")
	require.NoError(t, err)

	mock := llm.NewMockClient(
		llm.MockResponse{Text: "A style profile."},
		llm.MockResponse{Text: "Rewritten draft, facts dropped."},       // rewrite
		llm.MockResponse{Text: "Lost: the second and third key facts."}, // loss check
		llm.MockResponse{Text: "Restored draft, still missing one."},    // corrective pass
		llm.MockResponse{Text: "Lost: the third key fact."},             // final check
	)
	orch := h.orchestrator(mock)

	run, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID,
		types.AgentStyleEditor, "", testModel)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 5, mock.CallCount())

	// The retry cap is one: the run commits anyway, flagged for review.
	vs := h.versions(t)
	require.Len(t, vs, 2)
	last := vs[len(vs)-1]
	assert.Equal(t, types.AuthorStyleEditor, last.CreatedBy)
	assert.Equal(t, "Restored draft, still missing one.", last.Content)
	assert.Contains(t, last.PromptSummary, "content-loss check unresolved")
}

func TestFactChecker_PlansOverSourcesOnly(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategoryNotes, "speculative notes", "maybe it was 1969")
	h.addResource(t, types.CategorySource, "ship manifest", "departed may 3rd 1970")
	_, err := h.store.CommitVersion(context.Background(), h.artefact.ID,
		types.AuthorWriter, "Initial draft", "The expedition departed in 1969.")
	require.NoError(t, err)

	mock := llm.NewMockClient(
		llm.MockResponse{Text: "Claim 1: departure year 1969 contradicts the manifest (1970)."},
		llm.MockResponse{Text: "The expedition departed in 1970. [corrected]"},
	)
	orch := h.orchestrator(mock)

	run, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID,
		types.AgentFactChecker, "", testModel)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Contains(t, call.UserPrompt, "## ship manifest")
		assert.NotContains(t, call.UserPrompt, "speculative notes")
	}

	vs := h.versions(t)
	require.Len(t, vs, 2)
	assert.Equal(t, types.AuthorFactChecker, vs[1].CreatedBy)
	assert.Equal(t, "The expedition departed in 1970. [corrected]", vs[1].Content)
}

func TestDetailEditor_TwoPassesOneVersion(t *testing.T) {
	h := newHarness(t)
	h.addResource(t, types.CategorySource, "interview", "the camp sat at 4200 meters")
	_, err := h.store.CommitVersion(context.Background(), h.artefact.ID,
		types.AuthorWriter, "Initial draft", "They set up camp somewhere high.")
	require.NoError(t, err)

	mock := llm.NewMockClient(
		llm.MockResponse{Text: "Vague: 'somewhere high' lacks the altitude."},
		llm.MockResponse{Text: "They set up camp at 4,200 meters."},
	)
	orch := h.orchestrator(mock)

	run, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID,
		types.AgentDetailEditor, "", testModel)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, 2, run.IterationCount)

	// The analysis feeds the expand pass.
	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].UserPrompt, "somewhere high")

	vs := h.versions(t)
	require.Len(t, vs, 2)
	assert.Equal(t, "They set up camp at 4,200 meters.", vs[1].Content)
}

func TestRun_UnknownAgent(t *testing.T) {
	h := newHarness(t)
	orch := h.orchestrator(llm.NewMockClient())

	_, err := orch.Run(context.Background(), h.project.ID, h.artefact.ID,
		types.AgentType("ghostwriter"), "", testModel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfig))
}

// clientFunc adapts a function to the llm.Client interface.
type clientFunc func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error)

func (f clientFunc) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	return f(ctx, req)
}

func (f clientFunc) CountTokens(_ context.Context, text, _ string) (int, error) {
	return len(text) / 4, nil
}
