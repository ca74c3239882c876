package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwright/internal/token"
	"inkwright/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProject(t *testing.T, s *Store) *types.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), "expedition-book", "gemini-2.0-flash-exp")
	require.NoError(t, err)
	return p
}

func seedResource(t *testing.T, s *Store, projectID string, cat types.ResourceCategory, label, text string) *types.Resource {
	t.Helper()
	r := &types.Resource{
		ProjectID: projectID,
		Label:     label,
		Category:  cat,
		Origin:    types.OriginUpload,
		Text:      text,
		Active:    true,
	}
	require.NoError(t, s.CreateResource(context.Background(), r))
	return r
}

func TestProjects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := seedProject(t, s)
	assert.NotEmpty(t, p.ID)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "expedition-book", got.Name)
	assert.Equal(t, "gemini-2.0-flash-exp", got.DefaultModelID)

	_, err = s.GetProject(ctx, "nope")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResourceLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	r := seedResource(t, s, p.ID, types.CategoryNotes, "chapter notes", "the 1970 expedition left in may")

	t.Run("invalid category rejected", func(t *testing.T) {
		err := s.CreateResource(ctx, &types.Resource{ProjectID: p.ID, Category: "diary"})
		assert.Error(t, err)
	})

	t.Run("toggle hides from active snapshot", func(t *testing.T) {
		require.NoError(t, s.ToggleResource(ctx, r.ID, false))
		active, err := s.ActiveResources(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, active)

		require.NoError(t, s.ToggleResource(ctx, r.ID, true))
		active, err = s.ActiveResources(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, r.ID, active[0].ID)
	})

	t.Run("active snapshot ordered by id", func(t *testing.T) {
		r2 := seedResource(t, s, p.ID, types.CategorySource, "paper", "source text")
		active, err := s.ActiveResources(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Less(t, active[0].ID, active[1].ID)
		assert.Equal(t, r2.ID, active[1].ID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteResource(ctx, r.ID))
		_, err := s.GetResource(ctx, r.ID)
		assert.True(t, errors.Is(err, types.ErrNotFound))
		err = s.DeleteResource(ctx, r.ID)
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})
}

func TestListResources(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	r1 := seedResource(t, s, p.ID, types.CategoryNotes, "chapter notes", "the 1970 expedition left in may")
	r2 := seedResource(t, s, p.ID, types.CategorySource, "paper", "source text")

	const model = "gemini-2.0-flash-exp"
	require.NoError(t, s.PutTokenCount(ctx, r1.ID, model, token.HashText(r1.Text), 1234))

	list, err := s.ListResources(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, r1.ID, list[0].ID)
	assert.Equal(t, r2.ID, list[1].ID)
	assert.Equal(t, 1234, list[0].TokenCache[model])
	assert.Empty(t, list[1].TokenCache)

	t.Run("counts for several models attached", func(t *testing.T) {
		require.NoError(t, s.PutTokenCount(ctx, r1.ID, "gemini-1.5-pro", token.HashText(r1.Text), 1190))
		list, err := s.ListResources(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{model: 1234, "gemini-1.5-pro": 1190}, list[0].TokenCache)
	})
}

func TestTokenCachePersistence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	r := seedResource(t, s, p.ID, types.CategoryNotes, "notes", "original text")

	const model = "gemini-2.0-flash-exp"
	hash := token.HashText(r.Text)

	_, ok, err := s.CachedTokenCount(ctx, r.ID, model, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutTokenCount(ctx, r.ID, model, hash, 42))

	n, ok, err := s.CachedTokenCount(ctx, r.ID, model, hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, n)

	t.Run("stale hash evicts", func(t *testing.T) {
		newHash := token.HashText("edited text")
		_, ok, err := s.CachedTokenCount(ctx, r.ID, model, newHash)
		require.NoError(t, err)
		assert.False(t, ok)

		// The stale row is gone for the old hash too.
		_, ok, err = s.CachedTokenCount(ctx, r.ID, model, hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("text edit drops derived data", func(t *testing.T) {
		require.NoError(t, s.PutTokenCount(ctx, r.ID, model, hash, 42))
		require.NoError(t, s.SetSummary(ctx, r.ID, "a summary"))
		require.NoError(t, s.ReplaceChunks(ctx, r.ID, []types.ResourceChunk{
			{Text: "part one", TokenCount: 2},
		}))

		require.NoError(t, s.UpdateResourceText(ctx, r.ID, "completely new text"))

		_, ok, err := s.CachedTokenCount(ctx, r.ID, model, hash)
		require.NoError(t, err)
		assert.False(t, ok)

		sums, err := s.Summaries(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, sums)

		chunks, err := s.Chunks(ctx, r.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestChunkRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	r := seedResource(t, s, p.ID, types.CategorySource, "book", "long text")

	in := []types.ResourceChunk{
		{Text: "first", TokenCount: 5},
		{Text: "second", TokenCount: 6},
		{Text: "third", TokenCount: 7},
	}
	require.NoError(t, s.ReplaceChunks(ctx, r.ID, in))

	out, err := s.Chunks(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, c := range out {
		assert.Equal(t, i, c.SequenceIndex)
		assert.Equal(t, in[i].Text, c.Text)
		assert.Equal(t, in[i].TokenCount, c.TokenCount)
	}

	// Replacing reindexes from zero.
	require.NoError(t, s.ReplaceChunks(ctx, r.ID, in[1:]))
	out, err = s.Chunks(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[0].SequenceIndex)
	assert.Equal(t, "second", out[0].Text)
}

func TestVersionHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	artefact, err := s.EnsureArtefact(ctx, p.ID, "The Expedition")
	require.NoError(t, err)

	t.Run("ensure is idempotent", func(t *testing.T) {
		again, err := s.EnsureArtefact(ctx, p.ID, "ignored")
		require.NoError(t, err)
		assert.Equal(t, artefact.ID, again.ID)
		assert.Equal(t, "The Expedition", again.Title)
	})

	t.Run("empty artefact has empty content", func(t *testing.T) {
		content, err := s.CurrentContent(ctx, artefact.ID)
		require.NoError(t, err)
		assert.Empty(t, content)
	})

	v1, err := s.CommitVersion(ctx, artefact.ID, types.AuthorWriter, "Initial draft", "draft one")
	require.NoError(t, err)
	v2, err := s.CommitVersion(ctx, artefact.ID, types.AuthorUser, "Manual edit", "draft two")
	require.NoError(t, err)

	content, err := s.CurrentContent(ctx, artefact.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft two", content)

	t.Run("restore extends history", func(t *testing.T) {
		restored, err := s.RestoreVersion(ctx, artefact.ID, v1.ID)
		require.NoError(t, err)
		assert.NotEqual(t, v1.ID, restored.ID)
		assert.Equal(t, types.AuthorUser, restored.CreatedBy)
		assert.Equal(t, "draft one", restored.Content)

		versions, err := s.ListVersions(ctx, artefact.ID)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, []string{v1.ID, v2.ID, restored.ID},
			[]string{versions[0].ID, versions[1].ID, versions[2].ID})

		content, err := s.CurrentContent(ctx, artefact.ID)
		require.NoError(t, err)
		assert.Equal(t, "draft one", content)
	})

	t.Run("restore rejects foreign version", func(t *testing.T) {
		p2, err := s.CreateProject(ctx, "other", "gemini-2.0-flash-exp")
		require.NoError(t, err)
		other, err := s.EnsureArtefact(ctx, p2.ID, "Other")
		require.NoError(t, err)

		_, err = s.RestoreVersion(ctx, other.ID, v1.ID)
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})
}

func TestRunMutualExclusion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	artefact, err := s.EnsureArtefact(ctx, p.ID, "The Expedition")
	require.NoError(t, err)

	run, err := s.CreateRun(ctx, p.ID, artefact.ID, types.AgentWriter)
	require.NoError(t, err)
	assert.Equal(t, types.RunRunning, run.Status)

	t.Run("second run conflicts without a row", func(t *testing.T) {
		_, err := s.CreateRun(ctx, p.ID, artefact.ID, types.AgentStyleEditor)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrConflict))

		var conflict *types.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, run.ID, conflict.ActiveRun)

		runs, err := s.ListRuns(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("finish requires terminal status", func(t *testing.T) {
		err := s.FinishRun(ctx, run.ID, types.RunRunning, 0)
		assert.Error(t, err)
	})

	t.Run("finished run frees the artefact", func(t *testing.T) {
		require.NoError(t, s.FinishRun(ctx, run.ID, types.RunCompleted, 3))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, types.RunCompleted, got.Status)
		assert.Equal(t, 3, got.IterationCount)
		assert.NotNil(t, got.CompletedAt)

		_, err = s.ActiveRun(ctx, artefact.ID)
		assert.True(t, errors.Is(err, types.ErrNotFound))

		_, err = s.CreateRun(ctx, p.ID, artefact.ID, types.AgentFactChecker)
		assert.NoError(t, err)
	})
}

func TestRunLogs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	artefact, err := s.EnsureArtefact(ctx, p.ID, "The Expedition")
	require.NoError(t, err)
	run, err := s.CreateRun(ctx, p.ID, artefact.ID, types.AgentWriter)
	require.NoError(t, err)

	tokens := 123
	entries := []types.AgentRunLog{
		{AgentRunID: run.ID, IterationIndex: 0, Role: types.RoleSystem, Content: "system prompt"},
		{AgentRunID: run.ID, IterationIndex: 0, Role: types.RoleUser, Content: "user prompt"},
		{AgentRunID: run.ID, IterationIndex: 0, Role: types.RoleAssistant, Content: "draft", TokensUsed: &tokens},
		{AgentRunID: run.ID, IterationIndex: 1, Role: types.RoleSystem, Content: "check prompt"},
	}
	for i := range entries {
		require.NoError(t, s.AppendRunLog(ctx, &entries[i]))
	}

	got, err := s.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Ordered by iteration then insertion.
	assert.Equal(t, types.RoleSystem, got[0].Role)
	assert.Equal(t, types.RoleUser, got[1].Role)
	assert.Equal(t, types.RoleAssistant, got[2].Role)
	require.NotNil(t, got[2].TokensUsed)
	assert.Equal(t, 123, *got[2].TokensUsed)
	assert.Nil(t, got[0].TokensUsed)
	assert.Equal(t, 1, got[3].IterationIndex)
}
