package planner

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwright/internal/store"
	"inkwright/internal/token"
	"inkwright/internal/types"
)

func TestStoreChunkProvider_LazyAndStable(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p, err := s.CreateProject(ctx, "proj", testModel)
	require.NoError(t, err)

	res := &types.Resource{
		ProjectID: p.ID,
		Label:     "big source",
		Category:  types.CategorySource,
		Origin:    types.OriginUpload,
		Text:      strings.Repeat("a paragraph of reference text.\n\n", 200),
		Active:    true,
	}
	require.NoError(t, s.CreateResource(ctx, res))

	cache := token.NewCache(token.NewHeuristicCounter(), nil)
	provider := NewStoreChunkProvider(s, cache, 100, nil)

	first, err := provider.ChunksFor(ctx, res, testModel)
	require.NoError(t, err)
	require.Greater(t, len(first), 1)
	for i, c := range first {
		assert.Equal(t, i, c.SequenceIndex)
		assert.Positive(t, c.TokenCount)
	}

	t.Run("second call serves persisted chunks", func(t *testing.T) {
		second, err := provider.ChunksFor(ctx, res, testModel)
		require.NoError(t, err)
		require.Equal(t, len(first), len(second))
		for i := range first {
			assert.Equal(t, first[i].Text, second[i].Text)
		}
	})

	t.Run("text update invalidates chunks", func(t *testing.T) {
		require.NoError(t, s.UpdateResourceText(ctx, res.ID, "short now"))
		res.Text = "short now"

		chunks, err := provider.ChunksFor(ctx, res, testModel)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "short now", chunks[0].Text)
	})
}

func TestPlan_PersistsResourceTokenCounts(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	p, err := s.CreateProject(ctx, "proj", testModel)
	require.NoError(t, err)

	res := &types.Resource{
		ProjectID: p.ID,
		Label:     "chapter notes",
		Category:  types.CategoryNotes,
		Origin:    types.OriginUpload,
		Text:      "the 1970 expedition left in may",
		Active:    true,
	}
	require.NoError(t, s.CreateResource(ctx, res))

	cache := token.NewCache(token.NewHeuristicCounter(), nil).WithPersistence(s)
	provider := NewStoreChunkProvider(s, cache, 8000, nil)
	pl := New(cache, provider, DefaultConfig(), nil)

	plan, err := pl.Plan(ctx, Request{ModelID: testModel, Resources: []types.Resource{*res}})
	require.NoError(t, err)
	require.Len(t, plan.Inclusions, 1)

	n, ok, err := s.CachedTokenCount(ctx, res.ID, testModel, token.HashText(res.Text))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, plan.Inclusions[0].Tokens, n)

	list, err := s.ListResources(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, n, list[0].TokenCache[testModel])
}
