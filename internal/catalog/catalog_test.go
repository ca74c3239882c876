package catalog

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwright/internal/types"
)

func TestLookup(t *testing.T) {
	p, err := Lookup("gemini-2.0-flash-exp")
	require.NoError(t, err)
	assert.Equal(t, 1_048_576, p.MaxInputTokens)
	assert.Equal(t, 8_192, p.MaxOutputTokens)

	t.Run("unknown model is a config error", func(t *testing.T) {
		_, err := Lookup("gpt-4o")
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrConfig))

		var ce *types.ConfigError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "gpt-4o", ce.ModelID)
	})
}

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, DefaultModelID, p.ID)
}

func TestList(t *testing.T) {
	models := List()
	require.NotEmpty(t, models)
	assert.True(t, sort.SliceIsSorted(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	}))
	for _, m := range models {
		assert.Greater(t, m.MaxInputTokens, m.MaxOutputTokens, m.ID)
	}
}
