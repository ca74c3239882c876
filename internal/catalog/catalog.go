// Package catalog is the static model registry: profiles describing each
// supported LLM's context limits and tokenizer. Entries are immutable and
// looked up by ID.
package catalog

import (
	"sort"

	"inkwright/internal/types"
)

// DefaultModelID is used when neither project nor caller selects a model.
const DefaultModelID = "gemini-2.0-flash-exp"

var profiles = map[string]types.ModelProfile{
	"gemini-2.0-flash-exp": {
		ID:              "gemini-2.0-flash-exp",
		DisplayName:     "Gemini 2.0 Flash (Experimental)",
		MaxInputTokens:  1_048_576,
		MaxOutputTokens: 8_192,
		TokenizerID:     "gemini",
		Description:     "Latest experimental flash model with 1M context",
	},
	"gemini-1.5-pro": {
		ID:              "gemini-1.5-pro",
		DisplayName:     "Gemini 1.5 Pro",
		MaxInputTokens:  2_097_152,
		MaxOutputTokens: 8_192,
		TokenizerID:     "gemini",
		Description:     "High-capability model with 2M context window",
	},
	"gemini-1.5-flash": {
		ID:              "gemini-1.5-flash",
		DisplayName:     "Gemini 1.5 Flash",
		MaxInputTokens:  1_048_576,
		MaxOutputTokens: 8_192,
		TokenizerID:     "gemini",
		Description:     "Fast model with 1M context window",
	},
	"gemini-1.5-flash-8b": {
		ID:              "gemini-1.5-flash-8b",
		DisplayName:     "Gemini 1.5 Flash-8B",
		MaxInputTokens:  1_048_576,
		MaxOutputTokens: 8_192,
		TokenizerID:     "gemini",
		Description:     "Lightweight flash model with 1M context",
	},
}

// Lookup returns the profile for modelID. Unknown IDs are a ConfigError:
// callers must treat this as fatal (misconfiguration, not a transient fault).
func Lookup(modelID string) (types.ModelProfile, error) {
	p, ok := profiles[modelID]
	if !ok {
		return types.ModelProfile{}, &types.ConfigError{
			ModelID: modelID,
			Detail:  "not in model registry",
		}
	}
	return p, nil
}

// Default returns the default model profile.
func Default() types.ModelProfile {
	return profiles[DefaultModelID]
}

// List returns all profiles sorted by ID.
func List() []types.ModelProfile {
	out := make([]types.ModelProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
