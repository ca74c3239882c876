package planner

import (
	"context"

	"go.uber.org/zap"

	"inkwright/internal/chunker"
	"inkwright/internal/store"
	"inkwright/internal/token"
	"inkwright/internal/types"
)

// StoreChunkProvider materialises chunks lazily: the first time a resource
// needs chunked inclusion for some model, the text is split, counted, and
// persisted. Boundaries stay stable until the resource text changes (the
// store drops chunks on text updates).
type StoreChunkProvider struct {
	store  *store.Store
	tokens *token.Cache
	opts   chunker.Options
	logger *zap.Logger
}

// NewStoreChunkProvider wires the provider.
func NewStoreChunkProvider(s *store.Store, tokens *token.Cache, chunkSizeTokens int, logger *zap.Logger) *StoreChunkProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := chunker.DefaultOptions()
	if chunkSizeTokens > 0 {
		opts.TargetTokens = chunkSizeTokens
	}
	return &StoreChunkProvider{
		store:  s,
		tokens: tokens,
		opts:   opts,
		logger: logger.Named("chunks"),
	}
}

// ChunksFor returns the resource's ordered chunks, creating them on first
// use with exact token counts for the given model.
func (p *StoreChunkProvider) ChunksFor(ctx context.Context, res *types.Resource, modelID string) ([]types.ResourceChunk, error) {
	existing, err := p.store.Chunks(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	raw := chunker.Split(res.Text, p.opts)
	chunks := make([]types.ResourceChunk, len(raw))
	for i, c := range raw {
		count, err := p.tokens.Count(ctx, c.Text, modelID)
		if err != nil {
			return nil, err
		}
		chunks[i] = types.ResourceChunk{
			ResourceID:    res.ID,
			SequenceIndex: i,
			Text:          c.Text,
			TokenCount:    count,
		}
	}
	if err := p.store.ReplaceChunks(ctx, res.ID, chunks); err != nil {
		return nil, err
	}

	p.logger.Debug("resource chunked",
		zap.String("resource", res.ID),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// MemoryChunkProvider serves chunks from an in-memory map; used in tests
// and for plans computed against detached snapshots.
type MemoryChunkProvider struct {
	byResource map[string][]types.ResourceChunk
}

// NewMemoryChunkProvider builds a provider over a fixed chunk table.
func NewMemoryChunkProvider(byResource map[string][]types.ResourceChunk) *MemoryChunkProvider {
	if byResource == nil {
		byResource = make(map[string][]types.ResourceChunk)
	}
	return &MemoryChunkProvider{byResource: byResource}
}

// ChunksFor returns the preset chunks for the resource, if any.
func (p *MemoryChunkProvider) ChunksFor(_ context.Context, res *types.Resource, _ string) ([]types.ResourceChunk, error) {
	return p.byResource[res.ID], nil
}
