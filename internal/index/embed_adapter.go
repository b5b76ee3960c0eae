package index

import (
	"context"

	"github.com/Aman-CERP/amanmcp/internal/embed"
)

// EmbedderAdapter adapts the ambient embed.Embedder interface (caching and
// retry decorators included) to the Runner's DenseEmbedder contract: order
// preserved, a batch-level error spread across every item rather than
// failing the whole call outright.
type EmbedderAdapter struct {
	Inner embed.Embedder
}

// EmbedBatch embeds every text. A batch-level error from the inner embedder
// is reported on every item so the caller can still make partial progress
// on whichever items a retry decorator did manage.
func (a EmbedderAdapter) EmbedBatch(ctx context.Context, texts []string) ([]EmbeddingResult, error) {
	vectors, err := a.Inner.EmbedBatch(ctx, texts)
	if err != nil {
		results := make([]EmbeddingResult, len(texts))
		for i := range results {
			results[i] = EmbeddingResult{Err: err}
		}
		return results, nil
	}
	results := make([]EmbeddingResult, len(texts))
	for i, v := range vectors {
		results[i] = EmbeddingResult{Vector: v}
	}
	return results, nil
}

// Dimensions passes through to the inner embedder.
func (a EmbedderAdapter) Dimensions() int { return a.Inner.Dimensions() }

// ModelName passes through to the inner embedder.
func (a EmbedderAdapter) ModelName() string { return a.Inner.ModelName() }
