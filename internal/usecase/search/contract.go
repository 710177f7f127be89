package search

import (
	"context"

	"github.com/chabad-mafteach/mafteach/internal/domain"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/result"
)

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// VectorSearcher finds items by embedding similarity within one collection.
type VectorSearcher interface {
	Search(
		ctx context.Context, col collection.Name,
		query []float32, threshold float64, limit int,
	) ([]result.Result, error)
}

// ContentSearcher finds items by text match within one collection.
type ContentSearcher interface {
	Search(
		ctx context.Context, col collection.Name,
		query string, limit, offset int,
	) ([]result.Record, error)
}
